package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	coingeckosource "github.com/tdex-network/price-publisher/internal/infrastructure/price-source/coingecko"
	propellersource "github.com/tdex-network/price-publisher/internal/infrastructure/price-source/propeller"
	tokenstoreredis "github.com/tdex-network/price-publisher/internal/infrastructure/token-store/redis"
	"github.com/tdex-network/price-publisher/pkg/pythd"
)

const (
	// ConfigFileKey is the path of an optional yaml config file. Env vars
	// take precedence over the values in the file
	ConfigFileKey = "CONFIG_FILE"
	// LogLevelKey are the different logging levels. For reference on the values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// DatadirKey is the local data directory to store the internal state of daemon
	DatadirKey = "DATADIR"
	// PythdEndpointKey is the websocket endpoint of the pythd JSON-RPC API
	PythdEndpointKey = "PYTHD_ENDPOINT"
	// ProviderEnginesKey is the comma separated list of price sources to use,
	// in order of priority
	ProviderEnginesKey = "PROVIDER_ENGINES"
	// ProductUpdateIntervalKey is the interval in seconds to fetch the product
	// list from pythd
	ProductUpdateIntervalKey = "PRODUCT_UPDATE_INTERVAL_SECS"
	// StalenessThresholdKey is the age in seconds after which prices are
	// published with status unknown
	StalenessThresholdKey = "STALENESS_THRESHOLD_SECS"
	// HealthCheckPortKey is the port where the health and metrics http
	// endpoints listen on
	HealthCheckPortKey = "HEALTH_CHECK_PORT"
	// HealthCheckThresholdKey is the max age in seconds of the latest
	// published price for the daemon to be reported healthy
	HealthCheckThresholdKey = "HEALTH_CHECK_THRESHOLD_SECS"
	// ManualAggEnabledKey and ManualAggMaxSlotDiffKey are forwarded to the
	// aggregation daemon, they don't affect how prices are published
	ManualAggEnabledKey     = "MANUAL_AGG_ENABLED"
	ManualAggMaxSlotDiffKey = "MANUAL_AGG_MAX_SLOT_DIFF"

	// CoinGeckoEndpointKey is the base url of the CoinGecko API
	CoinGeckoEndpointKey = "COIN_GECKO_ENDPOINT"
	// CoinGeckoAPIKeyKey is the optional key for the CoinGecko pro API
	CoinGeckoAPIKeyKey = "COIN_GECKO_API_KEY"
	// CoinGeckoUpdateIntervalKey is the polling interval in seconds
	CoinGeckoUpdateIntervalKey = "COIN_GECKO_UPDATE_INTERVAL_SECS"
	// CoinGeckoConfidenceRatioKey is the confidence interval of CoinGecko
	// prices in basis points of the price
	CoinGeckoConfidenceRatioKey = "COIN_GECKO_CONFIDENCE_RATIO_BPS"
	// CoinGeckoProductsKey is the comma separated list of symbol=id pairs
	CoinGeckoProductsKey = "COIN_GECKO_PRODUCTS"
	// CoinGeckoMaxIDsPerRequestKey is the max number of ids per query
	CoinGeckoMaxIDsPerRequestKey = "COIN_GECKO_MAX_IDS_PER_REQUEST"
	// CoinGeckoRequestsPerSecondKey limits the rate of queries, 0 means no limit
	CoinGeckoRequestsPerSecondKey = "COIN_GECKO_REQUESTS_PER_SECOND"

	// PropellerUpdateIntervalKey is the interval in seconds to read prices
	// from the token store
	PropellerUpdateIntervalKey = "PROPELLER_UPDATE_INTERVAL_SECS"
	// PropellerTokenCatalogKey is the path or url of the symbol,address csv
	PropellerTokenCatalogKey = "PROPELLER_TOKEN_CATALOG"
	// PropellerQuoteTokenSymbolKey and PropellerQuoteTokenAddressKey identify
	// the token used as USD reference
	PropellerQuoteTokenSymbolKey  = "PROPELLER_QUOTE_TOKEN_SYMBOL"
	PropellerQuoteTokenAddressKey = "PROPELLER_QUOTE_TOKEN_ADDRESS"

	// TokenStoreTypeKey is the backend of the token price store, either
	// redis or badger
	TokenStoreTypeKey = "TOKEN_STORE_TYPE"
	RedisAddrKey      = "REDIS_ADDR"
	RedisPasswordKey  = "REDIS_PASSWORD"
	RedisDBKey        = "REDIS_DB"
	RedisPricesKey    = "REDIS_PRICES_KEY"
	RedisSpreadsKey   = "REDIS_SPREADS_KEY"

	// EnableProfilerKey enables profiler that can be used to investigate performance issues
	EnableProfilerKey = "ENABLE_PROFILER"
	// StatsIntervalKey defines interval for printing basic statistics
	StatsIntervalKey = "STATS_INTERVAL"

	CoinGeckoEngine = "coin_gecko"
	PropellerEngine = "propeller"

	RedisTokenStore  = "redis"
	BadgerTokenStore = "badger"

	DbLocation       = "db"
	ProfilerLocation = "stats"
)

var (
	vip            *viper.Viper
	defaultDatadir = appDataDir("price-publisher")

	defaultCoinGeckoProducts = strings.Join([]string{
		"Crypto.BTC/USD=bitcoin",
		"Crypto.ETH/USD=ethereum",
		"Crypto.USDC/USD=usd-coin",
		"Crypto.USDT/USD=tether",
		"Crypto.SOL/USD=solana",
	}, ",")
)

func init() {
	vip = viper.New()
	vip.SetEnvPrefix("PUBLISHER")
	vip.AutomaticEnv()

	vip.SetDefault(LogLevelKey, 4)
	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(PythdEndpointKey, pythd.DefaultEndpoint)
	vip.SetDefault(ProviderEnginesKey, CoinGeckoEngine)
	vip.SetDefault(ProductUpdateIntervalKey, 60)
	vip.SetDefault(StalenessThresholdKey, 30)
	vip.SetDefault(HealthCheckPortKey, 8000)
	vip.SetDefault(HealthCheckThresholdKey, 60)
	vip.SetDefault(ManualAggEnabledKey, true)
	vip.SetDefault(ManualAggMaxSlotDiffKey, 25)
	vip.SetDefault(CoinGeckoEndpointKey, coingeckosource.DefaultEndpoint)
	vip.SetDefault(CoinGeckoUpdateIntervalKey, 60)
	vip.SetDefault(CoinGeckoConfidenceRatioKey, 10)
	vip.SetDefault(CoinGeckoProductsKey, defaultCoinGeckoProducts)
	vip.SetDefault(CoinGeckoMaxIDsPerRequestKey, coingeckosource.DefaultMaxIDsPerRequest)
	vip.SetDefault(CoinGeckoRequestsPerSecondKey, 0.5)
	vip.SetDefault(PropellerUpdateIntervalKey, 60)
	vip.SetDefault(PropellerQuoteTokenSymbolKey, propellersource.DefaultQuoteTokenSymbol)
	vip.SetDefault(PropellerQuoteTokenAddressKey, propellersource.DefaultQuoteTokenAddress)
	vip.SetDefault(TokenStoreTypeKey, RedisTokenStore)
	vip.SetDefault(RedisAddrKey, "127.0.0.1:6379")
	vip.SetDefault(RedisDBKey, 0)
	vip.SetDefault(RedisPricesKey, tokenstoreredis.DefaultPricesKey)
	vip.SetDefault(RedisSpreadsKey, tokenstoreredis.DefaultSpreadsKey)
	vip.SetDefault(EnableProfilerKey, false)
	vip.SetDefault(StatsIntervalKey, 600)
}

// Load merges the given yaml config file, if any, with the env vars and
// validates the resulting configuration.
// If configFile is empty, the one set with PUBLISHER_CONFIG_FILE is used.
func Load(configFile string) error {
	if configFile == "" {
		configFile = GetString(ConfigFileKey)
	}
	if configFile != "" {
		vip.SetConfigFile(configFile)
		if err := vip.ReadInConfig(); err != nil {
			return fmt.Errorf("error while reading config file: %w", err)
		}
	}

	if err := validate(); err != nil {
		return fmt.Errorf("error while validating config: %w", err)
	}

	if err := initDatadir(); err != nil {
		return fmt.Errorf("error while creating datadir: %w", err)
	}

	log.WithFields(log.Fields{
		"manual_agg_enabled":       GetBool(ManualAggEnabledKey),
		"manual_agg_max_slot_diff": GetInt(ManualAggMaxSlotDiffKey),
	}).Debug("manual aggregation settings")
	return nil
}

// GetString ...
func GetString(key string) string {
	return vip.GetString(key)
}

// GetInt ...
func GetInt(key string) int {
	return vip.GetInt(key)
}

// GetFloat ...
func GetFloat(key string) float64 {
	return vip.GetFloat64(key)
}

// GetBool ...
func GetBool(key string) bool {
	return vip.GetBool(key)
}

// GetSeconds returns the value of the given key as a duration in seconds.
func GetSeconds(key string) time.Duration {
	return time.Duration(vip.GetInt(key)) * time.Second
}

// GetDatadir ...
func GetDatadir() string {
	return GetString(DatadirKey)
}

// GetProviderEngines returns the list of price sources to use, in order of
// priority.
func GetProviderEngines() []string {
	return splitList(GetString(ProviderEnginesKey))
}

// GetCoinGeckoProducts returns the mapping between symbols and CoinGecko ids.
func GetCoinGeckoProducts() ([]coingeckosource.Product, error) {
	return parseCoinGeckoProducts(GetString(CoinGeckoProductsKey))
}

// Set a value for the given key
func Set(key string, value interface{}) {
	vip.Set(key, value)
}

// IsSet returns whether the give key is set
func IsSet(key string) bool {
	return vip.IsSet(key)
}

func validate() error {
	datadir := GetString(DatadirKey)
	if len(datadir) <= 0 {
		return fmt.Errorf("datadir must not be null")
	}

	endpoint, err := url.Parse(GetString(PythdEndpointKey))
	if err != nil {
		return fmt.Errorf("pythd endpoint is not a valid url: %s", err)
	}
	if endpoint.Scheme != "ws" && endpoint.Scheme != "wss" {
		return fmt.Errorf("pythd endpoint must be a ws:// or wss:// url")
	}

	engines := GetProviderEngines()
	if len(engines) <= 0 {
		return fmt.Errorf("at least one provider engine must be defined")
	}
	seen := make(map[string]struct{})
	for _, engine := range engines {
		if engine != CoinGeckoEngine && engine != PropellerEngine {
			return fmt.Errorf(
				"unknown provider engine %s, must be either '%s' or '%s'",
				engine, CoinGeckoEngine, PropellerEngine,
			)
		}
		if _, ok := seen[engine]; ok {
			return fmt.Errorf("duplicated provider engine %s", engine)
		}
		seen[engine] = struct{}{}

		switch engine {
		case CoinGeckoEngine:
			if err := validateCoinGecko(); err != nil {
				return err
			}
		case PropellerEngine:
			if err := validatePropeller(); err != nil {
				return err
			}
		}
	}

	for _, key := range []string{
		ProductUpdateIntervalKey, StalenessThresholdKey, HealthCheckThresholdKey,
	} {
		if GetInt(key) <= 0 {
			return fmt.Errorf("%s must be greater than zero", key)
		}
	}

	port := GetInt(HealthCheckPortKey)
	if port <= 0 || port > 65535 {
		return fmt.Errorf("health check port must be in range [1, 65535]")
	}

	if GetInt(ManualAggMaxSlotDiffKey) < 0 {
		return fmt.Errorf("manual aggregation max slot diff must not be negative")
	}

	return nil
}

func validateCoinGecko() error {
	if GetInt(CoinGeckoUpdateIntervalKey) <= 0 {
		return fmt.Errorf("CoinGecko update interval must be greater than zero")
	}
	if GetInt(CoinGeckoConfidenceRatioKey) <= 0 {
		return fmt.Errorf("CoinGecko confidence ratio must be greater than zero")
	}
	if GetFloat(CoinGeckoRequestsPerSecondKey) < 0 {
		return fmt.Errorf("CoinGecko requests per second must not be negative")
	}
	if _, err := url.Parse(GetString(CoinGeckoEndpointKey)); err != nil {
		return fmt.Errorf("CoinGecko endpoint is not a valid url: %s", err)
	}
	if _, err := GetCoinGeckoProducts(); err != nil {
		return err
	}
	return nil
}

func validatePropeller() error {
	if GetInt(PropellerUpdateIntervalKey) <= 0 {
		return fmt.Errorf("propeller update interval must be greater than zero")
	}
	if GetString(PropellerTokenCatalogKey) == "" {
		return fmt.Errorf("propeller token catalog must be defined")
	}
	if GetString(PropellerQuoteTokenAddressKey) == "" {
		return fmt.Errorf("propeller quote token address must be defined")
	}

	switch storeType := GetString(TokenStoreTypeKey); storeType {
	case RedisTokenStore:
		if GetString(RedisAddrKey) == "" {
			return fmt.Errorf("redis address must be defined")
		}
	case BadgerTokenStore:
	default:
		return fmt.Errorf(
			"unknown token store type %s, must be either '%s' or '%s'",
			storeType, RedisTokenStore, BadgerTokenStore,
		)
	}
	return nil
}

func parseCoinGeckoProducts(value string) ([]coingeckosource.Product, error) {
	entries := splitList(value)
	if len(entries) <= 0 {
		return nil, fmt.Errorf("CoinGecko products must be defined")
	}

	products := make([]coingeckosource.Product, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		parts := strings.Split(entry, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf(
				"invalid CoinGecko product %s, must be in the form symbol=id", entry,
			)
		}
		symbol, id := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if symbol == "" || id == "" {
			return nil, fmt.Errorf(
				"invalid CoinGecko product %s, must be in the form symbol=id", entry,
			)
		}
		if _, ok := seen[symbol]; ok {
			return nil, fmt.Errorf("duplicated CoinGecko product for symbol %s", symbol)
		}
		seen[symbol] = struct{}{}
		products = append(products, coingeckosource.Product{Symbol: symbol, ID: id})
	}
	return products, nil
}

func splitList(value string) []string {
	list := make([]string, 0)
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			list = append(list, v)
		}
	}
	return list
}

func initDatadir() error {
	datadir := GetDatadir()
	if err := makeDirectoryIfNotExists(filepath.Join(datadir, DbLocation)); err != nil {
		return err
	}

	profilerEnabled := GetBool(EnableProfilerKey)
	if profilerEnabled {
		if err := makeDirectoryIfNotExists(filepath.Join(datadir, ProfilerLocation)); err != nil {
			return err
		}
	}
	return nil
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

func appDataDir(appName string) string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "."+appName)
	}
	return filepath.Join(homeDir, "."+appName)
}
