package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/price-publisher/config"
	"github.com/tdex-network/price-publisher/internal/core/ports"
	coingeckosource "github.com/tdex-network/price-publisher/internal/infrastructure/price-source/coingecko"
	propellersource "github.com/tdex-network/price-publisher/internal/infrastructure/price-source/propeller"
	tokencatalog "github.com/tdex-network/price-publisher/internal/infrastructure/token-catalog"
	tokenstorebadger "github.com/tdex-network/price-publisher/internal/infrastructure/token-store/badger"
	tokenstoreredis "github.com/tdex-network/price-publisher/internal/infrastructure/token-store/redis"
)

const requestTimeout = 30 * time.Second

// newPriceSources returns the configured price sources in order of priority,
// along with a function to release the resources they hold.
func newPriceSources(
	ctx context.Context,
) ([]ports.PriceSource, func(), error) {
	sources := make([]ports.PriceSource, 0)
	closers := make([]func() error, 0)
	closeAll := func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				log.WithError(err).Warn("failed to close price source resources")
			}
		}
	}

	for _, engine := range config.GetProviderEngines() {
		var (
			source ports.PriceSource
			err    error
		)

		switch engine {
		case config.CoinGeckoEngine:
			source, err = newCoinGeckoSource()
		case config.PropellerEngine:
			var store ports.TokenPriceStore
			store, err = newTokenStore(ctx)
			if err != nil {
				break
			}
			closers = append(closers, store.Close)
			source, err = newPropellerSource(ctx, store)
		default:
			err = fmt.Errorf("unknown provider engine %s", engine)
		}
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to create %s source: %w", engine, err)
		}

		sources = append(sources, source)
	}

	return sources, closeAll, nil
}

func newCoinGeckoSource() (ports.PriceSource, error) {
	products, err := config.GetCoinGeckoProducts()
	if err != nil {
		return nil, err
	}

	client, err := coingeckosource.NewClient(coingeckosource.ClientOpts{
		Endpoint:          config.GetString(config.CoinGeckoEndpointKey),
		APIKey:            config.GetString(config.CoinGeckoAPIKeyKey),
		Timeout:           requestTimeout,
		MaxIDsPerRequest:  config.GetInt(config.CoinGeckoMaxIDsPerRequestKey),
		RequestsPerSecond: config.GetFloat(config.CoinGeckoRequestsPerSecondKey),
	})
	if err != nil {
		return nil, err
	}

	return coingeckosource.NewService(client, coingeckosource.Config{
		Products:           products,
		UpdateInterval:     config.GetSeconds(config.CoinGeckoUpdateIntervalKey),
		ConfidenceRatioBps: int64(config.GetInt(config.CoinGeckoConfidenceRatioKey)),
	})
}

func newPropellerSource(
	ctx context.Context, store ports.TokenPriceStore,
) (ports.PriceSource, error) {
	catalog, err := tokencatalog.Load(
		ctx, config.GetString(config.PropellerTokenCatalogKey),
	)
	if err != nil {
		return nil, err
	}
	log.Debugf("loaded %d tokens from catalog", len(catalog))

	return propellersource.NewService(store, propellersource.Config{
		Catalog: catalog,
		QuoteToken: propellersource.Token{
			Symbol:  config.GetString(config.PropellerQuoteTokenSymbolKey),
			Address: config.GetString(config.PropellerQuoteTokenAddressKey),
		},
		UpdateInterval: config.GetSeconds(config.PropellerUpdateIntervalKey),
	})
}

func newTokenStore(ctx context.Context) (ports.TokenPriceStore, error) {
	switch storeType := config.GetString(config.TokenStoreTypeKey); storeType {
	case config.RedisTokenStore:
		return tokenstoreredis.NewTokenStore(ctx, tokenstoreredis.Opts{
			Addr:       config.GetString(config.RedisAddrKey),
			Password:   config.GetString(config.RedisPasswordKey),
			DB:         config.GetInt(config.RedisDBKey),
			PricesKey:  config.GetString(config.RedisPricesKey),
			SpreadsKey: config.GetString(config.RedisSpreadsKey),
		})
	case config.BadgerTokenStore:
		return newBadgerTokenStore()
	default:
		return nil, fmt.Errorf("unknown token store type %s", storeType)
	}
}

func newBadgerTokenStore() (tokenstorebadger.Store, error) {
	return tokenstorebadger.NewTokenStore(
		filepath.Join(config.GetDatadir(), config.DbLocation), nil,
	)
}
