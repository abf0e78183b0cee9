package propellersource

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/price-publisher/internal/core/domain"
	"github.com/tdex-network/price-publisher/internal/core/ports"
	"github.com/tdex-network/price-publisher/internal/infrastructure/metrics"
	pricesource "github.com/tdex-network/price-publisher/internal/infrastructure/price-source"
	"github.com/tdex-network/price-publisher/pkg/mathutil"
)

const (
	// SourceName is the name of the Propeller price source.
	SourceName = "propeller"

	// DefaultQuoteTokenSymbol and DefaultQuoteTokenAddress identify USDC on
	// Ethereum mainnet.
	DefaultQuoteTokenSymbol  = "USDC"
	DefaultQuoteTokenAddress = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
)

var symbolRegexp = regexp.MustCompile(`^Crypto\.(\w+)/USD$`)

// Token identifies an ERC20 token by ticker and address.
type Token struct {
	Symbol  string
	Address string
}

// Config holds the parameters of the Propeller price source.
type Config struct {
	// Catalog maps every known ticker to the address of its token.
	Catalog        map[string]string
	QuoteToken     Token
	UpdateInterval time.Duration
}

type service struct {
	store      ports.TokenPriceStore
	cfg        Config
	quoteToken Token
	catalog    map[string]string

	supportedMtx sync.RWMutex
	supported    map[string]string

	prices *pricesource.Cache

	startedMtx sync.Mutex
	started    bool

	now func() time.Time
}

// NewService returns a price source that derives the USD price of tokens
// from their mid prices and spreads relative to a bridge asset, as found in
// the given store, using the quote token as USD reference.
func NewService(store ports.TokenPriceStore, cfg Config) (ports.PriceSource, error) {
	return newService(store, cfg)
}

func newService(store ports.TokenPriceStore, cfg Config) (*service, error) {
	if store == nil {
		return nil, fmt.Errorf("missing token price store")
	}
	if cfg.UpdateInterval <= 0 {
		return nil, fmt.Errorf("update interval must be greater than zero")
	}

	quoteToken := cfg.QuoteToken
	if quoteToken.Symbol == "" {
		quoteToken.Symbol = DefaultQuoteTokenSymbol
	}
	if quoteToken.Address == "" {
		quoteToken.Address = DefaultQuoteTokenAddress
	}
	quoteToken.Address = strings.ToLower(quoteToken.Address)

	catalog := make(map[string]string, len(cfg.Catalog))
	for ticker, address := range cfg.Catalog {
		catalog[ticker] = strings.ToLower(address)
	}

	return &service{
		store:      store,
		cfg:        cfg,
		quoteToken: quoteToken,
		catalog:    catalog,
		supported:  make(map[string]string),
		prices:     pricesource.NewCache(),
		now:        time.Now,
	}, nil
}

func (s *service) Name() string {
	return SourceName
}

// UpdateTrackedSymbols never fails. Symbols that are not crypto/USD pairs are
// ignored, while those whose ticker is missing from the catalog are logged
// and dropped.
func (s *service) UpdateTrackedSymbols(symbols []string) error {
	supported := make(map[string]string, len(symbols))
	for _, symbol := range symbols {
		ticker, ok := tickerFromSymbol(symbol)
		if !ok {
			continue
		}
		address, ok := s.catalog[ticker]
		if !ok {
			log.WithFields(log.Fields{
				"source": SourceName,
				"ticker": ticker,
			}).Warn("ticker not found in token catalog")
			continue
		}
		supported[ticker] = address
	}

	s.supportedMtx.Lock()
	s.supported = supported
	s.supportedMtx.Unlock()

	metrics.SourceTrackedSymbols.WithLabelValues(SourceName).Set(float64(len(supported)))
	log.WithField("source", SourceName).Debugf("tracking %d tokens", len(supported))
	return nil
}

func (s *service) Start(ctx context.Context) error {
	s.startedMtx.Lock()
	defer s.startedMtx.Unlock()

	if s.started {
		return domain.ErrSourceAlreadyStarted
	}
	s.started = true

	go pricesource.RunRefreshLoop(
		ctx, SourceName, s.cfg.UpdateInterval, s.updatePrices,
	)
	return nil
}

func (s *service) IsSupported(symbol string) bool {
	_, ok := s.getAddress(symbol)
	return ok
}

func (s *service) LatestPrice(symbol string) (domain.Price, bool) {
	address, ok := s.getAddress(symbol)
	if !ok {
		return domain.Price{}, false
	}
	return s.prices.Get(address)
}

func (s *service) updatePrices(ctx context.Context) error {
	tokens := s.trackedTokens()
	if len(tokens) <= 0 {
		return nil
	}

	mids, err := s.store.GetTokenPrices(ctx)
	if err != nil {
		return fmt.Errorf("failed to get token prices: %w", err)
	}
	spreads, err := s.store.GetTokenSpreads(ctx)
	if err != nil {
		return fmt.Errorf("failed to get token spreads: %w", err)
	}

	quoteMid, ok := mids[s.quoteToken.Address]
	if !ok {
		return fmt.Errorf("missing mid price for quote token %s", s.quoteToken.Symbol)
	}
	quoteSpread, ok := spreads[s.quoteToken.Address]
	if !ok {
		return fmt.Errorf("missing spread for quote token %s", s.quoteToken.Symbol)
	}
	if !quoteMid.IsPositive() {
		return fmt.Errorf(
			"invalid mid price %s for quote token %s", quoteMid, s.quoteToken.Symbol,
		)
	}

	updateTimes, err := s.getUpdateTimes(ctx)
	if err != nil {
		return fmt.Errorf("failed to get token update times: %w", err)
	}

	now := s.now().Unix()
	addresses := make([]string, 0, len(tokens))
	prices := make(map[string]domain.Price, len(tokens))
	for ticker, address := range tokens {
		addresses = append(addresses, address)
		logger := log.WithFields(log.Fields{
			"source": SourceName,
			"ticker": ticker,
		})

		baseMid, ok := mids[address]
		if !ok {
			logger.Debug("mid price not available")
			continue
		}
		baseSpread, ok := spreads[address]
		if !ok {
			logger.Debug("spread not available")
			continue
		}

		conf, err := mathutil.ComputeSpread(baseMid, quoteMid, baseSpread, quoteSpread)
		if err != nil {
			logger.WithError(err).Warn("failed to compute spread")
			continue
		}
		price := mathutil.DivDecimal(baseMid, quoteMid)
		timestamp := observedAt(now, updateTimes, address, s.quoteToken.Address)

		p, err := domain.NewPrice(price.InexactFloat64(), conf.InexactFloat64(), timestamp)
		if err != nil {
			logger.WithError(err).WithField("address", address).Warn(
				"skipping token price",
			)
			continue
		}
		prices[address] = p
	}

	s.prices.Refresh(addresses, prices)
	log.WithField("source", SourceName).Infof("updated %d prices from token store", len(prices))
	return nil
}

// getUpdateTimes returns nil if the store does not keep track of when quotes
// are updated.
func (s *service) getUpdateTimes(ctx context.Context) (map[string]int64, error) {
	store, ok := s.store.(ports.TimestampedTokenPriceStore)
	if !ok {
		return nil, nil
	}
	return store.GetTokenUpdateTimes(ctx)
}

// observedAt returns the time of the oldest of the quotes of the given
// tokens, or now if any of them has no known update time.
func observedAt(now int64, updateTimes map[string]int64, addresses ...string) int64 {
	timestamp := now
	for _, address := range addresses {
		updatedAt, ok := updateTimes[address]
		if !ok || updatedAt <= 0 {
			return now
		}
		if updatedAt < timestamp {
			timestamp = updatedAt
		}
	}
	return timestamp
}

func (s *service) getAddress(symbol string) (string, bool) {
	ticker, ok := tickerFromSymbol(symbol)
	if !ok {
		return "", false
	}

	s.supportedMtx.RLock()
	defer s.supportedMtx.RUnlock()

	address, ok := s.supported[ticker]
	return address, ok
}

func (s *service) trackedTokens() map[string]string {
	s.supportedMtx.RLock()
	defer s.supportedMtx.RUnlock()

	return s.supported
}

func tickerFromSymbol(symbol string) (string, bool) {
	matches := symbolRegexp.FindStringSubmatch(symbol)
	if len(matches) != 2 {
		return "", false
	}
	return matches[1], true
}
