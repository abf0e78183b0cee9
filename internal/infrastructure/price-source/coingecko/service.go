package coingeckosource

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/price-publisher/internal/core/domain"
	"github.com/tdex-network/price-publisher/internal/core/ports"
	"github.com/tdex-network/price-publisher/internal/infrastructure/metrics"
	pricesource "github.com/tdex-network/price-publisher/internal/infrastructure/price-source"
	"github.com/tdex-network/price-publisher/pkg/mathutil"
)

const (
	// SourceName is the name of the CoinGecko price source.
	SourceName = "coin_gecko"

	usd = "usd"
)

// Product maps a symbol to the CoinGecko API id of the same coin, the one
// listed on the CoinGecko page of every coin.
type Product struct {
	Symbol string
	ID     string
}

// Config holds the parameters of the CoinGecko price source.
type Config struct {
	Products       []Product
	UpdateInterval time.Duration
	// ConfidenceRatioBps is the confidence interval of every price, expressed
	// in basis points of the price.
	ConfidenceRatioBps int64
}

// PriceFetcher returns the prices of the given ids in the given currency.
type PriceFetcher interface {
	GetPrices(ctx context.Context, ids []string, vsCurrency string) (map[string]decimal.Decimal, error)
}

type service struct {
	fetcher    PriceFetcher
	cfg        Config
	symbolToID map[string]string

	supportedMtx sync.RWMutex
	supported    map[string]string

	prices *pricesource.Cache

	startedMtx sync.Mutex
	started    bool

	now func() time.Time
}

// NewService returns a price source that polls the CoinGecko API on a fixed
// interval for the configured products.
func NewService(fetcher PriceFetcher, cfg Config) (ports.PriceSource, error) {
	return newService(fetcher, cfg)
}

func newService(fetcher PriceFetcher, cfg Config) (*service, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("missing price fetcher")
	}
	if cfg.UpdateInterval <= 0 {
		return nil, fmt.Errorf("update interval must be greater than zero")
	}
	if cfg.ConfidenceRatioBps <= 0 {
		return nil, fmt.Errorf("confidence ratio must be greater than zero")
	}

	symbolToID := make(map[string]string, len(cfg.Products))
	for _, p := range cfg.Products {
		if p.Symbol == "" || p.ID == "" {
			return nil, fmt.Errorf("invalid product %+v: symbol and id are mandatory", p)
		}
		if _, ok := symbolToID[p.Symbol]; ok {
			return nil, fmt.Errorf("duplicated product for symbol %s", p.Symbol)
		}
		symbolToID[p.Symbol] = p.ID
	}

	return &service{
		fetcher:    fetcher,
		cfg:        cfg,
		symbolToID: symbolToID,
		supported:  make(map[string]string),
		prices:     pricesource.NewCache(),
		now:        time.Now,
	}, nil
}

func (s *service) Name() string {
	return SourceName
}

// UpdateTrackedSymbols fails if any of the given symbols has no configured
// CoinGecko id. In that case the set of tracked symbols is left untouched.
func (s *service) UpdateTrackedSymbols(symbols []string) error {
	supported := make(map[string]string, len(symbols))
	for _, symbol := range symbols {
		id, ok := s.symbolToID[symbol]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrUnknownSymbol, symbol)
		}
		supported[symbol] = id
	}

	s.supportedMtx.Lock()
	s.supported = supported
	s.supportedMtx.Unlock()

	metrics.SourceTrackedSymbols.WithLabelValues(SourceName).Set(float64(len(supported)))
	log.WithField("source", SourceName).Debugf("tracking %d symbols", len(supported))
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
	_, ok := s.getID(symbol)
	return ok
}

func (s *service) LatestPrice(symbol string) (domain.Price, bool) {
	id, ok := s.getID(symbol)
	if !ok {
		return domain.Price{}, false
	}
	return s.prices.Get(id)
}

func (s *service) updatePrices(ctx context.Context) error {
	ids := s.trackedIDs()
	if len(ids) <= 0 {
		return nil
	}

	result, err := s.fetcher.GetPrices(ctx, ids, usd)
	if err != nil {
		return err
	}

	timestamp := s.now().Unix()
	prices := make(map[string]domain.Price, len(result))
	for id, price := range result {
		conf := mathutil.ProportionalConfidence(price, s.cfg.ConfidenceRatioBps)
		p, err := domain.NewPrice(price.InexactFloat64(), conf.InexactFloat64(), timestamp)
		if err != nil {
			log.WithError(err).WithField("id", id).Warn("skipping CoinGecko price")
			continue
		}
		prices[id] = p
	}

	for _, id := range ids {
		if _, ok := prices[id]; !ok {
			log.WithField("id", id).Warn("price not returned by CoinGecko")
		}
	}

	s.prices.Refresh(ids, prices)
	log.WithField("source", SourceName).Infof("updated %d prices from CoinGecko", len(prices))
	return nil
}

func (s *service) getID(symbol string) (string, bool) {
	s.supportedMtx.RLock()
	defer s.supportedMtx.RUnlock()

	id, ok := s.supported[symbol]
	return id, ok
}

func (s *service) trackedIDs() []string {
	s.supportedMtx.RLock()
	defer s.supportedMtx.RUnlock()

	ids := make([]string, 0, len(s.supported))
	seen := make(map[string]struct{}, len(s.supported))
	for _, id := range s.supported {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
