package publisher

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/price-publisher/internal/core/domain"
	"github.com/tdex-network/price-publisher/internal/core/ports"
	"github.com/tdex-network/price-publisher/internal/infrastructure/metrics"
	"github.com/tdex-network/price-publisher/pkg/mathutil"
)

// Service publishes to pythd the prices of the products it lists, every
// time pythd asks for them, taking them from the first of the registered
// price sources supporting the product symbol.
type Service interface {
	// Start fetches the product list from pythd, makes the price sources
	// track all product symbols, starts them and subscribes to the price
	// schedule of every price account.
	Start(ctx context.Context) error
	// HandleNotifyPriceSched publishes the latest price for the price account
	// bound to the given subscription.
	HandleNotifyPriceSched(subscription domain.SubscriptionID)
	// LastSuccessfulUpdate returns the timestamp of the most recent price
	// published, if any.
	LastSuccessfulUpdate() (int64, bool)
	// IsHealthy returns whether a price has been published recently enough.
	IsHealthy() bool
}

type service struct {
	pythd   ports.Pythd
	sources []ports.PriceSource
	cfg     Config

	ctx context.Context

	subscriptionsMtx sync.RWMutex
	// subscriptionsByAccount holds every subscription ever made, pythd has no
	// way to unsubscribe.
	subscriptionsByAccount map[string]domain.Subscription
	// subscriptions holds only those for price accounts currently listed.
	subscriptions map[domain.SubscriptionID]domain.Subscription

	lastUpdateMtx sync.RWMutex
	lastUpdate    int64

	now func() time.Time
}

// NewService returns a new publisher service. Sources are queried in the
// given order.
func NewService(
	pythd ports.Pythd, sources []ports.PriceSource, cfg Config,
) (Service, error) {
	return newService(pythd, sources, cfg)
}

func newService(
	pythd ports.Pythd, sources []ports.PriceSource, cfg Config,
) (*service, error) {
	if pythd == nil {
		return nil, fmt.Errorf("missing pythd client")
	}
	if len(sources) <= 0 {
		return nil, fmt.Errorf("missing price sources")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &service{
		pythd:                  pythd,
		sources:                sources,
		cfg:                    cfg,
		ctx:                    context.Background(),
		subscriptionsByAccount: make(map[string]domain.Subscription),
		subscriptions:          make(map[domain.SubscriptionID]domain.Subscription),
		now:                    time.Now,
	}, nil
}

func (s *service) Start(ctx context.Context) error {
	s.ctx = ctx

	products, err := s.getProducts(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch products from pythd: %w", err)
	}

	symbols := productSymbols(products)
	for _, source := range s.sources {
		if err := source.UpdateTrackedSymbols(symbols); err != nil {
			return fmt.Errorf(
				"failed to update symbols of source %s: %w", source.Name(), err,
			)
		}
	}

	for _, source := range s.sources {
		if err := source.Start(ctx); err != nil {
			return fmt.Errorf("failed to start source %s: %w", source.Name(), err)
		}
		log.Infof("started price source %s", source.Name())
	}

	if err := s.subscribe(ctx, products); err != nil {
		return err
	}

	go s.listenProductUpdates(ctx)

	log.Infof("publishing prices for %d products", len(products))
	return nil
}

func (s *service) HandleNotifyPriceSched(id domain.SubscriptionID) {
	metrics.NotificationsTotal.Inc()

	sub, ok := s.getSubscription(id)
	if !ok {
		log.WithField("subscription", id).Debug("skipping unknown subscription")
		metrics.NotificationsSkippedTotal.WithLabelValues(
			metrics.SkipUnknownSubscription,
		).Inc()
		return
	}

	logger := log.WithFields(log.Fields{
		"symbol":  sub.Symbol,
		"account": sub.Account,
	})

	source := s.sourceFor(sub.Symbol)
	if source == nil {
		logger.Info("no price source supports symbol")
		metrics.NotificationsSkippedTotal.WithLabelValues(
			metrics.SkipUnsupportedSymbol,
		).Inc()
		return
	}

	price, ok := source.LatestPrice(sub.Symbol)
	if !ok {
		logger.WithField("source", source.Name()).Info("latest price not available")
		metrics.NotificationsSkippedTotal.WithLabelValues(
			metrics.SkipPriceNotAvailable,
		).Inc()
		return
	}

	status := price.Status(s.now(), s.cfg.StalenessThreshold)
	scaledPrice := mathutil.ApplyExponent(price.Price, sub.Exponent)
	scaledConf := mathutil.ApplyExponent(price.Conf, sub.Exponent)

	logger = logger.WithFields(log.Fields{
		"source": source.Name(),
		"price":  scaledPrice,
		"conf":   scaledConf,
		"status": status,
	})

	if err := s.pythd.UpdatePrice(
		s.ctx, sub.Account, scaledPrice, scaledConf, status,
	); err != nil {
		logger.WithError(err).Error("failed to publish price")
		metrics.NotificationsSkippedTotal.WithLabelValues(
			metrics.SkipPublishFailed,
		).Inc()
		return
	}

	metrics.PriceUpdatesTotal.WithLabelValues(sub.Symbol, status.String()).Inc()
	s.setLastUpdate(price.Timestamp)
	logger.Debug("price published")
}

func (s *service) LastSuccessfulUpdate() (int64, bool) {
	s.lastUpdateMtx.RLock()
	defer s.lastUpdateMtx.RUnlock()

	return s.lastUpdate, s.lastUpdate > 0
}

func (s *service) IsHealthy() bool {
	lastUpdate, ok := s.LastSuccessfulUpdate()
	if !ok {
		return false
	}
	return s.now().Sub(time.Unix(lastUpdate, 0)) < s.cfg.HealthCheckThreshold
}

func (s *service) listenProductUpdates(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Debug("product update loop stopped")
			return
		case <-time.After(s.cfg.ProductUpdateInterval):
		}

		if err := s.updateProducts(ctx); err != nil {
			log.WithError(err).Warn("failed to update products")
		}
	}
}

func (s *service) updateProducts(ctx context.Context) error {
	products, err := s.getProducts(ctx)
	if err != nil {
		return err
	}

	symbols := productSymbols(products)
	for _, source := range s.sources {
		if err := source.UpdateTrackedSymbols(symbols); err != nil {
			log.WithError(err).WithField("source", source.Name()).Warn(
				"failed to update tracked symbols, keeping previous ones",
			)
		}
	}

	return s.subscribe(ctx, products)
}

// getProducts returns the products with at least one price account.
func (s *service) getProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := s.pythd.GetProductList(ctx)
	if err != nil {
		return nil, err
	}

	res := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if p.Symbol == "" {
			log.WithField("account", p.Account).Debug("skipping product without symbol")
			continue
		}
		if len(p.Prices) <= 0 {
			log.WithField("symbol", p.Symbol).Debug("skipping product without price accounts")
			continue
		}
		res = append(res, p)
	}
	return res, nil
}

// subscribe subscribes to the price schedule of all price accounts not
// subscribed yet and replaces the set of active subscriptions with those of
// the given products.
func (s *service) subscribe(ctx context.Context, products []domain.Product) error {
	subscriptions := make(map[domain.SubscriptionID]domain.Subscription)

	for _, product := range products {
		for _, priceAccount := range product.Prices {
			sub, ok := s.getSubscriptionByAccount(priceAccount.Account)
			if !ok {
				id, err := s.pythd.SubscribePriceSched(ctx, priceAccount.Account)
				if err != nil {
					return fmt.Errorf(
						"failed to subscribe to price account %s of %s: %w",
						priceAccount.Account, product.Symbol, err,
					)
				}
				log.WithFields(log.Fields{
					"symbol":       product.Symbol,
					"account":      priceAccount.Account,
					"subscription": id,
				}).Debug("subscribed to price schedule")
				sub.ID = id
			}

			sub.Symbol = product.Symbol
			sub.Account = priceAccount.Account
			sub.Exponent = priceAccount.Exponent
			subscriptions[sub.ID] = sub

			s.addSubscription(sub)
		}
	}

	s.subscriptionsMtx.Lock()
	s.subscriptions = subscriptions
	s.subscriptionsMtx.Unlock()

	metrics.Subscriptions.Set(float64(len(subscriptions)))
	return nil
}

func (s *service) sourceFor(symbol string) ports.PriceSource {
	for _, source := range s.sources {
		if source.IsSupported(symbol) {
			return source
		}
	}
	return nil
}

func (s *service) getSubscription(id domain.SubscriptionID) (domain.Subscription, bool) {
	s.subscriptionsMtx.RLock()
	defer s.subscriptionsMtx.RUnlock()

	sub, ok := s.subscriptions[id]
	return sub, ok
}

func (s *service) getSubscriptionByAccount(account string) (domain.Subscription, bool) {
	s.subscriptionsMtx.RLock()
	defer s.subscriptionsMtx.RUnlock()

	sub, ok := s.subscriptionsByAccount[account]
	return sub, ok
}

func (s *service) addSubscription(sub domain.Subscription) {
	s.subscriptionsMtx.Lock()
	defer s.subscriptionsMtx.Unlock()

	s.subscriptionsByAccount[sub.Account] = sub
	// New subscriptions are usable before the active set is replaced.
	if _, ok := s.subscriptions[sub.ID]; !ok {
		s.subscriptions[sub.ID] = sub
	}
}

func (s *service) setLastUpdate(timestamp int64) {
	s.lastUpdateMtx.Lock()
	defer s.lastUpdateMtx.Unlock()

	if timestamp > s.lastUpdate {
		s.lastUpdate = timestamp
	}
}

func productSymbols(products []domain.Product) []string {
	seen := make(map[string]struct{}, len(products))
	symbols := make([]string, 0, len(products))
	for _, p := range products {
		if _, ok := seen[p.Symbol]; ok {
			continue
		}
		seen[p.Symbol] = struct{}{}
		symbols = append(symbols, p.Symbol)
	}
	sort.Strings(symbols)
	return symbols
}
