package pythdservice

import (
	"context"

	"github.com/tdex-network/price-publisher/internal/core/domain"
	"github.com/tdex-network/price-publisher/internal/core/ports"
	"github.com/tdex-network/price-publisher/pkg/pythd"
)

// Client is the subset of the pythd client used by the service.
type Client interface {
	GetProductList(ctx context.Context) ([]pythd.Product, error)
	SubscribePriceSched(ctx context.Context, account string) (pythd.SubscriptionID, error)
	UpdatePrice(ctx context.Context, account string, price, conf int64, status string) error
}

type service struct {
	client Client
}

// NewService returns a ports.Pythd backed by the given pythd client.
func NewService(client Client) ports.Pythd {
	return &service{client}
}

func (s *service) GetProductList(ctx context.Context) ([]domain.Product, error) {
	products, err := s.client.GetProductList(ctx)
	if err != nil {
		return nil, err
	}
	return toDomainProducts(products), nil
}

func (s *service) SubscribePriceSched(
	ctx context.Context, account string,
) (domain.SubscriptionID, error) {
	id, err := s.client.SubscribePriceSched(ctx, account)
	if err != nil {
		return 0, err
	}
	return domain.SubscriptionID(id), nil
}

func (s *service) UpdatePrice(
	ctx context.Context, account string, price, conf int64,
	status domain.PriceStatus,
) error {
	return s.client.UpdatePrice(ctx, account, price, conf, status.String())
}

// NotifyHandler adapts a handler of domain subscriptions to the one expected
// by the pythd client.
func NotifyHandler(
	handler func(domain.SubscriptionID),
) pythd.NotifyPriceSchedHandler {
	return func(id pythd.SubscriptionID) {
		handler(domain.SubscriptionID(id))
	}
}

func toDomainProducts(products []pythd.Product) []domain.Product {
	res := make([]domain.Product, 0, len(products))
	for _, p := range products {
		prices := make([]domain.PriceAccount, 0, len(p.Prices))
		for _, pa := range p.Prices {
			prices = append(prices, domain.PriceAccount{
				Account:  pa.Account,
				Exponent: pa.Exponent,
			})
		}
		res = append(res, domain.Product{
			Account: p.Account,
			Symbol:  p.Symbol(),
			Prices:  prices,
		})
	}
	return res
}
