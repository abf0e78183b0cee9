package publisher

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/tdex-network/price-publisher/internal/core/domain"
)

// **** Pythd ****

type mockPythd struct {
	mock.Mock
}

func (m *mockPythd) GetProductList(ctx context.Context) ([]domain.Product, error) {
	args := m.Called(ctx)

	var res []domain.Product
	if a := args.Get(0); a != nil {
		res = a.([]domain.Product)
	}
	return res, args.Error(1)
}

func (m *mockPythd) SubscribePriceSched(
	ctx context.Context, account string,
) (domain.SubscriptionID, error) {
	args := m.Called(ctx, account)

	var res domain.SubscriptionID
	if a := args.Get(0); a != nil {
		res = a.(domain.SubscriptionID)
	}
	return res, args.Error(1)
}

func (m *mockPythd) UpdatePrice(
	ctx context.Context, account string, price, conf int64,
	status domain.PriceStatus,
) error {
	args := m.Called(ctx, account, price, conf, status)
	return args.Error(0)
}

// **** Price source ****

type mockSource struct {
	mock.Mock
	name string
}

func (m *mockSource) Name() string {
	return m.name
}

func (m *mockSource) UpdateTrackedSymbols(symbols []string) error {
	args := m.Called(symbols)
	return args.Error(0)
}

func (m *mockSource) Start(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockSource) IsSupported(symbol string) bool {
	args := m.Called(symbol)
	return args.Bool(0)
}

func (m *mockSource) LatestPrice(symbol string) (domain.Price, bool) {
	args := m.Called(symbol)

	var res domain.Price
	if a := args.Get(0); a != nil {
		res = a.(domain.Price)
	}
	return res, args.Bool(1)
}
