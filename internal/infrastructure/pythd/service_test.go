package pythdservice_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/price-publisher/internal/core/domain"
	pythdservice "github.com/tdex-network/price-publisher/internal/infrastructure/pythd"
	"github.com/tdex-network/price-publisher/pkg/pythd"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) GetProductList(ctx context.Context) ([]pythd.Product, error) {
	args := m.Called(ctx)

	var res []pythd.Product
	if a := args.Get(0); a != nil {
		res = a.([]pythd.Product)
	}
	return res, args.Error(1)
}

func (m *mockClient) SubscribePriceSched(
	ctx context.Context, account string,
) (pythd.SubscriptionID, error) {
	args := m.Called(ctx, account)
	return args.Get(0).(pythd.SubscriptionID), args.Error(1)
}

func (m *mockClient) UpdatePrice(
	ctx context.Context, account string, price, conf int64, status string,
) error {
	args := m.Called(ctx, account, price, conf, status)
	return args.Error(0)
}

func TestService(t *testing.T) {
	ctx := context.Background()
	client := &mockClient{}
	client.On("GetProductList", mock.Anything).Return([]pythd.Product{
		{
			Account:    "product1",
			Attributes: map[string]string{"symbol": "Crypto.BTC/USD"},
			Prices: []pythd.PriceAccount{
				{Account: "price1", Exponent: -8},
				{Account: "price2", Exponent: -5},
			},
		},
		{
			Account:    "product2",
			Attributes: map[string]string{"asset_type": "FX"},
		},
	}, nil).Once()
	client.On("GetProductList", mock.Anything).Return(nil, errors.New("boom")).Once()
	client.On("SubscribePriceSched", mock.Anything, "price1").Return(pythd.SubscriptionID(3), nil)
	client.On("UpdatePrice", mock.Anything, "price1", int64(100), int64(1), "unknown").Return(nil)

	svc := pythdservice.NewService(client)

	products, err := svc.GetProductList(ctx)
	require.NoError(t, err)
	require.Equal(t, []domain.Product{
		{
			Account: "product1",
			Symbol:  "Crypto.BTC/USD",
			Prices: []domain.PriceAccount{
				{Account: "price1", Exponent: -8},
				{Account: "price2", Exponent: -5},
			},
		},
		{
			Account: "product2",
			Prices:  []domain.PriceAccount{},
		},
	}, products)

	_, err = svc.GetProductList(ctx)
	require.Error(t, err)

	id, err := svc.SubscribePriceSched(ctx, "price1")
	require.NoError(t, err)
	require.Equal(t, domain.SubscriptionID(3), id)

	err = svc.UpdatePrice(ctx, "price1", 100, 1, domain.StatusUnknown)
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestNotifyHandler(t *testing.T) {
	var got domain.SubscriptionID
	handler := pythdservice.NotifyHandler(func(id domain.SubscriptionID) {
		got = id
	})

	handler(pythd.SubscriptionID(42))
	require.Equal(t, domain.SubscriptionID(42), got)
}
