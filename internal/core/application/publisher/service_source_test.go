package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/price-publisher/internal/core/domain"
	"github.com/tdex-network/price-publisher/internal/core/ports"
	coingeckosource "github.com/tdex-network/price-publisher/internal/infrastructure/price-source/coingecko"
)

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) GetPrices(
	ctx context.Context, ids []string, vsCurrency string,
) (map[string]decimal.Decimal, error) {
	args := m.Called(ctx, ids, vsCurrency)

	var res map[string]decimal.Decimal
	if a := args.Get(0); a != nil {
		res = a.(map[string]decimal.Decimal)
	}
	return res, args.Error(1)
}

func TestHandleNotifyPriceSchedWithPollingSource(t *testing.T) {
	tests := []struct {
		name           string
		age            time.Duration
		expectedStatus domain.PriceStatus
	}{
		{"fresh quote", 0, domain.StatusTrading},
		{"stale quote", testCfg.StalenessThreshold + time.Second, domain.StatusUnknown},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			fetcher := &mockFetcher{}
			fetcher.On("GetPrices", mock.Anything, []string{"bitcoin"}, "usd").Return(
				map[string]decimal.Decimal{"bitcoin": decimal.RequireFromString("27000.5")},
				nil,
			)
			source, err := coingeckosource.NewService(fetcher, coingeckosource.Config{
				Products: []coingeckosource.Product{
					{Symbol: btcSymbol, ID: "bitcoin"},
				},
				UpdateInterval:     time.Hour,
				ConfidenceRatioBps: 10,
			})
			require.NoError(t, err)

			pythd := &mockPythd{}
			pythd.On("GetProductList", mock.Anything).Return(
				[]domain.Product{btcProduct}, nil,
			)
			pythd.On("SubscribePriceSched", mock.Anything, "btc-price").Return(
				domain.SubscriptionID(1), nil,
			)
			pythd.On(
				"UpdatePrice", mock.Anything, "btc-price",
				int64(2700050000000), int64(2700050000), tt.expectedStatus,
			).Return(nil).Once()

			svc, err := newService(pythd, []ports.PriceSource{source}, testCfg)
			require.NoError(t, err)
			svc.now = func() time.Time { return time.Now().Add(tt.age) }

			require.NoError(t, svc.Start(ctx))

			// The first refresh cycle runs as soon as the source starts.
			require.Eventually(t, func() bool {
				_, ok := source.LatestPrice(btcSymbol)
				return ok
			}, 2*time.Second, 10*time.Millisecond)

			svc.HandleNotifyPriceSched(1)

			pythd.AssertNumberOfCalls(t, "UpdatePrice", 1)
			pythd.AssertExpectations(t)

			price, _ := source.LatestPrice(btcSymbol)
			lastUpdate, ok := svc.LastSuccessfulUpdate()
			require.True(t, ok)
			require.Equal(t, price.Timestamp, lastUpdate)
		})
	}
}
