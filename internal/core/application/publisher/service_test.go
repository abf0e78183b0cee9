package publisher

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/price-publisher/internal/core/domain"
	"github.com/tdex-network/price-publisher/internal/core/ports"
)

const (
	btcSymbol = "Crypto.BTC/USD"
	ethSymbol = "Crypto.ETH/USD"
	solSymbol = "Crypto.SOL/USD"
)

var (
	now = time.Unix(1700000000, 0)

	testCfg = Config{
		ProductUpdateInterval: time.Hour,
		StalenessThreshold:    30 * time.Second,
		HealthCheckThreshold:  60 * time.Second,
	}

	btcProduct = domain.Product{
		Account: "btc-product",
		Symbol:  btcSymbol,
		Prices:  []domain.PriceAccount{{Account: "btc-price", Exponent: -8}},
	}
	ethProduct = domain.Product{
		Account: "eth-product",
		Symbol:  ethSymbol,
		Prices: []domain.PriceAccount{
			{Account: "eth-price-1", Exponent: -8},
			{Account: "eth-price-2", Exponent: -5},
		},
	}
	solProduct = domain.Product{
		Account: "sol-product",
		Symbol:  solSymbol,
		Prices:  []domain.PriceAccount{{Account: "sol-price", Exponent: -8}},
	}
	aaplProduct = domain.Product{
		Account: "aapl-product",
		Symbol:  "Equity.US.AAPL/USD",
	}
)

func newTestService(
	t *testing.T, pythd *mockPythd, sources ...*mockSource,
) *service {
	srcs := make([]ports.PriceSource, 0, len(sources))
	for _, s := range sources {
		srcs = append(srcs, s)
	}
	svc, err := newService(pythd, srcs, testCfg)
	require.NoError(t, err)
	svc.now = func() time.Time { return now }
	return svc
}

func TestNewService(t *testing.T) {
	source := &mockSource{name: "source"}

	_, err := NewService(nil, []ports.PriceSource{source}, testCfg)
	require.Error(t, err)

	_, err = NewService(&mockPythd{}, nil, testCfg)
	require.Error(t, err)

	_, err = NewService(&mockPythd{}, []ports.PriceSource{source}, Config{})
	require.Error(t, err)
}

func TestStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pythd := &mockPythd{}
	pythd.On("GetProductList", mock.Anything).Return(
		[]domain.Product{ethProduct, btcProduct, aaplProduct}, nil,
	)
	pythd.On("SubscribePriceSched", mock.Anything, "eth-price-1").Return(domain.SubscriptionID(1), nil)
	pythd.On("SubscribePriceSched", mock.Anything, "eth-price-2").Return(domain.SubscriptionID(2), nil)
	pythd.On("SubscribePriceSched", mock.Anything, "btc-price").Return(domain.SubscriptionID(3), nil)

	symbols := []string{btcSymbol, ethSymbol}
	first := &mockSource{name: "first"}
	first.On("UpdateTrackedSymbols", symbols).Return(nil)
	first.On("Start", mock.Anything).Return(nil)
	second := &mockSource{name: "second"}
	second.On("UpdateTrackedSymbols", symbols).Return(nil)
	second.On("Start", mock.Anything).Return(nil)

	svc := newTestService(t, pythd, first, second)
	require.NoError(t, svc.Start(ctx))

	require.Equal(t, map[domain.SubscriptionID]domain.Subscription{
		1: {ID: 1, Symbol: ethSymbol, Account: "eth-price-1", Exponent: -8},
		2: {ID: 2, Symbol: ethSymbol, Account: "eth-price-2", Exponent: -5},
		3: {ID: 3, Symbol: btcSymbol, Account: "btc-price", Exponent: -8},
	}, svc.subscriptions)

	pythd.AssertExpectations(t)
	first.AssertExpectations(t)
	second.AssertExpectations(t)
}

func TestStartFailure(t *testing.T) {
	t.Run("unknown symbol", func(t *testing.T) {
		pythd := &mockPythd{}
		pythd.On("GetProductList", mock.Anything).Return(
			[]domain.Product{btcProduct}, nil,
		)

		source := &mockSource{name: "source"}
		source.On("UpdateTrackedSymbols", []string{btcSymbol}).Return(
			fmt.Errorf("%w: %s", domain.ErrUnknownSymbol, btcSymbol),
		)

		svc := newTestService(t, pythd, source)
		err := svc.Start(context.Background())
		require.ErrorIs(t, err, domain.ErrUnknownSymbol)

		source.AssertNotCalled(t, "Start", mock.Anything)
		pythd.AssertNotCalled(t, "SubscribePriceSched", mock.Anything, mock.Anything)
	})

	t.Run("product list", func(t *testing.T) {
		pythd := &mockPythd{}
		pythd.On("GetProductList", mock.Anything).Return(nil, errors.New("boom"))

		source := &mockSource{name: "source"}

		svc := newTestService(t, pythd, source)
		require.Error(t, svc.Start(context.Background()))
		source.AssertNotCalled(t, "UpdateTrackedSymbols", mock.Anything)
	})

	t.Run("subscription", func(t *testing.T) {
		pythd := &mockPythd{}
		pythd.On("GetProductList", mock.Anything).Return(
			[]domain.Product{btcProduct}, nil,
		)
		pythd.On("SubscribePriceSched", mock.Anything, "btc-price").Return(
			nil, errors.New("boom"),
		)

		source := &mockSource{name: "source"}
		source.On("UpdateTrackedSymbols", []string{btcSymbol}).Return(nil)
		source.On("Start", mock.Anything).Return(nil)

		svc := newTestService(t, pythd, source)
		err := svc.Start(context.Background())
		require.Error(t, err)
		require.Contains(t, err.Error(), "btc-price")
	})
}

func TestHandleNotifyPriceSched(t *testing.T) {
	ctx := context.Background()
	timestamp := now.Unix() - 10
	quote := domain.Price{Price: 27000.5, Conf: 27, Timestamp: timestamp}

	tests := []struct {
		name           string
		now            time.Time
		expectedStatus domain.PriceStatus
	}{
		{"fresh price", now, domain.StatusTrading},
		{"just below threshold", now.Add(19 * time.Second), domain.StatusTrading},
		{"at threshold", now.Add(20 * time.Second), domain.StatusUnknown},
		{"stale price", now.Add(time.Hour), domain.StatusUnknown},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			pythd := &mockPythd{}
			pythd.On(
				"UpdatePrice", mock.Anything, "btc-price",
				int64(2700050000000), int64(2700000000), tt.expectedStatus,
			).Return(nil)
			pythd.On("SubscribePriceSched", mock.Anything, "btc-price").Return(
				domain.SubscriptionID(3), nil,
			)

			source := &mockSource{name: "source"}
			source.On("IsSupported", btcSymbol).Return(true)
			source.On("LatestPrice", btcSymbol).Return(quote, true)

			svc := newTestService(t, pythd, source)
			svc.now = func() time.Time { return tt.now }
			require.NoError(t, svc.subscribe(ctx, []domain.Product{btcProduct}))

			svc.HandleNotifyPriceSched(3)

			pythd.AssertNumberOfCalls(t, "UpdatePrice", 1)
			pythd.AssertExpectations(t)

			last, ok := svc.LastSuccessfulUpdate()
			require.True(t, ok)
			require.Equal(t, timestamp, last)
		})
	}
}

func TestHandleNotifyPriceSchedSkip(t *testing.T) {
	ctx := context.Background()
	quote := domain.Price{Price: 1800, Conf: 1.8, Timestamp: now.Unix()}

	t.Run("unknown subscription", func(t *testing.T) {
		pythd := &mockPythd{}
		source := &mockSource{name: "source"}

		svc := newTestService(t, pythd, source)
		svc.HandleNotifyPriceSched(42)

		pythd.AssertNotCalled(t, "UpdatePrice", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		source.AssertNotCalled(t, "IsSupported", mock.Anything)
	})

	t.Run("unsupported symbol", func(t *testing.T) {
		pythd := &mockPythd{}
		pythd.On("SubscribePriceSched", mock.Anything, "sol-price").Return(domain.SubscriptionID(5), nil)
		source := &mockSource{name: "source"}
		source.On("IsSupported", solSymbol).Return(false)

		svc := newTestService(t, pythd, source)
		require.NoError(t, svc.subscribe(ctx, []domain.Product{solProduct}))
		svc.HandleNotifyPriceSched(5)

		pythd.AssertNotCalled(t, "UpdatePrice", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		source.AssertNotCalled(t, "LatestPrice", mock.Anything)
	})

	t.Run("price not available", func(t *testing.T) {
		pythd := &mockPythd{}
		pythd.On("SubscribePriceSched", mock.Anything, "sol-price").Return(domain.SubscriptionID(5), nil)
		source := &mockSource{name: "source"}
		source.On("IsSupported", solSymbol).Return(true)
		source.On("LatestPrice", solSymbol).Return(nil, false)

		svc := newTestService(t, pythd, source)
		require.NoError(t, svc.subscribe(ctx, []domain.Product{solProduct}))
		svc.HandleNotifyPriceSched(5)

		pythd.AssertNotCalled(t, "UpdatePrice", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		_, ok := svc.LastSuccessfulUpdate()
		require.False(t, ok)
	})

	t.Run("first supporting source wins", func(t *testing.T) {
		pythd := &mockPythd{}
		pythd.On("SubscribePriceSched", mock.Anything, "eth-price-1").Return(domain.SubscriptionID(1), nil)
		pythd.On("SubscribePriceSched", mock.Anything, "eth-price-2").Return(domain.SubscriptionID(2), nil)
		pythd.On(
			"UpdatePrice", mock.Anything, "eth-price-2",
			int64(180000000), int64(180000), domain.StatusTrading,
		).Return(nil)

		first := &mockSource{name: "first"}
		first.On("IsSupported", ethSymbol).Return(false)
		second := &mockSource{name: "second"}
		second.On("IsSupported", ethSymbol).Return(true)
		second.On("LatestPrice", ethSymbol).Return(quote, true)
		third := &mockSource{name: "third"}
		third.On("IsSupported", ethSymbol).Return(true)

		svc := newTestService(t, pythd, first, second, third)
		require.NoError(t, svc.subscribe(ctx, []domain.Product{ethProduct}))
		svc.HandleNotifyPriceSched(2)

		pythd.AssertNumberOfCalls(t, "UpdatePrice", 1)
		pythd.AssertExpectations(t)
		third.AssertNotCalled(t, "IsSupported", mock.Anything)
		third.AssertNotCalled(t, "LatestPrice", mock.Anything)
	})

	t.Run("publish failure", func(t *testing.T) {
		pythd := &mockPythd{}
		pythd.On("SubscribePriceSched", mock.Anything, "btc-price").Return(domain.SubscriptionID(3), nil)
		pythd.On(
			"UpdatePrice", mock.Anything, mock.Anything, mock.Anything,
			mock.Anything, mock.Anything,
		).Return(errors.New("connection lost"))

		source := &mockSource{name: "source"}
		source.On("IsSupported", btcSymbol).Return(true)
		source.On("LatestPrice", btcSymbol).Return(quote, true)

		svc := newTestService(t, pythd, source)
		require.NoError(t, svc.subscribe(ctx, []domain.Product{btcProduct}))
		svc.HandleNotifyPriceSched(3)

		_, ok := svc.LastSuccessfulUpdate()
		require.False(t, ok)
	})
}

func TestHealth(t *testing.T) {
	ctx := context.Background()

	pythd := &mockPythd{}
	pythd.On("SubscribePriceSched", mock.Anything, "btc-price").Return(domain.SubscriptionID(3), nil)
	pythd.On(
		"UpdatePrice", mock.Anything, mock.Anything, mock.Anything,
		mock.Anything, mock.Anything,
	).Return(nil)

	source := &mockSource{name: "source"}
	source.On("IsSupported", btcSymbol).Return(true)
	source.On("LatestPrice", btcSymbol).Return(
		domain.Price{Price: 27000, Conf: 27, Timestamp: now.Unix() - 5}, true,
	).Once()
	source.On("LatestPrice", btcSymbol).Return(
		domain.Price{Price: 26000, Conf: 26, Timestamp: now.Unix() - 100}, true,
	).Once()

	svc := newTestService(t, pythd, source)
	require.NoError(t, svc.subscribe(ctx, []domain.Product{btcProduct}))

	require.False(t, svc.IsHealthy())

	svc.HandleNotifyPriceSched(3)
	require.True(t, svc.IsHealthy())

	// An older price does not move the last update back.
	svc.HandleNotifyPriceSched(3)
	last, ok := svc.LastSuccessfulUpdate()
	require.True(t, ok)
	require.Equal(t, now.Unix()-5, last)

	svc.now = func() time.Time { return now.Add(55 * time.Second) }
	require.False(t, svc.IsHealthy())
}

func TestUpdateProducts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pythd := &mockPythd{}
	pythd.On("GetProductList", mock.Anything).Return(
		[]domain.Product{btcProduct, ethProduct}, nil,
	).Once()
	pythd.On("GetProductList", mock.Anything).Return(
		[]domain.Product{btcProduct, solProduct}, nil,
	).Once()
	pythd.On("SubscribePriceSched", mock.Anything, "btc-price").Return(domain.SubscriptionID(3), nil).Once()
	pythd.On("SubscribePriceSched", mock.Anything, "eth-price-1").Return(domain.SubscriptionID(1), nil).Once()
	pythd.On("SubscribePriceSched", mock.Anything, "eth-price-2").Return(domain.SubscriptionID(2), nil).Once()
	pythd.On("SubscribePriceSched", mock.Anything, "sol-price").Return(domain.SubscriptionID(5), nil).Once()

	source := &mockSource{name: "source"}
	source.On("UpdateTrackedSymbols", []string{btcSymbol, ethSymbol}).Return(nil)
	source.On("UpdateTrackedSymbols", []string{btcSymbol, solSymbol}).Return(
		fmt.Errorf("%w: %s", domain.ErrUnknownSymbol, solSymbol),
	)
	source.On("Start", mock.Anything).Return(nil)

	svc := newTestService(t, pythd, source)
	require.NoError(t, svc.Start(ctx))

	// Tracked symbols errors are not fatal after startup.
	require.NoError(t, svc.updateProducts(ctx))

	require.Equal(t, map[domain.SubscriptionID]domain.Subscription{
		3: {ID: 3, Symbol: btcSymbol, Account: "btc-price", Exponent: -8},
		5: {ID: 5, Symbol: solSymbol, Account: "sol-price", Exponent: -8},
	}, svc.subscriptions)

	pythd.AssertNumberOfCalls(t, "SubscribePriceSched", 4)
	pythd.AssertExpectations(t)
}
