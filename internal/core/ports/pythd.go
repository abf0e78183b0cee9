package ports

import (
	"context"

	"github.com/tdex-network/price-publisher/internal/core/domain"
)

// Pythd is the client of the price aggregation daemon.
type Pythd interface {
	// GetProductList returns all products known by the daemon.
	GetProductList(ctx context.Context) ([]domain.Product, error)
	// SubscribePriceSched subscribes to the update schedule of the given
	// price account.
	SubscribePriceSched(ctx context.Context, account string) (domain.SubscriptionID, error)
	// UpdatePrice publishes a new price for the given price account. Price and
	// confidence are fixed point numbers scaled by the account exponent.
	UpdatePrice(
		ctx context.Context, account string, price, conf int64, status domain.PriceStatus,
	) error
}
