package ports

import (
	"context"

	"github.com/tdex-network/price-publisher/internal/core/domain"
)

// PriceSource is an external source of reference prices that keeps its own
// cache of the latest prices for the tracked symbols, refreshed in background.
type PriceSource interface {
	// Name returns the name of the source, used for logging and metrics.
	Name() string
	// UpdateTrackedSymbols replaces the set of symbols tracked by the source.
	// The cache of prices is not cleared.
	UpdateTrackedSymbols(symbols []string) error
	// Start spawns the refresh loop of the source, which runs until the given
	// context is canceled. It must be called only once.
	Start(ctx context.Context) error
	// IsSupported returns whether the given symbol is currently tracked.
	IsSupported(symbol string) bool
	// LatestPrice returns the latest cached price for the given symbol, if
	// any. It never blocks on network calls.
	LatestPrice(symbol string) (domain.Price, bool)
}
