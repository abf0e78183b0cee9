package ports

import (
	"context"

	"github.com/shopspring/decimal"
)

// TokenPriceStore gives access to the mid prices and spreads of all known
// tokens, both expressed relative to a common bridge asset and keyed by the
// lower-case token address.
type TokenPriceStore interface {
	GetTokenPrices(ctx context.Context) (map[string]decimal.Decimal, error)
	GetTokenSpreads(ctx context.Context) (map[string]decimal.Decimal, error)
	Close() error
}

// TimestampedTokenPriceStore is a TokenPriceStore that also keeps track of
// when the quote of every token was last updated.
type TimestampedTokenPriceStore interface {
	TokenPriceStore
	// GetTokenUpdateTimes returns the unix timestamp (in seconds) of the last
	// update of every token, keyed by address.
	GetTokenUpdateTimes(ctx context.Context) (map[string]int64, error)
}
