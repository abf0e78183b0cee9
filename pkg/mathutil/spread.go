package mathutil

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrNonPositiveMidPrice is returned if any of the mid prices is zero or
	// negative and therefore cannot be inverted.
	ErrNonPositiveMidPrice = errors.New("mid price must be greater than zero")
	// ErrSpreadExceedsPrice is returned if a spread is so wide that buying the
	// bridge asset would cost nothing or less than nothing.
	ErrSpreadExceedsPrice = errors.New("spread must be lower than bridge price")
	// ErrNegativeSpread is returned if the resulting round-trip spread is
	// negative, meaning that the inputs are inverted or corrupted.
	ErrNegativeSpread = errors.New("computed spread is negative")
)

// ComputeSpread returns the spread of the base asset expressed in terms of the
// quote asset, given the mid prices and spreads of both assets relative to a
// common bridge asset (ie. ETH).
//
// Example: WBTC (base) -> USDC (quote) through ETH.
// WBTC mid price 0.056 with spread 0.001, USDC mid price 3000 with spread 100,
// both expressed as how much of the asset 1 ETH buys.
//
//	sell 1 WBTC: 0.057 WBTC -> 1 ETH -> 2900 USDC, 1 WBTC = 50877.19 USDC
//	buy 1 WBTC:  3100 USDC -> 1 ETH -> 0.055 WBTC, 1 WBTC = 56363.63 USDC
//
// The spread is the difference between the two, about 5486.44 USDC.
// Mid prices are given as price of the asset in bridge asset units, so they
// are inverted before applying the spreads.
func ComputeSpread(
	baseMidInBridge, quoteMidInBridge,
	baseSpreadInBridge, quoteSpreadInBridge decimal.Decimal,
) (decimal.Decimal, error) {
	if !baseMidInBridge.IsPositive() || !quoteMidInBridge.IsPositive() {
		return decimal.Zero, ErrNonPositiveMidPrice
	}

	one := decimal.NewFromInt(1)
	// How much of the base and quote asset 1 unit of bridge asset buys,
	// rounded to the smallest unit of a token.
	bridgeInBase := DivDecimal(one, baseMidInBridge).Round(TokenPrecision)
	bridgeInQuote := DivDecimal(one, quoteMidInBridge).Round(TokenPrecision)

	sellBaseBuyBridge := bridgeInBase.Add(baseSpreadInBridge)
	buyBaseSellBridge := bridgeInBase.Sub(baseSpreadInBridge)
	sellQuoteBuyBridge := bridgeInQuote.Add(quoteSpreadInBridge)
	buyQuoteSellBridge := bridgeInQuote.Sub(quoteSpreadInBridge)

	for _, leg := range []decimal.Decimal{
		sellBaseBuyBridge, buyBaseSellBridge, sellQuoteBuyBridge, buyQuoteSellBridge,
	} {
		if !leg.IsPositive() {
			return decimal.Zero, ErrSpreadExceedsPrice
		}
	}

	// Price to sell the base asset and buy the quote one.
	sellBasePrice := DivDecimal(buyQuoteSellBridge, sellBaseBuyBridge)
	// Price to buy the base asset and sell the quote one.
	buyBasePrice := DivDecimal(sellQuoteBuyBridge, buyBaseSellBridge)

	spread := buyBasePrice.Sub(sellBasePrice)
	if spread.IsNegative() {
		return spread, ErrNegativeSpread
	}
	return spread, nil
}
