package mathutil

import (
	"github.com/shopspring/decimal"
)

const (
	// DivisionPrecision is the number of decimal places kept by every
	// division in this package.
	DivisionPrecision = 24
	// TokenPrecision is the max number of decimal places of a token amount.
	TokenPrecision = 18
)

var (
	// TenThousands is the basis points denominator.
	TenThousands = decimal.NewFromInt(10000)
)

// DivDecimal divides x by y with DivisionPrecision decimal places.
// The caller must ensure y is not zero.
func DivDecimal(x, y decimal.Decimal) decimal.Decimal {
	return x.DivRound(y, DivisionPrecision)
}

// ProportionalConfidence returns the confidence interval of a price expressed
// as a fixed ratio in basis points of the price itself (ie. 10 = 0.1%).
func ProportionalConfidence(price decimal.Decimal, ratioBps int64) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(ratioBps)).Div(TenThousands)
}

// ApplyExponent scales x to the fixed point representation identified by the
// given (usually negative) exponent, truncating toward zero.
// For example ApplyExponent(1.23456, -3) returns 1234.
func ApplyExponent(x float64, exponent int) int64 {
	return decimal.NewFromFloat(x).Shift(int32(-exponent)).IntPart()
}
