package domain

import (
	"fmt"
	"time"
)

// PriceStatus is the status attached to every price update sent to the
// price aggregation daemon.
type PriceStatus string

func (s PriceStatus) String() string {
	return string(s)
}

// Price is the latest price of a symbol known by a price source, along with
// its confidence interval (expressed in the same unit of the price) and the
// unix timestamp (in seconds) of when it was observed.
type Price struct {
	Price     float64
	Conf      float64
	Timestamp int64
}

// NewPrice returns a new Price. Both price and confidence must be strictly
// positive, a zero confidence is never a real measurement.
func NewPrice(price, conf float64, timestamp int64) (Price, error) {
	if !(price > 0) {
		return Price{}, fmt.Errorf("%w: %v", ErrNonPositivePrice, price)
	}
	if !(conf > 0) {
		return Price{}, fmt.Errorf("%w: %v", ErrInvalidConfidence, conf)
	}
	return Price{price, conf, timestamp}, nil
}

// Age returns how old the price is at the given time.
func (p Price) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(p.Timestamp, 0))
}

// Status returns StatusUnknown if the price is older than the given
// threshold, StatusTrading otherwise.
func (p Price) Status(now time.Time, stalenessThreshold time.Duration) PriceStatus {
	if p.Age(now) >= stalenessThreshold {
		return StatusUnknown
	}
	return StatusTrading
}
