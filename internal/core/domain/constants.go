package domain

const (
	// StatusTrading signals the daemon that the price is fresh and must be
	// included in the aggregation.
	StatusTrading PriceStatus = "trading"
	// StatusUnknown signals the daemon that the price is stale.
	StatusUnknown PriceStatus = "unknown"
)
