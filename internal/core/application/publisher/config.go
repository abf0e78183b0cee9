package publisher

import (
	"fmt"
	"time"
)

const (
	DefaultProductUpdateInterval = 60 * time.Second
	DefaultStalenessThreshold    = 30 * time.Second
	DefaultHealthCheckThreshold  = 60 * time.Second
)

// Config holds the parameters of the publisher service.
type Config struct {
	// ProductUpdateInterval is how often the product list is fetched again
	// from pythd to discover new symbols and price accounts.
	ProductUpdateInterval time.Duration
	// StalenessThreshold is the age after which prices are published with
	// status unknown.
	StalenessThreshold time.Duration
	// HealthCheckThreshold is the max age of the latest published price for
	// the service to be considered healthy.
	HealthCheckThreshold time.Duration
}

func (c Config) validate() error {
	if c.ProductUpdateInterval <= 0 {
		return fmt.Errorf("product update interval must be greater than zero")
	}
	if c.StalenessThreshold <= 0 {
		return fmt.Errorf("staleness threshold must be greater than zero")
	}
	if c.HealthCheckThreshold <= 0 {
		return fmt.Errorf("health check threshold must be greater than zero")
	}
	return nil
}
