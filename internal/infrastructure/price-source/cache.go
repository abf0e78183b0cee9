package pricesource

import (
	"sync"

	"github.com/tdex-network/price-publisher/internal/core/domain"
)

// Cache holds the latest prices of a source keyed by external id.
// The whole mapping is replaced at once, readers never see a partially
// updated cache.
type Cache struct {
	mtx    sync.RWMutex
	prices map[string]domain.Price
}

func NewCache() *Cache {
	return &Cache{prices: make(map[string]domain.Price)}
}

// Get returns the price for the given id, if any.
func (c *Cache) Get(id string) (domain.Price, bool) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	price, ok := c.prices[id]
	return price, ok
}

// Snapshot returns the current mapping. It must be treated as read-only.
func (c *Cache) Snapshot() map[string]domain.Price {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	return c.prices
}

// Replace installs the given mapping in place of the current one.
func (c *Cache) Replace(prices map[string]domain.Price) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	c.prices = prices
}

// Refresh builds a new mapping made of the current prices of the given ids,
// overwritten by the fresh ones, and installs it.
// Fresh prices for ids not in the list are ignored.
func (c *Cache) Refresh(ids []string, fresh map[string]domain.Price) {
	current := c.Snapshot()

	prices := make(map[string]domain.Price, len(ids))
	for _, id := range ids {
		if price, ok := fresh[id]; ok {
			prices[id] = price
			continue
		}
		if price, ok := current[id]; ok {
			prices[id] = price
		}
	}

	c.Replace(prices)
}
