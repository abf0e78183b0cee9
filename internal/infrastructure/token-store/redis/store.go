package tokenstoreredis

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/tdex-network/price-publisher/internal/core/ports"
	"github.com/tdex-network/price-publisher/pkg/circuitbreaker"
)

const (
	DefaultPricesKey  = "token_prices"
	DefaultSpreadsKey = "token_spreads"
)

// Opts defines the parameters to connect to the redis token store.
// Prices and spreads are read from two hashes whose fields are token
// addresses and values are decimal strings.
type Opts struct {
	Addr       string
	Password   string
	DB         int
	PricesKey  string
	SpreadsKey string
}

type tokenStore struct {
	client     *redis.Client
	pricesKey  string
	spreadsKey string
	cb         *gobreaker.CircuitBreaker
}

// NewTokenStore connects to redis and makes sure the server is reachable.
func NewTokenStore(ctx context.Context, opts Opts) (ports.TokenPriceStore, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	pricesKey := opts.PricesKey
	if pricesKey == "" {
		pricesKey = DefaultPricesKey
	}
	spreadsKey := opts.SpreadsKey
	if spreadsKey == "" {
		spreadsKey = DefaultSpreadsKey
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &tokenStore{
		client:     client,
		pricesKey:  pricesKey,
		spreadsKey: spreadsKey,
		cb:         circuitbreaker.NewCircuitBreaker("redis"),
	}, nil
}

func (s *tokenStore) GetTokenPrices(
	ctx context.Context,
) (map[string]decimal.Decimal, error) {
	return s.getHash(ctx, s.pricesKey)
}

func (s *tokenStore) GetTokenSpreads(
	ctx context.Context,
) (map[string]decimal.Decimal, error) {
	return s.getHash(ctx, s.spreadsKey)
}

func (s *tokenStore) Close() error {
	return s.client.Close()
}

func (s *tokenStore) getHash(
	ctx context.Context, key string,
) (map[string]decimal.Decimal, error) {
	res, err := s.cb.Execute(func() (interface{}, error) {
		return s.client.HGetAll(ctx, key).Result()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return parseHash(key, res.(map[string]string)), nil
}

func parseHash(key string, hash map[string]string) map[string]decimal.Decimal {
	values := make(map[string]decimal.Decimal, len(hash))
	for address, rawValue := range hash {
		value, err := decimal.NewFromString(strings.TrimSpace(rawValue))
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"key":     key,
				"address": address,
			}).Warn("skipping malformed token entry")
			continue
		}
		values[strings.ToLower(address)] = value
	}
	return values
}
