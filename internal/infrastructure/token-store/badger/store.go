package tokenstorebadger

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/options"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/price-publisher/internal/core/ports"
	"github.com/timshannon/badgerhold/v4"
)

// TokenQuote is the mid price and spread of a token relative to the bridge
// asset. UpdatedAt defaults to the time of the upsert if not set.
type TokenQuote struct {
	Address   string
	MidPrice  decimal.Decimal
	Spread    decimal.Decimal
	UpdatedAt int64
}

// Store is a TimestampedTokenPriceStore that can also be written to.
type Store interface {
	ports.TimestampedTokenPriceStore
	UpsertTokenQuotes(ctx context.Context, quotes []TokenQuote) (int, error)
}

const valueLogGCInterval = 30 * time.Minute

type tokenQuote struct {
	Address   string
	MidPrice  string
	Spread    string
	UpdatedAt int64
}

type tokenStore struct {
	store *badgerhold.Store

	quitGC    chan struct{}
	gcStopped chan struct{}
	closeOnce sync.Once
}

// NewTokenStore opens the token store in the given datadir. The store is
// kept in memory if datadir is empty.
func NewTokenStore(baseDbDir string, logger badger.Logger) (Store, error) {
	var dbDir string
	if len(baseDbDir) > 0 {
		dbDir = filepath.Join(baseDbDir, "tokens")
	}

	store, err := createDb(dbDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening tokens db: %w", err)
	}

	s := &tokenStore{
		store:     store,
		quitGC:    make(chan struct{}),
		gcStopped: make(chan struct{}),
	}
	if len(dbDir) > 0 {
		go s.runValueLogGC()
	} else {
		close(s.gcStopped)
	}
	return s, nil
}

// UpsertTokenQuotes adds or replaces the given quotes in a single
// transaction and returns the number of quotes written.
func (s *tokenStore) UpsertTokenQuotes(
	_ context.Context, quotes []TokenQuote,
) (int, error) {
	now := time.Now().Unix()
	err := s.store.Badger().Update(func(tx *badger.Txn) error {
		for _, q := range quotes {
			address := strings.ToLower(q.Address)
			if address == "" {
				return fmt.Errorf("missing token address")
			}
			if !q.MidPrice.IsPositive() {
				return fmt.Errorf("invalid mid price %s for token %s", q.MidPrice, address)
			}
			if q.Spread.IsNegative() {
				return fmt.Errorf("invalid spread %s for token %s", q.Spread, address)
			}

			updatedAt := q.UpdatedAt
			if updatedAt <= 0 {
				updatedAt = now
			}
			record := tokenQuote{
				Address:   address,
				MidPrice:  q.MidPrice.String(),
				Spread:    q.Spread.String(),
				UpdatedAt: updatedAt,
			}
			if err := s.store.TxUpsert(tx, address, &record); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return -1, err
	}
	return len(quotes), nil
}

func (s *tokenStore) GetTokenPrices(
	ctx context.Context,
) (map[string]decimal.Decimal, error) {
	return s.getQuotes(ctx, func(q tokenQuote) string { return q.MidPrice })
}

func (s *tokenStore) GetTokenSpreads(
	ctx context.Context,
) (map[string]decimal.Decimal, error) {
	return s.getQuotes(ctx, func(q tokenQuote) string { return q.Spread })
}

func (s *tokenStore) GetTokenUpdateTimes(
	_ context.Context,
) (map[string]int64, error) {
	var quotes []tokenQuote
	if err := s.store.Find(&quotes, nil); err != nil {
		return nil, err
	}

	res := make(map[string]int64, len(quotes))
	for _, q := range quotes {
		res[q.Address] = q.UpdatedAt
	}
	return res, nil
}

func (s *tokenStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.quitGC)
		<-s.gcStopped
		err = s.store.Close()
	})
	return err
}

func (s *tokenStore) getQuotes(
	_ context.Context, field func(tokenQuote) string,
) (map[string]decimal.Decimal, error) {
	var quotes []tokenQuote
	if err := s.store.Find(&quotes, nil); err != nil {
		return nil, err
	}

	res := make(map[string]decimal.Decimal, len(quotes))
	for _, q := range quotes {
		value, err := decimal.NewFromString(field(q))
		if err != nil {
			log.WithError(err).WithField("address", q.Address).Warn(
				"skipping malformed token quote",
			)
			continue
		}
		res[q.Address] = value
	}
	return res, nil
}

func createDb(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, err
	}
	return db, nil
}

func (s *tokenStore) runValueLogGC() {
	ticker := time.NewTicker(valueLogGCInterval)
	defer func() {
		ticker.Stop()
		close(s.gcStopped)
	}()

	for {
		select {
		case <-s.quitGC:
			return
		case <-ticker.C:
			if err := s.store.Badger().RunValueLogGC(0.5); err != nil &&
				err != badger.ErrNoRewrite {
				log.WithError(err).Warn("failed to run tokens db value log gc")
			}
		}
	}
}
