package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tdex-network/price-publisher/config"
	tokenstorebadger "github.com/tdex-network/price-publisher/internal/infrastructure/token-store/badger"
	"github.com/urfave/cli/v2"
)

var (
	errMalformedQuotes = errors.New("malformed token quotes file")

	tokens = cli.Command{
		Name:  "tokens",
		Usage: "manage the token quotes of the embedded token store",
		Subcommands: []*cli.Command{
			&importTokens, &listTokens,
		},
	}
	importTokens = cli.Command{
		Name:  "import",
		Usage: "import token quotes from a csv file with columns address,mid_price,spread",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Usage:    "path of the csv file",
				Required: true,
			},
		},
		Before: requireBadgerStore,
		Action: importTokensAction,
	}
	listTokens = cli.Command{
		Name:   "list",
		Usage:  "list the token quotes of the embedded token store",
		Before: requireBadgerStore,
		Action: listTokensAction,
	}
)

func importTokensAction(ctx *cli.Context) error {
	file, err := os.Open(ctx.String("file"))
	if err != nil {
		return err
	}
	defer file.Close()

	quotes, err := parseTokenQuotes(file, time.Now().Unix())
	if err != nil {
		return err
	}

	store, err := newBadgerTokenStore()
	if err != nil {
		return err
	}
	defer store.Close()

	count, err := store.UpsertTokenQuotes(context.Background(), quotes)
	if err != nil {
		return err
	}

	fmt.Printf("imported %d token quotes\n", count)
	return nil
}

func listTokensAction(_ *cli.Context) error {
	store, err := newBadgerTokenStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	prices, err := store.GetTokenPrices(ctx)
	if err != nil {
		return err
	}
	spreads, err := store.GetTokenSpreads(ctx)
	if err != nil {
		return err
	}

	addresses := make([]string, 0, len(prices))
	for addr := range prices {
		addresses = append(addresses, addr)
	}
	sort.Strings(addresses)

	for _, addr := range addresses {
		fmt.Printf("%s\t%s\t%s\n", addr, prices[addr], spreads[addr])
	}
	return nil
}

// parseTokenQuotes reads address,mid_price,spread records. A leading header
// row is skipped if present.
func parseTokenQuotes(r io.Reader, timestamp int64) ([]tokenstorebadger.TokenQuote, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 3
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errMalformedQuotes, err)
	}
	if len(records) > 0 && strings.EqualFold(records[0][0], "address") {
		records = records[1:]
	}
	if len(records) <= 0 {
		return nil, fmt.Errorf("%w: no quotes found", errMalformedQuotes)
	}

	quotes := make([]tokenstorebadger.TokenQuote, 0, len(records))
	for i, record := range records {
		midPrice, err := decimal.NewFromString(strings.TrimSpace(record[1]))
		if err != nil {
			return nil, fmt.Errorf(
				"%w: invalid mid price on line %d", errMalformedQuotes, i+1,
			)
		}
		spread, err := decimal.NewFromString(strings.TrimSpace(record[2]))
		if err != nil {
			return nil, fmt.Errorf(
				"%w: invalid spread on line %d", errMalformedQuotes, i+1,
			)
		}
		quotes = append(quotes, tokenstorebadger.TokenQuote{
			Address:   strings.ToLower(strings.TrimSpace(record[0])),
			MidPrice:  midPrice,
			Spread:    spread,
			UpdatedAt: timestamp,
		})
	}
	return quotes, nil
}

func requireBadgerStore(_ *cli.Context) error {
	if storeType := config.GetString(config.TokenStoreTypeKey); storeType != config.BadgerTokenStore {
		return fmt.Errorf(
			"token store type is %s, tokens commands require %s",
			storeType, config.BadgerTokenStore,
		)
	}
	return nil
}
