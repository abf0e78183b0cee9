package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParseTokenQuotes(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		in := "address,mid_price,spread\n" +
			"0xA0b86991C6218b36c1d19D4a2e9Eb0cE3606eB48, 0.0005, 0.000001\n" +
			"0x6b175474e89094c44da98b954eedeac495271d0f,0.00049,0\n"

		quotes, err := parseTokenQuotes(strings.NewReader(in), 100)
		require.NoError(t, err)
		require.Len(t, quotes, 2)

		require.Equal(t, "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", quotes[0].Address)
		require.True(t, decimal.RequireFromString("0.0005").Equal(quotes[0].MidPrice))
		require.True(t, decimal.RequireFromString("0.000001").Equal(quotes[0].Spread))
		require.Equal(t, int64(100), quotes[0].UpdatedAt)
		require.True(t, quotes[1].Spread.IsZero())
	})

	t.Run("without header", func(t *testing.T) {
		in := "0x6b175474e89094c44da98b954eedeac495271d0f,1,0.1\n"

		quotes, err := parseTokenQuotes(strings.NewReader(in), 0)
		require.NoError(t, err)
		require.Len(t, quotes, 1)
	})

	t.Run("invalid", func(t *testing.T) {
		tests := []struct {
			name string
			in   string
		}{
			{"empty", ""},
			{"header only", "address,mid_price,spread\n"},
			{"missing column", "0xabc,1\n"},
			{"invalid price", "0xabc,one,0\n"},
			{"invalid spread", "0xabc,1,zero\n"},
		}

		for _, tt := range tests {
			tt := tt
			t.Run(tt.name, func(t *testing.T) {
				quotes, err := parseTokenQuotes(strings.NewReader(tt.in), 0)
				require.Error(t, err)
				require.True(t, errors.Is(err, errMalformedQuotes))
				require.Nil(t, quotes)
			})
		}
	})
}
