package tokencatalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/tdex-network/price-publisher/pkg/httputil"
)

var (
	// ErrMalformedCatalog is returned if the catalog is not a valid csv with
	// symbol and address columns.
	ErrMalformedCatalog = errors.New("malformed token catalog")
	// ErrDuplicatedSymbol is returned if the same symbol is listed twice.
	ErrDuplicatedSymbol = errors.New("duplicated symbol in token catalog")
)

const (
	symbolColumn  = "symbol"
	addressColumn = "address"
)

// Load reads the symbol to address mapping of the supported tokens from the
// given source, either a local file or an http(s) url, in csv format with a
// header containing at least the symbol and address columns.
// Addresses are returned lower-case.
func Load(ctx context.Context, source string) (map[string]string, error) {
	if source == "" {
		return nil, fmt.Errorf("missing token catalog source")
	}

	var (
		content string
		err     error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		content, err = fetch(ctx, source)
	} else {
		content, err = readFile(source)
	}
	if err != nil {
		return nil, err
	}

	return Parse(strings.NewReader(content))
}

// Parse reads the token catalog from the given csv reader.
func Parse(r io.Reader) (map[string]string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedCatalog, err)
	}
	symbolIndex, addressIndex := -1, -1
	for i, column := range header {
		switch strings.ToLower(strings.TrimSpace(column)) {
		case symbolColumn:
			symbolIndex = i
		case addressColumn:
			addressIndex = i
		}
	}
	if symbolIndex < 0 || addressIndex < 0 {
		return nil, fmt.Errorf(
			"%w: header must contain %s and %s columns",
			ErrMalformedCatalog, symbolColumn, addressColumn,
		)
	}

	catalog := make(map[string]string)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrMalformedCatalog, err)
		}

		symbol := strings.TrimSpace(record[symbolIndex])
		address := strings.ToLower(strings.TrimSpace(record[addressIndex]))
		if symbol == "" || address == "" {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf(
				"%w: empty symbol or address at line %d", ErrMalformedCatalog, line,
			)
		}
		if _, ok := catalog[symbol]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatedSymbol, symbol)
		}
		catalog[symbol] = address
	}

	return catalog, nil
}

func readFile(path string) (string, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read token catalog: %w", err)
	}
	return string(buf), nil
}

func fetch(ctx context.Context, url string) (string, error) {
	status, body, err := httputil.NewClient(0).NewHTTPRequest(
		ctx, http.MethodGet, url, "", nil,
	)
	if err != nil {
		return "", fmt.Errorf("failed to fetch token catalog: %w", err)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf(
			"failed to fetch token catalog: status %d: %s", status, body,
		)
	}
	return body, nil
}
