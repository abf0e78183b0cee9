package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout is the timeout of the client returned by NewClient when
// none is given.
const DefaultTimeout = 30 * time.Second

// Client is a thin wrapper around http.Client that returns status code and
// body of every request as a string.
type Client struct {
	http *http.Client
}

// NewClient returns a new Client with the given timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{&http.Client{Timeout: timeout}}
}

// NewHTTPRequest makes an http call to the given url and returns its status
// code and body.
// Only GET and POST verbs are supported.
func (c *Client) NewHTTPRequest(
	ctx context.Context, method, url, bodyString string, header map[string]string,
) (int, string, error) {
	var body io.Reader
	switch method {
	case http.MethodGet:
	case http.MethodPost:
		body = strings.NewReader(bodyString)
	default:
		return 0, "", fmt.Errorf("verb not supported %s", method)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, "", err
	}
	for key, value := range header {
		req.Header.Set(key, value)
	}

	rs, err := c.http.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer rs.Body.Close()

	bodyBytes, err := io.ReadAll(rs.Body)
	if err != nil {
		return 0, "", fmt.Errorf("failed to parse response body: %w", err)
	}

	return rs.StatusCode, string(bodyBytes), nil
}
