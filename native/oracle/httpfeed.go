package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"lendmarket/native/assets"
)

const maxQuoteBody = 64 << 10

// HTTPFeed fetches quotes from an upstream JSON endpoint laid out as
// GET {BaseURL}/{SYMBOL} -> {"price":"185.20","currency":"USD"}.
type HTTPFeed struct {
	baseURL *url.URL
	client  *http.Client
}

type httpQuote struct {
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// NewHTTPFeed validates baseURL and wraps client (http.DefaultClient when nil).
func NewHTTPFeed(baseURL string, client *http.Client) (*HTTPFeed, error) {
	parsed, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("oracle: parse feed url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("oracle: feed url must be http(s), got %q", baseURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFeed{baseURL: parsed, client: client}, nil
}

// Fetch implements Feed.
func (f *HTTPFeed) Fetch(ctx context.Context, symbol assets.Symbol) (Quote, error) {
	endpoint := f.baseURL.JoinPath(url.PathEscape(symbol.String()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return Quote{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return Quote{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Quote{}, fmt.Errorf("%w: %s", ErrNoQuote, symbol)
	case resp.StatusCode != http.StatusOK:
		return Quote{}, fmt.Errorf("oracle: feed returned %s", resp.Status)
	}

	var payload httpQuote
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxQuoteBody)).Decode(&payload); err != nil {
		return Quote{}, fmt.Errorf("oracle: decode quote: %w", err)
	}
	return Quote{
		Price:     payload.Price,
		Currency:  strings.ToUpper(strings.TrimSpace(payload.Currency)),
		UpdatedAt: payload.UpdatedAt,
	}, nil
}
