package oracle

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"lendmarket/native/assets"
)

// Quote is the last recorded price for a symbol. Currency is the unit the
// price is expressed in.
type Quote struct {
	Price     decimal.Decimal
	Currency  string
	UpdatedAt time.Time
}

// Source stores quotes and converts them into the common unit of account.
//
// The local currency is quoted inversely: its price is the number of local
// currency units per common unit (e.g. NGN 1650 per USD). Every other asset is
// quoted directly, so its common-unit value is the price itself.
type Source struct {
	mu            sync.RWMutex
	quotes        map[assets.Symbol]Quote
	commonUnit    assets.Symbol
	localCurrency assets.Symbol
	now           func() time.Time
}

// NewSource constructs an empty price source.
func NewSource(commonUnit, localCurrency assets.Symbol) *Source {
	return &Source{
		quotes:        make(map[assets.Symbol]Quote),
		commonUnit:    commonUnit,
		localCurrency: localCurrency,
		now:           time.Now,
	}
}

// SetClock overrides the timestamp source used for UpdatedAt.
func (s *Source) SetClock(now func() time.Time) {
	if s == nil || now == nil {
		return
	}
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// CommonUnit returns the unit of account.
func (s *Source) CommonUnit() assets.Symbol { return s.commonUnit }

// LocalCurrency returns the inversely quoted currency.
func (s *Source) LocalCurrency() assets.Symbol { return s.localCurrency }

// Update records a new quote for symbol stamped with the source clock.
func (s *Source) Update(symbol assets.Symbol, price decimal.Decimal, currency string) {
	s.UpdateAt(symbol, price, currency, time.Time{})
}

// UpdateAt records a quote observed upstream at the given time. A zero time,
// or one ahead of the source clock, is stamped with the clock instead.
func (s *Source) UpdateAt(symbol assets.Symbol, price decimal.Decimal, currency string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if at.IsZero() || at.After(now) {
		at = now
	}
	s.quotes[symbol] = Quote{
		Price:     price,
		Currency:  strings.ToUpper(strings.TrimSpace(currency)),
		UpdatedAt: at,
	}
}

// RawQuote returns the stored quote for symbol.
func (s *Source) RawQuote(symbol assets.Symbol) (Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[symbol]
	return q, ok
}

// PriceInCommonUnit returns the value of one unit of symbol in the common
// unit. Unknown symbols and zero prices yield zero.
func (s *Source) PriceInCommonUnit(symbol assets.Symbol) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.priceLocked(symbol)
}

func (s *Source) priceLocked(symbol assets.Symbol) decimal.Decimal {
	q, ok := s.quotes[symbol]
	if !ok || !q.Price.IsPositive() {
		return decimal.Zero
	}
	if symbol == s.localCurrency {
		return decimal.NewFromInt(1).Div(q.Price)
	}
	// A non-local asset quoted in local currency is rebased through the
	// local rate.
	if s.localCurrency != "" && q.Currency == string(s.localCurrency) {
		local, ok := s.quotes[s.localCurrency]
		if !ok || !local.Price.IsPositive() {
			return decimal.Zero
		}
		return q.Price.Div(local.Price)
	}
	return q.Price
}

// Convert expresses amount of from in units of to. Zero is returned when
// either side has no value.
func (s *Source) Convert(from, to assets.Symbol, amount decimal.Decimal) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fromPrice := s.priceLocked(from)
	toPrice := s.priceLocked(to)
	if fromPrice.IsZero() || toPrice.IsZero() {
		return decimal.Zero
	}
	return amount.Mul(fromPrice).Div(toPrice)
}

// Stale reports whether symbol has no quote or its quote is older than maxAge.
// A non-positive maxAge disables the age check.
func (s *Source) Stale(symbol assets.Symbol, maxAge time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[symbol]
	if !ok {
		return true
	}
	if maxAge <= 0 {
		return false
	}
	return s.now().Sub(q.UpdatedAt) > maxAge
}

// Symbols lists every quoted symbol in lexical order.
func (s *Source) Symbols() []assets.Symbol {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]assets.Symbol, 0, len(s.quotes))
	for symbol := range s.quotes {
		out = append(out, symbol)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DefaultSource returns a source seeded with the reference price sheet:
// USD as common unit and NGN as the inversely quoted local currency.
func DefaultSource() *Source {
	src := NewSource("USD", "NGN")
	seed := []struct {
		symbol   assets.Symbol
		price    int64
		currency string
	}{
		{"NGN", 1650, "NGN"},
		{"USD", 1, "USD"},
		{"AAPL", 185, "USD"},
		{"MSFT", 380, "USD"},
		{"GOOGL", 140, "USD"},
		{"TSLA", 245, "USD"},
		{"AMZN", 175, "USD"},
		{"SPY", 450, "USD"},
		{"VOO", 420, "USD"},
		{"QQQ", 385, "USD"},
		{"VTI", 235, "USD"},
	}
	for _, entry := range seed {
		src.Update(entry.symbol, decimal.NewFromInt(entry.price), entry.currency)
	}
	return src
}
