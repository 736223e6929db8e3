package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"lendmarket/native/assets"
)

var (
	ErrNoQuote    = errors.New("oracle: no quote available")
	ErrStaleQuote = errors.New("oracle: quote older than max age")
)

// Feed fetches the latest market quote for a symbol from an upstream provider.
type Feed interface {
	Fetch(ctx context.Context, symbol assets.Symbol) (Quote, error)
}

// ApplyFunc receives each refreshed quote, UpdatedAt included. The lending
// protocol passes its UpdatePriceAt so liquidation scans run on every refresh.
type ApplyFunc func(symbol assets.Symbol, quote Quote) error

// Freshness reports whether the quote held for a symbol is older than maxAge.
// *Source implements it.
type Freshness interface {
	Stale(symbol assets.Symbol, maxAge time.Duration) bool
}

// RefresherConfig controls polling cadence and upstream budget.
type RefresherConfig struct {
	Symbols      []assets.Symbol
	Interval     time.Duration
	FetchTimeout time.Duration
	// RequestsPerSecond bounds upstream calls; zero means unlimited.
	RequestsPerSecond float64
	Burst             int
	// OnResult, when set, observes every fetch outcome.
	OnResult func(symbol assets.Symbol, err error)
	// MaxAge rejects upstream quotes stamped further back than this and marks
	// held quotes stale once they age past it. Zero disables both checks.
	MaxAge time.Duration
	// Freshness is consulted after every round; OnStale receives the symbols
	// whose held quote is stale, an empty slice once all are fresh again.
	Freshness Freshness
	OnStale   func(stale []assets.Symbol)
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Refresher polls a Feed and applies fresh quotes. Failed fetches keep the
// previous quote in place so the state machine never blocks on the feed.
type Refresher struct {
	feed    Feed
	apply   ApplyFunc
	cfg     RefresherConfig
	limiter *rate.Limiter
	logger  *slog.Logger

	mu       sync.Mutex
	failures map[assets.Symbol]int
}

// NewRefresher wires a feed to an apply callback.
func NewRefresher(feed Feed, apply ApplyFunc, cfg RefresherConfig, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 5 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Refresher{
		feed:     feed,
		apply:    apply,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger,
		failures: make(map[assets.Symbol]int),
	}
}

// RefreshOnce fetches every configured symbol once. It returns the number of
// quotes applied; per-symbol failures are logged and counted, not returned.
func (r *Refresher) RefreshOnce(ctx context.Context) (int, error) {
	if r == nil || r.feed == nil || r.apply == nil {
		return 0, fmt.Errorf("oracle refresher not configured")
	}
	applied := 0
	for _, symbol := range r.cfg.Symbols {
		if err := r.limiter.Wait(ctx); err != nil {
			return applied, err
		}
		err := r.refreshSymbol(ctx, symbol)
		if r.cfg.OnResult != nil {
			r.cfg.OnResult(symbol, err)
		}
		if err != nil {
			r.recordFailure(symbol)
			r.logger.Warn("price refresh failed, keeping last quote",
				slog.String("symbol", symbol.String()),
				slog.Int("consecutive_failures", r.Failures(symbol)),
				slog.Any("error", err))
			continue
		}
		r.resetFailures(symbol)
		applied++
	}
	r.reportStale()
	return applied, nil
}

// StaleSymbols returns the configured symbols whose held quote is older than
// MaxAge. It is empty when no Freshness source or MaxAge is configured.
func (r *Refresher) StaleSymbols() []assets.Symbol {
	if r.cfg.Freshness == nil || r.cfg.MaxAge <= 0 {
		return nil
	}
	stale := []assets.Symbol{}
	for _, symbol := range r.cfg.Symbols {
		if r.cfg.Freshness.Stale(symbol, r.cfg.MaxAge) {
			stale = append(stale, symbol)
		}
	}
	return stale
}

func (r *Refresher) reportStale() {
	if r.cfg.Freshness == nil || r.cfg.MaxAge <= 0 {
		return
	}
	stale := r.StaleSymbols()
	if len(stale) > 0 {
		names := make([]string, len(stale))
		for i, symbol := range stale {
			names[i] = symbol.String()
		}
		r.logger.Warn("serving stale quotes",
			slog.Any("symbols", names),
			slog.Duration("max_age", r.cfg.MaxAge))
	}
	if r.cfg.OnStale != nil {
		r.cfg.OnStale(stale)
	}
}

func (r *Refresher) refreshSymbol(ctx context.Context, symbol assets.Symbol) error {
	fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()
	quote, err := r.feed.Fetch(fetchCtx, symbol)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", symbol, err)
	}
	if !quote.Price.IsPositive() {
		return fmt.Errorf("fetch %s: non-positive price %s", symbol, quote.Price)
	}
	if r.cfg.MaxAge > 0 && !quote.UpdatedAt.IsZero() {
		if age := r.cfg.Clock().Sub(quote.UpdatedAt); age > r.cfg.MaxAge {
			return fmt.Errorf("fetch %s: %w (age %s)", symbol, ErrStaleQuote, age.Round(time.Second))
		}
	}
	return r.apply(symbol, quote)
}

// Run refreshes on every interval tick until ctx is cancelled.
func (r *Refresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, err := r.RefreshOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("price refresh round aborted", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Failures returns the consecutive failure count for symbol.
func (r *Refresher) Failures(symbol assets.Symbol) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures[symbol]
}

func (r *Refresher) recordFailure(symbol assets.Symbol) {
	r.mu.Lock()
	r.failures[symbol]++
	r.mu.Unlock()
}

func (r *Refresher) resetFailures(symbol assets.Symbol) {
	r.mu.Lock()
	delete(r.failures, symbol)
	r.mu.Unlock()
}

// StaticFeed serves quotes from memory. It backs tests and offline demos.
type StaticFeed struct {
	mu     sync.RWMutex
	quotes map[assets.Symbol]Quote
}

// NewStaticFeed returns an empty static feed.
func NewStaticFeed() *StaticFeed {
	return &StaticFeed{quotes: make(map[assets.Symbol]Quote)}
}

// Set stores the quote returned for symbol.
func (f *StaticFeed) Set(symbol assets.Symbol, price decimal.Decimal, currency string) {
	f.SetAt(symbol, price, currency, time.Time{})
}

// SetAt stores a quote carrying an upstream timestamp.
func (f *StaticFeed) SetAt(symbol assets.Symbol, price decimal.Decimal, currency string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[symbol] = Quote{Price: price, Currency: currency, UpdatedAt: at}
}

// Fetch implements Feed.
func (f *StaticFeed) Fetch(ctx context.Context, symbol assets.Symbol) (Quote, error) {
	if err := ctx.Err(); err != nil {
		return Quote{}, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	q, ok := f.quotes[symbol]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrNoQuote, symbol)
	}
	return q, nil
}
