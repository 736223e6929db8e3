package assets

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownAsset = errors.New("assets: unknown asset")
	ErrUnknownType  = errors.New("assets: unknown asset type")
	ErrInvalidAsset = errors.New("assets: invalid asset definition")
)

// Symbol identifies a tradable asset. Symbols are normalised to upper case so
// map lookups are stable regardless of caller casing.
type Symbol string

// NewSymbol trims and upper-cases raw input.
func NewSymbol(raw string) Symbol {
	return Symbol(strings.ToUpper(strings.TrimSpace(raw)))
}

func (s Symbol) String() string { return string(s) }

// Type classifies an asset for risk purposes.
type Type string

const (
	TypeCurrency Type = "CURRENCY"
	TypeUSStock  Type = "US_STOCK"
	TypeUSETF    Type = "US_ETF"
	TypeTreasury Type = "TREASURY"
	TypeNGNCash  Type = "NGN_CASH"
)

// Asset describes a catalog entry.
type Asset struct {
	Symbol           Symbol
	Type             Type
	Name             string
	Borrowable       bool
	Collateralizable bool
}

// RiskParams groups the per-type collateral parameters. Only Haircut feeds the
// lending math; the ratios are published for operators.
type RiskParams struct {
	CollateralRatio      decimal.Decimal
	LiquidationThreshold decimal.Decimal
	Haircut              decimal.Decimal
}

// Registry is the static asset catalog. It is safe for concurrent reads once
// populated.
type Registry struct {
	mu     sync.RWMutex
	assets map[Symbol]Asset
	risk   map[Type]RiskParams
}

// NewRegistry returns an empty catalog.
func NewRegistry() *Registry {
	return &Registry{
		assets: make(map[Symbol]Asset),
		risk:   make(map[Type]RiskParams),
	}
}

// Register adds or replaces an asset definition.
func (r *Registry) Register(asset Asset) error {
	asset.Symbol = NewSymbol(string(asset.Symbol))
	if asset.Symbol == "" || asset.Type == "" {
		return fmt.Errorf("%w: symbol and type required", ErrInvalidAsset)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets[asset.Symbol] = asset
	return nil
}

// SetRiskParams configures the risk parameters for an asset type. Haircuts must
// lie in [0,1).
func (r *Registry) SetRiskParams(t Type, params RiskParams) error {
	if params.Haircut.IsNegative() || params.Haircut.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: haircut for %s must be in [0,1)", ErrInvalidAsset, t)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.risk[t] = params
	return nil
}

// Get returns the asset definition for symbol.
func (r *Registry) Get(symbol Symbol) (Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	asset, ok := r.assets[symbol]
	return asset, ok
}

// Known reports whether the catalog lists symbol.
func (r *Registry) Known(symbol Symbol) bool {
	_, ok := r.Get(symbol)
	return ok
}

// IsBorrowable reports whether symbol may be lent out. Unknown symbols are not.
func (r *Registry) IsBorrowable(symbol Symbol) bool {
	asset, ok := r.Get(symbol)
	return ok && asset.Borrowable
}

// IsCollateralizable reports whether symbol may be posted as collateral.
func (r *Registry) IsCollateralizable(symbol Symbol) bool {
	asset, ok := r.Get(symbol)
	return ok && asset.Collateralizable
}

// AssetType returns the risk classification of symbol.
func (r *Registry) AssetType(symbol Symbol) (Type, error) {
	asset, ok := r.Get(symbol)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAsset, symbol)
	}
	return asset.Type, nil
}

// RiskParams returns the parameters configured for t.
func (r *Registry) RiskParams(t Type) (RiskParams, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	params, ok := r.risk[t]
	if !ok {
		return RiskParams{}, fmt.Errorf("%w: %s", ErrUnknownType, t)
	}
	return params, nil
}

// Haircut returns the collateral haircut for t.
func (r *Registry) Haircut(t Type) (decimal.Decimal, error) {
	params, err := r.RiskParams(t)
	if err != nil {
		return decimal.Zero, err
	}
	return params.Haircut, nil
}

// Symbols lists every registered symbol in lexical order.
func (r *Registry) Symbols() []Symbol {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Symbol, 0, len(r.assets))
	for symbol := range r.assets {
		out = append(out, symbol)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
