package lending

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"lendmarket/native/assets"
	"lendmarket/native/oracle"
)

// AssetCatalog is the subset of the asset registry the risk engine reads.
type AssetCatalog interface {
	AssetType(symbol assets.Symbol) (assets.Type, error)
	Haircut(t assets.Type) (decimal.Decimal, error)
}

// PriceFeed is the subset of the price source the risk engine reads.
type PriceFeed interface {
	PriceInCommonUnit(symbol assets.Symbol) decimal.Decimal
	RawQuote(symbol assets.Symbol) (oracle.Quote, bool)
	LocalCurrency() assets.Symbol
}

// Health is a position's health factor. Positions without debt report
// Unbounded rather than a number.
type Health struct {
	Factor    decimal.Decimal
	Unbounded bool
}

// UnboundedHealth is the health of a position with nothing owed.
var UnboundedHealth = Health{Unbounded: true}

// Below reports whether the health factor is strictly below threshold.
func (h Health) Below(threshold decimal.Decimal) bool {
	return !h.Unbounded && h.Factor.LessThan(threshold)
}

func (h Health) String() string {
	if h.Unbounded {
		return "unbounded"
	}
	return h.Factor.StringFixed(3)
}

// MarshalJSON renders the factor to three places, or "unbounded".
func (h Health) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// BorrowingPower summarises how much a position may borrow.
type BorrowingPower struct {
	TotalCollateral decimal.Decimal `json:"totalCollateral"`
	MaxBorrow       decimal.Decimal `json:"maxBorrow"`
	// MaxBorrowLocal is MaxBorrow expressed in the local currency.
	MaxBorrowLocal decimal.Decimal `json:"maxBorrowLocal"`
}

// RiskEngine values positions. It holds no mutable state.
type RiskEngine struct {
	catalog AssetCatalog
	prices  PriceFeed
	params  Params
}

// NewRiskEngine constructs a risk engine over the given collaborators.
func NewRiskEngine(catalog AssetCatalog, prices PriceFeed, params Params) *RiskEngine {
	return &RiskEngine{catalog: catalog, prices: prices, params: params}
}

// Params returns the engine's risk constants.
func (r *RiskEngine) Params() Params { return r.params }

func (r *RiskEngine) haircut(symbol assets.Symbol) (decimal.Decimal, error) {
	t, err := r.catalog.AssetType(symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrAssetNotConfigured, err)
	}
	h, err := r.catalog.Haircut(t)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrAssetNotConfigured, err)
	}
	return h, nil
}

// CollateralValue sums quantity × price × (1 − haircut) over all collateral.
func (r *RiskEngine) CollateralValue(p *Position) (decimal.Decimal, error) {
	total := decimal.Zero
	if p == nil {
		return total, nil
	}
	for _, col := range p.Collateral {
		haircut, err := r.haircut(col.Asset)
		if err != nil {
			return decimal.Zero, err
		}
		price := r.prices.PriceInCommonUnit(col.Asset)
		total = total.Add(col.Quantity.Mul(price).Mul(one.Sub(haircut)))
	}
	return total, nil
}

// ValueInCommonUnit converts amount of asset into the common unit. The local
// currency is quoted as units per common unit, so its amounts are divided by
// the quote; every other asset is multiplied by its common-unit price. Assets
// without a usable quote are worth zero.
func (r *RiskEngine) ValueInCommonUnit(asset assets.Symbol, amount decimal.Decimal) decimal.Decimal {
	if local := r.prices.LocalCurrency(); local != "" && asset == local {
		q, ok := r.prices.RawQuote(asset)
		if !ok || !q.Price.IsPositive() {
			return decimal.Zero
		}
		return amount.Div(q.Price)
	}
	return amount.Mul(r.prices.PriceInCommonUnit(asset))
}

// LoanValue sums the debt of every loan in the common unit.
func (r *RiskEngine) LoanValue(p *Position) decimal.Decimal {
	total := decimal.Zero
	if p == nil {
		return total
	}
	for _, loan := range p.Loans {
		total = total.Add(r.ValueInCommonUnit(loan.Asset, loan.Debt()))
	}
	return total
}

// BorrowingPower divides collateral value by the over-collateralisation
// factor.
func (r *RiskEngine) BorrowingPower(p *Position) (BorrowingPower, error) {
	collateral, err := r.CollateralValue(p)
	if err != nil {
		return BorrowingPower{}, err
	}
	maxBorrow := collateral.Div(r.params.OverCollateralization)
	power := BorrowingPower{TotalCollateral: collateral, MaxBorrow: maxBorrow, MaxBorrowLocal: decimal.Zero}
	if local := r.prices.LocalCurrency(); local != "" {
		if q, ok := r.prices.RawQuote(local); ok {
			power.MaxBorrowLocal = maxBorrow.Mul(q.Price)
		}
	}
	return power, nil
}

// HealthFactor is collateral value / loan value, or UnboundedHealth when the
// position owes nothing of value.
func (r *RiskEngine) HealthFactor(p *Position) (Health, error) {
	if !p.HasLoans() {
		return UnboundedHealth, nil
	}
	loanValue := r.LoanValue(p)
	if loanValue.IsZero() {
		return UnboundedHealth, nil
	}
	collateral, err := r.CollateralValue(p)
	if err != nil {
		return Health{}, err
	}
	return Health{Factor: collateral.Div(loanValue)}, nil
}

// CanLiquidate reports whether the health factor is strictly below the
// liquidation threshold. A missing position is never liquidatable.
func (r *RiskEngine) CanLiquidate(p *Position) (bool, error) {
	if p == nil {
		return false, nil
	}
	health, err := r.HealthFactor(p)
	if err != nil {
		return false, err
	}
	return health.Below(r.params.LiquidationThreshold), nil
}

// LiquidationSeizeValue is the common-unit value a liquidator may seize for
// repaying repayValue: repayValue × (1 + bonus).
func (r *RiskEngine) LiquidationSeizeValue(repayValue decimal.Decimal) decimal.Decimal {
	return repayValue.Mul(one.Add(r.params.LiquidationBonus))
}
