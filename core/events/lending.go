package events

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// TypeLendingPoolDeposit is emitted when a liquidity provider funds a pool.
	TypeLendingPoolDeposit = "lending.pool_deposit"
	// TypeLendingCollateralDeposited is emitted when a borrower posts collateral.
	TypeLendingCollateralDeposited = "lending.collateral_deposited"
	// TypeLendingCollateralWithdrawn is emitted when collateral is released.
	TypeLendingCollateralWithdrawn = "lending.collateral_withdrawn"
	// TypeLendingBorrowed is emitted after a loan is drawn from a pool.
	TypeLendingBorrowed = "lending.borrowed"
	// TypeLendingRepaid is emitted after a borrower repays debt.
	TypeLendingRepaid = "lending.repaid"
	// TypeLendingLiquidated is emitted after a third party liquidates a
	// position.
	TypeLendingLiquidated = "lending.liquidated"
	// TypeLendingLiquidationOpportunity is emitted for every position found
	// liquidatable after a price movement.
	TypeLendingLiquidationOpportunity = "lending.liquidation_opportunity"
	// TypeLendingPriceUpdated is emitted when a quote changes.
	TypeLendingPriceUpdated = "lending.price_updated"
)

// PoolDeposit captures liquidity added to a pool.
type PoolDeposit struct {
	Provider string
	Asset    string
	Amount   decimal.Decimal
}

// EventType satisfies the Event interface.
func (PoolDeposit) EventType() string { return TypeLendingPoolDeposit }

// Record flattens the event.
func (e PoolDeposit) Record() Record {
	return record(TypeLendingPoolDeposit, map[string]string{
		"provider": e.Provider,
		"asset":    e.Asset,
		"amount":   e.Amount.String(),
	})
}

// CollateralMoved captures collateral posted or released. Withdrawn selects
// the event type.
type CollateralMoved struct {
	User      string
	Asset     string
	Quantity  decimal.Decimal
	Withdrawn bool
}

// EventType satisfies the Event interface.
func (e CollateralMoved) EventType() string {
	if e.Withdrawn {
		return TypeLendingCollateralWithdrawn
	}
	return TypeLendingCollateralDeposited
}

// Record flattens the event.
func (e CollateralMoved) Record() Record {
	return record(e.EventType(), map[string]string{
		"user":     e.User,
		"asset":    e.Asset,
		"quantity": e.Quantity.String(),
	})
}

// Borrowed captures a successful draw against collateral.
type Borrowed struct {
	User         string
	Asset        string
	Amount       decimal.Decimal
	HealthFactor decimal.Decimal
	PoolRate     decimal.Decimal
}

// EventType satisfies the Event interface.
func (Borrowed) EventType() string { return TypeLendingBorrowed }

// Record flattens the event.
func (e Borrowed) Record() Record {
	return record(TypeLendingBorrowed, map[string]string{
		"user":         e.User,
		"asset":        e.Asset,
		"amount":       e.Amount.String(),
		"healthFactor": e.HealthFactor.StringFixed(3),
		"poolRate":     e.PoolRate.String(),
	})
}

// Repaid captures a debt repayment.
type Repaid struct {
	User          string
	Asset         string
	Amount        decimal.Decimal
	RemainingDebt decimal.Decimal
}

// EventType satisfies the Event interface.
func (Repaid) EventType() string { return TypeLendingRepaid }

// Record flattens the event.
func (e Repaid) Record() Record {
	return record(TypeLendingRepaid, map[string]string{
		"user":          e.User,
		"asset":         e.Asset,
		"amount":        e.Amount.String(),
		"remainingDebt": e.RemainingDebt.String(),
	})
}

// Liquidated captures a completed liquidation.
type Liquidated struct {
	ID          string
	User        string
	Liquidator  string
	RepayAsset  string
	RepayAmount decimal.Decimal
	SeizedValue decimal.Decimal
	Bonus       decimal.Decimal
	Shortfall   decimal.Decimal
}

// EventType satisfies the Event interface.
func (Liquidated) EventType() string { return TypeLendingLiquidated }

// Record flattens the event.
func (e Liquidated) Record() Record {
	attrs := map[string]string{
		"id":          e.ID,
		"user":        e.User,
		"liquidator":  e.Liquidator,
		"repayAsset":  e.RepayAsset,
		"repayAmount": e.RepayAmount.String(),
		"seizedValue": e.SeizedValue.String(),
		"bonus":       e.Bonus.String(),
	}
	if e.Shortfall.IsPositive() {
		attrs["shortfall"] = e.Shortfall.String()
	}
	return record(TypeLendingLiquidated, attrs)
}

// LiquidationOpportunity flags a position that became liquidatable.
type LiquidationOpportunity struct {
	User         string
	HealthFactor decimal.Decimal
	Trigger      string
}

// EventType satisfies the Event interface.
func (LiquidationOpportunity) EventType() string { return TypeLendingLiquidationOpportunity }

// Record flattens the event.
func (e LiquidationOpportunity) Record() Record {
	return record(TypeLendingLiquidationOpportunity, map[string]string{
		"user":         e.User,
		"healthFactor": e.HealthFactor.StringFixed(3),
		"trigger":      e.Trigger,
	})
}

// PriceUpdated captures a quote change.
type PriceUpdated struct {
	Asset    string
	Price    decimal.Decimal
	Currency string
}

// EventType satisfies the Event interface.
func (PriceUpdated) EventType() string { return TypeLendingPriceUpdated }

// Record flattens the event.
func (e PriceUpdated) Record() Record {
	return record(TypeLendingPriceUpdated, map[string]string{
		"asset":    e.Asset,
		"price":    e.Price.String(),
		"currency": e.Currency,
	})
}

func record(eventType string, attrs map[string]string) Record {
	for key, value := range attrs {
		if strings.TrimSpace(value) == "" {
			delete(attrs, key)
		}
	}
	return Record{Type: eventType, Attributes: attrs}
}
