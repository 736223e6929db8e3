package lending

import (
	"github.com/shopspring/decimal"

	nativecommon "lendmarket/native/common"
)

// Params groups the protocol-wide risk constants.
type Params struct {
	// OverCollateralization is the factor K collateral value is divided by to
	// obtain borrowing power.
	OverCollateralization decimal.Decimal
	// LiquidationThreshold is the health factor below which a position may be
	// liquidated. The boundary itself is healthy.
	LiquidationThreshold decimal.Decimal
	// LiquidationBonus is the extra share of the repaid value a liquidator
	// may seize.
	LiquidationBonus decimal.Decimal
	// DustPrincipal is the principal at or below which a loan counts as fully
	// repaid.
	DustPrincipal decimal.Decimal
}

// DefaultParams returns the reference risk constants.
func DefaultParams() Params {
	return Params{
		OverCollateralization: decimal.RequireFromString("1.3"),
		LiquidationThreshold:  decimal.RequireFromString("1.15"),
		LiquidationBonus:      decimal.RequireFromString("0.05"),
		DustPrincipal:         decimal.RequireFromString("0.01"),
	}
}

// ActionPauses exposes fine-grained switches for pausing individual lending
// flows at start-up.
type ActionPauses struct {
	Deposit   bool `toml:"Deposit"`
	Borrow    bool `toml:"Borrow"`
	Repay     bool `toml:"Repay"`
	Liquidate bool `toml:"Liquidate"`
	Withdraw  bool `toml:"Withdraw"`
}

const (
	moduleName = "lending"

	actionDeposit   = "deposit"
	actionBorrow    = "borrow"
	actionRepay     = "repay"
	actionLiquidate = "liquidate"
	actionWithdraw  = "withdraw"
)

// Actions maps the pause switches to guard action names.
func (p ActionPauses) Actions() map[string]bool {
	return map[string]bool{
		actionDeposit:   p.Deposit,
		actionBorrow:    p.Borrow,
		actionRepay:     p.Repay,
		actionLiquidate: p.Liquidate,
		actionWithdraw:  p.Withdraw,
	}
}

// ModuleName is the pause-guard module identifier for lending.
func ModuleName() string { return moduleName }

// Switchboard returns a pause switchboard with the configured actions halted.
func (p ActionPauses) Switchboard() *nativecommon.Switchboard {
	board := nativecommon.NewSwitchboard()
	for action, paused := range p.Actions() {
		if paused {
			board.Set(moduleName, action, true)
		}
	}
	return board
}
