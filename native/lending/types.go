package lending

import (
	"time"

	"github.com/shopspring/decimal"

	"lendmarket/native/assets"
)

// DepositResult reports the pool after a liquidity deposit.
type DepositResult struct {
	Pool PoolSnapshot `json:"poolStats"`
}

// CollateralResult reports borrowing power after collateral moves.
type CollateralResult struct {
	BorrowingPower BorrowingPower `json:"borrowingPower"`
}

// BorrowResult reports the borrower's health and the pool rate after a draw.
type BorrowResult struct {
	HealthFactor Health          `json:"healthFactor"`
	InterestRate decimal.Decimal `json:"interestRate"`
}

// RepayResult reports the debt left in the repaid asset.
type RepayResult struct {
	RemainingDebt decimal.Decimal `json:"remainingDebt"`
}

// SeizedCollateral is one slice of collateral handed to a liquidator.
type SeizedCollateral struct {
	Asset    assets.Symbol   `json:"asset"`
	Quantity decimal.Decimal `json:"quantity"`
	Value    decimal.Decimal `json:"value"`
}

// LiquidationResult describes a completed liquidation. Values are in the
// common unit. Shortfall is the entitled value the borrower's collateral
// could not cover; it is reported but not booked anywhere.
type LiquidationResult struct {
	ID          string             `json:"id"`
	Seized      []SeizedCollateral `json:"seized"`
	RepayValue  decimal.Decimal    `json:"repayValue"`
	Entitled    decimal.Decimal    `json:"entitledValue"`
	SeizedValue decimal.Decimal    `json:"seizedValue"`
	Bonus       decimal.Decimal    `json:"bonus"`
	Shortfall   decimal.Decimal    `json:"shortfall"`
}

// LiquidationOpportunity is a position currently eligible for liquidation.
type LiquidationOpportunity struct {
	User         string `json:"userId"`
	HealthFactor Health `json:"healthFactor"`
}

// PriceUpdateResult lists the positions liquidatable after a price change.
type PriceUpdateResult struct {
	Opportunities []LiquidationOpportunity `json:"liquidationOpportunities"`
}

// PositionSnapshot is a copy of a position with its risk figures as of the
// call.
type PositionSnapshot struct {
	User            string            `json:"userId"`
	Collateral      []CollateralEntry `json:"collateral"`
	Loans           []LoanEntry       `json:"loans"`
	LastAccrual     time.Time         `json:"lastAccrual"`
	CollateralValue decimal.Decimal   `json:"collateralValue"`
	LoanValue       decimal.Decimal   `json:"loanValue"`
	HealthFactor    Health            `json:"healthFactor"`
	BorrowingPower  BorrowingPower    `json:"borrowingPower"`
}
