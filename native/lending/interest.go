package lending

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// InterestModel encapsulates the parameters that shape how interest rates react
// to pool utilisation.
type InterestModel struct {
	// BaseRate is the borrow APR applied when utilisation is zero.
	BaseRate decimal.Decimal
	// Slope1 is the APR added by the time utilisation reaches Optimal.
	Slope1 decimal.Decimal
	// Slope2 is the APR added between Optimal and full utilisation.
	Slope2 decimal.Decimal
	// Optimal is the utilisation where the curve kinks.
	Optimal decimal.Decimal
	// ReserveFactor is the share of borrower interest withheld from suppliers.
	ReserveFactor decimal.Decimal
}

// NewInterestModel constructs a kinked curve. A 75% kink is expressed as 0.75.
func NewInterestModel(baseRate, slope1, slope2, optimal decimal.Decimal) *InterestModel {
	return &InterestModel{
		BaseRate: baseRate,
		Slope1:   slope1,
		Slope2:   slope2,
		Optimal:  optimal,
	}
}

// DefaultInterestModel returns the reference curve (kink at 0.75, slopes 0.1
// and 1.0) around the supplied base rate.
func DefaultInterestModel(baseRate decimal.Decimal) *InterestModel {
	return NewInterestModel(
		baseRate,
		decimal.RequireFromString("0.1"),
		decimal.RequireFromString("1.0"),
		decimal.RequireFromString("0.75"),
	)
}

// Clone returns a copy of the interest model.
func (m *InterestModel) Clone() *InterestModel {
	if m == nil {
		return nil
	}
	clone := *m
	return &clone
}

// Validate checks the curve is well formed.
func (m *InterestModel) Validate() error {
	if m == nil {
		return fmt.Errorf("interest model missing")
	}
	if m.BaseRate.IsNegative() || m.Slope1.IsNegative() || m.Slope2.IsNegative() {
		return fmt.Errorf("interest model rates must be non-negative")
	}
	if !m.Optimal.IsPositive() || m.Optimal.GreaterThanOrEqual(one) {
		return fmt.Errorf("optimal utilisation must be in (0,1), got %s", m.Optimal)
	}
	if m.ReserveFactor.IsNegative() || m.ReserveFactor.GreaterThan(one) {
		return fmt.Errorf("reserve factor must be in [0,1], got %s", m.ReserveFactor)
	}
	return nil
}

// Utilisation computes borrowed / deposited. When nothing is deposited the
// utilisation is defined as zero.
func (m *InterestModel) Utilisation(borrowed, deposited decimal.Decimal) decimal.Decimal {
	if !deposited.IsPositive() || !borrowed.IsPositive() {
		return decimal.Zero
	}
	return borrowed.Div(deposited)
}

// BorrowRate derives the borrow APR from the current utilisation.
func (m *InterestModel) BorrowRate(borrowed, deposited decimal.Decimal) decimal.Decimal {
	if m == nil {
		return decimal.Zero
	}
	if !deposited.IsPositive() {
		return m.BaseRate
	}
	u := m.Utilisation(borrowed, deposited)
	if u.LessThanOrEqual(m.Optimal) {
		// Linear region before the kink.
		return m.BaseRate.Add(u.Div(m.Optimal).Mul(m.Slope1))
	}
	excess := u.Sub(m.Optimal).Div(one.Sub(m.Optimal))
	return m.BaseRate.Add(m.Slope1).Add(excess.Mul(m.Slope2))
}

// SupplyRate is the APR earned by liquidity providers: the borrow rate scaled
// by utilisation, net of the reserve factor.
func (m *InterestModel) SupplyRate(borrowed, deposited decimal.Decimal) decimal.Decimal {
	if m == nil {
		return decimal.Zero
	}
	u := m.Utilisation(borrowed, deposited)
	if u.IsZero() {
		return decimal.Zero
	}
	rate := m.BorrowRate(borrowed, deposited).Mul(u)
	return rate.Mul(floorZero(one.Sub(m.ReserveFactor)))
}
