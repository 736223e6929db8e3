package lending

import (
	"time"

	"github.com/shopspring/decimal"
)

const daysPerYear = 365

var (
	one = decimal.NewFromInt(1)

	nanosPerYear = decimal.NewFromInt(int64(daysPerYear * 24 * time.Hour))

	// collateralDust is the quantity at or below which a collateral entry is
	// dropped. Fractional seizure can leave division residue behind.
	collateralDust = decimal.New(1, -12)
)

// yearFraction converts a duration into fractional 365-day years. Negative
// durations yield zero.
func yearFraction(elapsed time.Duration) decimal.Decimal {
	if elapsed <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(elapsed.Nanoseconds()).Div(nanosPerYear)
}

func floorZero(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

const (
	// maxAmountScale is the number of fractional digits an amount may carry.
	// Accrued interest reaches about 33 places, and debts reported back to
	// clients must be repayable verbatim.
	maxAmountScale = 40
	// maxAmountIntegerDigits bounds amounts below 10^30.
	maxAmountIntegerDigits = 30
)

// withinBounds rejects decimals whose coefficient or exponent would make
// later arithmetic on them unbounded.
func withinBounds(v decimal.Decimal) bool {
	exp := int64(v.Exponent())
	if exp < -maxAmountScale || v.Coefficient().BitLen() > 256 {
		return false
	}
	return int64(v.NumDigits())+exp <= maxAmountIntegerDigits
}
