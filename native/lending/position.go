package lending

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"lendmarket/native/assets"
)

// CollateralEntry is one asset pledged by a borrower.
type CollateralEntry struct {
	Asset       assets.Symbol   `json:"asset"`
	Quantity    decimal.Decimal `json:"quantity"`
	DepositedAt time.Time       `json:"depositTime"`
}

// LoanEntry is the outstanding debt in one borrowed asset.
type LoanEntry struct {
	Asset           assets.Symbol   `json:"asset"`
	Principal       decimal.Decimal `json:"principal"`
	AccruedInterest decimal.Decimal `json:"accruedInterest"`
	BorrowedAt      time.Time       `json:"borrowTime"`
}

// Debt is principal plus accrued interest.
func (l LoanEntry) Debt() decimal.Decimal {
	return l.Principal.Add(l.AccruedInterest)
}

// RateSource resolves the current borrow APR of a pool.
type RateSource interface {
	Rate(asset assets.Symbol) (decimal.Decimal, bool)
}

// Position is a borrower's collateral and loan ledger. Entries keep insertion
// order and there is at most one entry per asset; zero-size entries are never
// stored.
//
// Interest accrues from a single checkpoint shared by every loan, so a loan
// opened after the last checkpoint still accrues from it on the next call.
type Position struct {
	User        string            `json:"user"`
	Collateral  []CollateralEntry `json:"collateral"`
	Loans       []LoanEntry       `json:"loans"`
	LastAccrual time.Time         `json:"lastAccrual"`

	dustPrincipal decimal.Decimal
}

// NewPosition creates an empty position checkpointed at now.
func NewPosition(user string, now time.Time) *Position {
	return &Position{
		User:          user,
		Collateral:    []CollateralEntry{},
		Loans:         []LoanEntry{},
		LastAccrual:   now,
		dustPrincipal: DefaultParams().DustPrincipal,
	}
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Collateral = append([]CollateralEntry{}, p.Collateral...)
	clone.Loans = append([]LoanEntry{}, p.Loans...)
	return &clone
}

func (p *Position) collateralIndex(asset assets.Symbol) int {
	for i := range p.Collateral {
		if p.Collateral[i].Asset == asset {
			return i
		}
	}
	return -1
}

func (p *Position) loanIndex(asset assets.Symbol) int {
	for i := range p.Loans {
		if p.Loans[i].Asset == asset {
			return i
		}
	}
	return -1
}

// AddCollateral merges qty into the entry for asset or appends a new one.
func (p *Position) AddCollateral(asset assets.Symbol, qty decimal.Decimal, now time.Time) {
	if i := p.collateralIndex(asset); i >= 0 {
		p.Collateral[i].Quantity = p.Collateral[i].Quantity.Add(qty)
		return
	}
	p.Collateral = append(p.Collateral, CollateralEntry{Asset: asset, Quantity: qty, DepositedAt: now})
}

// CollateralQuantity returns the pledged quantity of asset.
func (p *Position) CollateralQuantity(asset assets.Symbol) decimal.Decimal {
	if i := p.collateralIndex(asset); i >= 0 {
		return p.Collateral[i].Quantity
	}
	return decimal.Zero
}

// RemoveCollateral subtracts qty from the entry for asset, dropping the entry
// once nothing meaningful remains.
func (p *Position) RemoveCollateral(asset assets.Symbol, qty decimal.Decimal) error {
	i := p.collateralIndex(asset)
	if i < 0 {
		return fmt.Errorf("%w: no %s pledged", ErrInsufficientCollateral, asset)
	}
	if p.Collateral[i].Quantity.LessThan(qty) {
		return fmt.Errorf("%w: %s %s pledged", ErrInsufficientCollateral, p.Collateral[i].Quantity, asset)
	}
	remaining := p.Collateral[i].Quantity.Sub(qty)
	if remaining.LessThanOrEqual(collateralDust) {
		p.Collateral = append(p.Collateral[:i], p.Collateral[i+1:]...)
		return nil
	}
	p.Collateral[i].Quantity = remaining
	return nil
}

// AddLoan merges amount into the principal of the loan for asset or opens a
// new loan with no accrued interest.
func (p *Position) AddLoan(asset assets.Symbol, amount decimal.Decimal, now time.Time) {
	if i := p.loanIndex(asset); i >= 0 {
		p.Loans[i].Principal = p.Loans[i].Principal.Add(amount)
		return
	}
	p.Loans = append(p.Loans, LoanEntry{
		Asset:           asset,
		Principal:       amount,
		AccruedInterest: decimal.Zero,
		BorrowedAt:      now,
	})
}

// ReduceLoan applies a payment interest-first. The loan is closed once the
// principal is at or below the dust threshold; the principal forgiven by that
// close is returned so the pool can be credited with it.
func (p *Position) ReduceLoan(asset assets.Symbol, amount decimal.Decimal) (decimal.Decimal, error) {
	i := p.loanIndex(asset)
	if i < 0 {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoLoan, asset)
	}
	loan := &p.Loans[i]
	if amount.GreaterThanOrEqual(loan.AccruedInterest) {
		remaining := amount.Sub(loan.AccruedInterest)
		loan.AccruedInterest = decimal.Zero
		loan.Principal = loan.Principal.Sub(remaining)
	} else {
		loan.AccruedInterest = loan.AccruedInterest.Sub(amount)
	}
	if loan.Principal.GreaterThan(p.dustPrincipal) {
		return decimal.Zero, nil
	}
	writtenOff := floorZero(loan.Principal)
	p.Loans = append(p.Loans[:i], p.Loans[i+1:]...)
	return writtenOff, nil
}

// AccrueInterest adds simple interest for the time elapsed since the last
// checkpoint to every loan and advances the checkpoint to now. Calling it
// twice with the same now adds nothing the second time. Loans whose pool is
// unknown to rates accrue nothing.
func (p *Position) AccrueInterest(rates RateSource, now time.Time) {
	if !now.After(p.LastAccrual) {
		return
	}
	years := yearFraction(now.Sub(p.LastAccrual))
	for i := range p.Loans {
		rate, ok := rates.Rate(p.Loans[i].Asset)
		if !ok {
			continue
		}
		interest := p.Loans[i].Principal.Mul(rate).Mul(years)
		p.Loans[i].AccruedInterest = p.Loans[i].AccruedInterest.Add(interest)
	}
	p.LastAccrual = now
}

// TotalDebt is principal plus accrued interest for asset, or zero.
func (p *Position) TotalDebt(asset assets.Symbol) decimal.Decimal {
	if i := p.loanIndex(asset); i >= 0 {
		return p.Loans[i].Debt()
	}
	return decimal.Zero
}

// HasLoan reports whether a loan in asset is open.
func (p *Position) HasLoan(asset assets.Symbol) bool {
	return p.loanIndex(asset) >= 0
}

// HasLoans reports whether any loan is open.
func (p *Position) HasLoans() bool {
	return p != nil && len(p.Loans) > 0
}

// HasCollateral reports whether anything is pledged.
func (p *Position) HasCollateral() bool {
	return p != nil && len(p.Collateral) > 0
}
