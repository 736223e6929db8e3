package lending

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"lendmarket/native/assets"
)

// Pool is the liquidity ledger for one lendable asset. All mutations are
// serialised so borrowed never exceeds deposited.
type Pool struct {
	mu        sync.RWMutex
	asset     assets.Symbol
	model     *InterestModel
	deposited decimal.Decimal
	borrowed  decimal.Decimal
	rate      decimal.Decimal
}

// PoolSnapshot is a point-in-time copy of a pool's accounting.
type PoolSnapshot struct {
	Asset              assets.Symbol   `json:"asset"`
	TotalDeposited     decimal.Decimal `json:"totalDeposited"`
	TotalBorrowed      decimal.Decimal `json:"totalBorrowed"`
	AvailableLiquidity decimal.Decimal `json:"availableLiquidity"`
	Utilisation        decimal.Decimal `json:"utilization"`
	BorrowRate         decimal.Decimal `json:"interestRate"`
	SupplyRate         decimal.Decimal `json:"supplyRate"`
}

// NewPool creates an empty pool priced by model.
func NewPool(asset assets.Symbol, model *InterestModel) *Pool {
	p := &Pool{asset: asset, model: model.Clone()}
	p.updateRateLocked()
	return p
}

// Asset returns the pool's asset.
func (p *Pool) Asset() assets.Symbol { return p.asset }

// Deposit adds liquidity. Amounts are validated by the caller.
func (p *Pool) Deposit(amount decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deposited = p.deposited.Add(amount)
	p.updateRateLocked()
}

// Borrow draws amount from available liquidity.
func (p *Pool) Borrow(amount decimal.Decimal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	available := p.deposited.Sub(p.borrowed)
	if available.LessThan(amount) {
		return fmt.Errorf("%w: %s available in %s pool", ErrInsufficientLiquidity, available, p.asset)
	}
	p.borrowed = p.borrowed.Add(amount)
	p.updateRateLocked()
	return nil
}

// Repay returns amount to the pool. Outstanding borrows never drop below zero.
func (p *Pool) Repay(amount decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.borrowed = floorZero(p.borrowed.Sub(amount))
	p.updateRateLocked()
}

// AvailableLiquidity is deposited minus borrowed.
func (p *Pool) AvailableLiquidity() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.deposited.Sub(p.borrowed)
}

// Utilisation is borrowed / deposited, or zero for an empty pool.
func (p *Pool) Utilisation() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model.Utilisation(p.borrowed, p.deposited)
}

// Rate is the current borrow APR.
func (p *Pool) Rate() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rate
}

// Snapshot copies the pool's current figures.
func (p *Pool) Snapshot() PoolSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return PoolSnapshot{
		Asset:              p.asset,
		TotalDeposited:     p.deposited,
		TotalBorrowed:      p.borrowed,
		AvailableLiquidity: p.deposited.Sub(p.borrowed),
		Utilisation:        p.model.Utilisation(p.borrowed, p.deposited),
		BorrowRate:         p.rate,
		SupplyRate:         p.model.SupplyRate(p.borrowed, p.deposited),
	}
}

func (p *Pool) updateRateLocked() {
	p.rate = p.model.BorrowRate(p.borrowed, p.deposited)
}
