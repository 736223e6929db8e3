package lending

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lendmarket/core/events"
	"lendmarket/native/assets"
	nativecommon "lendmarket/native/common"
)

// Registry is the asset catalog consumed by the protocol.
type Registry interface {
	AssetCatalog
	Known(symbol assets.Symbol) bool
	IsBorrowable(symbol assets.Symbol) bool
	IsCollateralizable(symbol assets.Symbol) bool
}

// PriceSource is the price store consumed by the protocol.
type PriceSource interface {
	PriceFeed
	UpdateAt(symbol assets.Symbol, price decimal.Decimal, currency string, at time.Time)
}

type positionSlot struct {
	mu  sync.Mutex
	pos *Position
}

// Protocol owns every pool and position and sequences the lending flows.
//
// Each position is guarded by its own mutex for the whole of an operation and
// each pool serialises its own mutations; locks are always taken position
// first, pool second.
type Protocol struct {
	registry Registry
	prices   PriceSource
	risk     *RiskEngine
	params   Params
	now      func() time.Time
	emitter  events.Emitter
	pauses   nativecommon.PauseView

	pools map[assets.Symbol]*Pool

	mu        sync.RWMutex
	positions map[string]*positionSlot
}

// Option customises a Protocol.
type Option func(*Protocol)

// WithClock injects the time source used for accrual and timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Protocol) {
		if now != nil {
			p.now = now
		}
	}
}

// WithEmitter wires an event sink.
func WithEmitter(emitter events.Emitter) Option {
	return func(p *Protocol) {
		if emitter != nil {
			p.emitter = emitter
		}
	}
}

// WithPauses replaces the pause switches seeded from Config.Pauses.
func WithPauses(pauses nativecommon.PauseView) Option {
	return func(p *Protocol) { p.pauses = pauses }
}

// New builds a protocol with one pool per configured asset. Every pool asset
// must be listed as borrowable in the registry.
func New(cfg Config, registry Registry, prices PriceSource, opts ...Option) (*Protocol, error) {
	if registry == nil || prices == nil {
		return nil, fmt.Errorf("lending: registry and price source required")
	}
	cfg.EnsureDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("lending: invalid config: %w", err)
	}
	params := cfg.Params()
	p := &Protocol{
		registry:  registry,
		prices:    prices,
		risk:      NewRiskEngine(registry, prices, params),
		params:    params,
		now:       time.Now,
		emitter:   events.NoopEmitter{},
		pauses:    cfg.Pauses.Switchboard(),
		pools:     make(map[assets.Symbol]*Pool, len(cfg.Pools)),
		positions: make(map[string]*positionSlot),
	}
	for _, pc := range cfg.Pools {
		symbol := assets.NewSymbol(pc.Asset)
		if !registry.IsBorrowable(symbol) {
			return nil, fmt.Errorf("%w: pool %s is not a borrowable asset", ErrAssetNotConfigured, symbol)
		}
		p.pools[symbol] = NewPool(symbol, pc.Model())
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Risk exposes the protocol's risk engine.
func (p *Protocol) Risk() *RiskEngine { return p.risk }

// Rate implements RateSource over the protocol's pools.
func (p *Protocol) Rate(asset assets.Symbol) (decimal.Decimal, bool) {
	pool, ok := p.pools[asset]
	if !ok {
		return decimal.Zero, false
	}
	return pool.Rate(), true
}

func (p *Protocol) guard(action string) error {
	return nativecommon.Guard(p.pauses, moduleName, action)
}

func requirePositive(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: got %s", ErrInvalidAmount, amount)
	}
	if !withinBounds(amount) {
		return fmt.Errorf("%w: at most %d integer and %d fractional digits",
			ErrInvalidAmount, maxAmountIntegerDigits, maxAmountScale)
	}
	return nil
}

func (p *Protocol) pool(asset assets.Symbol) (*Pool, error) {
	pool, ok := p.pools[asset]
	if !ok {
		return nil, fmt.Errorf("%w: no pool for %s", ErrAssetNotConfigured, asset)
	}
	return pool, nil
}

func (p *Protocol) slot(user string) *positionSlot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.positions[user]
}

func (p *Protocol) ensureSlot(user string) *positionSlot {
	p.mu.Lock()
	defer p.mu.Unlock()
	slot, ok := p.positions[user]
	if !ok {
		pos := NewPosition(user, p.now())
		pos.dustPrincipal = p.params.DustPrincipal
		slot = &positionSlot{pos: pos}
		p.positions[user] = slot
	}
	return slot
}

func (p *Protocol) emit(e events.Event) {
	if p.emitter != nil {
		p.emitter.Emit(e)
	}
}

// DepositToPool adds provider liquidity to the pool of asset.
func (p *Protocol) DepositToPool(provider string, asset assets.Symbol, amount decimal.Decimal) (DepositResult, error) {
	if err := p.guard(actionDeposit); err != nil {
		return DepositResult{}, err
	}
	if err := requirePositive(amount); err != nil {
		return DepositResult{}, err
	}
	if !p.registry.IsBorrowable(asset) {
		return DepositResult{}, fmt.Errorf("%w: %s", ErrAssetNotLendable, asset)
	}
	pool, err := p.pool(asset)
	if err != nil {
		return DepositResult{}, err
	}
	pool.Deposit(amount)
	p.emit(events.PoolDeposit{Provider: provider, Asset: asset.String(), Amount: amount})
	return DepositResult{Pool: pool.Snapshot()}, nil
}

// DepositCollateral pledges qty of asset for user, opening the position on
// first use.
func (p *Protocol) DepositCollateral(user string, asset assets.Symbol, qty decimal.Decimal) (CollateralResult, error) {
	if err := p.guard(actionDeposit); err != nil {
		return CollateralResult{}, err
	}
	if err := requirePositive(qty); err != nil {
		return CollateralResult{}, err
	}
	if !p.registry.IsCollateralizable(asset) {
		return CollateralResult{}, fmt.Errorf("%w: %s", ErrAssetNotCollateralizable, asset)
	}
	if _, err := p.risk.haircut(asset); err != nil {
		return CollateralResult{}, err
	}

	slot := p.ensureSlot(user)
	slot.mu.Lock()
	defer slot.mu.Unlock()

	slot.pos.AddCollateral(asset, qty, p.now())
	power, err := p.risk.BorrowingPower(slot.pos)
	if err != nil {
		return CollateralResult{}, err
	}
	p.emit(events.CollateralMoved{User: user, Asset: asset.String(), Quantity: qty})
	return CollateralResult{BorrowingPower: power}, nil
}

// WithdrawCollateral releases qty of asset back to user provided the
// remaining collateral still covers outstanding loans.
func (p *Protocol) WithdrawCollateral(user string, asset assets.Symbol, qty decimal.Decimal) (CollateralResult, error) {
	if err := p.guard(actionWithdraw); err != nil {
		return CollateralResult{}, err
	}
	if err := requirePositive(qty); err != nil {
		return CollateralResult{}, err
	}
	slot := p.slot(user)
	if slot == nil {
		return CollateralResult{}, fmt.Errorf("%w: %s", ErrPositionNotFound, user)
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()

	pos := slot.pos
	pos.AccrueInterest(p, p.now())

	prospective := pos.Clone()
	if err := prospective.RemoveCollateral(asset, qty); err != nil {
		return CollateralResult{}, err
	}
	if prospective.HasLoans() {
		power, err := p.risk.BorrowingPower(prospective)
		if err != nil {
			return CollateralResult{}, err
		}
		if p.risk.LoanValue(prospective).GreaterThan(power.MaxBorrow) {
			return CollateralResult{}, fmt.Errorf("%w: withdrawal would leave loans undercollateralised", ErrInsufficientCollateral)
		}
	}
	if err := pos.RemoveCollateral(asset, qty); err != nil {
		return CollateralResult{}, err
	}
	power, err := p.risk.BorrowingPower(pos)
	if err != nil {
		return CollateralResult{}, err
	}
	p.emit(events.CollateralMoved{User: user, Asset: asset.String(), Quantity: qty, Withdrawn: true})
	return CollateralResult{BorrowingPower: power}, nil
}

// Borrow draws amount of asset from its pool against user's collateral.
//
// The gate divides total collateral by the over-collateralisation factor
// even though BorrowingPower already applies the same factor to MaxBorrow;
// both views are kept and compared against the same figure.
func (p *Protocol) Borrow(user string, asset assets.Symbol, amount decimal.Decimal) (BorrowResult, error) {
	if err := p.guard(actionBorrow); err != nil {
		return BorrowResult{}, err
	}
	if err := requirePositive(amount); err != nil {
		return BorrowResult{}, err
	}
	if amount.LessThanOrEqual(p.params.DustPrincipal) {
		return BorrowResult{}, fmt.Errorf("%w: borrow must exceed %s", ErrInvalidAmount, p.params.DustPrincipal)
	}
	if !p.registry.IsBorrowable(asset) {
		return BorrowResult{}, fmt.Errorf("%w: %s", ErrAssetNotLendable, asset)
	}
	pool, err := p.pool(asset)
	if err != nil {
		return BorrowResult{}, err
	}

	slot := p.slot(user)
	if slot == nil {
		return BorrowResult{}, ErrNoCollateral
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()

	pos := slot.pos
	if !pos.HasCollateral() {
		return BorrowResult{}, ErrNoCollateral
	}
	now := p.now()
	pos.AccrueInterest(p, now)

	power, err := p.risk.BorrowingPower(pos)
	if err != nil {
		return BorrowResult{}, err
	}
	borrowValue := p.risk.ValueInCommonUnit(asset, amount)
	if borrowValue.IsZero() {
		return BorrowResult{}, fmt.Errorf("%w: no price for %s", ErrAssetNotConfigured, asset)
	}
	newLoanValue := p.risk.LoanValue(pos).Add(borrowValue)
	if newLoanValue.GreaterThan(power.TotalCollateral.Div(p.params.OverCollateralization)) {
		return BorrowResult{}, fmt.Errorf("%w: borrow of %s %s exceeds borrowing power %s",
			ErrInsufficientCollateral, amount, asset, power.MaxBorrow.StringFixed(2))
	}
	if err := pool.Borrow(amount); err != nil {
		return BorrowResult{}, err
	}
	pos.AddLoan(asset, amount, now)

	health, err := p.risk.HealthFactor(pos)
	if err != nil {
		return BorrowResult{}, err
	}
	rate := pool.Rate()
	p.emit(events.Borrowed{User: user, Asset: asset.String(), Amount: amount, HealthFactor: health.Factor, PoolRate: rate})
	return BorrowResult{HealthFactor: health, InterestRate: rate}, nil
}

// Repay applies amount against user's debt in asset, interest first.
func (p *Protocol) Repay(user string, asset assets.Symbol, amount decimal.Decimal) (RepayResult, error) {
	if err := p.guard(actionRepay); err != nil {
		return RepayResult{}, err
	}
	if err := requirePositive(amount); err != nil {
		return RepayResult{}, err
	}
	slot := p.slot(user)
	if slot == nil {
		return RepayResult{}, fmt.Errorf("%w: %s", ErrPositionNotFound, user)
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()

	pos := slot.pos
	pos.AccrueInterest(p, p.now())

	debt := pos.TotalDebt(asset)
	if amount.GreaterThan(debt) {
		return RepayResult{}, fmt.Errorf("%w: total owed %s", ErrExceedsDebt, debt.StringFixed(2))
	}
	pool, err := p.pool(asset)
	if err != nil {
		return RepayResult{}, err
	}
	writtenOff, err := pos.ReduceLoan(asset, amount)
	if err != nil {
		return RepayResult{}, err
	}
	pool.Repay(amount.Add(writtenOff))
	remaining := pos.TotalDebt(asset)
	p.emit(events.Repaid{User: user, Asset: asset.String(), Amount: amount, RemainingDebt: remaining})
	return RepayResult{RemainingDebt: remaining}, nil
}

// Liquidate lets liquidator repay repayAmount of user's repayAsset debt in
// exchange for collateral worth the repaid value plus the bonus.
//
// Collateral is seized in pledge order: whole entries while they fit the
// remaining budget, then a fraction of the entry that straddles it. When the
// collateral runs out first the liquidator receives less than entitled and
// the gap is reported as Shortfall.
func (p *Protocol) Liquidate(user, liquidator string, repayAsset assets.Symbol, repayAmount decimal.Decimal) (LiquidationResult, error) {
	if err := p.guard(actionLiquidate); err != nil {
		return LiquidationResult{}, err
	}
	if err := requirePositive(repayAmount); err != nil {
		return LiquidationResult{}, err
	}
	slot := p.slot(user)
	if slot == nil {
		return LiquidationResult{}, ErrPositionHealthy
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()

	pos := slot.pos
	liquidatable, err := p.risk.CanLiquidate(pos)
	if err != nil {
		return LiquidationResult{}, err
	}
	if !liquidatable {
		return LiquidationResult{}, ErrPositionHealthy
	}
	pos.AccrueInterest(p, p.now())

	if !pos.HasLoan(repayAsset) {
		return LiquidationResult{}, fmt.Errorf("%w: %s", ErrNoLoan, repayAsset)
	}
	if debt := pos.TotalDebt(repayAsset); repayAmount.GreaterThan(debt) {
		return LiquidationResult{}, fmt.Errorf("%w: total owed %s", ErrExceedsDebt, debt.StringFixed(2))
	}
	pool, err := p.pool(repayAsset)
	if err != nil {
		return LiquidationResult{}, err
	}
	repayValue := p.risk.ValueInCommonUnit(repayAsset, repayAmount)
	if repayValue.IsZero() {
		return LiquidationResult{}, fmt.Errorf("%w: no price for %s", ErrAssetNotConfigured, repayAsset)
	}
	entitled := p.risk.LiquidationSeizeValue(repayValue)

	seized, seizedValue := p.seize(pos, entitled)

	writtenOff, err := pos.ReduceLoan(repayAsset, repayAmount)
	if err != nil {
		return LiquidationResult{}, err
	}
	pool.Repay(repayAmount.Add(writtenOff))

	result := LiquidationResult{
		ID:          uuid.NewString(),
		Seized:      seized,
		RepayValue:  repayValue,
		Entitled:    entitled,
		SeizedValue: seizedValue,
		Bonus:       floorZero(seizedValue.Sub(repayValue)),
		Shortfall:   floorZero(entitled.Sub(seizedValue)),
	}
	p.emit(events.Liquidated{
		ID:          result.ID,
		User:        user,
		Liquidator:  liquidator,
		RepayAsset:  repayAsset.String(),
		RepayAmount: repayAmount,
		SeizedValue: seizedValue,
		Bonus:       result.Bonus,
		Shortfall:   result.Shortfall,
	})
	return result, nil
}

// seize removes collateral worth up to budget from pos. Collateral without a
// price is skipped rather than handed over for nothing.
func (p *Protocol) seize(pos *Position, budget decimal.Decimal) ([]SeizedCollateral, decimal.Decimal) {
	seized := []SeizedCollateral{}
	total := decimal.Zero
	remaining := budget
	for _, col := range append([]CollateralEntry(nil), pos.Collateral...) {
		if !remaining.IsPositive() {
			break
		}
		price := p.prices.PriceInCommonUnit(col.Asset)
		if !price.IsPositive() {
			continue
		}
		value := col.Quantity.Mul(price)
		qty := col.Quantity
		if value.GreaterThan(remaining) {
			qty = decimal.Min(remaining.Div(price), col.Quantity)
			value = remaining
		}
		if err := pos.RemoveCollateral(col.Asset, qty); err != nil {
			continue
		}
		seized = append(seized, SeizedCollateral{Asset: col.Asset, Quantity: qty, Value: value})
		total = total.Add(value)
		remaining = remaining.Sub(value)
	}
	return seized, total
}

// UpdatePrice records a new quote and reports every position that is now
// liquidatable.
func (p *Protocol) UpdatePrice(asset assets.Symbol, price decimal.Decimal, currency string) (PriceUpdateResult, error) {
	return p.UpdatePriceAt(asset, price, currency, time.Time{})
}

// UpdatePriceAt is UpdatePrice for a quote observed upstream at the given
// time. A zero time stamps the quote on arrival.
func (p *Protocol) UpdatePriceAt(asset assets.Symbol, price decimal.Decimal, currency string, at time.Time) (PriceUpdateResult, error) {
	if err := requirePositive(price); err != nil {
		return PriceUpdateResult{}, err
	}
	if !p.registry.Known(asset) {
		return PriceUpdateResult{}, fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	p.prices.UpdateAt(asset, price, currency, at)
	p.emit(events.PriceUpdated{Asset: asset.String(), Price: price, Currency: currency})

	opportunities, err := p.LiquidationOpportunities()
	if err != nil {
		return PriceUpdateResult{}, err
	}
	for _, opp := range opportunities {
		p.emit(events.LiquidationOpportunity{User: opp.User, HealthFactor: opp.HealthFactor.Factor, Trigger: asset.String()})
	}
	return PriceUpdateResult{Opportunities: opportunities}, nil
}

// LiquidationOpportunities scans every position with open loans and returns
// the liquidatable ones ordered by user.
func (p *Protocol) LiquidationOpportunities() ([]LiquidationOpportunity, error) {
	p.mu.RLock()
	users := make([]string, 0, len(p.positions))
	for user := range p.positions {
		users = append(users, user)
	}
	p.mu.RUnlock()
	sort.Strings(users)

	out := []LiquidationOpportunity{}
	for _, user := range users {
		slot := p.slot(user)
		if slot == nil {
			continue
		}
		slot.mu.Lock()
		opp, ok, err := p.opportunity(slot.pos)
		slot.mu.Unlock()
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, opp)
		}
	}
	return out, nil
}

func (p *Protocol) opportunity(pos *Position) (LiquidationOpportunity, bool, error) {
	if !pos.HasLoans() {
		return LiquidationOpportunity{}, false, nil
	}
	health, err := p.risk.HealthFactor(pos)
	if err != nil {
		return LiquidationOpportunity{}, false, err
	}
	if !health.Below(p.params.LiquidationThreshold) {
		return LiquidationOpportunity{}, false, nil
	}
	return LiquidationOpportunity{User: pos.User, HealthFactor: health}, true, nil
}

// GetPosition accrues interest and returns user's position with current risk
// figures.
func (p *Protocol) GetPosition(user string) (PositionSnapshot, error) {
	slot := p.slot(user)
	if slot == nil {
		return PositionSnapshot{}, fmt.Errorf("%w: %s", ErrPositionNotFound, user)
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()

	pos := slot.pos
	pos.AccrueInterest(p, p.now())

	power, err := p.risk.BorrowingPower(pos)
	if err != nil {
		return PositionSnapshot{}, err
	}
	health, err := p.risk.HealthFactor(pos)
	if err != nil {
		return PositionSnapshot{}, err
	}
	clone := pos.Clone()
	return PositionSnapshot{
		User:            clone.User,
		Collateral:      clone.Collateral,
		Loans:           clone.Loans,
		LastAccrual:     clone.LastAccrual,
		CollateralValue: power.TotalCollateral,
		LoanValue:       p.risk.LoanValue(pos),
		HealthFactor:    health,
		BorrowingPower:  power,
	}, nil
}

// GetPool returns a snapshot of the pool for asset.
func (p *Protocol) GetPool(asset assets.Symbol) (PoolSnapshot, error) {
	pool, ok := p.pools[asset]
	if !ok {
		return PoolSnapshot{}, fmt.Errorf("%w: %s", ErrPoolNotFound, asset)
	}
	return pool.Snapshot(), nil
}

// ListPools returns every pool ordered by asset.
func (p *Protocol) ListPools() []PoolSnapshot {
	out := make([]PoolSnapshot, 0, len(p.pools))
	for _, pool := range p.pools {
		out = append(out, pool.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}
