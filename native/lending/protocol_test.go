package lending

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendmarket/core/events"
	"lendmarket/native/assets"
	nativecommon "lendmarket/native/common"
	"lendmarket/native/oracle"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	proto    *Protocol
	prices   *oracle.Source
	recorder *events.Recorder
	clock    *testClock
}

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		prices:   oracle.DefaultSource(),
		recorder: &events.Recorder{},
		clock:    &testClock{now: epoch},
	}
	opts = append([]Option{WithClock(h.clock.Now), WithEmitter(h.recorder)}, opts...)
	proto, err := New(cfg, assets.DefaultRegistry(), h.prices, opts...)
	require.NoError(t, err)
	h.proto = proto
	return h
}

// fund seeds both pools and pledges 10 AAPL for user.
func (h *harness) fund(t *testing.T, user string) {
	t.Helper()
	_, err := h.proto.DepositToPool("lp", "USD", dec("2000"))
	require.NoError(t, err)
	_, err = h.proto.DepositToPool("lp", "NGN", dec("1000000"))
	require.NoError(t, err)
	_, err = h.proto.DepositCollateral(user, "AAPL", dec("10"))
	require.NoError(t, err)
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pools = append(cfg.Pools, PoolConfig{Asset: "AAPL", BaseRate: dec("0.1")})
	_, err := New(cfg, assets.DefaultRegistry(), oracle.DefaultSource())
	require.ErrorIs(t, err, ErrAssetNotConfigured)

	cfg = DefaultConfig()
	cfg.LiquidationBonus = decimal.NewNullDecimal(dec("1.5"))
	_, err = New(cfg, assets.DefaultRegistry(), oracle.DefaultSource())
	require.Error(t, err)

	_, err = New(DefaultConfig(), nil, oracle.DefaultSource())
	require.Error(t, err)
}

func TestDepositToPool(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	res, err := h.proto.DepositToPool("lp", "NGN", dec("1000000"))
	require.NoError(t, err)
	assert.True(t, res.Pool.TotalDeposited.Equal(dec("1000000")))
	assert.True(t, res.Pool.BorrowRate.Equal(dec("0.18")))

	_, err = h.proto.DepositToPool("lp", "NGN", dec("0"))
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = h.proto.DepositToPool("lp", "AAPL", dec("5"))
	require.ErrorIs(t, err, ErrAssetNotLendable)

	deposits := h.recorder.OfType(events.TypeLendingPoolDeposit)
	require.Len(t, deposits, 1)
	assert.Equal(t, "lp", deposits[0].(events.PoolDeposit).Provider)
}

func TestDepositCollateralReportsBorrowingPower(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	res, err := h.proto.DepositCollateral("alice", "AAPL", dec("10"))
	require.NoError(t, err)
	assert.True(t, res.BorrowingPower.TotalCollateral.Equal(dec("1572.5")))
	assert.Equal(t, "1209.6", res.BorrowingPower.MaxBorrow.StringFixed(1))

	_, err = h.proto.DepositCollateral("alice", "DOGE", dec("10"))
	require.ErrorIs(t, err, ErrAssetNotCollateralizable)
	_, err = h.proto.DepositCollateral("alice", "AAPL", dec("-1"))
	require.ErrorIs(t, err, ErrInvalidAmount)

	snap, err := h.proto.GetPosition("alice")
	require.NoError(t, err)
	require.Len(t, snap.Collateral, 1)
	assert.True(t, snap.HealthFactor.Unbounded)
}

func TestBorrowGates(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	_, err := h.proto.Borrow("nobody", "USD", dec("1"))
	require.ErrorIs(t, err, ErrNoCollateral)

	h.fund(t, "alice")

	_, err = h.proto.Borrow("alice", "AAPL", dec("1"))
	require.ErrorIs(t, err, ErrAssetNotLendable)
	_, err = h.proto.Borrow("alice", "USD", dec("1300"))
	require.ErrorIs(t, err, ErrInsufficientCollateral)

	res, err := h.proto.Borrow("alice", "USD", dec("1000"))
	require.NoError(t, err)
	assert.Equal(t, "1.573", res.HealthFactor.String())
	assert.Equal(t, "0.1167", res.InterestRate.StringFixed(4))

	_, err = h.proto.Borrow("alice", "USD", dec("300"))
	require.ErrorIs(t, err, ErrInsufficientCollateral)

	// 300000 NGN is worth about 181.82 USD, which still fits.
	_, err = h.proto.Borrow("alice", "NGN", dec("300000"))
	require.NoError(t, err)

	pool, err := h.proto.GetPool("USD")
	require.NoError(t, err)
	assert.True(t, pool.TotalBorrowed.Equal(dec("1000")))
	assert.Len(t, h.recorder.OfType(events.TypeLendingBorrowed), 2)
}

func TestBorrowRejectsWhenPoolDry(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	_, err := h.proto.DepositToPool("lp", "USD", dec("500"))
	require.NoError(t, err)
	_, err = h.proto.DepositCollateral("alice", "AAPL", dec("10"))
	require.NoError(t, err)

	_, err = h.proto.Borrow("alice", "USD", dec("600"))
	require.ErrorIs(t, err, ErrInsufficientLiquidity)

	snap, err := h.proto.GetPosition("alice")
	require.NoError(t, err)
	assert.Empty(t, snap.Loans)
}

func TestRepayAppliesInterestFirst(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.fund(t, "alice")

	_, err := h.proto.Borrow("alice", "USD", dec("1000"))
	require.NoError(t, err)

	h.clock.Advance(365 * 24 * time.Hour)

	res, err := h.proto.Repay("alice", "USD", dec("100"))
	require.NoError(t, err)
	assert.Equal(t, "1016.67", res.RemainingDebt.StringFixed(2))

	snap, err := h.proto.GetPosition("alice")
	require.NoError(t, err)
	require.Len(t, snap.Loans, 1)
	assert.True(t, snap.Loans[0].Principal.Equal(dec("1000")))
	assert.Equal(t, "16.67", snap.Loans[0].AccruedInterest.StringFixed(2))

	_, err = h.proto.Repay("alice", "USD", dec("2000"))
	require.ErrorIs(t, err, ErrExceedsDebt)
	_, err = h.proto.Repay("alice", "NGN", dec("1"))
	require.ErrorIs(t, err, ErrExceedsDebt)
	_, err = h.proto.Repay("bob", "USD", dec("1"))
	require.ErrorIs(t, err, ErrPositionNotFound)

	res, err = h.proto.Repay("alice", "USD", res.RemainingDebt)
	require.NoError(t, err)
	assert.True(t, res.RemainingDebt.IsZero())

	snap, err = h.proto.GetPosition("alice")
	require.NoError(t, err)
	assert.Empty(t, snap.Loans)
	assert.True(t, snap.HealthFactor.Unbounded)

	pool, err := h.proto.GetPool("USD")
	require.NoError(t, err)
	assert.True(t, pool.TotalBorrowed.IsZero())
}

func TestLiquidation(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.fund(t, "alice")
	_, err := h.proto.Borrow("alice", "USD", dec("1000"))
	require.NoError(t, err)

	_, err = h.proto.Liquidate("alice", "bob", "USD", dec("1000"))
	require.ErrorIs(t, err, ErrPositionHealthy)

	update, err := h.proto.UpdatePrice("AAPL", dec("130"), "USD")
	require.NoError(t, err)
	require.Len(t, update.Opportunities, 1)
	assert.Equal(t, "alice", update.Opportunities[0].User)
	assert.Equal(t, "1.105", update.Opportunities[0].HealthFactor.String())
	assert.Len(t, h.recorder.OfType(events.TypeLendingLiquidationOpportunity), 1)

	_, err = h.proto.Liquidate("alice", "bob", "NGN", dec("10"))
	require.ErrorIs(t, err, ErrNoLoan)
	_, err = h.proto.Liquidate("alice", "bob", "USD", dec("1001"))
	require.ErrorIs(t, err, ErrExceedsDebt)

	res, err := h.proto.Liquidate("alice", "bob", "USD", dec("1000"))
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
	assert.True(t, res.Entitled.Equal(dec("1050")))
	assert.True(t, res.SeizedValue.Equal(dec("1050")))
	assert.True(t, res.Bonus.Equal(dec("50")))
	assert.True(t, res.Shortfall.IsZero())
	require.Len(t, res.Seized, 1)
	assert.Equal(t, "8.076923", res.Seized[0].Quantity.StringFixed(6))

	snap, err := h.proto.GetPosition("alice")
	require.NoError(t, err)
	assert.Empty(t, snap.Loans)
	require.Len(t, snap.Collateral, 1)
	assert.Equal(t, "1.923077", snap.Collateral[0].Quantity.StringFixed(6))

	pool, err := h.proto.GetPool("USD")
	require.NoError(t, err)
	assert.True(t, pool.TotalBorrowed.IsZero())

	liquidations := h.recorder.OfType(events.TypeLendingLiquidated)
	require.Len(t, liquidations, 1)
	assert.Equal(t, res.ID, liquidations[0].(events.Liquidated).ID)
	assert.Equal(t, "bob", liquidations[0].(events.Liquidated).Liquidator)
}

func TestLiquidationShortfall(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.fund(t, "alice")
	_, err := h.proto.Borrow("alice", "USD", dec("1000"))
	require.NoError(t, err)

	_, err = h.proto.UpdatePrice("AAPL", dec("50"), "USD")
	require.NoError(t, err)

	res, err := h.proto.Liquidate("alice", "bob", "USD", dec("1000"))
	require.NoError(t, err)
	assert.True(t, res.SeizedValue.Equal(dec("500")))
	assert.True(t, res.Shortfall.Equal(dec("550")))
	assert.True(t, res.Bonus.IsZero())

	snap, err := h.proto.GetPosition("alice")
	require.NoError(t, err)
	assert.Empty(t, snap.Collateral)
}

func TestWithdrawCollateral(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	_, err := h.proto.WithdrawCollateral("alice", "AAPL", dec("1"))
	require.ErrorIs(t, err, ErrPositionNotFound)

	h.fund(t, "alice")
	_, err = h.proto.Borrow("alice", "USD", dec("1000"))
	require.NoError(t, err)

	_, err = h.proto.WithdrawCollateral("alice", "AAPL", dec("5"))
	require.ErrorIs(t, err, ErrInsufficientCollateral)
	_, err = h.proto.WithdrawCollateral("alice", "AAPL", dec("11"))
	require.ErrorIs(t, err, ErrInsufficientCollateral)

	snap, err := h.proto.GetPosition("alice")
	require.NoError(t, err)
	assert.True(t, snap.Collateral[0].Quantity.Equal(dec("10")))

	_, err = h.proto.Repay("alice", "USD", dec("1000"))
	require.NoError(t, err)
	res, err := h.proto.WithdrawCollateral("alice", "AAPL", dec("10"))
	require.NoError(t, err)
	assert.True(t, res.BorrowingPower.TotalCollateral.IsZero())
	assert.Len(t, h.recorder.OfType(events.TypeLendingCollateralWithdrawn), 1)
}

func TestPausedActionsAreRejected(t *testing.T) {
	board := nativecommon.NewSwitchboard()
	board.Set(ModuleName(), "borrow", true)
	h := newHarness(t, DefaultConfig(), WithPauses(board))
	h.fund(t, "alice")

	_, err := h.proto.Borrow("alice", "USD", dec("10"))
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)

	board.Set(ModuleName(), "", true)
	_, err = h.proto.DepositToPool("lp", "USD", dec("1"))
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)

	cfg := DefaultConfig()
	cfg.Pauses.Repay = true
	h = newHarness(t, cfg)
	_, err = h.proto.Repay("alice", "USD", dec("1"))
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)
}

func TestAmountsOutOfRangeAreRejected(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	for _, raw := range []string{"1e30000000", "1e-30000000", "1000000000000000000000000000000", "1e-41"} {
		_, err := h.proto.DepositToPool("lp", "USD", dec(raw))
		require.ErrorIs(t, err, ErrInvalidAmount, raw)
	}
	_, err := h.proto.UpdatePrice("AAPL", dec("1e400"), "USD")
	require.ErrorIs(t, err, ErrInvalidAmount)

	pool, err := h.proto.GetPool("USD")
	require.NoError(t, err)
	assert.True(t, pool.TotalDeposited.IsZero())

	_, err = h.proto.DepositToPool("lp", "USD", dec("999999999999999999999999999999.000000000000000001"))
	require.NoError(t, err)
}

func TestDustBorrowsAndRepaysKeepPoolInStep(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.fund(t, "alice")
	_, err := h.proto.DepositCollateral("bob", "AAPL", dec("10"))
	require.NoError(t, err)

	_, err = h.proto.Borrow("alice", "USD", dec("0.005"))
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = h.proto.Borrow("alice", "USD", dec("0.01"))
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = h.proto.Borrow("alice", "USD", dec("1"))
	require.NoError(t, err)
	_, err = h.proto.Borrow("bob", "USD", dec("5"))
	require.NoError(t, err)

	// Leaves 0.005 of principal, which is closed as dust.
	res, err := h.proto.Repay("alice", "USD", dec("0.995"))
	require.NoError(t, err)
	assert.True(t, res.RemainingDebt.IsZero())

	outstanding := decimal.Zero
	for _, user := range []string{"alice", "bob"} {
		snap, err := h.proto.GetPosition(user)
		require.NoError(t, err)
		for _, loan := range snap.Loans {
			outstanding = outstanding.Add(loan.Principal)
		}
	}
	pool, err := h.proto.GetPool("USD")
	require.NoError(t, err)
	assert.True(t, pool.TotalBorrowed.Equal(outstanding), "pool %s, positions %s", pool.TotalBorrowed, outstanding)
	assert.True(t, outstanding.Equal(dec("5")))
}

func TestUpdatePriceValidation(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	_, err := h.proto.UpdatePrice("XYZ", dec("10"), "USD")
	require.ErrorIs(t, err, ErrUnknownAsset)
	_, err = h.proto.UpdatePrice("AAPL", dec("0"), "USD")
	require.ErrorIs(t, err, ErrInvalidAmount)

	res, err := h.proto.UpdatePrice("AAPL", dec("200"), "USD")
	require.NoError(t, err)
	assert.Empty(t, res.Opportunities)
	assert.True(t, h.prices.PriceInCommonUnit("AAPL").Equal(dec("200")))
}

func TestUpdatePriceAtKeepsQuoteTime(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.prices.SetClock(h.clock.Now)
	observed := epoch.Add(-2 * time.Minute)

	_, err := h.proto.UpdatePriceAt("AAPL", dec("190"), "USD", observed)
	require.NoError(t, err)
	q, ok := h.prices.RawQuote("AAPL")
	require.True(t, ok)
	assert.Equal(t, observed, q.UpdatedAt)
	assert.True(t, h.prices.Stale("AAPL", time.Minute))

	_, err = h.proto.UpdatePrice("AAPL", dec("191"), "USD")
	require.NoError(t, err)
	assert.False(t, h.prices.Stale("AAPL", time.Minute))
}

func TestPoolQueries(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	pools := h.proto.ListPools()
	require.Len(t, pools, 2)
	assert.Equal(t, assets.Symbol("NGN"), pools[0].Asset)
	assert.Equal(t, assets.Symbol("USD"), pools[1].Asset)

	_, err := h.proto.GetPool("EUR")
	require.ErrorIs(t, err, ErrPoolNotFound)
	_, err = h.proto.GetPosition("ghost")
	require.ErrorIs(t, err, ErrPositionNotFound)
}

func TestIsRejection(t *testing.T) {
	assert.True(t, IsRejection(fmt.Errorf("wrapped: %w", ErrExceedsDebt)))
	assert.False(t, IsRejection(ErrAssetNotConfigured))
	assert.False(t, IsRejection(errors.New("boom")))
	assert.False(t, IsRejection(nil))
}

func TestConcurrentBorrowersNeverOverdrawPool(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	_, err := h.proto.DepositToPool("lp", "USD", dec("1000"))
	require.NoError(t, err)

	const borrowers = 20
	for i := 0; i < borrowers; i++ {
		_, err := h.proto.DepositCollateral(fmt.Sprintf("user-%02d", i), "AAPL", dec("10"))
		require.NoError(t, err)
	}

	var ok, dry atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < borrowers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.proto.Borrow(fmt.Sprintf("user-%02d", i), "USD", dec("100"))
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrInsufficientLiquidity):
				dry.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 10, ok.Load())
	assert.EqualValues(t, 10, dry.Load())
	pool, err := h.proto.GetPool("USD")
	require.NoError(t, err)
	assert.True(t, pool.TotalBorrowed.Equal(dec("1000")))
}

func TestConcurrentDrawsOnOnePositionRespectCollateral(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.fund(t, "alice")

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.proto.Borrow("alice", "USD", dec("200")); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 6, ok.Load())
	snap, err := h.proto.GetPosition("alice")
	require.NoError(t, err)
	assert.True(t, snap.Loans[0].Principal.Equal(dec("1200")))
}
