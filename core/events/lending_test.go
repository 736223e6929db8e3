package events

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiquidatedRecordOmitsEmptyShortfall(t *testing.T) {
	rec := Liquidated{
		ID:          "abc",
		User:        "user1",
		Liquidator:  "liq",
		RepayAsset:  "NGN",
		RepayAmount: decimal.NewFromInt(500000),
		SeizedValue: decimal.NewFromInt(318),
		Bonus:       decimal.RequireFromString("15.15"),
	}.Record()

	assert.Equal(t, TypeLendingLiquidated, rec.Type)
	assert.Equal(t, "500000", rec.Attributes["repayAmount"])
	_, ok := rec.Attributes["shortfall"]
	assert.False(t, ok)
}

func TestCollateralMovedType(t *testing.T) {
	assert.Equal(t, TypeLendingCollateralDeposited, CollateralMoved{}.EventType())
	assert.Equal(t, TypeLendingCollateralWithdrawn, CollateralMoved{Withdrawn: true}.EventType())
}

func TestRecorderFiltersByType(t *testing.T) {
	rec := &Recorder{}
	var emitter Emitter = rec

	emitter.Emit(PoolDeposit{Provider: "lp1", Asset: "NGN", Amount: decimal.NewFromInt(1)})
	emitter.Emit(Repaid{User: "u", Asset: "NGN"})

	all := rec.Events()
	require.Len(t, all, 2)
	assert.Equal(t, TypeLendingPoolDeposit, all[0].EventType())
	require.Len(t, rec.OfType(TypeLendingRepaid), 1)
	assert.Empty(t, rec.OfType(TypeLendingBorrowed))

	all[0] = nil
	assert.NotNil(t, rec.Events()[0])
}
