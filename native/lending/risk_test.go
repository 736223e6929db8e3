package lending

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendmarket/native/assets"
	"lendmarket/native/oracle"
)

type flatCatalog struct {
	haircut decimal.Decimal
}

func (c flatCatalog) AssetType(symbol assets.Symbol) (assets.Type, error) {
	if symbol == "GHOST" {
		return "", assets.ErrUnknownAsset
	}
	return assets.TypeUSStock, nil
}

func (c flatCatalog) Haircut(assets.Type) (decimal.Decimal, error) {
	return c.haircut, nil
}

func defaultRisk() *RiskEngine {
	return NewRiskEngine(assets.DefaultRegistry(), oracle.DefaultSource(), DefaultParams())
}

func TestCollateralValueAppliesHaircut(t *testing.T) {
	risk := defaultRisk()
	pos := NewPosition("alice", epoch)
	pos.AddCollateral("AAPL", dec("10"), epoch)

	value, err := risk.CollateralValue(pos)
	require.NoError(t, err)
	assert.True(t, value.Equal(dec("1572.5")), "got %s", value)

	power, err := risk.BorrowingPower(pos)
	require.NoError(t, err)
	assert.Equal(t, "1209.6", power.MaxBorrow.StringFixed(1))
	assert.Equal(t, power.MaxBorrow.Mul(dec("1650")).StringFixed(4), power.MaxBorrowLocal.StringFixed(4))
}

func TestCollateralValueUnknownAsset(t *testing.T) {
	risk := NewRiskEngine(flatCatalog{}, oracle.DefaultSource(), DefaultParams())
	pos := NewPosition("alice", epoch)
	pos.AddCollateral("GHOST", dec("1"), epoch)

	_, err := risk.CollateralValue(pos)
	require.ErrorIs(t, err, ErrAssetNotConfigured)
}

func TestLoanValueQuotesLocalCurrencyInversely(t *testing.T) {
	risk := defaultRisk()
	pos := NewPosition("alice", epoch)
	pos.AddLoan("NGN", dec("165000"), epoch)
	pos.AddLoan("USD", dec("50"), epoch)

	assert.True(t, risk.LoanValue(pos).Equal(dec("150")), "got %s", risk.LoanValue(pos))
	assert.True(t, risk.ValueInCommonUnit("UNPRICED", dec("10")).IsZero())
}

func TestHealthFactorWithoutDebtIsUnbounded(t *testing.T) {
	risk := defaultRisk()
	pos := NewPosition("alice", epoch)
	pos.AddCollateral("AAPL", dec("1"), epoch)

	health, err := risk.HealthFactor(pos)
	require.NoError(t, err)
	assert.True(t, health.Unbounded)

	raw, err := json.Marshal(health)
	require.NoError(t, err)
	assert.JSONEq(t, `"unbounded"`, string(raw))

	ok, err := risk.CanLiquidate(pos)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = risk.CanLiquidate(nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanLiquidateThresholdIsStrict(t *testing.T) {
	prices := oracle.NewSource("USD", "NGN")
	prices.Update("USD", dec("1"), "USD")
	prices.Update("AAPL", dec("115"), "USD")
	risk := NewRiskEngine(flatCatalog{haircut: decimal.Zero}, prices, DefaultParams())

	pos := NewPosition("alice", epoch)
	pos.AddCollateral("AAPL", dec("10"), epoch)
	pos.AddLoan("USD", dec("1000"), epoch)

	health, err := risk.HealthFactor(pos)
	require.NoError(t, err)
	assert.True(t, health.Factor.Equal(dec("1.15")))
	ok, err := risk.CanLiquidate(pos)
	require.NoError(t, err)
	assert.False(t, ok, "a position exactly at the threshold is healthy")

	prices.Update("AAPL", dec("114.99"), "USD")
	ok, err = risk.CanLiquidate(pos)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLiquidationSeizeValue(t *testing.T) {
	risk := defaultRisk()
	assert.True(t, risk.LiquidationSeizeValue(dec("1000")).Equal(dec("1050")))
}
