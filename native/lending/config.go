package lending

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Config captures the runtime configuration for the lending module. Decimal
// fields accept TOML strings ("0.18") to avoid float rounding. Nullable fields
// left out of the file take the reference value; an explicit zero is kept and
// validated as written.
type Config struct {
	OverCollateralization decimal.NullDecimal `toml:"OverCollateralization"`
	LiquidationThreshold  decimal.NullDecimal `toml:"LiquidationThreshold"`
	LiquidationBonus      decimal.NullDecimal `toml:"LiquidationBonus"`
	DustPrincipal         decimal.NullDecimal `toml:"DustPrincipal"`
	Pauses                ActionPauses        `toml:"pauses"`
	Pools                 []PoolConfig        `toml:"pools"`
}

// PoolConfig describes one lendable pool and its interest curve. Unset curve
// fields fall back to the reference curve.
type PoolConfig struct {
	Asset              string              `toml:"Asset"`
	BaseRate           decimal.Decimal     `toml:"BaseRate"`
	Slope1             decimal.NullDecimal `toml:"Slope1"`
	Slope2             decimal.NullDecimal `toml:"Slope2"`
	OptimalUtilisation decimal.NullDecimal `toml:"OptimalUtilisation"`
	ReserveFactor      decimal.Decimal     `toml:"ReserveFactor"`
}

// DefaultConfig returns the reference market: NGN at an 18% base rate and USD
// at 5%.
func DefaultConfig() Config {
	cfg := Config{
		Pools: []PoolConfig{
			{Asset: "NGN", BaseRate: decimal.RequireFromString("0.18")},
			{Asset: "USD", BaseRate: decimal.RequireFromString("0.05")},
		},
	}
	cfg.EnsureDefaults()
	return cfg
}

// EnsureDefaults fills every unset field with the reference parameters.
func (c *Config) EnsureDefaults() {
	defaults := DefaultParams()
	defaultNull(&c.OverCollateralization, defaults.OverCollateralization)
	defaultNull(&c.LiquidationThreshold, defaults.LiquidationThreshold)
	defaultNull(&c.LiquidationBonus, defaults.LiquidationBonus)
	defaultNull(&c.DustPrincipal, defaults.DustPrincipal)
	for i := range c.Pools {
		pool := &c.Pools[i]
		pool.Asset = strings.ToUpper(strings.TrimSpace(pool.Asset))
		ref := DefaultInterestModel(pool.BaseRate)
		defaultNull(&pool.Slope1, ref.Slope1)
		defaultNull(&pool.Slope2, ref.Slope2)
		defaultNull(&pool.OptimalUtilisation, ref.Optimal)
	}
}

func defaultNull(field *decimal.NullDecimal, fallback decimal.Decimal) {
	if !field.Valid {
		*field = decimal.NewNullDecimal(fallback)
	}
}

// Params extracts the risk constants.
func (c Config) Params() Params {
	return Params{
		OverCollateralization: c.OverCollateralization.Decimal,
		LiquidationThreshold:  c.LiquidationThreshold.Decimal,
		LiquidationBonus:      c.LiquidationBonus.Decimal,
		DustPrincipal:         c.DustPrincipal.Decimal,
	}
}

// Model builds the interest model for a pool entry.
func (pc PoolConfig) Model() *InterestModel {
	model := NewInterestModel(pc.BaseRate, pc.Slope1.Decimal, pc.Slope2.Decimal, pc.OptimalUtilisation.Decimal)
	model.ReserveFactor = pc.ReserveFactor
	return model
}

// Validate checks the configuration is internally consistent.
func (c Config) Validate() error {
	params := c.Params()
	if !params.OverCollateralization.GreaterThan(one) {
		return fmt.Errorf("over-collateralisation factor must exceed 1, got %s", params.OverCollateralization)
	}
	if !params.LiquidationThreshold.GreaterThanOrEqual(one) {
		return fmt.Errorf("liquidation threshold must be at least 1, got %s", params.LiquidationThreshold)
	}
	if params.LiquidationBonus.IsNegative() || params.LiquidationBonus.GreaterThanOrEqual(one) {
		return fmt.Errorf("liquidation bonus must be in [0,1), got %s", params.LiquidationBonus)
	}
	if params.DustPrincipal.IsNegative() {
		return fmt.Errorf("dust principal must be non-negative")
	}
	if len(c.Pools) == 0 {
		return fmt.Errorf("at least one pool must be configured")
	}
	seen := make(map[string]struct{}, len(c.Pools))
	for _, pool := range c.Pools {
		if pool.Asset == "" {
			return fmt.Errorf("pool asset required")
		}
		if _, dup := seen[pool.Asset]; dup {
			return fmt.Errorf("duplicate pool %s", pool.Asset)
		}
		seen[pool.Asset] = struct{}{}
		if err := pool.Model().Validate(); err != nil {
			return fmt.Errorf("pool %s: %w", pool.Asset, err)
		}
	}
	return nil
}
