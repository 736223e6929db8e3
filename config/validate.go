package config

import (
	"fmt"
	"strings"
)

// Validate checks the catalog is self-consistent: every pool is a listed
// borrowable asset, every listed type has a risk schedule and every seeded
// price belongs to a listed asset.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config: nil")
	}
	if c.CommonUnit == "" {
		return fmt.Errorf("config: CommonUnit required")
	}
	if len(c.Assets) == 0 {
		return fmt.Errorf("config: at least one asset required")
	}
	listed := make(map[string]AssetConfig, len(c.Assets))
	for _, asset := range c.Assets {
		if asset.Symbol == "" || asset.Type == "" {
			return fmt.Errorf("config: asset entries need Symbol and Type")
		}
		if _, dup := listed[asset.Symbol]; dup {
			return fmt.Errorf("config: duplicate asset %s", asset.Symbol)
		}
		listed[asset.Symbol] = asset
	}
	schedules := make(map[string]struct{}, len(c.Risk))
	for _, risk := range c.Risk {
		if risk.Haircut.IsNegative() || risk.Haircut.GreaterThanOrEqual(one) {
			return fmt.Errorf("config: risk.%s Haircut must be in [0,1)", risk.Type)
		}
		schedules[risk.Type] = struct{}{}
	}
	for _, asset := range c.Assets {
		if !asset.Collateralizable {
			continue
		}
		if _, ok := schedules[asset.Type]; !ok {
			return fmt.Errorf("config: collateral type %s has no risk schedule", asset.Type)
		}
	}
	if c.LocalCurrency != "" {
		if _, ok := listed[c.LocalCurrency]; !ok {
			return fmt.Errorf("config: LocalCurrency %s is not a listed asset", c.LocalCurrency)
		}
	}
	for _, price := range c.Prices {
		if _, ok := listed[price.Symbol]; !ok {
			return fmt.Errorf("config: price for unlisted asset %s", price.Symbol)
		}
		if !price.Price.IsPositive() {
			return fmt.Errorf("config: price for %s must be positive", price.Symbol)
		}
	}
	for _, pool := range c.Lending.Pools {
		asset, ok := listed[strings.ToUpper(strings.TrimSpace(pool.Asset))]
		if !ok || !asset.Borrowable {
			return fmt.Errorf("config: lending pool %s must be a listed borrowable asset", pool.Asset)
		}
	}
	if err := c.Lending.Validate(); err != nil {
		return fmt.Errorf("config: lending: %w", err)
	}
	return nil
}
