package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"

	"lendmarket/native/assets"
	"lendmarket/native/lending"
	"lendmarket/native/oracle"
)

var one = decimal.NewFromInt(1)

// Load loads the market catalog from path. A missing file is created with the
// reference catalog.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown keys: %v", path, undecoded)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the reference catalog: USD as the common unit, NGN as the
// local currency, the seed equities and ETFs, and NGN/USD pools.
func Default() *Config {
	cfg := &Config{
		CommonUnit:    "USD",
		LocalCurrency: "NGN",
		Lending:       lending.DefaultConfig(),
	}
	for _, asset := range assets.DefaultAssets() {
		cfg.Assets = append(cfg.Assets, AssetConfig{
			Symbol:           asset.Symbol.String(),
			Type:             string(asset.Type),
			Name:             asset.Name,
			Borrowable:       asset.Borrowable,
			Collateralizable: asset.Collateralizable,
		})
	}
	params := assets.DefaultRiskParams()
	for _, t := range []assets.Type{assets.TypeCurrency, assets.TypeUSStock, assets.TypeUSETF, assets.TypeTreasury, assets.TypeNGNCash} {
		p := params[t]
		cfg.Risk = append(cfg.Risk, RiskConfig{
			Type:                 string(t),
			CollateralRatio:      p.CollateralRatio,
			LiquidationThreshold: p.LiquidationThreshold,
			Haircut:              p.Haircut,
		})
	}
	src := oracle.DefaultSource()
	for _, symbol := range src.Symbols() {
		q, _ := src.RawQuote(symbol)
		cfg.Prices = append(cfg.Prices, PriceConfig{Symbol: symbol.String(), Price: q.Price, Currency: q.Currency})
	}
	return cfg
}

func (c *Config) normalize() {
	c.CommonUnit = assets.NewSymbol(c.CommonUnit).String()
	c.LocalCurrency = assets.NewSymbol(c.LocalCurrency).String()
	for i := range c.Assets {
		c.Assets[i].Symbol = assets.NewSymbol(c.Assets[i].Symbol).String()
		c.Assets[i].Type = strings.ToUpper(strings.TrimSpace(c.Assets[i].Type))
	}
	for i := range c.Risk {
		c.Risk[i].Type = strings.ToUpper(strings.TrimSpace(c.Risk[i].Type))
	}
	for i := range c.Prices {
		c.Prices[i].Symbol = assets.NewSymbol(c.Prices[i].Symbol).String()
		c.Prices[i].Currency = strings.ToUpper(strings.TrimSpace(c.Prices[i].Currency))
		if c.Prices[i].Currency == "" {
			c.Prices[i].Currency = c.CommonUnit
		}
	}
	c.Lending.EnsureDefaults()
}

// Registry builds the asset catalog described by the config.
func (c *Config) Registry() (*assets.Registry, error) {
	reg := assets.NewRegistry()
	for _, a := range c.Assets {
		err := reg.Register(assets.Asset{
			Symbol:           assets.NewSymbol(a.Symbol),
			Type:             assets.Type(a.Type),
			Name:             a.Name,
			Borrowable:       a.Borrowable,
			Collateralizable: a.Collateralizable,
		})
		if err != nil {
			return nil, err
		}
	}
	for _, r := range c.Risk {
		err := reg.SetRiskParams(assets.Type(r.Type), assets.RiskParams{
			CollateralRatio:      r.CollateralRatio,
			LiquidationThreshold: r.LiquidationThreshold,
			Haircut:              r.Haircut,
		})
		if err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// PriceSource builds a price source seeded with the configured quotes.
func (c *Config) PriceSource() *oracle.Source {
	src := oracle.NewSource(assets.NewSymbol(c.CommonUnit), assets.NewSymbol(c.LocalCurrency))
	for _, p := range c.Prices {
		src.Update(assets.NewSymbol(p.Symbol), p.Price, p.Currency)
	}
	return src
}

// createDefault writes the reference catalog to path and returns it.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
