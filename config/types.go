package config

import (
	"github.com/shopspring/decimal"

	"lendmarket/native/lending"
)

// AssetConfig lists one tradable asset in the market catalog.
type AssetConfig struct {
	Symbol           string `toml:"Symbol"`
	Type             string `toml:"Type"`
	Name             string `toml:"Name"`
	Borrowable       bool   `toml:"Borrowable"`
	Collateralizable bool   `toml:"Collateralizable"`
}

// RiskConfig is the collateral schedule for one asset type.
type RiskConfig struct {
	Type                 string          `toml:"Type"`
	CollateralRatio      decimal.Decimal `toml:"CollateralRatio"`
	LiquidationThreshold decimal.Decimal `toml:"LiquidationThreshold"`
	Haircut              decimal.Decimal `toml:"Haircut"`
}

// PriceConfig seeds the price source at start-up.
type PriceConfig struct {
	Symbol   string          `toml:"Symbol"`
	Price    decimal.Decimal `toml:"Price"`
	Currency string          `toml:"Currency"`
}

// Config is the market catalog: listed assets, their risk schedule, the
// opening price sheet and the lending parameters.
type Config struct {
	CommonUnit    string         `toml:"CommonUnit"`
	LocalCurrency string         `toml:"LocalCurrency"`
	Assets        []AssetConfig  `toml:"assets"`
	Risk          []RiskConfig   `toml:"risk"`
	Prices        []PriceConfig  `toml:"prices"`
	Lending       lending.Config `toml:"lending"`
}
