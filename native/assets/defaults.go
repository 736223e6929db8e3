package assets

import "github.com/shopspring/decimal"

// DefaultRiskParams lists the haircut schedule used when no catalog file is
// supplied.
func DefaultRiskParams() map[Type]RiskParams {
	return map[Type]RiskParams{
		TypeUSStock: {
			CollateralRatio:      decimal.RequireFromString("1.5"),
			LiquidationThreshold: decimal.RequireFromString("1.25"),
			Haircut:              decimal.RequireFromString("0.15"),
		},
		TypeUSETF: {
			CollateralRatio:      decimal.RequireFromString("1.4"),
			LiquidationThreshold: decimal.RequireFromString("1.2"),
			Haircut:              decimal.RequireFromString("0.1"),
		},
		TypeTreasury: {
			CollateralRatio:      decimal.RequireFromString("1.2"),
			LiquidationThreshold: decimal.RequireFromString("1.1"),
			Haircut:              decimal.RequireFromString("0.05"),
		},
		TypeNGNCash: {
			CollateralRatio:      decimal.RequireFromString("1.1"),
			LiquidationThreshold: decimal.RequireFromString("1.05"),
			Haircut:              decimal.RequireFromString("0.02"),
		},
		// Cash currencies are collateralizable, so they need a haircut too.
		TypeCurrency: {
			CollateralRatio:      decimal.RequireFromString("1.1"),
			LiquidationThreshold: decimal.RequireFromString("1.05"),
			Haircut:              decimal.RequireFromString("0.02"),
		},
	}
}

// DefaultAssets lists the seed catalog.
func DefaultAssets() []Asset {
	return []Asset{
		{Symbol: "NGN", Type: TypeCurrency, Name: "Nigerian Naira", Borrowable: true, Collateralizable: true},
		{Symbol: "USD", Type: TypeCurrency, Name: "US Dollar", Borrowable: true, Collateralizable: true},

		{Symbol: "AAPL", Type: TypeUSStock, Name: "Apple Inc.", Collateralizable: true},
		{Symbol: "MSFT", Type: TypeUSStock, Name: "Microsoft Corp.", Collateralizable: true},
		{Symbol: "GOOGL", Type: TypeUSStock, Name: "Alphabet Inc.", Collateralizable: true},
		{Symbol: "TSLA", Type: TypeUSStock, Name: "Tesla Inc.", Collateralizable: true},
		{Symbol: "AMZN", Type: TypeUSStock, Name: "Amazon.com Inc.", Collateralizable: true},

		{Symbol: "SPY", Type: TypeUSETF, Name: "S&P 500 ETF", Collateralizable: true},
		{Symbol: "VOO", Type: TypeUSETF, Name: "Vanguard S&P 500", Collateralizable: true},
		{Symbol: "QQQ", Type: TypeUSETF, Name: "Nasdaq 100 ETF", Collateralizable: true},
		{Symbol: "VTI", Type: TypeUSETF, Name: "Total Market ETF", Collateralizable: true},
	}
}

// DefaultRegistry returns a catalog populated with the seed assets and risk
// schedule.
func DefaultRegistry() *Registry {
	reg := NewRegistry()
	for _, asset := range DefaultAssets() {
		if err := reg.Register(asset); err != nil {
			panic(err)
		}
	}
	for t, params := range DefaultRiskParams() {
		if err := reg.SetRiskParams(t, params); err != nil {
			panic(err)
		}
	}
	return reg
}
