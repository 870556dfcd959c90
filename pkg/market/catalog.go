package market

import (
	"github.com/shopspring/decimal"

	"github.com/shubham-shewale/market-sim/pkg/models"
)

// DefaultInstruments is the dashboard's seeded catalog.
func DefaultInstruments() []models.Instrument {
	return []models.Instrument{
		seed("CAC40", "CAC 40", models.Indices, "7854.32", "EUR"),
		seed("SP500", "S&P 500", models.Indices, "4789.45", "USD"),
		seed("NASDAQ", "NASDAQ 100", models.Indices, "16234.78", "USD"),
		seed("BTC", "Bitcoin", models.Crypto, "43250.00", "USD"),
		seed("ETH", "Ethereum", models.Crypto, "2580.45", "USD"),
		seed("GOLD", "Gold", models.Commodities, "2045.67", "USD"),
		seed("US10Y", "US Treasury 10Y", models.Bonds, "4.35", "%"),
		seed("FR10Y", "France 10Y", models.Bonds, "2.89", "%"),
		seed("DE10Y", "Germany 10Y", models.Bonds, "2.45", "%"),
		seed("EU10Y", "EU 10Y", models.Bonds, "2.67", "%"),
	}
}

// Symbols returns the symbols of the given instruments in order.
func Symbols(instruments []models.Instrument) []string {
	out := make([]string, len(instruments))
	for i, inst := range instruments {
		out[i] = inst.Symbol
	}
	return out
}

func seed(symbol, name string, category models.Category, price, currency string) models.Instrument {
	return models.Instrument{
		Symbol:   symbol,
		Name:     name,
		Category: category,
		Price:    decimal.RequireFromString(price),
		Currency: currency,
	}
}
