package market

import (
	"fmt"
	"math"
	"slices"

	"github.com/shubham-shewale/market-sim/pkg/models"
)

// VolatilityPolicy decides the maximum fractional swing per tick for an
// instrument. A tick moves the price by at most half the bound either way.
//
// Precedence: crypto symbols, then commodity symbols, then the Bonds
// category, then the default.
type VolatilityPolicy struct {
	CryptoSymbols    []string
	CryptoBound      float64
	CommoditySymbols []string
	CommodityBound   float64
	BondBound        float64
	DefaultBound     float64
}

func DefaultPolicy() VolatilityPolicy {
	return VolatilityPolicy{
		CryptoSymbols:    []string{"BTC", "ETH"},
		CryptoBound:      0.03,
		CommoditySymbols: []string{"GOLD"},
		CommodityBound:   0.01,
		BondBound:        0.005,
		DefaultBound:     0.015,
	}
}

// Bound panics on a negative bound; New rejects such policies, so reaching
// it means the policy was mutated after validation.
func (p VolatilityPolicy) Bound(inst models.Instrument) float64 {
	var bound float64
	switch {
	case slices.Contains(p.CryptoSymbols, inst.Symbol):
		bound = p.CryptoBound
	case slices.Contains(p.CommoditySymbols, inst.Symbol):
		bound = p.CommodityBound
	case inst.Category == models.Bonds:
		bound = p.BondBound
	default:
		bound = p.DefaultBound
	}
	if bound < 0 {
		panic(fmt.Sprintf("market: negative volatility bound %v for %s", bound, inst.Symbol))
	}
	return bound
}

// validate keeps every bound in [0, 1) so a half-bound move can never take a
// price of 0.01 to zero after rounding.
func (p VolatilityPolicy) validate() error {
	bounds := map[string]float64{
		"crypto":    p.CryptoBound,
		"commodity": p.CommodityBound,
		"bond":      p.BondBound,
		"default":   p.DefaultBound,
	}
	for name, b := range bounds {
		if math.IsNaN(b) || b < 0 || b >= 1 {
			return fmt.Errorf("%w: %s bound %v outside [0, 1)", ErrInvalidConfig, name, b)
		}
	}
	return nil
}
