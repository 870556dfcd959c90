package hub

import (
	"slices"
	"strings"

	"github.com/shubham-shewale/market-sim/cmd/gateway/internal/protocol"
	"github.com/shubham-shewale/market-sim/pkg/models"
)

// Catalog is the set of symbols the gateway serves, grouped by category.
type Catalog struct {
	symbols    map[string]models.Category
	byCategory map[models.Category][]string
}

// NewCatalog indexes instruments. When allowed is non-empty only those
// symbols are served.
func NewCatalog(instruments []models.Instrument, allowed []string) *Catalog {
	keep := make(map[string]bool, len(allowed))
	for _, s := range allowed {
		keep[strings.ToUpper(strings.TrimSpace(s))] = true
	}

	c := &Catalog{
		symbols:    make(map[string]models.Category),
		byCategory: make(map[models.Category][]string),
	}
	for _, inst := range instruments {
		if len(keep) > 0 && !keep[inst.Symbol] {
			continue
		}
		c.symbols[inst.Symbol] = inst.Category
		c.byCategory[inst.Category] = append(c.byCategory[inst.Category], inst.Symbol)
	}
	for cat := range c.byCategory {
		slices.Sort(c.byCategory[cat])
	}
	return c
}

func (c *Catalog) Valid(symbol string) bool {
	_, ok := c.symbols[symbol]
	return ok
}

// Resolve expands a payload into a de-duplicated list of served symbols,
// in request order. Unknown symbols and categories are returned separately.
func (c *Catalog) Resolve(p protocol.RequestPayload) (symbols, unknown []string) {
	seen := make(map[string]bool)
	add := func(sym string) {
		if !seen[sym] {
			seen[sym] = true
			symbols = append(symbols, sym)
		}
	}

	for _, s := range p.Symbols {
		if c.Valid(s) {
			add(s)
		} else if s != "" {
			unknown = append(unknown, s)
		}
	}
	for _, name := range p.Categories {
		cat, err := models.ParseCategory(name)
		if err != nil {
			unknown = append(unknown, name)
			continue
		}
		for _, sym := range c.byCategory[cat] {
			add(sym)
		}
	}
	return symbols, unknown
}

// Symbols lists every served symbol, grouped by category order.
func (c *Catalog) Symbols() []string {
	var out []string
	for _, cat := range models.Categories() {
		out = append(out, c.byCategory[cat]...)
	}
	return out
}
