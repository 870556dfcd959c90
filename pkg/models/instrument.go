package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Category is the asset class of an instrument.
type Category int

const (
	Indices Category = iota
	Crypto
	Commodities
	Bonds
)

var categoryNames = [...]string{"Indices", "Crypto", "Commodities", "Bonds"}

// Categories lists every category in declaration order.
func Categories() []Category {
	return []Category{Indices, Crypto, Commodities, Bonds}
}

func (c Category) Valid() bool { return c >= Indices && c <= Bonds }

func (c Category) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return categoryNames[c]
}

// ParseCategory accepts category names case-insensitively.
func ParseCategory(s string) (Category, error) {
	for i, name := range categoryNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", s)
}

func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid category %d", int(c))
	}
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(b []byte) error {
	parsed, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Instrument is the current state of one simulated market instrument.
type Instrument struct {
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name"`
	Category      Category        `json:"category"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	Currency      string          `json:"currency"` // currency or unit label, "%" for yields
	LastUpdated   time.Time       `json:"last_updated"`
}

// HistoryPoint is one sample of an instrument's price history.
type HistoryPoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Value     decimal.Decimal `json:"value"`
}

// InstrumentUpdate is the wire message carried from the simulator to the processor.
type InstrumentUpdate struct {
	Instrument
	SeqID int64 `json:"seq_id"` // tick number, monotonic per symbol
}
