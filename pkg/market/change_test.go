package market

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestPercentChange(t *testing.T) {
	testCases := []struct {
		name   string
		change string
		base   string
		want   string
	}{
		{"zero base yields zero", "1", "0", "0"},
		{"zero change", "0", "100", "0"},
		{"rounds to two places", "0.01", "2.45", "0.41"},
		{"negative move", "-648.75", "43250", "-1.5"},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			got := percentChange(decimal.RequireFromString(tt.change), decimal.RequireFromString(tt.base))
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("percentChange(%s, %s) = %s, want %s", tt.change, tt.base, got, tt.want)
			}
		})
	}
}
