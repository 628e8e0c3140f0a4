package pricing

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func cents(n int64) decimal.Decimal {
	return decimal.New(n, -2)
}

func TestDropChance_Examples(t *testing.T) {
	tests := []struct {
		name      string
		casePrice string
		itemPrice string
		want      float64
	}{
		{"cheaper item", "10.00", "2.50", 1.0},
		{"equal price", "10.00", "10.00", 1.0},
		{"double price", "10.00", "20.00", math.Exp(-0.94)},
		{"ten times", "1.00", "10.00", math.Exp(-0.94 * 9)},
		{"floored", "0.01", "100000.00", MinChance},
		{"free case", "0", "5.00", 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DropChance(decimal.RequireFromString(tt.casePrice), decimal.RequireFromString(tt.itemPrice))
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

// For all C > 0 and P <= C the chance is exactly 1.
func TestDropChance_CheapItemsAlwaysDrop(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := rapid.Int64Range(1, 10_000_000).Draw(t, "case")
		p := rapid.Int64Range(0, c).Draw(t, "item")

		if got := DropChance(cents(c), cents(p)); got != 1.0 {
			t.Fatalf("DropChance(%d, %d) = %v, want 1", c, p, got)
		}
	})
}

// For all C > 0 and P > C the chance is in (0, 1] and never increases with P.
func TestDropChance_BoundedAndMonotone(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := rapid.Int64Range(1, 1_000_000).Draw(t, "case")
		p1 := rapid.Int64Range(c+1, 100_000_000).Draw(t, "item1")
		p2 := rapid.Int64Range(p1+1, 100_000_001).Draw(t, "item2")

		a := DropChance(cents(c), cents(p1))
		b := DropChance(cents(c), cents(p2))

		if a <= 0 || a > 1 || b <= 0 || b > 1 {
			t.Fatalf("chance out of range: %v %v", a, b)
		}
		if b > a {
			t.Fatalf("chance increased with price: %v -> %v", a, b)
		}
		if b > MinChance && b >= a {
			t.Fatalf("chance not strictly decreasing above floor: %v -> %v", a, b)
		}
	})
}

func TestMatches(t *testing.T) {
	c, p := cents(1000), cents(2500)
	assert.True(t, Matches(DropChance(c, p), c, p))
	assert.False(t, Matches(0.5, c, p))
}
