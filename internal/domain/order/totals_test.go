package order

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestItemTotal(t *testing.T) {
	total := ItemTotal(2, decimal.RequireFromString("100.00"), decimal.RequireFromString("10.00"))
	assert.True(t, decimal.RequireFromString("190.00").Equal(total))
}

func TestItemTotal_NoDiscount(t *testing.T) {
	total := ItemTotal(3, decimal.RequireFromString("9.99"), decimal.Zero)
	assert.True(t, decimal.RequireFromString("29.97").Equal(total))
}

func TestItemTotal_Rounding(t *testing.T) {
	total := ItemTotal(3, decimal.RequireFromString("0.335"), decimal.Zero)
	assert.True(t, decimal.RequireFromString("1.01").Equal(total))
}

func TestCalculateTotals(t *testing.T) {
	items := []Item{
		{Total: decimal.RequireFromString("190.00")},
		{Total: decimal.RequireFromString("29.97")},
	}

	subtotal, total := CalculateTotals(items,
		decimal.RequireFromString("20.00"),
		decimal.RequireFromString("15.00"),
		decimal.RequireFromString("10.00"),
	)

	assert.True(t, decimal.RequireFromString("219.97").Equal(subtotal))
	assert.True(t, decimal.RequireFromString("224.97").Equal(total))
}

func TestCalculateTotals_NoAdjustments(t *testing.T) {
	items := []Item{{Total: decimal.RequireFromString("42.00")}}

	subtotal, total := CalculateTotals(items, decimal.Zero, decimal.Zero, decimal.Zero)

	assert.True(t, subtotal.Equal(total))
	assert.True(t, decimal.RequireFromString("42.00").Equal(total))
}
