package pricing_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/coupon"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/pricing"
)

func TestAssemble(t *testing.T) {
	tests := []struct {
		name      string
		subtotal  string
		discount  string
		wantTotal string
	}{
		{name: "no_discount", subtotal: "100", discount: "0", wantTotal: "100"},
		{name: "partial_discount", subtotal: "200", discount: "20", wantTotal: "180"},
		{name: "full_discount", subtotal: "300", discount: "300", wantTotal: "0"},
		{name: "cents", subtotal: "76.5", discount: "2.5", wantTotal: "74"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := pricing.Assemble(decimal.RequireFromString(tt.subtotal), decimal.RequireFromString(tt.discount), nil)

			assert.Equal(t, tt.wantTotal, snap.Total.String())
			assert.True(t, snap.Shipping.IsZero())
			assert.True(t, snap.Tax.IsZero())
			assert.False(t, snap.Total.IsNegative())
			assert.Nil(t, snap.Coupon)
		})
	}
}

func TestAssemble_TotalNeverNegative(t *testing.T) {
	snap := pricing.Assemble(decimal.NewFromInt(50), decimal.NewFromInt(80), nil)
	assert.True(t, snap.Total.IsZero())
}

func TestAssemble_CouponSummary(t *testing.T) {
	c := &coupon.Coupon{
		Code:         "save10",
		DiscountType: coupon.DiscountPercentage,
		Value:        decimal.NewFromInt(10),
		UsedCount:    42,
	}

	snap := pricing.Assemble(decimal.NewFromInt(200), decimal.NewFromInt(20), c)

	if assert.NotNil(t, snap.Coupon) {
		assert.Equal(t, "save10", snap.Coupon.Code)
		assert.Equal(t, coupon.DiscountPercentage, snap.Coupon.DiscountType)
	}
}
