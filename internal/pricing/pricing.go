package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/coupon"
)

// Snapshot is the immutable price breakdown stored on an order. It is never
// recomputed after creation.
type Snapshot struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Shipping decimal.Decimal `json:"shipping"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
	Coupon   *coupon.Summary `json:"coupon,omitempty"`
}

// Assemble combines subtotal and discount into a snapshot. Shipping and tax
// are fixed at zero for now; rate tables plug in here when they exist.
// The coupon engine caps discount at subtotal, so total never goes negative,
// but the floor is kept as a hard guarantee anyway.
func Assemble(subtotal, discount decimal.Decimal, c *coupon.Coupon) Snapshot {
	shipping := decimal.Zero
	tax := decimal.Zero

	total := subtotal.Sub(discount).Add(shipping).Add(tax)
	if total.IsNegative() {
		total = decimal.Zero
	}

	snap := Snapshot{
		Subtotal: subtotal.Round(2),
		Discount: discount.Round(2),
		Shipping: shipping,
		Tax:      tax,
		Total:    total.Round(2),
	}
	if c != nil {
		summary := c.Summary()
		snap.Coupon = &summary
	}

	return snap
}
