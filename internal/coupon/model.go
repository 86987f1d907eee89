package coupon

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

type Coupon struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	Code           string          `json:"code" db:"code"` // stored lowercase, matched case-insensitively
	DiscountType   DiscountType    `json:"discount_type" db:"discount_type"`
	Value          decimal.Decimal `json:"value" db:"value"`
	Active         bool            `json:"active" db:"active"`
	StartsAt       *time.Time      `json:"starts_at,omitempty" db:"starts_at"`
	EndsAt         *time.Time      `json:"ends_at,omitempty" db:"ends_at"`
	MinOrderAmount decimal.Decimal `json:"min_order_amount" db:"min_order_amount"`
	UsageLimit     *int            `json:"usage_limit,omitempty" db:"usage_limit"`
	UsedCount      int             `json:"used_count" db:"used_count"`
	PerUserLimit   *int            `json:"per_user_limit,omitempty" db:"per_user_limit"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// Summary is the projection attached to an order's price snapshot. The
// counters and caps stay internal.
type Summary struct {
	Code         string          `json:"code"`
	DiscountType DiscountType    `json:"discount_type"`
	Value        decimal.Decimal `json:"value"`
}

func (c *Coupon) Summary() Summary {
	return Summary{Code: c.Code, DiscountType: c.DiscountType, Value: c.Value}
}
