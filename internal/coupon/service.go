package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/apperr"
)

var (
	ErrCouponNotFound    = apperr.New("COUPON_NOT_FOUND", apperr.KindNotFound, "coupon not found")
	ErrCouponInactive    = apperr.New("COUPON_INACTIVE", apperr.KindBusinessRule, "coupon is not active")
	ErrCouponNotStarted  = apperr.New("COUPON_NOT_STARTED", apperr.KindBusinessRule, "coupon is not active yet")
	ErrCouponExpired     = apperr.New("COUPON_EXPIRED", apperr.KindBusinessRule, "coupon has expired")
	ErrMinOrderNotMet    = apperr.New("COUPON_MIN_ORDER_NOT_MET", apperr.KindBusinessRule, "order amount below coupon minimum")
	ErrUsageLimitReached = apperr.New("COUPON_USAGE_LIMIT_REACHED", apperr.KindBusinessRule, "coupon usage limit reached")
	ErrUserLimitReached  = apperr.New("COUPON_USER_LIMIT_REACHED", apperr.KindBusinessRule, "coupon already used the maximum number of times")
)

type Service interface {
	// Validate checks a code against its eligibility rules and returns the
	// discount amount for the given subtotal. It never mutates counters.
	Validate(ctx context.Context, code, userKey string, subtotal decimal.Decimal) (decimal.Decimal, *Coupon, error)
	// ConsumeUsage records one redemption for the coupon and user. Called
	// only after the order is durably persisted.
	ConsumeUsage(ctx context.Context, c *Coupon, userKey string) error
}

type service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) Service {
	return &service{repo: repo, now: time.Now}
}

func (s *service) Validate(ctx context.Context, code, userKey string, subtotal decimal.Decimal) (decimal.Decimal, *Coupon, error) {
	c, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return decimal.Zero, nil, err
	}

	now := s.now().UTC()

	if !c.Active {
		return decimal.Zero, nil, ErrCouponInactive
	}
	if c.StartsAt != nil && now.Before(*c.StartsAt) {
		return decimal.Zero, nil, ErrCouponNotStarted
	}
	if c.EndsAt != nil && now.After(*c.EndsAt) {
		return decimal.Zero, nil, ErrCouponExpired
	}
	if subtotal.LessThan(c.MinOrderAmount) {
		return decimal.Zero, nil, ErrMinOrderNotMet.WithDetails(map[string]any{
			"min_order_amount": c.MinOrderAmount.String(),
		})
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return decimal.Zero, nil, ErrUsageLimitReached
	}

	if c.PerUserLimit != nil {
		used, err := s.repo.UserUsageCount(ctx, c.ID, userKey)
		if err != nil {
			return decimal.Zero, nil, fmt.Errorf("coupon: failed to fetch user usage: %w", err)
		}
		if used >= *c.PerUserLimit {
			return decimal.Zero, nil, ErrUserLimitReached
		}
	}

	return Discount(c, subtotal), c, nil
}

// Discount computes the coupon's discount for a subtotal, capped at the
// subtotal and rounded half-up to 2 decimal places.
func Discount(c *Coupon, subtotal decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		discount = subtotal.Mul(c.Value).Div(decimal.NewFromInt(100))
	case DiscountFixed:
		discount = c.Value
	default:
		return decimal.Zero
	}

	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	if discount.IsNegative() {
		return decimal.Zero
	}

	return discount.Round(2)
}

func (s *service) ConsumeUsage(ctx context.Context, c *Coupon, userKey string) error {
	if err := s.repo.ConsumeUsage(ctx, c.ID, userKey, c.PerUserLimit); err != nil {
		if IsLimitReached(err) {
			log.Warn().
				Stringer("coupon_id", c.ID).
				Str("user_key", userKey).
				Msg("coupon: usage cap hit during consumption")
			return ErrUsageLimitReached
		}
		return fmt.Errorf("coupon: failed to consume usage: %w", err)
	}

	log.Info().Stringer("coupon_id", c.ID).Str("user_key", userKey).Msg("coupon: usage consumed")
	return nil
}
