package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var errNoRowConsumed = errors.New("no coupon row consumed")

type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	UserUsageCount(ctx context.Context, couponID uuid.UUID, userKey string) (int, error)
	ConsumeUsage(ctx context.Context, couponID uuid.UUID, userKey string, perUserLimit *int) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) FindByCode(ctx context.Context, code string) (*Coupon, error) {
	query := `
		SELECT id, code, discount_type, value, active, starts_at, ends_at,
		       min_order_amount, usage_limit, used_count, per_user_limit, created_at, updated_at
		FROM coupons
		WHERE code = lower($1)
	`

	var c Coupon
	err := r.db.QueryRow(ctx, query, code).Scan(
		&c.ID,
		&c.Code,
		&c.DiscountType,
		&c.Value,
		&c.Active,
		&c.StartsAt,
		&c.EndsAt,
		&c.MinOrderAmount,
		&c.UsageLimit,
		&c.UsedCount,
		&c.PerUserLimit,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCouponNotFound
		}
		return nil, fmt.Errorf("repository: failed to select coupon by code: %w", err)
	}

	return &c, nil
}

func (r *postgresRepository) UserUsageCount(ctx context.Context, couponID uuid.UUID, userKey string) (int, error) {
	query := `
		SELECT used_count FROM coupon_redemptions
		WHERE coupon_id = $1 AND user_key = $2
	`

	var count int
	err := r.db.QueryRow(ctx, query, couponID, userKey).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("repository: failed to select coupon redemption count: %w", err)
	}

	return count, nil
}

// ConsumeUsage increments the global and per-user counters with conditional
// updates so two concurrent redemptions of the same coupon cannot lose an
// update or blow past a cap. Both increments run in one transaction; a cap
// hit on either rolls back the other.
func (r *postgresRepository) ConsumeUsage(ctx context.Context, couponID uuid.UUID, userKey string, perUserLimit *int) (err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("coupon_id", couponID).Msg("repository: failed to rollback coupon consumption")
			}
		} else {
			if commitErr := tx.Commit(ctx); commitErr != nil {
				err = fmt.Errorf("repository: failed to commit coupon consumption: %w", commitErr)
			}
		}
	}()

	globalQuery := `
		UPDATE coupons
		SET used_count = used_count + 1, updated_at = $2
		WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)
	`
	tag, err := tx.Exec(ctx, globalQuery, couponID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("repository: failed to increment coupon used_count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repository: coupon %s global usage: %w", couponID, errNoRowConsumed)
	}

	userQuery := `
		INSERT INTO coupon_redemptions (coupon_id, user_key, used_count)
		VALUES ($1, $2, 1)
		ON CONFLICT (coupon_id, user_key) DO UPDATE
		SET used_count = coupon_redemptions.used_count + 1
		WHERE $3::int IS NULL OR coupon_redemptions.used_count < $3
	`
	tag, err = tx.Exec(ctx, userQuery, couponID, userKey, perUserLimit)
	if err != nil {
		return fmt.Errorf("repository: failed to increment coupon redemption count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repository: coupon %s user %s usage: %w", couponID, userKey, errNoRowConsumed)
	}

	return nil
}

// IsLimitReached reports whether a consumption failure was a cap hit rather
// than an infrastructure error.
func IsLimitReached(err error) bool {
	return errors.Is(err, errNoRowConsumed)
}
