package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/order"
)

// ErrInsufficientFunds is the repository-level debit failure; the service
// translates it into the coded wallet error with balance details.
var ErrInsufficientFunds = errors.New("insufficient wallet balance")

// Repository owns the settlement critical sections: the wallet debit and the
// idempotent webhook mark-paid. Both touch the order row and must be atomic,
// so they run as single transactions here instead of being stitched together
// in the service.
type Repository interface {
	// DebitWalletAndMarkPaid atomically debits the wallet and marks the
	// order paid. Returns the balance at decision time; a cap failure is
	// reported via IsInsufficientFunds.
	DebitWalletAndMarkPaid(ctx context.Context, orderID, userID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
	// MarkPaidIfPending marks the order paid only when it is still pending.
	// Returns false without error when the order was already settled, which
	// is the webhook duplicate-delivery guard.
	MarkPaidIfPending(ctx context.Context, orderID uuid.UUID, providerRef string) (bool, error)
	// RecordProviderOutcome stores the provider status without touching the
	// order status.
	RecordProviderOutcome(ctx context.Context, orderID uuid.UUID, providerStatus, providerRef string) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

// IsInsufficientFunds reports whether a wallet debit failed on balance.
func IsInsufficientFunds(err error) bool {
	return errors.Is(err, ErrInsufficientFunds)
}

func (r *postgresRepository) DebitWalletAndMarkPaid(ctx context.Context, orderID, userID uuid.UUID, amount decimal.Decimal) (balance decimal.Decimal, err error) {
	tx, beginErr := r.db.Begin(ctx)
	if beginErr != nil {
		return decimal.Zero, fmt.Errorf("repository: failed to begin transaction: %w", beginErr)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id", orderID).Msg("Failed to rollback wallet settlement")
			}
		} else {
			if commitErr := tx.Commit(ctx); commitErr != nil {
				err = fmt.Errorf("repository: failed to commit wallet settlement: %w", commitErr)
			}
		}
	}()

	// Row lock closes the double-spend window between the balance read and
	// the debit.
	err = tx.QueryRow(ctx, `SELECT wallet_balance FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, order.ErrOrderNotFound
		}
		return decimal.Zero, fmt.Errorf("repository: failed to read wallet balance for user %s: %w", userID, err)
	}

	if balance.LessThan(amount) {
		err = ErrInsufficientFunds
		return balance, err
	}

	now := time.Now().UTC()

	_, err = tx.Exec(ctx, `UPDATE users SET wallet_balance = wallet_balance - $1, updated_at = $2 WHERE id = $3`, amount, now, userID)
	if err != nil {
		return balance, fmt.Errorf("repository: failed to debit wallet for user %s: %w", userID, err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET status = $1, payment_method = $2, provider_status = 'succeeded', updated_at = $3
		WHERE id = $4 AND status = $5
	`, string(order.StatusPaid), string(order.MethodWallet), now, orderID, string(order.StatusPending))
	if err != nil {
		return balance, fmt.Errorf("repository: failed to mark order %s paid: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		err = order.ErrOrderNotFound
		return balance, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO order_status_events (order_id, status, source, note, at)
		VALUES ($1, $2, $3, $4, $5)
	`, orderID, string(order.StatusPaid), string(order.SourceSystem), "wallet debit", now)
	if err != nil {
		return balance, fmt.Errorf("repository: failed to append status event for order %s: %w", orderID, err)
	}

	return balance, nil
}

func (r *postgresRepository) MarkPaidIfPending(ctx context.Context, orderID uuid.UUID, providerRef string) (applied bool, err error) {
	tx, beginErr := r.db.Begin(ctx)
	if beginErr != nil {
		return false, fmt.Errorf("repository: failed to begin transaction: %w", beginErr)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id", orderID).Msg("Failed to rollback webhook settlement")
			}
		} else {
			if commitErr := tx.Commit(ctx); commitErr != nil {
				err = fmt.Errorf("repository: failed to commit webhook settlement: %w", commitErr)
			}
		}
	}()

	now := time.Now().UTC()

	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET status = $1, provider_status = 'succeeded', provider_ref = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`, string(order.StatusPaid), providerRef, now, orderID, string(order.StatusPending))
	if err != nil {
		return false, fmt.Errorf("repository: failed to mark order %s paid: %w", orderID, err)
	}

	if tag.RowsAffected() == 0 {
		// Conditional update missed: either the order does not exist or it
		// already left pending. The status read stays inside this
		// transaction so a concurrent duplicate cannot slip through.
		var status string
		err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, orderID).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				err = order.ErrOrderNotFound
			}
			return false, err
		}
		return false, nil
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO order_status_events (order_id, status, source, note, at)
		VALUES ($1, $2, $3, $4, $5)
	`, orderID, string(order.StatusPaid), string(order.SourceSystem), "provider webhook", now)
	if err != nil {
		return false, fmt.Errorf("repository: failed to append status event for order %s: %w", orderID, err)
	}

	return true, nil
}

func (r *postgresRepository) RecordProviderOutcome(ctx context.Context, orderID uuid.UUID, providerStatus, providerRef string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE orders
		SET provider_status = $1, provider_ref = $2, updated_at = $3
		WHERE id = $4
	`, providerStatus, providerRef, time.Now().UTC(), orderID)
	if err != nil {
		return fmt.Errorf("repository: failed to record provider outcome for order %s: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrOrderNotFound
	}

	return nil
}
