package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/apperr"
)

var ErrUserNotFound = apperr.New("USER_NOT_FOUND", apperr.KindNotFound, "user not found")

// Address is a saved shipping address. Orders keep their own copy, so edits
// here never touch order history.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

type CartItem struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

type User struct {
	ID            uuid.UUID       `json:"id"`
	Email         string          `json:"email"`
	Name          string          `json:"name"`
	Addresses     []Address       `json:"addresses"`
	Cart          []CartItem      `json:"cart"`
	WalletBalance decimal.Decimal `json:"wallet_balance"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Directory is the slice of the user service this core consumes: cart
// snapshot and clearing, saved addresses, and the wallet balance read.
// Profile management lives elsewhere.
type Directory interface {
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	ClearCart(ctx context.Context, id uuid.UUID) error
}

type postgresDirectory struct {
	db *pgxpool.Pool
}

func NewDirectory(db *pgxpool.Pool) Directory {
	return &postgresDirectory{db: db}
}

func (d *postgresDirectory) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `
		SELECT id, email, name, addresses, cart, wallet_balance, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var (
		u             User
		addressesJSON []byte
		cartJSON      []byte
	)
	err := d.db.QueryRow(ctx, query, id).Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&addressesJSON,
		&cartJSON,
		&u.WalletBalance,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("repository: failed to select user by id %s: %w", id, err)
	}

	if len(addressesJSON) > 0 {
		if err := json.Unmarshal(addressesJSON, &u.Addresses); err != nil {
			return nil, fmt.Errorf("repository: failed to decode addresses for user %s: %w", id, err)
		}
	}
	if len(cartJSON) > 0 {
		if err := json.Unmarshal(cartJSON, &u.Cart); err != nil {
			return nil, fmt.Errorf("repository: failed to decode cart for user %s: %w", id, err)
		}
	}

	return &u, nil
}

func (d *postgresDirectory) ClearCart(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE users
		SET cart = '[]'::jsonb, updated_at = $2
		WHERE id = $1
	`

	tag, err := d.db.Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("repository: failed to clear cart for user %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}
