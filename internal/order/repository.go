package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/apperr"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/user"
)

var (
	ErrOrderNotFound = apperr.New("ORDER_NOT_FOUND", apperr.KindNotFound, "order not found")
)

type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Order, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]Order, error)
	ListAll(ctx context.Context, limit, offset int) ([]Order, int, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, status OrderStatus, event StatusEvent) error
	SetPaymentInfo(ctx context.Context, orderID uuid.UUID, info PaymentInfo) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const orderColumns = `
	id, user_id, customer_email, customer_name, shipping_address,
	subtotal, discount, shipping, tax, total, coupon,
	payment_method, provider_ref, provider_status,
	status, created_at, updated_at
`

// Create persists the order, its line items and the initial timeline entry
// in one transaction. Nothing is visible until the whole unit commits.
func (r *postgresRepository) Create(ctx context.Context, o *Order) (err error) {
	if o.ID == uuid.Nil {
		genID, genErr := uuid.NewV4()
		if genErr != nil {
			return fmt.Errorf("repository: failed to generate order ID: %w", genErr)
		}
		o.ID = genID
	}

	tx, beginErr := r.db.Begin(ctx)
	if beginErr != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", beginErr)
	}
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic_value", p).Stringer("order_id", o.ID).Msg("Panic recovered during order create, rolling back")
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id", o.ID).Msg("Failed to rollback transaction after panic")
			}
			panic(p)
		} else if err != nil {
			log.Warn().Err(err).Stringer("order_id", o.ID).Msg("Transaction for order create failed, rolling back")
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id", o.ID).Msg("Failed to rollback transaction")
			}
		} else {
			if commitErr := tx.Commit(ctx); commitErr != nil {
				err = fmt.Errorf("repository: failed to commit transaction: %w", commitErr)
			}
		}
	}()

	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now

	var addressJSON []byte
	if o.ShippingAddress != nil {
		addressJSON, err = json.Marshal(o.ShippingAddress)
		if err != nil {
			return fmt.Errorf("repository: failed to encode shipping address: %w", err)
		}
	}

	var couponJSON []byte
	if o.Price.Coupon != nil {
		couponJSON, err = json.Marshal(o.Price.Coupon)
		if err != nil {
			return fmt.Errorf("repository: failed to encode coupon summary: %w", err)
		}
	}

	queryOrder := `
		INSERT INTO orders (id, user_id, customer_email, customer_name, shipping_address,
			subtotal, discount, shipping, tax, total, coupon,
			payment_method, provider_ref, provider_status, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err = tx.Exec(ctx, queryOrder,
		o.ID,
		o.UserID,
		o.CustomerEmail,
		o.CustomerName,
		addressJSON,
		o.Price.Subtotal,
		o.Price.Discount,
		o.Price.Shipping,
		o.Price.Tax,
		o.Price.Total,
		couponJSON,
		string(o.Payment.Method),
		o.Payment.ProviderRef,
		o.Payment.ProviderStatus,
		string(o.Status),
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}

	queryItem := `
		INSERT INTO order_items (id, order_id, product_id, seller_id, title, unit_price, quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for i := range o.Items {
		item := &o.Items[i]

		itemID, genErr := uuid.NewV4()
		if genErr != nil {
			return fmt.Errorf("repository: failed to generate order item ID: %w", genErr)
		}
		item.ID = itemID
		item.OrderID = o.ID

		_, err = tx.Exec(ctx, queryItem,
			item.ID,
			item.OrderID,
			item.ProductID,
			item.SellerID,
			item.Title,
			item.UnitPrice,
			item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order item for order %s: %w", o.ID, err)
		}
	}

	for _, event := range o.Timeline {
		if err = insertStatusEvent(ctx, tx, o.ID, event); err != nil {
			return err
		}
	}

	return nil
}

func insertStatusEvent(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, event StatusEvent) error {
	query := `
		INSERT INTO order_status_events (order_id, status, source, note, at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := tx.Exec(ctx, query, orderID, string(event.Status), string(event.Source), event.Note, event.At)
	if err != nil {
		return fmt.Errorf("repository: failed to insert status event for order %s: %w", orderID, err)
	}
	return nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o           Order
		addressJSON []byte
		couponJSON  []byte
	)
	err := row.Scan(
		&o.ID,
		&o.UserID,
		&o.CustomerEmail,
		&o.CustomerName,
		&addressJSON,
		&o.Price.Subtotal,
		&o.Price.Discount,
		&o.Price.Shipping,
		&o.Price.Tax,
		&o.Price.Total,
		&couponJSON,
		&o.Payment.Method,
		&o.Payment.ProviderRef,
		&o.Payment.ProviderStatus,
		&o.Status,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(addressJSON) > 0 {
		o.ShippingAddress = &user.Address{}
		if err := json.Unmarshal(addressJSON, o.ShippingAddress); err != nil {
			return nil, fmt.Errorf("repository: failed to decode shipping address: %w", err)
		}
	}
	if len(couponJSON) > 0 {
		if err := json.Unmarshal(couponJSON, &o.Price.Coupon); err != nil {
			return nil, fmt.Errorf("repository: failed to decode coupon summary: %w", err)
		}
	}

	o.Items = make([]OrderItem, 0)
	o.Timeline = make([]StatusEvent, 0)

	return &o, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	o, err := scanOrder(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", id, err)
	}

	if err := r.loadItems(ctx, map[uuid.UUID]*Order{o.ID: o}, []uuid.UUID{o.ID}); err != nil {
		return nil, err
	}

	timelineQuery := `
		SELECT status, source, note, at
		FROM order_status_events
		WHERE order_id = $1
		ORDER BY id
	`
	rows, err := r.db.Query(ctx, timelineQuery, id)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query status events for order %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var event StatusEvent
		if err := rows.Scan(&event.Status, &event.Source, &event.Note, &event.At); err != nil {
			return nil, fmt.Errorf("repository: failed to scan status event for order %s: %w", id, err)
		}
		o.Timeline = append(o.Timeline, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating status events for order %s: %w", id, err)
	}

	return o, nil
}

func (r *postgresRepository) loadItems(ctx context.Context, ordersMap map[uuid.UUID]*Order, orderIDs []uuid.UUID) error {
	query := `
		SELECT id, order_id, product_id, seller_id, title, unit_price, quantity
		FROM order_items
		WHERE order_id = ANY($1)
	`

	rows, err := r.db.Query(ctx, query, orderIDs)
	if err != nil {
		return fmt.Errorf("repository: failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.SellerID,
			&item.Title,
			&item.UnitPrice,
			&item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to scan order item: %w", err)
		}

		if o, ok := ordersMap[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("repository: error iterating order items: %w", err)
	}

	return nil
}

func (r *postgresRepository) listOrders(ctx context.Context, query string, args ...any) ([]Order, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders: %w", err)
	}
	defer rows.Close()

	ordersMap := make(map[uuid.UUID]*Order)
	var orderIDs []uuid.UUID

	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order: %w", err)
		}
		ordersMap[o.ID] = o
		orderIDs = append(orderIDs, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating orders: %w", err)
	}

	if len(orderIDs) == 0 {
		return []Order{}, nil
	}

	if err := r.loadItems(ctx, ordersMap, orderIDs); err != nil {
		return nil, err
	}

	result := make([]Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		result = append(result, *ordersMap[id])
	}

	return result, nil
}

func (r *postgresRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`
	return r.listOrders(ctx, query, userID)
}

func (r *postgresRepository) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE id IN (SELECT DISTINCT order_id FROM order_items WHERE seller_id = $1)
		ORDER BY created_at DESC`
	return r.listOrders(ctx, query, sellerID)
}

func (r *postgresRepository) ListAll(ctx context.Context, limit, offset int) ([]Order, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM orders`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repository: failed to count orders: %w", err)
	}

	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	orders, err := r.listOrders(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

// UpdateStatus writes the new status and appends the timeline entry in one
// transaction.
func (r *postgresRepository) UpdateStatus(ctx context.Context, orderID uuid.UUID, status OrderStatus, event StatusEvent) (err error) {
	tx, beginErr := r.db.Begin(ctx)
	if beginErr != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", beginErr)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id", orderID).Msg("Failed to rollback status update")
			}
		} else {
			if commitErr := tx.Commit(ctx); commitErr != nil {
				err = fmt.Errorf("repository: failed to commit status update: %w", commitErr)
			}
		}
	}()

	query := `
		UPDATE orders
		SET status = $1, updated_at = $2
		WHERE id = $3
	`
	tag, err := tx.Exec(ctx, query, string(status), time.Now().UTC(), orderID)
	if err != nil {
		return fmt.Errorf("repository: failed to update order status %s: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}

	return insertStatusEvent(ctx, tx, orderID, event)
}

func (r *postgresRepository) SetPaymentInfo(ctx context.Context, orderID uuid.UUID, info PaymentInfo) error {
	query := `
		UPDATE orders
		SET payment_method = $1, provider_ref = $2, provider_status = $3, updated_at = $4
		WHERE id = $5
	`

	tag, err := r.db.Exec(ctx, query,
		string(info.Method),
		info.ProviderRef,
		info.ProviderStatus,
		time.Now().UTC(),
		orderID,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to update payment info for order %s: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}

	return nil
}
