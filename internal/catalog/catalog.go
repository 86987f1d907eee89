package catalog

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Product is the read model this service consumes. The catalog itself is
// owned elsewhere; checkout only ever reads price and stock at validation
// time and never writes back.
type Product struct {
	ID       uuid.UUID       `json:"id"`
	SellerID uuid.UUID       `json:"seller_id"`
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
}

type Repository interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Product, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]Product, error) {
	query := `
		SELECT id, seller_id, title, price, stock
		FROM products
		WHERE id = ANY($1)
	`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query products: %w", err)
	}
	defer rows.Close()

	products := make(map[uuid.UUID]Product, len(ids))
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SellerID, &p.Title, &p.Price, &p.Stock); err != nil {
			return nil, fmt.Errorf("repository: failed to scan product: %w", err)
		}
		products[p.ID] = p
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating products: %w", err)
	}

	return products, nil
}
