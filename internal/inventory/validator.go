package inventory

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/apperr"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/catalog"
)

var (
	ErrCartEmpty       = apperr.New("CART_EMPTY", apperr.KindValidation, "cart is empty")
	ErrInvalidQuantity = apperr.New("INVALID_QUANTITY", apperr.KindValidation, "item quantity must be at least 1")
	ErrProductNotFound = apperr.New("PRODUCT_NOT_FOUND", apperr.KindNotFound, "product not found")
	ErrStockConflict   = apperr.New("STOCK_CONFLICT", apperr.KindConflict, "insufficient stock")
)

// ItemRequest is a (product, quantity) pair from a cart or a guest item list.
type ItemRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// LineItem is the priced snapshot produced for each validated request. It is
// decoupled from the live product so later catalog edits never touch
// historical orders.
type LineItem struct {
	ProductID uuid.UUID
	SellerID  uuid.UUID
	Title     string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Validator checks a list of item requests against the catalog and prices
// them. It is a pure read: stock is NOT decremented or reserved here, so two
// concurrent checkouts of the same product can both pass against the same
// stock snapshot and oversell. Closing that window needs a conditional stock
// decrement at persist time; until then the gap is deliberate and documented.
type Validator struct {
	products catalog.Repository
}

func NewValidator(products catalog.Repository) *Validator {
	return &Validator{products: products}
}

// ValidateItems fetches all referenced products in one batch and verifies
// existence and sufficient stock, returning priced line items and the
// subtotal.
func (v *Validator) ValidateItems(ctx context.Context, items []ItemRequest) ([]LineItem, decimal.Decimal, error) {
	if len(items) == 0 {
		return nil, decimal.Zero, ErrCartEmpty
	}

	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if item.Quantity < 1 {
			return nil, decimal.Zero, ErrInvalidQuantity.WithDetails(map[string]any{
				"product_id": item.ProductID.String(),
			})
		}
		ids = append(ids, item.ProductID)
	}

	products, err := v.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("inventory: failed to fetch products: %w", err)
	}

	lineItems := make([]LineItem, 0, len(items))
	subtotal := decimal.Zero

	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok {
			return nil, decimal.Zero, ErrProductNotFound.WithDetails(map[string]any{
				"product_id": item.ProductID.String(),
			})
		}

		if product.Stock < item.Quantity {
			return nil, decimal.Zero, ErrStockConflict.WithDetails(map[string]any{
				"product_id": item.ProductID.String(),
				"requested":  item.Quantity,
				"available":  product.Stock,
			})
		}

		lineItems = append(lineItems, LineItem{
			ProductID: product.ID,
			SellerID:  product.SellerID,
			Title:     product.Title,
			UnitPrice: product.Price,
			Quantity:  item.Quantity,
		})
		subtotal = subtotal.Add(product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	return lineItems, subtotal, nil
}
