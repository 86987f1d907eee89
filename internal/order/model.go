package order

import (
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/pricing"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/user"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPaid      OrderStatus = "paid"
	StatusShipped   OrderStatus = "shipped"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
)

func (os OrderStatus) String() string {
	return string(os)
}

// Valid reports whether the value is one of the five defined statuses.
func (os OrderStatus) Valid() bool {
	switch os {
	case StatusPending, StatusPaid, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

type PaymentMethod string

const (
	MethodStripe   PaymentMethod = "stripe"
	MethodPayLater PaymentMethod = "paylater"
	MethodCOD      PaymentMethod = "cod"
	MethodWallet   PaymentMethod = "wallet"
)

// NormalizePaymentMethod maps a request value onto the fixed method set.
// An empty value defaults to the primary gateway.
func NormalizePaymentMethod(raw string) (PaymentMethod, bool) {
	switch PaymentMethod(strings.ToLower(strings.TrimSpace(raw))) {
	case "":
		return MethodStripe, true
	case MethodStripe:
		return MethodStripe, true
	case MethodPayLater:
		return MethodPayLater, true
	case MethodCOD:
		return MethodCOD, true
	case MethodWallet:
		return MethodWallet, true
	}
	return "", false
}

// StatusSource identifies who drove a status change.
type StatusSource string

const (
	SourceSystem StatusSource = "system"
	SourceSeller StatusSource = "seller"
	SourceAdmin  StatusSource = "admin"
)

// StatusEvent is one entry of the append-only status timeline.
type StatusEvent struct {
	Status OrderStatus  `json:"status"`
	At     time.Time    `json:"at"`
	Source StatusSource `json:"source"`
	Note   string       `json:"note,omitempty"`
}

// OrderItem is an immutable snapshot of a purchased product, captured at
// order creation. Later catalog edits never affect it.
type OrderItem struct {
	ID        uuid.UUID       `json:"id"`
	OrderID   uuid.UUID       `json:"order_id"`
	ProductID uuid.UUID       `json:"product_id"`
	SellerID  uuid.UUID       `json:"seller_id"`
	Title     string          `json:"title"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// PaymentInfo is the payment sub-record on an order. ProviderRef correlates
// asynchronous provider webhooks back to exactly one order.
type PaymentInfo struct {
	Method         PaymentMethod `json:"method"`
	ProviderRef    string        `json:"provider_ref,omitempty"`
	ProviderStatus string        `json:"provider_status"`
}

type Order struct {
	ID              uuid.UUID        `json:"id"`
	UserID          *uuid.UUID       `json:"user_id,omitempty"` // nil for guest orders
	CustomerEmail   string           `json:"customer_email"`
	CustomerName    string           `json:"customer_name"`
	Items           []OrderItem      `json:"items"`
	ShippingAddress *user.Address    `json:"shipping_address,omitempty"`
	Price           pricing.Snapshot `json:"price"`
	Payment         PaymentInfo      `json:"payment"`
	Status          OrderStatus      `json:"status"`
	Timeline        []StatusEvent    `json:"timeline"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// HasSellerItem reports whether at least one line item belongs to the seller.
func (o *Order) HasSellerItem(sellerID uuid.UUID) bool {
	for _, item := range o.Items {
		if item.SellerID == sellerID {
			return true
		}
	}
	return false
}

// OwnedBy reports whether the order belongs to the given registered user.
func (o *Order) OwnedBy(userID uuid.UUID) bool {
	return o.UserID != nil && *o.UserID == userID
}
