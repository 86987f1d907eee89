package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/apperr"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/coupon"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/inventory"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/notify"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/pricing"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/user"
)

var ErrInvalidPaymentMethod = apperr.New("INVALID_PAYMENT_METHOD", apperr.KindValidation, "unknown payment method")

// CreateOptions are the member checkout options.
type CreateOptions struct {
	CouponCode    string
	AddressIndex  *int
	PaymentMethod string
}

// GuestCheckout carries everything a guest order needs up front: there is no
// stored cart or address book to resolve against.
type GuestCheckout struct {
	Email         string
	Name          string
	Address       *user.Address
	Items         []inventory.ItemRequest
	CouponCode    string
	PaymentMethod string
}

// InventoryValidator is the slice of the inventory validator this service
// needs; *inventory.Validator satisfies it.
type InventoryValidator interface {
	ValidateItems(ctx context.Context, items []inventory.ItemRequest) ([]inventory.LineItem, decimal.Decimal, error)
}

type Service interface {
	CreateFromCart(ctx context.Context, userID uuid.UUID, opts CreateOptions) (*Order, error)
	CreateGuestOrder(ctx context.Context, req GuestCheckout) (*Order, error)
	GetByID(ctx context.Context, id uuid.UUID, actor Actor) (*Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Order, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]Order, error)
	ListAll(ctx context.Context, page, limit int) ([]Order, int, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, next OrderStatus, actor Actor, note string) (*Order, error)
}

type service struct {
	repo      Repository
	users     user.Directory
	inventory InventoryValidator
	coupons   coupon.Service
	notifier  notify.Sender
}

func NewService(repo Repository, users user.Directory, inv InventoryValidator, coupons coupon.Service, notifier notify.Sender) Service {
	return &service{
		repo:      repo,
		users:     users,
		inventory: inv,
		coupons:   coupons,
		notifier:  notifier,
	}
}

func (s *service) CreateFromCart(ctx context.Context, userID uuid.UUID, opts CreateOptions) (*Order, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	items := make([]inventory.ItemRequest, 0, len(u.Cart))
	for _, cartItem := range u.Cart {
		items = append(items, inventory.ItemRequest{ProductID: cartItem.ProductID, Quantity: cartItem.Quantity})
	}

	var address *user.Address
	if opts.AddressIndex != nil {
		// Out-of-range index omits the address rather than failing; the
		// customer can attach one later.
		if idx := *opts.AddressIndex; idx >= 0 && idx < len(u.Addresses) {
			addr := u.Addresses[idx]
			address = &addr
		} else {
			log.Warn().
				Stringer("user_id", userID).
				Int("address_index", *opts.AddressIndex).
				Msg("service: shipping address index out of range, order created without address")
		}
	}

	o, err := s.createOrder(ctx, createParams{
		userID:        &userID,
		email:         u.Email,
		name:          u.Name,
		items:         items,
		address:       address,
		couponCode:    opts.CouponCode,
		couponUserKey: userID.String(),
		paymentMethod: opts.PaymentMethod,
	})
	if err != nil {
		return nil, err
	}

	if err := s.users.ClearCart(ctx, userID); err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Stringer("order_id", o.ID).Msg("service: failed to clear cart after order creation")
	}

	return o, nil
}

func (s *service) CreateGuestOrder(ctx context.Context, req GuestCheckout) (*Order, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	return s.createOrder(ctx, createParams{
		email:         email,
		name:          req.Name,
		items:         req.Items,
		address:       req.Address,
		couponCode:    req.CouponCode,
		couponUserKey: email,
		paymentMethod: req.PaymentMethod,
	})
}

type createParams struct {
	userID        *uuid.UUID
	email         string
	name          string
	items         []inventory.ItemRequest
	address       *user.Address
	couponCode    string
	couponUserKey string
	paymentMethod string
}

func (s *service) createOrder(ctx context.Context, p createParams) (*Order, error) {
	lineItems, subtotal, err := s.inventory.ValidateItems(ctx, p.items)
	if err != nil {
		return nil, err
	}

	discount := decimal.Zero
	var appliedCoupon *coupon.Coupon
	if p.couponCode != "" {
		discount, appliedCoupon, err = s.coupons.Validate(ctx, p.couponCode, p.couponUserKey, subtotal)
		if err != nil {
			return nil, err
		}
	}

	method, ok := NormalizePaymentMethod(p.paymentMethod)
	if !ok {
		return nil, ErrInvalidPaymentMethod.WithDetails(map[string]any{"payment_method": p.paymentMethod})
	}

	items := make([]OrderItem, 0, len(lineItems))
	for _, li := range lineItems {
		items = append(items, OrderItem{
			ProductID: li.ProductID,
			SellerID:  li.SellerID,
			Title:     li.Title,
			UnitPrice: li.UnitPrice,
			Quantity:  li.Quantity,
		})
	}

	now := time.Now().UTC()
	o := &Order{
		UserID:          p.userID,
		CustomerEmail:   p.email,
		CustomerName:    p.name,
		Items:           items,
		ShippingAddress: p.address,
		Price:           pricing.Assemble(subtotal, discount, appliedCoupon),
		Payment: PaymentInfo{
			Method:         method,
			ProviderStatus: "pending",
		},
		Status: StatusPending,
		Timeline: []StatusEvent{
			{Status: StatusPending, At: now, Source: SourceSystem},
		},
	}

	if err := s.repo.Create(ctx, o); err != nil {
		log.Error().Err(err).Msg("service: failed to create order in repository")
		return nil, fmt.Errorf("service: failed to create order: %w", err)
	}

	// The order is durable from here on. Coupon consumption failing now is
	// eventual-consistency territory, not a rollback: log loudly and leave
	// the breadcrumb for reconciliation.
	if appliedCoupon != nil {
		if err := s.coupons.ConsumeUsage(ctx, appliedCoupon, p.couponUserKey); err != nil {
			log.Error().
				Err(err).
				Stringer("order_id", o.ID).
				Stringer("coupon_id", appliedCoupon.ID).
				Str("user_key", p.couponUserKey).
				Msg("service: coupon consumption failed after order commit, needs reconciliation")
		}
	}

	notify.Dispatch(ctx, s.notifier, notify.Notification{
		OrderID: o.ID.String(),
		Status:  string(o.Status),
		Email:   o.CustomerEmail,
		Name:    o.CustomerName,
	})

	log.Info().Stringer("order_id", o.ID).Str("total", o.Price.Total.String()).Msg("service: order created")

	return o, nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID, actor Actor) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch actor.Role {
	case RoleAdmin:
	case RoleSeller:
		if !o.HasSellerItem(actor.ID) {
			return nil, ErrForbidden
		}
	default:
		if !o.OwnedBy(actor.ID) {
			return nil, ErrForbidden
		}
	}

	return o, nil
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	orders, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to fetch user orders: %w", err)
	}
	return orders, nil
}

func (s *service) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]Order, error) {
	orders, err := s.repo.ListBySeller(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to fetch seller orders: %w", err)
	}
	return orders, nil
}

func (s *service) ListAll(ctx context.Context, page, limit int) ([]Order, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	orders, total, err := s.repo.ListAll(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("service: failed to fetch orders: %w", err)
	}
	return orders, total, nil
}

func (s *service) UpdateStatus(ctx context.Context, orderID uuid.UUID, next OrderStatus, actor Actor, note string) (*Order, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := CanSetStatus(actor, o, next); err != nil {
		log.Warn().
			Stringer("order_id", orderID).
			Str("role", string(actor.Role)).
			Stringer("current_status", o.Status).
			Stringer("new_status", next).
			Msg("service: status change rejected")
		return nil, err
	}

	event := StatusEvent{
		Status: next,
		At:     time.Now().UTC(),
		Source: sourceForRole(actor.Role),
		Note:   note,
	}
	if err := s.repo.UpdateStatus(ctx, orderID, next, event); err != nil {
		return nil, fmt.Errorf("service: failed to update order status: %w", err)
	}

	o.Status = next
	o.Timeline = append(o.Timeline, event)

	notify.Dispatch(ctx, s.notifier, notify.Notification{
		OrderID: o.ID.String(),
		Status:  string(next),
		Email:   o.CustomerEmail,
		Name:    o.CustomerName,
	})

	log.Info().Stringer("order_id", orderID).Stringer("new_status", next).Str("source", string(event.Source)).Msg("service: order status updated")

	return o, nil
}
