package order

import (
	"github.com/gofrs/uuid"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/apperr"
)

var (
	ErrForbidden         = apperr.New("FORBIDDEN", apperr.KindForbidden, "not allowed to act on this order")
	ErrInvalidStatus     = apperr.New("INVALID_STATUS", apperr.KindValidation, "unknown order status")
	ErrInvalidTransition = apperr.New("INVALID_STATUS_TRANSITION", apperr.KindBusinessRule, "status transition not allowed")
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleSeller   Role = "seller"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system"
)

// Actor is whoever is attempting an operation on an order.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// allowedTransitions is the system transition graph. delivered and cancelled
// are terminal.
var allowedTransitions = map[OrderStatus]map[OrderStatus]bool{
	StatusPending: {
		StatusPaid:      true,
		StatusCancelled: true,
	},
	StatusPaid: {
		StatusShipped:   true,
		StatusCancelled: true,
	},
	StatusShipped: {
		StatusDelivered: true,
		StatusCancelled: true,
	},
	StatusDelivered: {},
	StatusCancelled: {},
}

var sellerStatuses = map[OrderStatus]bool{
	StatusShipped:   true,
	StatusDelivered: true,
	StatusCancelled: true,
}

// CanSetStatus is the single policy gate for status changes. All
// ownership/role checks live here rather than being duplicated per handler.
//
// Admins may set any of the five defined statuses directly, a deliberate
// broad override. Sellers may only set shipped/delivered/cancelled and only
// on orders carrying at least one of their own line items. Everything else
// follows the system transition graph.
func CanSetStatus(actor Actor, o *Order, next OrderStatus) error {
	if !next.Valid() {
		return ErrInvalidStatus.WithDetails(map[string]any{"status": string(next)})
	}

	switch actor.Role {
	case RoleAdmin:
		return nil
	case RoleSeller:
		if !sellerStatuses[next] {
			return ErrForbidden.WithDetails(map[string]any{"status": string(next)})
		}
		if !o.HasSellerItem(actor.ID) {
			return ErrForbidden
		}
		return nil
	case RoleSystem:
		if !allowedTransitions[o.Status][next] {
			return ErrInvalidTransition.WithDetails(map[string]any{
				"from": string(o.Status),
				"to":   string(next),
			})
		}
		return nil
	default:
		return ErrForbidden
	}
}

// sourceForRole maps the acting role onto the timeline source tag.
func sourceForRole(role Role) StatusSource {
	switch role {
	case RoleAdmin:
		return SourceAdmin
	case RoleSeller:
		return SourceSeller
	default:
		return SourceSystem
	}
}
