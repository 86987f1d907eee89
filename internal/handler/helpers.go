package handler

import (
	"net/http"

	"github.com/gofrs/uuid"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/apperr"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/order"
)

var (
	errUnauthorized = apperr.New("UNAUTHORIZED", apperr.KindUnauthorized, "missing or invalid caller identity")
	errInvalidBody  = apperr.New("INVALID_BODY", apperr.KindValidation, "invalid request body")
	errInvalidID    = apperr.New("INVALID_ID", apperr.KindValidation, "invalid id")
)

// actorFromRequest reads the caller identity injected by the API gateway.
// Authentication itself happens upstream; these headers are trusted here.
func actorFromRequest(r *http.Request) (order.Actor, error) {
	rawID := r.Header.Get("X-User-Id")
	if rawID == "" {
		return order.Actor{}, errUnauthorized
	}

	id, err := uuid.FromString(rawID)
	if err != nil {
		return order.Actor{}, errUnauthorized
	}

	role := order.Role(r.Header.Get("X-User-Role"))
	switch role {
	case order.RoleAdmin, order.RoleSeller:
	default:
		role = order.RoleCustomer
	}

	return order.Actor{ID: id, Role: role}, nil
}
