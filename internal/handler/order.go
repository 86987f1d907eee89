package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/httpx"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/inventory"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/order"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/user"
)

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	svc order.Service
}

func NewOrderHandler(svc order.Service) *OrderHandler {
	return &OrderHandler{svc: svc}
}

type createOrderRequest struct {
	CouponCode    string `json:"coupon_code,omitempty"`
	AddressIndex  *int   `json:"address_index,omitempty"`
	PaymentMethod string `json:"payment_method,omitempty"`
}

// CreateOrder turns the caller's cart into an order.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, errInvalidBody)
		return
	}

	o, err := h.svc.CreateFromCart(r.Context(), actor.ID, order.CreateOptions{
		CouponCode:    req.CouponCode,
		AddressIndex:  req.AddressIndex,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.WriteData(w, http.StatusCreated, o, "order placed")
}

type guestOrderRequest struct {
	Email         string                  `json:"email"`
	Name          string                  `json:"name"`
	Address       *user.Address           `json:"address,omitempty"`
	Items         []inventory.ItemRequest `json:"items"`
	CouponCode    string                  `json:"coupon_code,omitempty"`
	PaymentMethod string                  `json:"payment_method,omitempty"`
}

// CreateGuestOrder places an order without a registered account.
func (h *OrderHandler) CreateGuestOrder(w http.ResponseWriter, r *http.Request) {
	var req guestOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, errInvalidBody)
		return
	}

	o, err := h.svc.CreateGuestOrder(r.Context(), order.GuestCheckout{
		Email:         req.Email,
		Name:          req.Name,
		Address:       req.Address,
		Items:         req.Items,
		CouponCode:    req.CouponCode,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.WriteData(w, http.StatusCreated, o, "order placed")
}

// GetOrderByID returns one order, ownership-checked.
func (h *OrderHandler) GetOrderByID(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, errInvalidID)
		return
	}

	o, err := h.svc.GetByID(r.Context(), id, actor)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, o, "")
}

// ListMyOrders returns the caller's orders.
func (h *OrderHandler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	orders, err := h.svc.ListByUser(r.Context(), actor.ID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, orders, "")
}

// ListSellerOrders returns orders containing the caller's products.
func (h *OrderHandler) ListSellerOrders(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if actor.Role != order.RoleSeller && actor.Role != order.RoleAdmin {
		httpx.WriteError(w, order.ErrForbidden)
		return
	}

	orders, err := h.svc.ListBySeller(r.Context(), actor.ID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, orders, "")
}

type pagedOrders struct {
	Orders []order.Order `json:"orders"`
	Total  int           `json:"total"`
	Page   int           `json:"page"`
	Limit  int           `json:"limit"`
}

// ListAllOrders is the paginated admin listing.
func (h *OrderHandler) ListAllOrders(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if actor.Role != order.RoleAdmin {
		httpx.WriteError(w, order.ErrForbidden)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	orders, total, err := h.svc.ListAll(r.Context(), page, limit)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, pagedOrders{Orders: orders, Total: total, Page: page, Limit: limit}, "")
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

// UpdateStatus applies a seller or admin status change; the policy decides
// what the caller may do.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, errInvalidID)
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, errInvalidBody)
		return
	}

	o, err := h.svc.UpdateStatus(r.Context(), id, order.OrderStatus(req.Status), actor, req.Note)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, o, "status updated")
}
