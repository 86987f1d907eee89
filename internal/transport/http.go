package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/handler"
)

// NewRouter wires the HTTP surface of the checkout core.
func NewRouter(orders *handler.OrderHandler, payments *handler.PaymentHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", orders.CreateOrder)
		r.Post("/guest", orders.CreateGuestOrder)
		r.Get("/", orders.ListMyOrders)
		r.Get("/{id}", orders.GetOrderByID)
		r.Post("/{id}/payment", payments.CreateSettlement)
	})

	r.Route("/seller/orders", func(r chi.Router) {
		r.Get("/", orders.ListSellerOrders)
		r.Patch("/{id}/status", orders.UpdateStatus)
	})

	r.Route("/admin/orders", func(r chi.Router) {
		r.Get("/", orders.ListAllOrders)
		r.Patch("/{id}/status", orders.UpdateStatus)
	})

	r.Post("/payments/webhook", payments.Webhook)

	return r
}
