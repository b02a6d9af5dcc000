package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/okybprasetya/marketplace/internal/cart"
	"github.com/okybprasetya/marketplace/internal/handler"
	"github.com/okybprasetya/marketplace/internal/order"
)

// NewRouter wires the HTTP surface. The payment webhook is mounted
// outside the auth group: the provider authenticates with a payload
// signature, not a bearer token.
func NewRouter(jwtSecret string, cartSvc cart.Service, orderSvc order.Service) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	cartHandler := handler.NewCartHandler(cartSvc)
	orderHandler := handler.NewOrderHandler(orderSvc)

	orderHandler.RegisterWebhook(r)

	r.Group(func(authed chi.Router) {
		authed.Use(handler.RequireAuth(jwtSecret))
		cartHandler.RegisterRoutes(authed)
		orderHandler.RegisterRoutes(authed)
	})

	return r
}
