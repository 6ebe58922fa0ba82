package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/safar/shop-checkout/internal/identity"
	"github.com/safar/shop-checkout/internal/metrics"
)

func NewRouter(h *Handler, auth *identity.Authenticator, m *metrics.Metrics, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(m.Middleware)

	r.Get("/health", h.Health)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(identity.Session)
		r.Use(auth.Middleware)

		r.Get("/basket", h.GetBasket)
		r.Post("/basket", h.AddToBasket)
		r.Delete("/basket", h.RemoveFromBasket)

		r.Get("/orders", h.ListOrders)
		r.Post("/orders", h.CreateOrder)

		r.Get("/order/{id}", h.GetOrder)
		r.Post("/order/{id}", h.ConfirmOrder)

		r.Post("/payment/{id}", h.Pay)
	})

	return r
}
