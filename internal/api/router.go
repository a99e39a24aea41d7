package api

import (
	"github.com/go-chi/chi/v5"
)

// Router assembles the HTTP surface. Everything except login, health,
// and the websocket upgrade sits behind bearer-token auth.
func Router(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/health", h.Health)
	r.Post("/login", h.Login)
	r.Get("/ws", h.ServeWS)

	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Post("/logout", h.Logout)
		r.Get("/profile", h.Profile)
		r.Get("/orders", h.GetOrderBook)
		r.Get("/orders/mine", h.MyOrders)
		r.Post("/orders", h.PlaceOrder)
		r.Post("/orders/{id}/cancel", h.CancelOrder)
		r.Get("/trades", h.GetUserTrades)
	})

	return r
}
