package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/ganadera-system/internal/middleware"
	"github.com/mmeshcher/ganadera-system/internal/model"
)

// SetupRouter настраивает HTTP-маршруты и middleware площадки.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		// Действия покупателя
		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.RequireRole(model.RoleComprador))

			r.Post("/offers/{loteID}", h.CreateOffer)
			r.Post("/offers/{id}/respond", h.RespondToCounter)
			r.Delete("/offers/{id}", h.CancelOffer)
			r.Post("/lotes/{loteID}/purchase", h.DirectPurchase)
			r.Post("/transactions/{id}/confirm-weight", h.ConfirmWeight)
		})

		// Действия продавца
		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.RequireRole(model.RoleVendedor))

			r.Post("/offers/{id}/counter", h.CounterOffer)
			r.Put("/offers/{id}/status", h.UpdateOfferStatus)
			r.Put("/transactions/{id}/weight", h.SubmitWeight)
		})

		// Переходы платёжных поручений выполняет только банк
		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.RequireRole(model.RoleBanco))

			r.Put("/payment-orders/{id}/process", h.ProcessOrder)
			r.Put("/payment-orders/{id}/complete", h.CompleteOrder)
			r.Put("/payment-orders/{id}/fail", h.FailOrder)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.RequireRole(model.RoleComprador, model.RoleVendedor, model.RoleBanco))

			r.Get("/offers", h.GetOffers)
			r.Get("/offers/{id}/history", h.GetNegotiationHistory)
			r.Get("/transactions", h.GetTransactions)
			r.Get("/transactions/{id}", h.GetTransaction)
			r.Get("/transactions/{id}/payment-orders", h.GetPaymentOrders)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
