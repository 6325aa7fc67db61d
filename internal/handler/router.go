package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/wallet-store/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware управляющего API.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Route("/views", func(r chi.Router) {
			r.Get("/rate/{currency}", h.GetRate)
			r.Get("/balance/{currency}", h.GetBalance)
			r.Get("/balances", h.GetBalances)
			r.Get("/earned", h.GetEarned)
			r.Get("/flags", h.GetFlags)
		})

		r.Get("/transactions", h.GetTransactions)
		r.Post("/rewards/{id}/complete", h.CompleteReward)

		r.Route("/session", func(r chi.Router) {
			r.Post("/login", h.Login)
			r.Post("/logout", h.Logout)
			r.Post("/clipboard-modal", h.SetClipboardModal)
			r.Post("/onboarding", h.CompleteOnboarding)
		})
	})

	if h.metrics != nil {
		r.Handle("/metrics", h.metrics)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
