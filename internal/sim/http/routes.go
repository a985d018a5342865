package simhttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

const rateLimit = 10
const rateWindow = time.Minute

// MountRoutes registers the read-only inspection endpoints and, behind admin,
// the endpoints that change the simulation.
func (h *Handler) MountRoutes(r chi.Router, admin func(http.Handler) http.Handler) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(rateLimit, rateWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)
	r.Get("/banks", h.handleBalanceSheets)
	r.Get("/banks/{bankID}", h.handleBalanceSheet)
	r.Get("/banks/{bankID}/ledgers", h.handleLedgers)
	r.Get("/banks/{bankID}/loans", h.handleLoans)
	r.Get("/audit", h.handleAudit)
	r.Get("/stats", h.handleStats)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Get("/banks/{bankID}/ledgers/{ledger}/transactions.csv", h.handleTransactionsCSV)
	})
	r.Group(func(gr chi.Router) {
		if admin != nil {
			gr.Use(admin)
		}
		gr.Post("/loans", h.handleRequestLoan)
		gr.Post("/transfers", h.handleTransfer)
		gr.Post("/step", h.handleStep)
	})
}
