package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tavernapos/cashcore/internal/http/ledger"
	"github.com/tavernapos/cashcore/internal/http/payment"
	"github.com/tavernapos/cashcore/internal/http/report"
	"github.com/tavernapos/cashcore/internal/http/settlement"
)

func New(
	ledgersV1 *ledger.Handler,
	paymentsV1 *payment.Handler,
	settlementsV1 *settlement.Handler,
	reportsV1 *report.Handler,
	allowedOrigins []string,
) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/ledgers", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			ledgersV1.Routes(r)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			paymentsV1.Routes(r)
		})

		r.Route("/settlements", settlementsV1.Routes)

		r.Route("/reports", func(r chi.Router) {
			reportsV1.Routes(r)
		})
	})

	// The gateway posts callbacks outside the versioned API surface.
	router.Route("/webhooks", paymentsV1.WebhookRoutes)

	return router
}
