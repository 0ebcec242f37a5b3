package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"cryptofolio/pkg/cryptofolio"
)

// NewRouter builds the HTTP API router.
func NewRouter(core *cryptofolio.Core) http.Handler {
	var logger *slog.Logger
	if core != nil {
		logger = core.Logger()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(recoveryLoggingMiddleware(logger))
	r.Use(requestLoggingMiddleware(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	h := &handler{core: core}

	r.Get("/api/health", h.health)

	// Holdings
	r.Get("/api/holdings", h.getHoldings)
	r.Post("/api/holdings", h.addHolding)
	r.Put("/api/holdings/{providerID}", h.setHoldingAmount)
	r.Delete("/api/holdings", h.removeHoldings)

	// Derived views
	r.Get("/api/summary", h.getSummary)
	r.Get("/api/resolve", h.resolve)

	// Session
	r.Get("/api/session", h.getSession)
	r.Put("/api/session/selection", h.setSelection)
	r.Delete("/api/session/selection", h.deleteSelected)
	r.Post("/api/session/edit", h.beginEdit)
	r.Post("/api/session/edit/commit", h.commitEdit)
	r.Post("/api/session/edit/discard", h.discardEdit)

	// Operation logs
	r.Get("/api/operation-logs", h.getOperationLogs)
	r.Post("/api/operation-logs", h.addOperationLog)

	// Insights
	r.Post("/api/insights", h.analyzePortfolio)
	r.Get("/api/insights", h.getInsightsHistory)

	return r
}

type handler struct {
	core *cryptofolio.Core
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, ErrorResponse{Code: status, Message: message, RequestID: requestID(r)})
}
