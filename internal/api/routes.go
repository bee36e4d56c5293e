package api

import (
	"log/slog"

	"github.com/gorilla/mux"
	"github.com/trogers1052/portfolio-analytics/internal/observability"
)

// SetupRoutes configures all API routes. Only /api/v1 is behind the API key.
func SetupRoutes(handler *Handler, log *slog.Logger, metrics *observability.Metrics, apiKey string) *mux.Router {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware, recoveryMiddleware(log), loggingMiddleware(log), metricsMiddleware(metrics))

	// Health check and metrics
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(apiKeyMiddleware(apiKey))

	// Trade routes
	api.HandleFunc("/trades", handler.GetTrades).Methods("GET")
	api.HandleFunc("/trades/upload", handler.UploadTrades).Methods("POST")
	api.HandleFunc("/trades/{ticker}", handler.DeleteTrades).Methods("DELETE")

	// Price routes
	api.HandleFunc("/prices", handler.GetPrices).Methods("GET")
	api.HandleFunc("/prices/upload", handler.UploadPrices).Methods("POST")
	api.HandleFunc("/prices/{ticker}", handler.DeletePrices).Methods("DELETE")

	// Analytics routes
	api.HandleFunc("/pnl_history", handler.GetPnLHistory).Methods("GET")
	api.HandleFunc("/pnl_history/portfolio", handler.GetPortfolioHistory).Methods("GET")
	api.HandleFunc("/max_profit", handler.GetMaxProfit).Methods("GET")

	return r
}
