package httpserver

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chargepark/backend/services/sessions-service/internal/http/handlers"
	"chargepark/backend/services/sessions-service/internal/http/middleware"
	"chargepark/backend/services/sessions-service/internal/metrics"
)

// Routes groups handlers.
type Routes struct {
	Orders        *handlers.OrdersHandler
	Sessions      *handlers.SessionsHandler
	Fees          *handlers.FeesHandler
	Notifications *handlers.NotificationsHandler
	Health        http.HandlerFunc
}

// RouterConfig carries cross-cutting router dependencies.
type RouterConfig struct {
	JWTSecret string
	Metrics   *metrics.Metrics
	// Gatherer exposes /metrics when set.
	Gatherer prometheus.Gatherer
}

// NewRouter registers endpoints. Everything under /api/v1 requires a bearer token.
func NewRouter(routes Routes, cfg RouterConfig) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(cfg.Metrics))

	if routes.Health != nil {
		r.HandleFunc("/health", routes.Health).Methods(http.MethodGet)
	}
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Auth(cfg.JWTSecret))

	if h := routes.Orders; h != nil {
		api.HandleFunc("/orders", h.Book).Methods(http.MethodPost)
		api.HandleFunc("/orders/{id:[0-9]+}/cancel", h.Cancel).Methods(http.MethodPost)
		api.HandleFunc("/orders/{id:[0-9]+}/start", h.Start).Methods(http.MethodPost)
	}
	if h := routes.Sessions; h != nil {
		api.HandleFunc("/sessions/{id:[0-9]+}/progress", h.Progress).Methods(http.MethodGet)
		api.HandleFunc("/sessions/{id:[0-9]+}/stop", h.Stop).Methods(http.MethodPost)
		api.HandleFunc("/sessions/{id:[0-9]+}/depart", h.Depart).Methods(http.MethodPost)
		api.HandleFunc("/sessions/{id:[0-9]+}/total", h.Total).Methods(http.MethodGet)
	}
	if h := routes.Fees; h != nil {
		api.HandleFunc("/fees", h.History).Methods(http.MethodGet)
		api.HandleFunc("/fees/unpaid", h.Unpaid).Methods(http.MethodGet)
		api.HandleFunc("/fees/pay", h.Pay).Methods(http.MethodPost)
		api.HandleFunc("/users/me/unlock", h.Unlock).Methods(http.MethodPost)
	}
	if h := routes.Notifications; h != nil {
		api.HandleFunc("/notifications", h.List).Methods(http.MethodGet)
	}
	return r
}
