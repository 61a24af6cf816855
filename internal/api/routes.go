package api

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all API routes. A nil gatherer uses the default registry.
func SetupRoutes(handler *Handler, gatherer prometheus.Gatherer) *mux.Router {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := mux.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware(handler.log))

	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/session", handler.Login).Methods("POST")
	api.HandleFunc("/session", handler.Logout).Methods("DELETE")
	api.HandleFunc("/session", handler.SessionStatus).Methods("GET")

	// Everything below needs a logged in session
	authed := api.NewRoute().Subrouter()
	authed.Use(handler.requireSession)
	authed.HandleFunc("/account", handler.GetAccount).Methods("GET")
	authed.HandleFunc("/positions", handler.GetPositions).Methods("GET")
	authed.HandleFunc("/orders", handler.GetOrders).Methods("GET")
	authed.HandleFunc("/orders", handler.PlaceOrder).Methods("POST")
	authed.HandleFunc("/bars/{symbol}", handler.GetBars).Methods("GET")
	authed.HandleFunc("/markets", handler.GetMarkets).Methods("GET")
	authed.HandleFunc("/views/{view}", handler.GetView).Methods("GET")
	authed.HandleFunc("/views/{view}/refresh", handler.RefreshView).Methods("POST")

	return r
}
