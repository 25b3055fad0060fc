package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

/* ======================
   Routes
   ====================== */

func registerRoutes(mux *http.ServeMux, interactions http.Handler, registry *prometheus.Registry) {
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/interactions", interactions)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
