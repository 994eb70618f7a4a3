// Package server wires HTTP handlers into a ServeMux for the rtchat
// application via routing helpers.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures and returns an HTTP ServeMux with all application routes.
// Paths without a route are answered with 400 Bad Request.
func SetupRoutes(s *Server) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", HealthHandler)
	mux.HandleFunc("/healthz", HealthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/test", TestPageHandler)
	mux.HandleFunc("/create", s.handleCreate)
	mux.HandleFunc("/join/{code}", s.handleJoin)
	mux.HandleFunc("/", handleUnknownRoute)
	return mux
}
