// Package server provides the HTTP middleware wrapped around every route.
package server

import (
	"net/http"
	"runtime/debug"

	"github.com/rs/cors"
	"go.uber.org/zap"
)

// recoverer keeps a panicking handler from taking the process down. Each
// connection is served on its own goroutine, so only that request is lost.
// The ResponseWriter is passed through untouched so WebSocket upgrades can
// still hijack it.
func recoverer(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Error("recovered from panic in handler",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
					zap.ByteString("stack", debug.Stack()),
				)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// withCORS applies the configured origins to plain HTTP routes.
func withCORS(origins []string, next http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(next)
}
