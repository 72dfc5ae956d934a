// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package backend

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/relabs-tech/garage/core/logger"
)

const (
	corsAllowedMethods = "POST, GET, OPTIONS, PATCH, DELETE"
	corsAllowedHeaders = "Accept, Content-Type, Content-Length, Accept-Encoding, If-None-Match, " + logger.RequestIDHeader
	corsExposedHeaders = "Etag, " + logger.RequestIDHeader
)

// corsMiddleware allows cross origin calls from any origin and answers preflight
// requests without reaching the handlers
func corsMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := w.Header()
		header.Set("Access-Control-Allow-Origin", "*")
		header.Set("Access-Control-Allow-Methods", corsAllowedMethods)
		header.Set("Access-Control-Allow-Headers", corsAllowedHeaders)
		header.Set("Access-Control-Expose-Headers", corsExposedHeaders)
		header.Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			logger.FromContext(r.Context()).Debugln("preflight for", r.URL)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// compressionMiddleware gzips responses for clients accepting it. The metrics
// route is left alone, promhttp negotiates its own encoding.
func compressionMiddleware(h http.Handler) http.Handler {
	compressed := handlers.CompressHandler(h)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/metrics") {
			h.ServeHTTP(w, r)
			return
		}
		compressed.ServeHTTP(w, r)
	})
}

// timeoutMiddleware bounds the database work of a request
func (b *Backend) timeoutMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), b.requestTimeout)
		defer cancel()
		h.ServeHTTP(w, r.WithContext(ctx))
	})
}

// useMiddlewares installs all middlewares on the root router, outermost first
func (b *Backend) useMiddlewares() {
	b.router.Use(corsMiddleware)
	if b.metrics != nil {
		b.metrics.RegisterDB(b.db.DB, "garage")
		b.router.Use(b.metrics.Middleware)
	}
	b.router.Use(compressionMiddleware, b.timeoutMiddleware)
}
