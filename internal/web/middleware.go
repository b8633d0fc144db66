package web

import (
	"net/http"
	"strings"
)

// HTTPProtocolMiddleware prevents HTTP/3 QUIC protocol issues in cloud environments
// This middleware adds headers to prevent browsers from attempting HTTP/3 connections
// which can cause net::ERR_QUIC_PROTOCOL_ERROR in complex proxy setups
func HTTPProtocolMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Alt-Svc", "clear")

		// Room event streams are long lived, keep them on HTTP/1.1 semantics
		if strings.HasPrefix(r.URL.Path, "/events/") {
			w.Header().Set("Connection", "keep-alive")
			w.Header().Set("X-Force-HTTP1", "true")
		}

		next.ServeHTTP(w, r)
	})
}

// CORSMiddleware allows the frontend at allowedOrigin to call the API.
// An empty or "*" origin allows any caller.
func CORSMiddleware(allowedOrigin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && originAllowed(allowedOrigin, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(allowed, origin string) bool {
	if allowed == "" || allowed == "*" {
		return true
	}
	return strings.TrimSuffix(origin, "/") == strings.TrimSuffix(allowed, "/")
}

// WrapMuxWithMiddleware wraps an HTTP mux with the CORS and protocol middleware
func WrapMuxWithMiddleware(mux *http.ServeMux, allowedOrigin string) http.Handler {
	return HTTPProtocolMiddleware(CORSMiddleware(allowedOrigin)(mux))
}
