package core

import (
	"net/http"
	"strings"
)

const (
	corsAllowMethods   = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	corsExposeHeaders  = "X-Request-Id"
	corsMaxAgeSeconds  = "86400"
	defaultFrameOption = "DENY"
)

// SecurityHeadersMiddleware sets content-type sniffing and frame-embedding
// protection on every response. frameOptions is DENY or SAMEORIGIN.
func SecurityHeadersMiddleware(frameOptions string) func(http.Handler) http.Handler {
	if frameOptions == "" {
		frameOptions = defaultFrameOption
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", frameOptions)
			next.ServeHTTP(w, r)
		})
	}
}

// NewCORSMiddleware applies a cross-origin policy.
//
//   - "*" in allowedOrigins allows every origin; credentials are then not
//     advertised, since browsers reject a wildcard with credentials.
//   - Otherwise the request Origin must be listed; it is echoed back with
//     Vary: Origin and credentials allowed.
//   - A preflight (OPTIONS with Access-Control-Request-Method) is answered
//     with 204 and never reaches the route.
func NewCORSMiddleware(allowedOrigins, allowedHeaders []string) func(http.Handler) http.Handler {
	allowAll := false
	originSet := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
			break
		}
		originSet[o] = struct{}{}
	}
	headers := strings.Join(allowedHeaders, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			var allowedOrigin string
			if allowAll {
				allowedOrigin = "*"
			} else if origin != "" {
				if _, ok := originSet[origin]; ok {
					allowedOrigin = origin
				}
			}

			h := w.Header()
			if allowedOrigin != "" {
				h.Set("Access-Control-Allow-Origin", allowedOrigin)
				h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
				if allowedOrigin != "*" {
					h.Set("Access-Control-Allow-Credentials", "true")
					h.Add("Vary", "Origin")
				}
			}

			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			if !preflight {
				next.ServeHTTP(w, r)
				return
			}

			if allowedOrigin != "" {
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
				if headers != "" {
					h.Set("Access-Control-Allow-Headers", headers)
				}
				h.Set("Access-Control-Max-Age", corsMaxAgeSeconds)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
