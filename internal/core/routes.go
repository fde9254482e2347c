package core

import (
	"net/http"

	"github.com/google/uuid"

	"graphbuilder/internal/types"
)

// requestIDHeader carries the correlation ID in both directions.
const requestIDHeader = "X-Request-Id"

// defaultRedactedHeaders lists header names whose values are masked in
// request logs.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	"X-Debug-Token",
}

// MountRoutes registers the global middleware chain, the local routes and
// every RouteRegistrar. It must be called once, after optional dependencies
// have been injected.
func (s *Server) MountRoutes() error {
	compress, err := NewCompressionMiddleware(s.Config.Compression.MinSize, s.Config.Compression.Level)
	if err != nil {
		return err
	}

	s.registerGlobalMiddleware(compress)

	s.router.NotFound(s.handleNotFound)
	s.router.MethodNotAllowed(s.handleMethodNotAllowed)

	s.router.Get("/health", s.HandleHealth)
	if s.MetricsHandler != nil && s.Config.Observability.MetricsEnabled {
		s.router.Method(http.MethodGet, s.Config.Observability.MetricsPath, s.MetricsHandler)
	}

	for _, registrar := range s.RouteRegistrars {
		registrar(s.router)
	}
	return nil
}

// registerGlobalMiddleware applies middleware in strict order.
//
//  1. Recoverer       - outermost, catches panics from everything below.
//  2. RequestID       - correlation ID for logs and upstream calls.
//  3. SecurityHeaders - nosniff and frame protection, set before CORS so
//     preflight answers carry them too.
//  4. RequestLogger   - structured access log with redacted headers.
//  5. CORS            - answers preflight before any work is done.
//  6. Compression     - gzip for responses above the size threshold.
//  7. Metrics         - latency and count by route pattern.
func (s *Server) registerGlobalMiddleware(compress func(http.Handler) http.Handler) {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(SecurityHeadersMiddleware(s.Config.Security.FrameOptions))
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(NewCORSMiddleware(s.corsAllowedOrigins(), s.Config.Security.CorsAllowedHeaders))
	s.router.Use(compress)
	s.router.Use(s.MetricsMiddleware)
}

func (s *Server) corsAllowedOrigins() []string {
	if len(s.Config.Security.CorsAllowedOrigins) > 0 {
		return s.Config.Security.CorsAllowedOrigins
	}
	return []string{"*"}
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	Error(w, r, types.NewAppError(types.ErrCodeNotFoundRoute, "no route for "+r.URL.Path, nil))
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	Error(w, r, types.NewAppError(types.ErrCodeMethodNotAllowed, r.Method+" is not allowed on "+r.URL.Path, nil))
}

// RequestIDMiddleware reuses an incoming X-Request-Id or generates a UUID,
// stores it in the context and echoes it on the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := types.WithRequestID(r.Context(), requestID)
		w.Header().Set(requestIDHeader, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
