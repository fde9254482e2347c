package modules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"graphbuilder/internal/core"
	"graphbuilder/internal/types"
)

// gatewayOwnedHeaders are set by the gateway middleware chain. Copies sent by
// the backend are dropped so clients never see two conflicting values.
var gatewayOwnedHeaders = []string{
	"Access-Control-Allow-Origin",
	"Access-Control-Allow-Credentials",
	"Access-Control-Allow-Methods",
	"Access-Control-Allow-Headers",
	"Access-Control-Expose-Headers",
	"Access-Control-Max-Age",
	"X-Content-Type-Options",
	"X-Frame-Options",
	"X-Request-Id",
}

// NewForwarder returns a reverse proxy to target. Bodies, status codes and
// headers pass through unchanged apart from gatewayOwnedHeaders; server-sent
// events are flushed as they arrive. Transport failures are rendered as the
// gateway's JSON error envelope.
func NewForwarder(target *url.URL, transport http.RoundTripper, logger *slog.Logger) (http.Handler, error) {
	if target == nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("forwarder target must be an absolute URL")
	}
	if logger == nil {
		logger = slog.Default()
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		Transport: transport,
		ModifyResponse: func(resp *http.Response) error {
			for _, h := range gatewayOwnedHeaders {
				resp.Header.Del(h)
			}
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
				logger.Debug("client went away before upstream responded", "path", r.URL.Path)
				return
			}

			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				appErr = types.NewAppError(
					types.ErrCodeUpstreamGraphBuilder,
					"graph-builder backend is unreachable",
					err,
				)
			}

			logger.Error("upstream request failed",
				"method", r.Method,
				"path", r.URL.Path,
				"code", string(appErr.Code),
				"request_id", types.GetRequestID(r.Context()),
				"error", err,
			)
			core.Error(w, r, appErr)
		},
		ErrorLog: slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	return proxy, nil
}
