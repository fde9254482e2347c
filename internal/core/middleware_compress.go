package core

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzhttp"
)

const eventStreamType = "text/event-stream"

// NewCompressionMiddleware returns a gzip middleware. Responses smaller than
// minSize bytes are sent uncompressed; level is a compress/gzip level (-1
// selects the default).
//
// Server-sent event streams are never compressed. The gzip writer holds
// output until minSize bytes are buffered, which would stall progress
// events, so requests accepting text/event-stream bypass it entirely and
// event-stream responses are excluded by content type.
func NewCompressionMiddleware(minSize, level int) (func(http.Handler) http.Handler, error) {
	wrap, err := gzhttp.NewWrapper(
		gzhttp.MinSize(minSize),
		gzhttp.CompressionLevel(level),
		gzhttp.ExceptContentTypes([]string{eventStreamType}),
	)
	if err != nil {
		return nil, fmt.Errorf("configuring gzip middleware: %w", err)
	}

	return func(next http.Handler) http.Handler {
		compressed := wrap(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.Contains(r.Header.Get("Accept"), eventStreamType) {
				next.ServeHTTP(w, r)
				return
			}
			compressed.ServeHTTP(w, r)
		})
	}, nil
}
