package modules

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphbuilder/internal/config"
	"graphbuilder/internal/core"
	"graphbuilder/internal/external"
	"graphbuilder/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newGateway mounts the module catalog on a full core.Server that forwards to
// backendURL through a BreakerTransport.
func newGateway(t *testing.T, backendURL string) *httptest.Server {
	t.Helper()

	target, err := url.Parse(backendURL)
	require.NoError(t, err)

	transport := external.NewBreakerTransport(nil, "graph_builder", external.RetryPolicy{}, "graphbuilder-test",
		external.WithSleepFunc(func(time.Duration) {}))
	forwarder, err := NewForwarder(target, transport, discardLogger())
	require.NoError(t, err)

	cfg := &config.Config{
		Security: config.SecurityConfig{
			CorsAllowedOrigins: []string{"http://localhost:5173"},
			FrameOptions:       "DENY",
		},
		Compression: config.CompressionConfig{MinSize: 1000, Level: -1},
	}
	srv, err := core.NewServer(cfg, discardLogger())
	require.NoError(t, err)

	mods := Catalog(forwarder)
	require.NoError(t, Validate(mods))
	for _, m := range mods {
		srv.RouteRegistrars = append(srv.RouteRegistrars, m.RegisterRoutes)
	}
	require.NoError(t, srv.MountRoutes())

	gw := httptest.NewServer(srv.Handler())
	t.Cleanup(gw.Close)
	return gw
}

func decodeError(t *testing.T, resp *http.Response) core.APIErrorResponse {
	t.Helper()
	var body core.APIErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestNewForwarder_RejectsRelativeTarget(t *testing.T) {
	_, err := NewForwarder(&url.URL{Path: "/backend"}, nil, nil)
	assert.Error(t, err)
}

func TestForwarder_PassesRequestAndResponseThrough(t *testing.T) {
	var gotPath, gotBody, gotReqID, gotForwardedFor string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotReqID = r.Header.Get("X-Request-Id")
		gotForwardedFor = r.Header.Get("X-Forwarded-For")

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("X-Backend", "neo4j")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"status":"Success","data":{"message":"hi"}}`))
	}))
	defer backend.Close()
	gw := newGateway(t, backend.URL)

	req, err := http.NewRequest(http.MethodPost, gw.URL+"/chat_bot", strings.NewReader("question=hello&mode=graph"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("X-Request-Id", "req-42")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.JSONEq(t, `{"status":"Success","data":{"message":"hi"}}`, string(body))
	assert.Equal(t, "neo4j", resp.Header.Get("X-Backend"))
	assert.Equal(t, []string{"http://localhost:5173"}, resp.Header.Values("Access-Control-Allow-Origin"),
		"the gateway's CORS policy replaces the backend's")
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	assert.Equal(t, "/chat_bot", gotPath)
	assert.Equal(t, "question=hello&mode=graph", gotBody)
	assert.Equal(t, "req-42", gotReqID)
	assert.NotEmpty(t, gotForwardedFor)
}

func TestForwarder_BackendRequestIDNotDuplicated(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", r.Header.Get("X-Request-Id"))
		_, _ = w.Write([]byte(`{"status":"Success"}`))
	}))
	defer backend.Close()
	gw := newGateway(t, backend.URL)

	resp, err := http.Post(gw.URL+"/chat_bot", "application/x-www-form-urlencoded", strings.NewReader("question=hi"))
	require.NoError(t, err)
	defer resp.Body.Close()

	ids := resp.Header.Values("X-Request-Id")
	require.Len(t, ids, 1)
	assert.NotEmpty(t, ids[0])
}

func TestForwarder_PathParameterRoute(t *testing.T) {
	var gotPath string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"status":"Completed"}`))
	}))
	defer backend.Close()
	gw := newGateway(t, backend.URL)

	resp, err := http.Get(gw.URL + "/document_status/annual-report.pdf")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/document_status/annual-report.pdf", gotPath)
}

func TestForwarder_StreamsServerSentEvents(t *testing.T) {
	release := make(chan struct{})
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "data: {\"status\":\"Processing\"}\n\n")
		w.(http.Flusher).Flush()

		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		_, _ = io.WriteString(w, "data: {\"status\":\"Completed\"}\n\n")
	}))
	defer backend.Close()
	gw := newGateway(t, backend.URL)

	req, err := http.NewRequest(http.MethodGet, gw.URL+"/update_extract_status/a.pdf", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Empty(t, resp.Header.Get("Content-Encoding"))

	reader := bufio.NewReader(resp.Body)
	lineCh := make(chan string, 1)
	go func() {
		line, _ := reader.ReadString('\n')
		lineCh <- line
	}()

	select {
	case line := <-lineCh:
		assert.Equal(t, "data: {\"status\":\"Processing\"}\n", line)
	case <-time.After(3 * time.Second):
		t.Fatal("first event was not flushed through the gateway")
	}
	close(release)

	rest, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Contains(t, string(rest), "Completed")
}

func TestForwarder_UpstreamDownReturns502(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	backendURL := backend.URL
	backend.Close()
	gw := newGateway(t, backendURL)

	resp, err := http.Post(gw.URL+"/extract", "application/x-www-form-urlencoded", strings.NewReader("file_name=a.pdf"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	body := decodeError(t, resp)
	assert.Equal(t, string(types.ErrCodeUpstreamGraphBuilder), body.Error.Code)
	assert.NotEmpty(t, body.Error.RequestID)
}

func TestForwarder_BreakerOpenReturns503(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"status":"Failed","error":"neo4j unavailable"}`))
	}))
	defer backend.Close()
	gw := newGateway(t, backend.URL)

	for i := 0; i < 6; i++ {
		resp, err := http.Post(gw.URL+"/graph_query", "application/json", strings.NewReader(`{}`))
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode, "backend errors pass through")
		assert.Contains(t, string(body), "neo4j unavailable")
	}

	resp, err := http.Post(gw.URL+"/graph_query", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, string(types.ErrCodeUpstreamCircuitOpen), decodeError(t, resp).Error.Code)
}

func TestForwarder_UnknownRouteNotForwarded(t *testing.T) {
	called := false
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer backend.Close()
	gw := newGateway(t, backend.URL)

	resp, err := http.Post(gw.URL+"/not_a_route", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.False(t, called)
}
