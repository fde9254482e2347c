// Package external provides the outbound side of the gateway: the resilient
// transport every delegated request travels through and the health probe for
// the graph-builder backend.
package external

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"graphbuilder/internal/types"
)

const requestIDHeader = "X-Request-Id"

// RetryPolicy configures retries of idempotent upstream requests.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy returns the policy used for the graph-builder backend.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		MinWait:    200 * time.Millisecond,
		MaxWait:    5 * time.Second,
	}
}

// StateListener is notified on every circuit breaker transition.
type StateListener func(name string, from, to gobreaker.State)

// BreakerTransport is an http.RoundTripper that wraps a base transport with a
// circuit breaker, request correlation and bounded retries.
//
// Only bodiless GET, HEAD and OPTIONS requests are retried; uploads and
// extraction triggers are never replayed. A 5xx that survives the retries is
// returned as a normal response so the caller sees the backend's body.
type BreakerTransport struct {
	base      http.RoundTripper
	breaker   *gobreaker.CircuitBreaker[*http.Response]
	policy    RetryPolicy
	userAgent string
	sleepFn   func(time.Duration)
	listener  StateListener
}

// TransportOption is a functional option for configuring a BreakerTransport.
type TransportOption func(*BreakerTransport)

// WithSleepFunc overrides the sleep function used between retries.
func WithSleepFunc(fn func(time.Duration)) TransportOption {
	return func(t *BreakerTransport) {
		t.sleepFn = fn
	}
}

// WithStateListener registers fn for breaker state transitions.
func WithStateListener(fn StateListener) TransportOption {
	return func(t *BreakerTransport) {
		t.listener = fn
	}
}

// NewBreakerTransport wraps base (http.DefaultTransport when nil). The
// breaker opens after more than five consecutive failures, where a failure
// is a transport error or a 5xx response.
func NewBreakerTransport(
	base http.RoundTripper,
	breakerName string,
	policy RetryPolicy,
	userAgent string,
	opts ...TransportOption,
) *BreakerTransport {
	if base == nil {
		base = http.DefaultTransport
	}

	t := &BreakerTransport{
		base:      base,
		policy:    policy,
		userAgent: userAgent,
		sleepFn:   time.Sleep,
	}
	for _, opt := range opts {
		opt(t)
	}

	t.breaker = gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		// A caller abandoning its request says nothing about backend health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if t.listener != nil {
				t.listener(name, from, to)
			}
		},
	})

	return t
}

// NewUpstreamTransport returns a clone of http.DefaultTransport with the
// given response header timeout. Streaming responses are unaffected once the
// headers have arrived.
func NewUpstreamTransport(responseHeaderTimeout time.Duration) *http.Transport {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.ResponseHeaderTimeout = responseHeaderTimeout
	return tr
}

// State reports the current breaker state.
func (t *BreakerTransport) State() gobreaker.State {
	return t.breaker.State()
}

// RoundTrip implements http.RoundTripper. It never mutates req.
func (t *BreakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	if reqID := types.GetRequestID(req.Context()); reqID != "" && out.Header.Get(requestIDHeader) == "" {
		out.Header.Set(requestIDHeader, reqID)
	}
	if t.userAgent != "" {
		out.Header.Set("User-Agent", t.userAgent)
	}

	maxAttempts := 1
	if isReplayable(out) {
		maxAttempts += t.policy.MaxRetries
	}

	var (
		resp *http.Response
		err  error
	)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err = t.breaker.Execute(func() (*http.Response, error) {
			r, rtErr := t.base.RoundTrip(out)
			if rtErr != nil {
				return nil, rtErr
			}
			if r.StatusCode >= 500 {
				return r, fmt.Errorf("upstream returned %d", r.StatusCode)
			}
			return r, nil
		})

		if err == nil {
			return resp, nil
		}
		if isBreakerRejection(err) {
			return nil, types.NewAppError(
				types.ErrCodeUpstreamCircuitOpen,
				"graph-builder backend is temporarily unavailable",
				err,
			)
		}

		last := attempt == maxAttempts-1
		if last || !isRetryable(resp) || req.Context().Err() != nil {
			break
		}

		wait := t.computeBackoff(attempt, resp)
		if resp != nil {
			drainAndClose(resp)
		}
		t.sleepFn(wait)
	}

	if resp != nil {
		return resp, nil
	}
	return nil, mapTransportError(err)
}

// isReplayable reports whether the request may be sent more than once.
func isReplayable(req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
	default:
		return false
	}
	return req.Body == nil || req.Body == http.NoBody
}

// isRetryable reports whether a failed attempt is worth repeating. A nil
// response means a transport error.
func isRetryable(resp *http.Response) bool {
	if resp == nil {
		return true
	}
	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// computeBackoff honours a Retry-After header, otherwise applies exponential
// backoff with jitter clamped to [MinWait, MaxWait].
func (t *BreakerTransport) computeBackoff(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
				return min(time.Duration(seconds)*time.Second, t.policy.MaxWait)
			}
			if at, err := http.ParseTime(retryAfter); err == nil {
				wait := time.Until(at)
				if wait <= 0 {
					return t.policy.MinWait
				}
				return min(wait, t.policy.MaxWait)
			}
		}
	}

	base := min(float64(t.policy.MinWait)*math.Pow(2, float64(attempt)), float64(t.policy.MaxWait))
	minWait := float64(t.policy.MinWait)
	if base <= minWait {
		return t.policy.MinWait
	}
	return time.Duration(minWait + rand.Float64()*(base-minWait))
}

// mapTransportError translates a final transport failure into an AppError.
// Context deadlines and net timeouts such as ResponseHeaderTimeout both map
// to upstream_timeout.
func mapTransportError(err error) *types.AppError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return types.NewAppError(
			types.ErrCodeUpstreamTimeout,
			"graph-builder backend did not respond in time",
			err,
		)
	}
	return types.NewAppError(
		types.ErrCodeUpstreamGraphBuilder,
		"graph-builder backend is unreachable",
		err,
	)
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
