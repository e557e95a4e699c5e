// Package httpkit builds the HTTP clients used for outbound calls: LLM
// providers, search engines, map and weather services, page fetches.
// Every client sets the Lumen User-Agent and can retry transient
// failures.
package httpkit

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/nugget/lumen/internal/buildinfo"
)

const (
	defaultTimeout = 30 * time.Second

	// headerWait is how long a regular request may wait for response
	// headers. Streaming clients wait longer: reasoning models can think
	// for a while before the first byte.
	headerWait          = 15 * time.Second
	streamingHeaderWait = 2 * time.Minute
)

// ClientOption configures a client built by NewClient.
type ClientOption func(*settings)

type settings struct {
	timeout    time.Duration
	headerWait time.Duration
	userAgent  string
	retries    int
	backoff    time.Duration
	logger     *slog.Logger
}

// WithTimeout sets the overall request timeout. Zero means none.
func WithTimeout(d time.Duration) ClientOption {
	return func(s *settings) { s.timeout = d }
}

// WithStreaming drops the overall timeout and allows a long wait for
// response headers. Requests are bounded by their context instead.
func WithStreaming() ClientOption {
	return func(s *settings) {
		s.timeout = 0
		s.headerWait = streamingHeaderWait
	}
}

// WithUserAgent overrides the default User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(s *settings) { s.userAgent = ua }
}

// WithRetry allows up to n retries of a transient failure, waiting
// backoff before the first and doubling after each. See [Transient].
func WithRetry(n int, backoff time.Duration) ClientOption {
	return func(s *settings) {
		s.retries = n
		s.backoff = backoff
	}
}

// WithLogger sets the logger for retry diagnostics.
func WithLogger(l *slog.Logger) ClientOption {
	return func(s *settings) { s.logger = l }
}

func newTransport(header time.Duration) *http.Transport {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: header,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   5,
		ForceAttemptHTTP2:     true,
	}
}

// NewClient builds a client. Without options it has a 30 second
// timeout and no retries.
func NewClient(opts ...ClientOption) *http.Client {
	s := settings{
		timeout:    defaultTimeout,
		headerWait: headerWait,
		userAgent:  buildinfo.UserAgent(),
	}
	for _, o := range opts {
		o(&s)
	}

	var rt http.RoundTripper = &uaTransport{next: newTransport(s.headerWait), ua: s.userAgent}
	if s.retries > 0 {
		rt = &retrier{next: rt, retries: s.retries, backoff: s.backoff, logger: s.logger}
	}
	return &http.Client{Timeout: s.timeout, Transport: rt}
}

type uaTransport struct {
	next http.RoundTripper
	ua   string
}

func (t *uaTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.next.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.ua)
	return t.next.RoundTrip(r)
}

// Transient reports whether a round trip outcome is worth repeating.
// Connection failures before anything was sent always are. Gateway
// errors are only for idempotent methods, since the upstream may have
// acted on the request.
func Transient(method string, resp *http.Response, err error) bool {
	if err != nil {
		return dialFailure(err)
	}
	if method != http.MethodGet && method != http.MethodHead {
		return false
	}
	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// dialFailure matches errors where the connection never came up.
// ECONNRESET is excluded.
func dialFailure(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	return errno == syscall.ECONNREFUSED || errno == syscall.EHOSTUNREACH || errno == syscall.ENETUNREACH
}

type retrier struct {
	next    http.RoundTripper
	retries int
	backoff time.Duration
	logger  *slog.Logger
}

func (r *retrier) RoundTrip(req *http.Request) (*http.Response, error) {
	rewindable := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
	wait := r.backoff

	resp, err := r.next.RoundTrip(req)
	for attempt := 1; attempt <= r.retries && rewindable && Transient(req.Method, resp, err); attempt++ {
		if r.logger != nil {
			outcome := any(err)
			if err == nil {
				outcome = resp.Status
			}
			r.logger.Debug("retrying request",
				"method", req.Method, "host", req.URL.Host, "attempt", attempt, "after", outcome)
		}
		if resp != nil {
			DrainAndClose(resp.Body, 4096)
		}

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(wait):
		}
		wait *= 2

		again := req.Clone(req.Context())
		if req.GetBody != nil {
			body, berr := req.GetBody()
			if berr != nil {
				return nil, fmt.Errorf("retry: rewind body: %w", berr)
			}
			again.Body = body
		}
		resp, err = r.next.RoundTrip(again)
	}
	return resp, err
}

// DrainAndClose discards up to limit bytes of rc and closes it so the
// connection can be reused.
func DrainAndClose(rc io.ReadCloser, limit int64) {
	if rc == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, rc, limit)
	_ = rc.Close()
}

// ReadErrorBody returns at most limit bytes of an error response for
// use in an error message. rc is drained and closed.
func ReadErrorBody(rc io.ReadCloser, limit int64) string {
	if rc == nil {
		return ""
	}
	defer DrainAndClose(rc, 1024)
	b, err := io.ReadAll(io.LimitReader(rc, limit))
	if err != nil {
		return fmt.Sprintf("(error body unreadable: %v)", err)
	}
	return string(b)
}
