// Package api serves the assistant over HTTP: request streams as
// server-sent events or WebSocket, plus operational endpoints.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nugget/lumen/internal/agent"
	"github.com/nugget/lumen/internal/buildinfo"
	"github.com/nugget/lumen/internal/connwatch"
	"github.com/nugget/lumen/internal/events"
	"github.com/nugget/lumen/internal/tools"
)

// Driver runs agent requests. [agent.Driver] implements it.
type Driver interface {
	SendStreamRequest(ctx context.Context, req agent.Request) <-chan agent.Event
	Cancel() bool
	Busy() bool
}

// Server serves the agent and its side channels over HTTP. Optional
// parts are attached with the Set methods before Start.
type Server struct {
	addr   string
	driver Driver
	logger *slog.Logger
	http   *http.Server

	tools     *tools.Registry
	enabled   func(string) bool
	bus       *events.Bus
	health    SampleRecorder
	knowledge DocumentAdder
	services  ServiceReporter
}

// ServiceReporter lists backend reachability. [connwatch.Manager]
// implements it.
type ServiceReporter interface {
	Status() []connwatch.Status
}

// NewServer returns a server for driver that will listen on
// address:port. An empty address listens on every interface.
func NewServer(address string, port int, driver Driver, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:   net.JoinHostPort(address, strconv.Itoa(port)),
		driver: driver,
		logger: logger.With("component", "api"),
	}
}

// SetTools configures the registry listed by GET /v1/tools. enabled
// filters it the same way the driver does.
func (s *Server) SetTools(r *tools.Registry, enabled func(string) bool) {
	s.tools = r
	s.enabled = enabled
}

// SetServices adds backend status to GET /health.
func (s *Server) SetServices(r ServiceReporter) {
	s.services = r
}

// SetEventBus enables the GET /v1/events stream.
func (s *Server) SetEventBus(b *events.Bus) {
	s.bus = b
}

// Handler returns the routed handler with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/stream", s.handleStream)
	mux.HandleFunc("POST /v1/cancel", s.handleCancel)
	mux.HandleFunc("GET /v1/ws", s.handleWebSocket)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	mux.HandleFunc("GET /v1/tools", s.handleTools)
	mux.HandleFunc("POST /v1/health/samples", s.handleHealthSamples)
	mux.HandleFunc("POST /v1/knowledge", s.handleKnowledge)

	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)

	return s.withLogging(mux)
}

// Start listens and serves until Shutdown, when it returns
// [http.ErrServerClosed]. ctx becomes the base of every request context.
func (s *Server) Start(ctx context.Context) error {
	s.http = &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// Streams push this forward after every event.
		WriteTimeout: streamWriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	s.logger.Info("listening", "addr", s.addr)
	return s.http.ListenAndServe()
}

// Shutdown stops accepting requests and waits for open ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// statusWriter records the response status for the access log. It
// passes Flush and Hijack through for SSE and WebSocket handlers.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("connection does not support hijacking")
	}
	if w.status == 0 {
		w.status = http.StatusSwitchingProtocols
	}
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// withLogging writes one access log line per request. Health probes
// log at debug.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		began := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		level := slog.LevelInfo
		if r.URL.Path == "/health" {
			level = slog.LevelDebug
		}
		s.logger.Log(r.Context(), level, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"elapsed", time.Since(began).Round(time.Millisecond),
		)
	})
}

// reply writes v as a JSON body with the given status. Encoding errors
// mean the client went away and are only logged.
func (s *Server) reply(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("response write failed", "error", err)
	}
}

// apiError is the body of every non-2xx JSON response.
type apiError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
	Index   *int   `json:"index,omitempty"`
}

func (s *Server) fail(w http.ResponseWriter, code int, message string) {
	s.reply(w, code, map[string]apiError{"error": {Message: message, Code: code}})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.reply(w, http.StatusOK, map[string]string{
		"name":    "Lumen",
		"version": buildinfo.Version,
		"status":  "ok",
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.reply(w, http.StatusOK, buildinfo.RuntimeInfo())
}

// handleHealth reports "degraded" while any watched backend is down.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	out := map[string]any{"busy": s.driver.Busy()}
	if s.services != nil {
		services := s.services.Status()
		for _, st := range services {
			if !st.Ready {
				status = "degraded"
			}
		}
		out["services"] = services
	}
	out["status"] = status
	s.reply(w, http.StatusOK, out)
}

// toolInfo is one entry of GET /v1/tools.
type toolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	out := []toolInfo{}
	if s.tools != nil {
		for _, name := range s.tools.Names() {
			if s.enabled != nil && !s.enabled(name) {
				continue
			}
			t := s.tools.Get(name)
			out = append(out, toolInfo{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
		}
	}
	s.reply(w, http.StatusOK, map[string]any{"tools": out})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	cancelled := s.driver.Cancel()
	s.logger.Info("cancel requested", "cancelled", cancelled)
	s.reply(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

func (s *Server) publish(kind string, data map[string]any) {
	s.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceAPI,
		Kind:      kind,
		Data:      data,
	})
}
