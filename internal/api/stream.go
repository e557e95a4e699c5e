package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nugget/lumen/internal/agent"
)

// maxRequestBytes caps request bodies. Histories with inline images
// can be large.
const maxRequestBytes = 16 << 20

// streamWriteTimeout is the write deadline granted per event.
const streamWriteTimeout = 120 * time.Second

// decodeRequest reads an agent request and checks it has something to
// answer.
func decodeRequest(r io.Reader) (agent.Request, error) {
	var req agent.Request
	if err := json.NewDecoder(io.LimitReader(r, maxRequestBytes)).Decode(&req); err != nil {
		return req, fmt.Errorf("invalid request body: %w", err)
	}
	return req, checkRequest(req)
}

// checkRequest rejects requests with nothing to answer or with a canvas
// whose history cursor is out of range.
func checkRequest(req agent.Request) error {
	if strings.TrimSpace(req.Message.Content) == "" && len(req.Message.Images) == 0 {
		return errors.New("message is required")
	}
	if req.Canvas != nil {
		if err := req.Canvas.Validate(); err != nil {
			return fmt.Errorf("invalid canvas: %w", err)
		}
	}
	return nil
}

// handleStream runs a request and streams its events as SSE:
//
//	data: {"kind":"content","text":"Hel",...}
//
// The stream ends with "data: [DONE]".
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r.Body)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.fail(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Get response controller for deadline management.
	rc := http.NewResponseController(w)

	for ev := range s.driver.SendStreamRequest(r.Context(), req) {
		if err := rc.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
			s.logger.Debug("failed to reset write deadline", "error", err)
		}
		s.writeSSE(w, ev)
		flusher.Flush()
	}

	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func (s *Server) writeSSE(w http.ResponseWriter, ev agent.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Debug("failed to marshal SSE event", "error", err)
		return
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		s.logger.Debug("failed to write SSE event", "error", err)
	}
}
