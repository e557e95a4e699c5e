package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/nugget/lumen/internal/health"
	"github.com/nugget/lumen/internal/knowledge"
)

// maxSamplesPerRequest bounds one health upload.
const maxSamplesPerRequest = 5000

// SampleRecorder stores health samples. [health.Store] implements it.
type SampleRecorder interface {
	Record(ctx context.Context, smp health.Sample) (health.Sample, error)
}

// DocumentAdder adds documents to the knowledge bag. [knowledge.Bag]
// implements it.
type DocumentAdder interface {
	Add(ctx context.Context, title, text string) (*knowledge.Document, error)
}

// SetHealthStore enables POST /v1/health/samples.
func (s *Server) SetHealthStore(r SampleRecorder) {
	s.health = r
}

// SetKnowledgeBag enables POST /v1/knowledge.
func (s *Server) SetKnowledgeBag(b DocumentAdder) {
	s.knowledge = b
}

// handleHealthSamples records a batch of samples pushed by the device.
// The whole batch is rejected if any sample is invalid; samples before
// the bad one stay recorded.
func (s *Server) handleHealthSamples(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		s.fail(w, http.StatusServiceUnavailable, "health store not configured")
		return
	}

	var body struct {
		Samples []health.Sample `json:"samples"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&body); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(body.Samples) == 0 {
		s.fail(w, http.StatusBadRequest, "samples are required")
		return
	}
	if len(body.Samples) > maxSamplesPerRequest {
		s.fail(w, http.StatusRequestEntityTooLarge, "too many samples")
		return
	}

	recorded := 0
	for i, smp := range body.Samples {
		if _, err := s.health.Record(r.Context(), smp); err != nil {
			s.logger.Warn("health sample rejected", "index", i, "kind", smp.Kind, "error", err)
			s.reply(w, http.StatusBadRequest, map[string]any{
				"error":    apiError{Message: err.Error(), Code: http.StatusBadRequest, Index: &i},
				"recorded": recorded,
			})
			return
		}
		recorded++
	}

	s.logger.Info("health samples recorded", "count", recorded)
	s.reply(w, http.StatusOK, map[string]int{"recorded": recorded})
}

// handleKnowledge adds one document to the knowledge bag.
func (s *Server) handleKnowledge(w http.ResponseWriter, r *http.Request) {
	if s.knowledge == nil {
		s.fail(w, http.StatusServiceUnavailable, "knowledge bag not configured")
		return
	}

	var body struct {
		Title string `json:"title"`
		Text  string `json:"text"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&body); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		s.fail(w, http.StatusBadRequest, "text is required")
		return
	}

	doc, err := s.knowledge.Add(r.Context(), strings.TrimSpace(body.Title), body.Text)
	if err != nil {
		s.logger.Error("knowledge add failed", "title", body.Title, "error", err)
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info("knowledge document added", "title", doc.Title, "id", doc.ID)
	s.reply(w, http.StatusCreated, doc)
}
