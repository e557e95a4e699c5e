package agent

import (
	"context"

	"github.com/nugget/lumen/internal/tools"
)

// EventKind identifies what an [Event] carries.
type EventKind string

// Event kinds.
const (
	EventContent     EventKind = "content"
	EventReasoning   EventKind = "reasoning"
	EventDescription EventKind = "description"
	EventStatus      EventKind = "status"
	EventTool        EventKind = "tool"
	EventPayload     EventKind = "payload"
	EventResources   EventKind = "resources"
	EventTitle       EventKind = "title"
	EventPlan        EventKind = "plan"
	EventAudio       EventKind = "audio"
	EventError       EventKind = "error"
	EventFinish      EventKind = "finish"
)

// Error tags on finish events.
const (
	ErrorLength    = "length"
	ErrorSensitive = "sensitive"
)

// Event is one item of a request's output stream.
type Event struct {
	Kind EventKind `json:"kind"`
	// RequestID is set on every event.
	RequestID string `json:"request_id"`
	// Text carries content, reasoning, status, title, plan and base64
	// audio. For tool events it is the user-facing result.
	Text string `json:"text,omitempty"`
	// Tool names the tool for tool events. Text is empty when the call
	// starts and set when it ends.
	Tool      string           `json:"tool,omitempty"`
	Depth     int              `json:"depth,omitempty"`
	Payloads  *tools.Payloads  `json:"payloads,omitempty"`
	Resources []tools.Resource `json:"resources,omitempty"`
	Engine    string           `json:"engine,omitempty"`
	// FinishReason is the provider's finish reason on finish events.
	FinishReason string `json:"finish_reason,omitempty"`
	// Error is the failure message on error events, or an error tag
	// (length, sensitive) on finish events.
	Error string `json:"error,omitempty"`
}

// emitter delivers events until its context is cancelled. Events
// offered after cancellation are dropped.
type emitter struct {
	ctx context.Context
	id  string
	out chan<- Event
}

func (e *emitter) send(ev Event) bool {
	if e.ctx.Err() != nil {
		return false
	}
	ev.RequestID = e.id
	select {
	case e.out <- ev:
		return true
	case <-e.ctx.Done():
		return false
	}
}
