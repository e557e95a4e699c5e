// Package events is the in-process event bus for operational
// observability. The agent driver publishes turn and tool lifecycle
// events; the WebSocket /v1/events endpoint and the MQTT mirror
// subscribe. Publish on a nil *Bus is a no-op.
package events

import (
	"sync"
	"time"
)

// Sources.
const (
	// SourceAgent identifies events from the conversation driver.
	SourceAgent = "agent"
	// SourceAPI identifies events from the HTTP surface.
	SourceAPI = "api"
	// SourceConnwatch identifies backend reachability changes.
	SourceConnwatch = "connwatch"
)

// Kinds.
const (
	// KindRequestStart: request_id, model, depth_limit.
	KindRequestStart = "request_start"
	// KindLLMCall: request_id, depth, model, company.
	KindLLMCall = "llm_call"
	// KindLLMResponse: request_id, depth, finish_reason, tool_calls.
	KindLLMResponse = "llm_response"
	// KindToolCall: request_id, tool.
	KindToolCall = "tool_call"
	// KindToolDone: request_id, tool, kind, duration_ms.
	KindToolDone = "tool_done"
	// KindToolBudget: request_id, depth. Recursion bound reached.
	KindToolBudget = "tool_budget_exhausted"
	// KindRequestComplete: request_id, turns, elapsed_ms, finish_reason.
	KindRequestComplete = "request_complete"
	// KindRequestCancelled: request_id, reason.
	KindRequestCancelled = "request_cancelled"
	// KindRequestFailed: request_id, error.
	KindRequestFailed = "request_failed"
	// KindClientConnected: transport, remote.
	KindClientConnected = "client_connected"
	// KindClientDisconnected: transport, remote, duration_ms.
	KindClientDisconnected = "client_disconnected"
	// KindServiceUp: service.
	KindServiceUp = "service_up"
	// KindServiceDown: service, error.
	KindServiceDown = "service_down"
)

// Event is a single operational event.
type Event struct {
	Timestamp time.Time      `json:"ts"`
	Source    string         `json:"source"`
	Kind      string         `json:"kind"`
	Data      map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast bus. A subscriber whose buffer is
// full misses events instead of stalling the publisher.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// recv maps the receive-only view handed to subscribers back to the
	// channel we own, so Unsubscribe can close it.
	recv map[<-chan Event]chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subs: make(map[chan Event]struct{}),
		recv: make(map[<-chan Event]chan Event),
	}
}

// Publish delivers e to every subscriber with room in its buffer. A zero
// Timestamp is filled in.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe returns a channel of published events buffered to bufSize.
// Callers must Unsubscribe when done.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recv[ch] = ch
	return ch
}

// Unsubscribe removes the subscription and closes its channel. Unknown
// channels are ignored.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	owned, ok := b.recv[ch]
	if !ok {
		return
	}
	delete(b.subs, owned)
	delete(b.recv, ch)
	close(owned)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
