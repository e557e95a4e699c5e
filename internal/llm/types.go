// Package llm talks to OpenAI-compatible chat completion providers: it
// builds request bodies according to each provider's capability
// profile, streams the response, and decodes stream lines into deltas.
package llm

import "log/slog"

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
	// RoleSearch marks retrieved context (web, knowledge, page reads)
	// injected before the model turn. It is sent to providers as a user
	// message.
	RoleSearch = "search"
)

// Message is a provider-neutral chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	// Images holds image URLs (https or data:) attached to a user
	// message. Encoded per [Profile.ImageShape].
	Images     []string `json:"images,omitempty"`
	ToolCallID string   `json:"tool_call_id,omitempty"`
}

// ToolCall is a function call requested by the model. While a turn is
// streaming it is a pending call assembled by [Accumulator].
type ToolCall struct {
	Index    int          `json:"index"`
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the function name and its JSON argument string.
type FunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// Finish reasons reported by providers.
const (
	FinishStop      = "stop"
	FinishLength    = "length"
	FinishSensitive = "sensitive"
	FinishToolCalls = "tool_calls"
)

// DeltaKind identifies what a [Delta] carries.
type DeltaKind int

const (
	// DeltaContent is answer text.
	DeltaContent DeltaKind = iota
	// DeltaReasoning is reasoning text the user asked to see.
	DeltaReasoning
	// DeltaDescription is reasoning text routed to the operational
	// description channel because reasoning display is off.
	DeltaDescription
	// DeltaAudio is a base64 audio chunk.
	DeltaAudio
	// DeltaTranscript is the transcript of generated audio.
	DeltaTranscript
	// DeltaToolCall is a partial tool call fragment.
	DeltaToolCall
	// DeltaFinish carries the finish reason.
	DeltaFinish
)

func (k DeltaKind) String() string {
	switch k {
	case DeltaContent:
		return "content"
	case DeltaReasoning:
		return "reasoning"
	case DeltaDescription:
		return "description"
	case DeltaAudio:
		return "audio"
	case DeltaTranscript:
		return "transcript"
	case DeltaToolCall:
		return "tool_call"
	case DeltaFinish:
		return "finish"
	}
	return "unknown"
}

// Delta is one decoded increment of a streamed response.
type Delta struct {
	Kind DeltaKind
	// Text is set for content, reasoning, description, audio and
	// transcript deltas.
	Text string
	// ToolCall is set for DeltaToolCall.
	ToolCall *ToolCall
	// FinishReason is set for DeltaFinish.
	FinishReason string
}
