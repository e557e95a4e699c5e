package prompts

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tiktoken-go/tokenizer"

	"github.com/nugget/lumen/internal/canvas"
	"github.com/nugget/lumen/internal/llm"
	"github.com/nugget/lumen/internal/locale"
)

// Caps on injected material, in characters.
const (
	MaxSearchChars   = 5000
	MaxDocumentChars = 6000
)

// Retrieved is material fetched before a turn.
type Retrieved struct {
	// Kind is "web", "knowledge" or "page".
	Kind string
	Text string
}

// Input is everything the assembler needs for one request.
type Input struct {
	Lang     locale.Lang
	Model    llm.ModelInfo
	Now      time.Time
	Location *time.Location

	// SystemPrompt replaces the default system prompt when set.
	SystemPrompt string
	UserProfile  string
	Memories     []string

	// History is the prior conversation, oldest first. It may already
	// contain search-role messages from earlier turns.
	History []llm.Message
	// Message is the new user message.
	Message llm.Message

	Retrieved []Retrieved
	Canvas    *canvas.Data
	// Tools reports whether tools will be attached to the request.
	Tools bool
	// Planning carries planning-mode instructions for this turn.
	Planning string
}

// Output is the assembled conversation.
type Output struct {
	Messages []llm.Message
	// Tokens is an estimate of the prompt size.
	Tokens int
}

// Assemble builds the message list for a request. It is pure apart
// from the token estimate.
func Assemble(in Input) Output {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	if in.Location != nil {
		now = now.In(in.Location)
	}

	var sys []string
	if in.SystemPrompt != "" {
		sys = append(sys, in.SystemPrompt)
	} else {
		sys = append(sys, BaseSystemPrompt(in.Lang, in.Model.Identity, now))
	}
	if in.Model.CharacterDesign != "" {
		sys = append(sys, in.Model.CharacterDesign)
	}
	if in.UserProfile != "" {
		sys = append(sys, ProfileSection(in.Lang, in.UserProfile))
	}
	if len(in.Memories) > 0 {
		sys = append(sys, MemorySection(in.Lang, in.Memories))
	}
	if in.Tools && in.Model.SupportsToolUse {
		sys = append(sys, ToolGuidance(in.Lang))
	}
	if in.Canvas != nil {
		sys = append(sys, CanvasAnnotation(in.Lang, in.Canvas.Title, in.Canvas.Type, Truncate(in.Canvas.Content, MaxDocumentChars)))
	}
	if in.Planning != "" {
		sys = append(sys, in.Planning)
	}

	msgs := make([]llm.Message, 0, len(in.History)+len(in.Retrieved)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: strings.Join(sys, "\n\n")})
	for _, m := range in.History {
		msgs = append(msgs, stripImages(m, in.Model))
	}
	for _, r := range in.Retrieved {
		limit := MaxSearchChars
		if r.Kind == "page" {
			limit = MaxDocumentChars
		}
		msgs = append(msgs, llm.Message{
			Role:    llm.RoleSearch,
			Content: SearchContext(in.Lang, r.Kind, Truncate(r.Text, limit)),
		})
	}
	if in.Message.Content != "" || len(in.Message.Images) > 0 {
		m := in.Message
		m.Role = llm.RoleUser
		msgs = append(msgs, stripImages(m, in.Model))
	}

	return Output{Messages: msgs, Tokens: EstimateTokens(msgs)}
}

// stripImages drops image attachments for models that cannot see them.
func stripImages(m llm.Message, model llm.ModelInfo) llm.Message {
	if len(m.Images) > 0 && !model.SupportsMultimodal {
		m.Images = nil
	}
	return m
}

// Truncate caps s at maxChars runes.
func Truncate(s string, maxChars int) string {
	if maxChars <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= maxChars {
		return s
	}
	return string(r[:maxChars])
}

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

// EstimateTokens approximates the prompt size of msgs with the o200k
// encoding, plus a small per-message overhead. Falls back to four
// bytes per token if the encoder is unavailable.
func EstimateTokens(msgs []llm.Message) int {
	codecOnce.Do(func() {
		enc, err := tokenizer.Get(tokenizer.O200kBase)
		if err != nil {
			slog.Warn("token encoder unavailable", "error", err)
			return
		}
		codec = enc
	})

	total := 0
	for _, m := range msgs {
		total += 4
		if codec == nil {
			total += len(m.Content) / 4
			continue
		}
		n, err := codec.Count(m.Content)
		if err != nil {
			n = len(m.Content) / 4
		}
		total += n
	}
	return total
}
