package llm

import (
	"context"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"
)

// DecoderOptions configure a [Decoder] for one model turn.
type DecoderOptions struct {
	// ReasoningKeys lists delta fields that carry reasoning, in
	// priority order. Defaults to reasoning_content, reasoning.
	ReasoningKeys []string
	// ShowReasoning routes reasoning to DeltaReasoning. When false it
	// goes to DeltaDescription instead.
	ShowReasoning bool
	// InlineThinkTags splits <think>…</think> out of the content field.
	InlineThinkTags bool
	Logger          *slog.Logger
}

// Decoder turns OpenAI-compatible SSE lines into [Delta] values. It is
// stateful per turn (speaker-tag stripping, think-tag splitting); call
// Reset before reusing it for a new provider response.
type Decoder struct {
	opts   DecoderOptions
	logger *slog.Logger
	prefix prefixStripper
	think  thinkSplitter
}

// NewDecoder creates a decoder.
func NewDecoder(opts DecoderOptions) *Decoder {
	if len(opts.ReasoningKeys) == 0 {
		opts.ReasoningKeys = []string{"reasoning_content", "reasoning"}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{opts: opts, logger: logger}
}

// Reset clears per-turn state.
func (d *Decoder) Reset() {
	d.prefix.reset()
	d.think.reset()
}

// Decode parses one stream line. Lines that are not "data:" lines, the
// [DONE] sentinel, and malformed JSON yield no deltas: providers
// interleave comments and keepalives, and decoding is best effort.
func (d *Decoder) Decode(line string) []Delta {
	line = strings.TrimRight(line, "\r")
	if !strings.HasPrefix(line, "data:") {
		return nil
	}
	data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if data == "" || data == "[DONE]" {
		return nil
	}
	if !gjson.Valid(data) {
		d.logger.Log(context.Background(), LevelTrace, "skipping malformed stream line", "line", data)
		return nil
	}

	choice := gjson.Get(data, "choices.0")
	delta := choice.Get("delta")

	var out []Delta
	for _, key := range d.opts.ReasoningKeys {
		if r := delta.Get(key); r.Type == gjson.String && r.Str != "" {
			out = append(out, d.reasoning(r.Str))
			break
		}
	}

	if c := delta.Get("content"); c.Type == gjson.String && c.Str != "" {
		out = append(out, d.content(c.Str)...)
	}

	if a := delta.Get("audio.data"); a.Str != "" {
		out = append(out, Delta{Kind: DeltaAudio, Text: a.Str})
	}
	if tr := delta.Get("audio.transcript"); tr.Str != "" {
		out = append(out, Delta{Kind: DeltaTranscript, Text: tr.Str})
	}

	delta.Get("tool_calls").ForEach(func(_, tc gjson.Result) bool {
		call := ToolCall{
			Index: int(tc.Get("index").Int()),
			ID:    tc.Get("id").String(),
			Type:  tc.Get("type").String(),
			Function: FunctionCall{
				Name:      tc.Get("function.name").String(),
				Arguments: tc.Get("function.arguments").String(),
			},
		}
		out = append(out, Delta{Kind: DeltaToolCall, ToolCall: &call})
		return true
	})

	if fr := choice.Get("finish_reason"); fr.Type == gjson.String && fr.Str != "" {
		out = append(out, d.Flush()...)
		out = append(out, Delta{Kind: DeltaFinish, FinishReason: fr.Str})
	}

	return out
}

// Flush releases text held back by the tag filters. Called when the
// finish reason arrives or the stream ends without one.
func (d *Decoder) Flush() []Delta {
	var out []Delta
	for _, seg := range d.think.flush() {
		out = append(out, d.segment(seg)...)
	}
	if s := d.prefix.flush(); s != "" {
		out = append(out, Delta{Kind: DeltaContent, Text: s})
	}
	return out
}

func (d *Decoder) reasoning(text string) Delta {
	if d.opts.ShowReasoning {
		return Delta{Kind: DeltaReasoning, Text: text}
	}
	return Delta{Kind: DeltaDescription, Text: text}
}

func (d *Decoder) content(text string) []Delta {
	if !d.opts.InlineThinkTags {
		return d.stripped(text)
	}
	var out []Delta
	for _, seg := range d.think.feed(text) {
		out = append(out, d.segment(seg)...)
	}
	return out
}

func (d *Decoder) segment(seg segment) []Delta {
	if seg.reasoning {
		return []Delta{d.reasoning(seg.text)}
	}
	return d.stripped(seg.text)
}

func (d *Decoder) stripped(text string) []Delta {
	if s := d.prefix.feed(text); s != "" {
		return []Delta{{Kind: DeltaContent, Text: s}}
	}
	return nil
}
