package llm

// MaxToolCalls bounds the tool_calls index a fragment may use. Real
// providers send a handful of calls per turn.
const MaxToolCalls = 64

// Accumulator merges streamed tool-call fragments into complete calls.
// Fragments are keyed by their index in the provider's tool_calls
// array. Whether the calls are complete is decided by the caller when
// finish_reason is "tool_calls"; it cannot be inferred from fragments.
type Accumulator struct {
	calls []ToolCall
}

// Add merges one fragment. The working slice grows with placeholders up
// to the fragment's index. Fragments with an index outside
// [0, MaxToolCalls) are dropped and Add reports false. ID and Type are
// overwritten when present, the first non-empty Name wins, and
// Arguments are concatenated in arrival order.
func (a *Accumulator) Add(frag ToolCall) bool {
	if frag.Index < 0 || frag.Index >= MaxToolCalls {
		return false
	}
	for len(a.calls) <= frag.Index {
		a.calls = append(a.calls, ToolCall{Index: len(a.calls)})
	}

	c := &a.calls[frag.Index]
	if frag.ID != "" {
		c.ID = frag.ID
	}
	if frag.Type != "" {
		c.Type = frag.Type
	}
	if c.Function.Name == "" && frag.Function.Name != "" {
		c.Function.Name = frag.Function.Name
	}
	c.Function.Arguments += frag.Function.Arguments
	return true
}

// Calls returns the accumulated calls in index order, skipping
// placeholders that never received a fragment.
func (a *Accumulator) Calls() []ToolCall {
	out := make([]ToolCall, 0, len(a.calls))
	for _, c := range a.calls {
		if c.ID == "" && c.Function.Name == "" && c.Function.Arguments == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Len returns the number of slots, placeholders included.
func (a *Accumulator) Len() int { return len(a.calls) }

// Reset discards all calls.
func (a *Accumulator) Reset() { a.calls = nil }
