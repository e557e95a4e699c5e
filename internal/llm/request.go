package llm

// Request is one chat completion call.
type Request struct {
	Model    ModelInfo
	Messages []Message
	// Tools are OpenAI function schemas. Attached only when non-empty
	// and the model supports tool use.
	Tools       []map[string]any
	Temperature float64
	TopP        float64
	MaxTokens   int
	// Reasoning is the desired reasoning state, applied only to models
	// whose reasoning can be toggled.
	Reasoning bool
	// Voice requests spoken output from models that support it.
	Voice  string
	Stream bool
}

// BuildBody renders req as a JSON-ready request body for the provider
// described by p. Sampling parameters are included only when positive.
func BuildBody(p Profile, req Request) map[string]any {
	messages := make([]Message, len(req.Messages))
	copy(messages, req.Messages)

	body := map[string]any{
		"model":  req.Model.Name,
		"stream": req.Stream,
	}
	if req.Temperature > 0 {
		body["temperature"] = req.Temperature
	}
	if req.TopP > 0 {
		body["top_p"] = req.TopP
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	if len(req.Tools) > 0 && req.Model.SupportsToolUse {
		body["tools"] = req.Tools
	}
	if req.Voice != "" && req.Model.SupportsVoiceGen {
		body["modalities"] = []string{"text", "audio"}
		body["audio"] = map[string]any{"voice": req.Voice, "format": "pcm16"}
	}

	if req.Model.SupportsReasoningChange {
		switch p.ReasoningControl {
		case ReasoningFlag:
			body[p.ReasoningField] = req.Reasoning
		case ReasoningObject:
			state := "disabled"
			if req.Reasoning {
				state = "enabled"
			}
			body[p.ReasoningField] = map[string]any{"type": state}
		case ReasoningInBand:
			appendInBandSwitch(messages, req.Reasoning)
		}
	}

	wire := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		wire = append(wire, wireMessage(p, m))
	}
	body["messages"] = wire
	return body
}

// appendInBandSwitch suffixes the last user message with the reasoning
// switch. messages is a copy owned by the caller.
func appendInBandSwitch(messages []Message, on bool) {
	suffix := " /no_think"
	if on {
		suffix = " /think"
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			messages[i].Content += suffix
			return
		}
	}
}

func wireMessage(p Profile, m Message) map[string]any {
	role := m.Role
	if role == RoleSearch {
		role = RoleUser
	}
	msg := map[string]any{"role": role}

	if len(m.Images) == 0 {
		msg["content"] = m.Content
	} else {
		parts := []map[string]any{{"type": "text", "text": m.Content}}
		for _, img := range m.Images {
			var ref any = map[string]any{"url": img}
			if p.ImageShape == ImageURLString {
				ref = img
			}
			parts = append(parts, map[string]any{"type": "image_url", "image_url": ref})
		}
		msg["content"] = parts
	}

	if m.ToolCallID != "" && role == RoleTool {
		msg["tool_call_id"] = m.ToolCallID
	}
	return msg
}
