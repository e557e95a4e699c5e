package llm

import (
	"testing"
)

func TestProfileFor_Defaults(t *testing.T) {
	p := ProfileFor("  Unknown-Co ")
	if p.Company != "unknown-co" {
		t.Errorf("Company = %q", p.Company)
	}
	if p.ToolRole != RoleUser {
		t.Errorf("ToolRole = %q, want user", p.ToolRole)
	}
	if len(p.ReasoningKeys) != 2 {
		t.Errorf("ReasoningKeys = %v", p.ReasoningKeys)
	}
	if p.DefaultURL != "" {
		t.Errorf("DefaultURL = %q, want empty", p.DefaultURL)
	}
}

func TestProfileFor_Zhipu(t *testing.T) {
	p := ProfileFor("ZhiPu")
	if p.ToolRole != RoleTool || p.ReasoningControl != ReasoningObject {
		t.Errorf("profile = %+v", p)
	}
}

func TestBuildBody_Basics(t *testing.T) {
	req := Request{
		Model:    ModelInfo{Name: "gpt-4o", SupportsToolUse: true},
		Messages: []Message{{Role: RoleSystem, Content: "sys"}, {Role: RoleSearch, Content: "ctx"}},
		Tools:    []map[string]any{{"type": "function"}},
		Stream:   true,
	}
	body := BuildBody(ProfileFor("openai"), req)

	if body["model"] != "gpt-4o" || body["stream"] != true {
		t.Errorf("body = %v", body)
	}
	if _, ok := body["temperature"]; ok {
		t.Error("temperature should be omitted when zero")
	}
	if _, ok := body["tools"]; !ok {
		t.Error("tools missing")
	}
	msgs := body["messages"].([]map[string]any)
	if msgs[1]["role"] != RoleUser {
		t.Errorf("search role sent as %v, want user", msgs[1]["role"])
	}
}

func TestBuildBody_ToolsOmittedWithoutSupport(t *testing.T) {
	req := Request{
		Model: ModelInfo{Name: "m"},
		Tools: []map[string]any{{"type": "function"}},
	}
	if _, ok := BuildBody(ProfileFor("openai"), req)["tools"]; ok {
		t.Error("tools sent to a model without tool use")
	}
}

func TestBuildBody_ReasoningControls(t *testing.T) {
	model := ModelInfo{Name: "m", SupportsReasoningChange: true}

	flag := BuildBody(ProfileFor("qwen"), Request{Model: model, Reasoning: true})
	if flag["enable_thinking"] != true {
		t.Errorf("qwen flag = %v", flag["enable_thinking"])
	}

	obj := BuildBody(ProfileFor("zhipu"), Request{Model: model})
	thinking, ok := obj["thinking"].(map[string]any)
	if !ok || thinking["type"] != "disabled" {
		t.Errorf("zhipu thinking = %v", obj["thinking"])
	}

	msgs := []Message{{Role: RoleUser, Content: "hi"}, {Role: RoleAssistant, Content: "yo"}}
	inband := BuildBody(ProfileFor("lmstudio"), Request{Model: model, Messages: msgs})
	wire := inband["messages"].([]map[string]any)
	if wire[0]["content"] != "hi /no_think" {
		t.Errorf("in-band content = %v", wire[0]["content"])
	}
	if msgs[0].Content != "hi" {
		t.Error("BuildBody modified the caller's messages")
	}

	fixed := BuildBody(ProfileFor("qwen"), Request{Model: ModelInfo{Name: "m"}, Reasoning: true})
	if _, ok := fixed["enable_thinking"]; ok {
		t.Error("reasoning flag sent to a model without the toggle")
	}
}

func TestBuildBody_Images(t *testing.T) {
	msgs := []Message{{Role: RoleUser, Content: "look", Images: []string{"https://x/img.png"}}}

	obj := BuildBody(ProfileFor("openai"), Request{Model: ModelInfo{Name: "m"}, Messages: msgs})
	parts := obj["messages"].([]map[string]any)[0]["content"].([]map[string]any)
	if len(parts) != 2 {
		t.Fatalf("parts = %v", parts)
	}
	if ref, ok := parts[1]["image_url"].(map[string]any); !ok || ref["url"] != "https://x/img.png" {
		t.Errorf("image part = %v", parts[1])
	}

	str := BuildBody(ProfileFor("ollama"), Request{Model: ModelInfo{Name: "m"}, Messages: msgs})
	parts = str["messages"].([]map[string]any)[0]["content"].([]map[string]any)
	if parts[1]["image_url"] != "https://x/img.png" {
		t.Errorf("ollama image part = %v", parts[1])
	}
}

func TestBuildBody_ToolCallID(t *testing.T) {
	msgs := []Message{
		{Role: RoleTool, Content: "r", ToolCallID: "call_1"},
		{Role: RoleUser, Content: "r", ToolCallID: "call_2"},
	}
	body := BuildBody(ProfileFor("zhipu"), Request{Model: ModelInfo{Name: "m"}, Messages: msgs})
	wire := body["messages"].([]map[string]any)
	if wire[0]["tool_call_id"] != "call_1" {
		t.Errorf("tool message = %v", wire[0])
	}
	if _, ok := wire[1]["tool_call_id"]; ok {
		t.Errorf("user message carries tool_call_id: %v", wire[1])
	}
}

func TestBuildBody_Voice(t *testing.T) {
	body := BuildBody(ProfileFor("openai"), Request{
		Model: ModelInfo{Name: "m", SupportsVoiceGen: true},
		Voice: "alloy",
	})
	if _, ok := body["modalities"]; !ok {
		t.Error("modalities missing for voice request")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(ModelInfo{Name: "GLM-Z1", Company: "zhipu"}, ModelInfo{Name: "a-model"})
	m, ok := r.Resolve("glm-z1")
	if !ok || !m.SupportsTextGen || m.DisplayName != "GLM-Z1" {
		t.Errorf("Resolve = %+v, %v", m, ok)
	}
	if names := r.Names(); len(names) != 2 || names[0] != "GLM-Z1" {
		t.Errorf("Names() = %v", names)
	}
}

func TestErrors(t *testing.T) {
	e := &HTTPError{StatusCode: 401, Body: "bad key"}
	if e.Error() != "API error 401: bad key" {
		t.Errorf("HTTPError = %q", e.Error())
	}
	c := &ErrConfig{What: "api key", Company: "openai"}
	if c.Error() != "missing api key for openai" {
		t.Errorf("ErrConfig = %q", c.Error())
	}
}
