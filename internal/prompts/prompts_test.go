package prompts

import (
	"strings"
	"testing"
	"time"

	"github.com/nugget/lumen/internal/canvas"
	"github.com/nugget/lumen/internal/llm"
	"github.com/nugget/lumen/internal/locale"
)

var fixedNow = time.Date(2025, 5, 6, 14, 30, 0, 0, time.UTC)

func TestBaseSystemPrompt(t *testing.T) {
	en := BaseSystemPrompt(locale.English, "", fixedNow)
	if !strings.Contains(en, "You are Lumen") || !strings.Contains(en, "2025-05-06 14:30") {
		t.Errorf("english prompt = %q", en)
	}
	zh := BaseSystemPrompt(locale.Chinese, "小明", fixedNow)
	if !strings.Contains(zh, "你是小明") {
		t.Errorf("chinese prompt = %q", zh)
	}
}

func TestTitleAndPlanningPrompts(t *testing.T) {
	if p := TitlePrompt(locale.English, "user: hi"); !strings.Contains(p, "user: hi") || !strings.Contains(p, "Title:") {
		t.Errorf("TitlePrompt = %q", p)
	}
	if p := PlanningPrompt(locale.English, ""); !strings.Contains(p, "numbered plan") {
		t.Errorf("PlanningPrompt(empty) = %q", p)
	}
	if p := PlanningPrompt(locale.Chinese, "1. 搜索"); !strings.Contains(p, "1. 搜索") {
		t.Errorf("PlanningPrompt(plan) = %q", p)
	}
	if p := ToolBudgetExhausted(locale.English, 8); !strings.Contains(p, "Tool budget exhausted after 8") {
		t.Errorf("ToolBudgetExhausted = %q", p)
	}
}

func TestAssembleOrdering(t *testing.T) {
	out := Assemble(Input{
		Lang:        locale.English,
		Model:       llm.ModelInfo{Name: "m", SupportsToolUse: true, CharacterDesign: "Speak like a pirate."},
		Now:         fixedNow,
		UserProfile: "Lives in Lisbon.",
		Memories:    []string{"Allergic to peanuts"},
		History: []llm.Message{
			{Role: llm.RoleUser, Content: "earlier question"},
			{Role: llm.RoleAssistant, Content: "earlier answer"},
		},
		Retrieved: []Retrieved{{Kind: "web", Text: "result one"}, {Kind: "knowledge", Text: "note"}},
		Message:   llm.Message{Content: "new question"},
		Tools:     true,
	})

	roles := make([]string, len(out.Messages))
	for i, m := range out.Messages {
		roles[i] = m.Role
	}
	want := []string{"system", "user", "assistant", "search", "search", "user"}
	if strings.Join(roles, ",") != strings.Join(want, ",") {
		t.Fatalf("roles = %v, want %v", roles, want)
	}

	sys := out.Messages[0].Content
	for _, part := range []string{"pirate", "Lisbon", "Allergic to peanuts", "## Tools"} {
		if !strings.Contains(sys, part) {
			t.Errorf("system prompt missing %q", part)
		}
	}
	if !strings.Contains(out.Messages[3].Content, "Web search results") || !strings.Contains(out.Messages[4].Content, "knowledge bag") {
		t.Error("retrieved context not introduced by kind")
	}
	if out.Messages[5].Content != "new question" {
		t.Errorf("last message = %q", out.Messages[5].Content)
	}
	if out.Tokens <= 0 {
		t.Errorf("Tokens = %d, want a positive estimate", out.Tokens)
	}
}

func TestAssembleCaps(t *testing.T) {
	long := strings.Repeat("字", 7000)
	out := Assemble(Input{
		Now:       fixedNow,
		Retrieved: []Retrieved{{Kind: "web", Text: long}, {Kind: "page", Text: long}},
		Canvas:    canvas.New("Doc", long, "text"),
		Message:   llm.Message{Content: "q"},
	})

	if n := strings.Count(out.Messages[1].Content, "字"); n != MaxSearchChars {
		t.Errorf("search context has %d chars, want %d", n, MaxSearchChars)
	}
	if n := strings.Count(out.Messages[2].Content, "字"); n != MaxDocumentChars {
		t.Errorf("page context has %d chars, want %d", n, MaxDocumentChars)
	}
	if n := strings.Count(out.Messages[0].Content, "字"); n != MaxDocumentChars {
		t.Errorf("canvas annotation has %d chars, want %d", n, MaxDocumentChars)
	}
	if !strings.Contains(out.Messages[0].Content, "edit_canvas") {
		t.Error("canvas annotation missing edit_canvas hint")
	}
}

func TestAssembleToolGuidanceNeedsSupport(t *testing.T) {
	out := Assemble(Input{Now: fixedNow, Model: llm.ModelInfo{SupportsToolUse: false}, Tools: true})
	if strings.Contains(out.Messages[0].Content, "## Tools") {
		t.Error("tool guidance added for a model without tool use")
	}
}

func TestAssembleImages(t *testing.T) {
	msg := llm.Message{Content: "what is this", Images: []string{"data:image/png;base64,AAAA"}}

	out := Assemble(Input{Now: fixedNow, Model: llm.ModelInfo{SupportsMultimodal: true}, Message: msg})
	if got := out.Messages[len(out.Messages)-1].Images; len(got) != 1 {
		t.Errorf("multimodal model lost images: %v", got)
	}

	out = Assemble(Input{Now: fixedNow, Model: llm.ModelInfo{}, Message: msg})
	if got := out.Messages[len(out.Messages)-1].Images; len(got) != 0 {
		t.Errorf("text-only model kept images: %v", got)
	}
}

func TestAssembleCustomSystemAndPlanning(t *testing.T) {
	out := Assemble(Input{Lang: locale.Chinese, Now: fixedNow, SystemPrompt: "CUSTOM", Planning: PlanningPrompt(locale.Chinese, "")})
	sys := out.Messages[0].Content
	if !strings.HasPrefix(sys, "CUSTOM") || strings.Contains(sys, "你是") {
		t.Errorf("custom system prompt not used: %q", sys)
	}
	if !strings.Contains(sys, "编号计划") {
		t.Error("planning instructions missing")
	}
}

func TestEstimateTokens(t *testing.T) {
	short := EstimateTokens([]llm.Message{{Content: "hello"}})
	long := EstimateTokens([]llm.Message{{Content: strings.Repeat("hello world ", 100)}})
	if short <= 0 || long <= short {
		t.Errorf("estimates short=%d long=%d", short, long)
	}
}
