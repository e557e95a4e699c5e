package llm

import "strings"

// ReasoningControl is how a provider lets callers switch reasoning on
// or off for models that support the toggle.
type ReasoningControl int

const (
	// ReasoningFixed means the model decides; nothing is sent.
	ReasoningFixed ReasoningControl = iota
	// ReasoningFlag sends a boolean body field, e.g. "enable_thinking": true.
	ReasoningFlag
	// ReasoningObject sends an object, e.g. "thinking": {"type": "enabled"}.
	ReasoningObject
	// ReasoningInBand appends "/think" or "/no_think" to the last user
	// message.
	ReasoningInBand
)

// ImageShape is how an image part is encoded in a user message.
type ImageShape int

const (
	// ImageURLObject encodes {"type":"image_url","image_url":{"url":...}}.
	ImageURLObject ImageShape = iota
	// ImageURLString encodes {"type":"image_url","image_url":"..."}.
	ImageURLString
)

// Profile describes the wire quirks of one provider company. Turn logic
// looks the profile up once and never branches on company names.
type Profile struct {
	Company          string
	DefaultURL       string
	ReasoningControl ReasoningControl
	// ReasoningField is the body key for Flag and Object controls.
	ReasoningField string
	// ReasoningKeys are the delta fields carrying reasoning text.
	ReasoningKeys []string
	ImageShape    ImageShape
	// ToolRole is the role used for tool-result feedback messages.
	ToolRole string
}

var defaultReasoningKeys = []string{"reasoning_content", "reasoning"}

var profiles = map[string]Profile{
	"openai": {
		DefaultURL: "https://api.openai.com/v1/chat/completions",
	},
	"deepseek": {
		DefaultURL:    "https://api.deepseek.com/chat/completions",
		ReasoningKeys: []string{"reasoning_content"},
	},
	"zhipu": {
		DefaultURL:       "https://open.bigmodel.cn/api/paas/v4/chat/completions",
		ReasoningControl: ReasoningObject,
		ReasoningField:   "thinking",
		ToolRole:         RoleTool,
	},
	"qwen": {
		DefaultURL:       "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions",
		ReasoningControl: ReasoningFlag,
		ReasoningField:   "enable_thinking",
	},
	"siliconflow": {
		DefaultURL:       "https://api.siliconflow.cn/v1/chat/completions",
		ReasoningControl: ReasoningFlag,
		ReasoningField:   "enable_thinking",
	},
	"volcengine": {
		DefaultURL:       "https://ark.cn-beijing.volces.com/api/v3/chat/completions",
		ReasoningControl: ReasoningObject,
		ReasoningField:   "thinking",
	},
	"moonshot": {
		DefaultURL: "https://api.moonshot.cn/v1/chat/completions",
	},
	"openrouter": {
		DefaultURL:    "https://openrouter.ai/api/v1/chat/completions",
		ReasoningKeys: []string{"reasoning", "reasoning_content"},
	},
	"ollama": {
		DefaultURL:       "http://localhost:11434/v1/chat/completions",
		ReasoningControl: ReasoningFlag,
		ReasoningField:   "think",
		ImageShape:       ImageURLString,
	},
	"lmstudio": {
		DefaultURL:       "http://localhost:1234/v1/chat/completions",
		ReasoningControl: ReasoningInBand,
	},
}

// ProfileFor returns the profile for company (case-insensitive).
// Unknown companies get a plain OpenAI-compatible profile with no
// default URL.
func ProfileFor(company string) Profile {
	key := strings.ToLower(strings.TrimSpace(company))
	p := profiles[key]
	p.Company = key
	if len(p.ReasoningKeys) == 0 {
		p.ReasoningKeys = defaultReasoningKeys
	}
	if p.ToolRole == "" {
		p.ToolRole = RoleUser
	}
	return p
}

// Companies lists the companies with a built-in profile.
func Companies() []string {
	out := make([]string, 0, len(profiles))
	for k := range profiles {
		out = append(out, k)
	}
	return out
}
