package llm

import (
	"sort"
	"strings"
)

// ModelInfo is what the agent knows about a model.
type ModelInfo struct {
	Name                    string
	Company                 string
	DisplayName             string
	SupportsTextGen         bool
	SupportsToolUse         bool
	SupportsReasoning       bool
	SupportsMultimodal      bool
	SupportsVoiceGen        bool
	SupportsReasoningChange bool
	// InlineThinkTags marks models that stream reasoning inside the
	// content field between <think> tags (GLM z1 family).
	InlineThinkTags bool
	Identity        string
	CharacterDesign string
}

// Registry resolves model names to [ModelInfo].
type Registry struct {
	models map[string]ModelInfo
}

// NewRegistry creates a registry holding models.
func NewRegistry(models ...ModelInfo) *Registry {
	r := &Registry{models: make(map[string]ModelInfo)}
	for _, m := range models {
		r.Add(m)
	}
	return r
}

// Add registers m, replacing any model with the same name. Text
// generation is assumed for every registered model.
func (r *Registry) Add(m ModelInfo) {
	m.SupportsTextGen = true
	if m.DisplayName == "" {
		m.DisplayName = m.Name
	}
	r.models[strings.ToLower(m.Name)] = m
}

// Resolve looks a model up by name, ignoring case.
func (r *Registry) Resolve(name string) (ModelInfo, bool) {
	m, ok := r.models[strings.ToLower(name)]
	return m, ok
}

// Names returns registered model names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.models))
	for _, m := range r.models {
		names = append(names, m.Name)
	}
	sort.Strings(names)
	return names
}
