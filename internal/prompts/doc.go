// Package prompts holds the prompt text Lumen sends to models and the
// assembler that turns a conversation into a provider-ready message
// list.
//
// Prompt text is Go code rather than config files because it is program
// logic: templates use fmt.Sprintf interpolation, are bilingual, and can
// be validated by tests. User-facing configuration lives in config.yaml.
//
// Convention: each prompt category gets its own file (system.go,
// metadata.go, planning.go) with an exported function that accepts the
// dynamic parts and returns the fully interpolated prompt string.
package prompts
