package tools

import "fmt"

// ErrToolUnavailable is returned by a handler whose backing service is
// not configured. The dispatcher turns it into a short localized
// message so the model stops retrying.
type ErrToolUnavailable struct {
	ToolName string
	// Service is the missing collaborator: "map", "weather", "search",
	// "calendar", "health", "knowledge", "memory" or "code".
	Service string
}

// Error implements the error interface.
func (e *ErrToolUnavailable) Error() string {
	return fmt.Sprintf("tool %q has no active %s service", e.ToolName, e.Service)
}

func unavailable(tool, service string) error {
	return &ErrToolUnavailable{ToolName: tool, Service: service}
}
