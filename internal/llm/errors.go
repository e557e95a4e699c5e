package llm

import "fmt"

// ErrConfig reports configuration missing for a turn: no API key, no
// request URL, or an unknown model. It ends the turn.
type ErrConfig struct {
	What    string // "api key", "request url", "model"
	Company string
	Model   string
}

func (e *ErrConfig) Error() string {
	if e.Model != "" && e.Company == "" {
		return fmt.Sprintf("missing %s: %s", e.What, e.Model)
	}
	return fmt.Sprintf("missing %s for %s", e.What, e.Company)
}

// HTTPError is a non-2xx provider response. Body holds the (truncated)
// response text so the user sees what the server said.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Body)
}
