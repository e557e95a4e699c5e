package agent

import (
	"strings"

	"github.com/google/uuid"
)

// generateRequestID returns a short id for correlating one request's
// log lines and events: "r_" followed by 8 hex characters.
func generateRequestID() string {
	return "r_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
