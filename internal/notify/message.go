package notify

import (
	"fmt"
	"strings"
)

// FormatFailureMessage creates the notification body for a session
// whose deliveries keep failing.
func FormatFailureMessage(sessionID string, streak, pending int, err error) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Session: %s\n", sessionID))
	sb.WriteString(fmt.Sprintf("Consecutive failures: %d\n", streak))
	sb.WriteString(fmt.Sprintf("Operations pending: %d", pending))

	if err != nil {
		sb.WriteString(fmt.Sprintf("\n\nLast error: %v", err))
	}

	return sb.String()
}

// FormatRecoveredMessage creates the notification body for a session
// that delivered after a failure streak.
func FormatRecoveredMessage(sessionID string, streak, delivered int) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Session: %s\n", sessionID))
	sb.WriteString(fmt.Sprintf("Recovered after %d failed attempts\n", streak))
	sb.WriteString(fmt.Sprintf("Operations delivered: %d", delivered))

	return sb.String()
}
