// Package usererror maps low-level sync errors to a fixed set of
// user-facing messages.
package usererror

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Classify maps err, for operations on the given table, to a user-facing
// message. table may be empty when the error isn't table-scoped.
func Classify(err error, table string) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "Sync timed out. Check your connection and try again."
	case isNetworkUnreachable(err):
		return "Network unreachable. Sync will retry automatically."
	case isPermissionDenied(err):
		if table != "" {
			return fmt.Sprintf("Permission denied syncing %s", table)
		}
		return "Permission denied."
	default:
		return fmt.Sprintf("Sync failed: %s", err.Error())
	}
}

func isNetworkUnreachable(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "network is unreachable") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "timed out")
}

func isPermissionDenied(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "42501") || strings.Contains(msg, "permission denied")
}
