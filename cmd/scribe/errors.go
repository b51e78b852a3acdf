package main

import (
	"errors"

	"scribe/internal/backend"
)

const sessionEndedMessage = `session expired or missing; run "scribe login"`

// formatError renders err for the terminal. Any unauthorized outcome sends
// the user back to login.
func formatError(err error) string {
	if err == nil {
		return ""
	}
	if backend.IsUnauthorized(err) {
		return sessionEndedMessage
	}
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		if errors.Is(err, backend.ErrTransport) && apiErr.Message == "" {
			return "Unexpected error. Please try again."
		}
		return backend.Message(err)
	}
	return err.Error()
}
