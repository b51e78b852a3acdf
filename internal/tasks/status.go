package tasks

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Status is the normalized lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusSuccess    Status = "SUCCESS"
	StatusFailure    Status = "FAILURE"
	// StatusUnknown covers any value the backend reports outside the known
	// set. It is terminal.
	StatusUnknown Status = "UNKNOWN"
)

var knownStatuses = map[Status]struct{}{
	StatusPending:    {},
	StatusProcessing: {},
	StatusSuccess:    {},
	StatusFailure:    {},
}

// ParseStatus maps a wire status, compared case-insensitively, to Status.
func ParseStatus(raw string) Status {
	// cases.Caser is stateful; build one per call.
	normalized := Status(cases.Upper(language.Und).String(strings.TrimSpace(raw)))
	if _, ok := knownStatuses[normalized]; ok {
		return normalized
	}
	return StatusUnknown
}

// Active reports whether the task still needs polling.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusProcessing
}

// Terminal reports whether the task has stopped changing.
func (s Status) Terminal() bool {
	return !s.Active()
}

func (s Status) String() string {
	return string(s)
}
