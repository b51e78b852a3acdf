// Package logging assembles structured slog loggers and formatting helpers used
// across scribe.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so backend calls and poll ticks
// automatically tag log lines with correlation IDs and task IDs. The package
// also provides a no-op logger for tests and wiring code that cannot fail.
//
// Console output goes to stderr by default so tables and JSON written to
// stdout stay machine readable.
package logging
