// Package kvstore provides the small key-value store scribe keeps between
// runs: the bearer credential and the task id to file name mapping.
//
// Three backends implement Store. The CLI uses a SQLite database under the
// state directory by default, Redis when several machines share one session,
// and an in-memory map for --ephemeral runs and tests.
package kvstore
