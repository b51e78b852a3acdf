// Package tasks keeps the client-side view of transcription tasks.
//
// Tracker holds the newest-first task list and reconciles it against the
// backend: List replaces it from GET /tasks, PollActive refreshes every task
// still PENDING or PROCESSING with one concurrent status fetch each, Submit
// inserts an optimistic PENDING task after an upload, and Delete removes a
// task (a 404 counts as already deleted). NameBook remembers the file name a
// task was submitted under, since the backend never stores it.
//
// Status strings from the wire are parsed into a closed enumeration. Values
// outside it become StatusUnknown, which is terminal and never polled again.
package tasks
