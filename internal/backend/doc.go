// Package backend is the HTTP/JSON client for the transcription service.
//
// It covers account registration and login (email/password and the GitHub
// OAuth handoff), audio submission, per-task status, the task list, and task
// deletion. Failures are classified into a small taxonomy of sentinel errors
// (ErrUnauthorized, ErrNotFound, ErrValidation, ErrTransport) carried by
// *APIError so callers branch with errors.Is and show Message(err) verbatim.
//
// A 401 from any bearer-authenticated call invokes the configured
// unauthorized handler before the error is returned, which is how the session
// is ended regardless of which call site saw the rejection.
package backend
