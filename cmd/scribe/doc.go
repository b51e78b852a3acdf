// Command scribe is the terminal client for the transcription service.
//
// It signs in with email/password or GitHub, uploads audio files, and shows
// the task history. `scribe watch` keeps the history table current by polling
// every task that is still pending or processing until it finishes.
package main
