// Package engine abstracts the speech-recognition backend. Two
// implementations are provided: an HTTP client for a whisper-server
// inference endpoint and an in-process whisper.cpp engine using the CGO
// bindings.
package engine
