// Package audio provides the per-session sliding sample buffer and WAV
// encoding helpers.
package audio
