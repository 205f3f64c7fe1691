// Package protocol defines the websocket wire format for client sessions:
// binary frames carry raw float32 audio samples, text frames carry control
// messages.
package protocol
