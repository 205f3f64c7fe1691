package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// BytesPerSample is the wire size of one audio sample: a 32-bit
	// little-endian IEEE 754 float.
	BytesPerSample = 4

	// MaxFrameBytes bounds a single audio frame. 16 kHz mono float32 audio
	// is 64 KiB per second; a frame larger than ten seconds is not a frame
	// a well-behaved client sends.
	MaxFrameBytes = 10 * 16000 * BytesPerSample
)

// EndOfStream is the control message a client sends to signal that no more
// audio will follow. Any other text message is informational only.
const EndOfStream = "END_OF_STREAM"

// DecodeSamples interprets a binary websocket frame as a sequence of 32-bit
// little-endian float audio samples.
func DecodeSamples(frame []byte) ([]float32, error) {
	if len(frame) == 0 {
		return nil, fmt.Errorf("empty audio frame")
	}

	if len(frame)%BytesPerSample != 0 {
		return nil, fmt.Errorf("audio frame length must be a multiple of %d bytes, got %d",
			BytesPerSample, len(frame))
	}

	if len(frame) > MaxFrameBytes {
		return nil, fmt.Errorf("audio frame too large: %d bytes (max %d)", len(frame), MaxFrameBytes)
	}

	samples := make([]float32, len(frame)/BytesPerSample)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(frame[i*BytesPerSample:])
		v := math.Float32frombits(bits)
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, fmt.Errorf("audio frame contains non-finite sample at index %d", i)
		}
		samples[i] = v
	}

	return samples, nil
}

// EncodeSamples converts audio samples into the binary wire representation.
// It is the inverse of DecodeSamples and exists mainly for test clients.
func EncodeSamples(samples []float32) []byte {
	frame := make([]byte, len(samples)*BytesPerSample)
	for i, v := range samples {
		binary.LittleEndian.PutUint32(frame[i*BytesPerSample:], math.Float32bits(v))
	}
	return frame
}

// IsEndOfStream reports whether a control message signals end-of-stream.
func IsEndOfStream(message string) bool {
	return message == EndOfStream
}
