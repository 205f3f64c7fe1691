package protocol

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestDecodeSamples(t *testing.T) {
	want := []float32{0, 0.5, -1.0, 0.25}
	frame := EncodeSamples(want)

	got, err := DecodeSamples(frame)
	if err != nil {
		t.Fatalf("DecodeSamples failed: %v", err)
	}

	if len(got) != len(want) {
		t.Fatalf("Expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Sample %d: expected %f, got %f", i, want[i], got[i])
		}
	}
}

func TestDecodeSamplesRejectsEmptyFrame(t *testing.T) {
	if _, err := DecodeSamples(nil); err == nil {
		t.Error("Expected error for empty frame")
	}
}

func TestDecodeSamplesRejectsOddLength(t *testing.T) {
	if _, err := DecodeSamples(make([]byte, 6)); err == nil {
		t.Error("Expected error for frame length not divisible by sample size")
	}
}

func TestDecodeSamplesRejectsOversizeFrame(t *testing.T) {
	if _, err := DecodeSamples(make([]byte, MaxFrameBytes+BytesPerSample)); err == nil {
		t.Error("Expected error for oversize frame")
	}
}

func TestDecodeSamplesRejectsNonFinite(t *testing.T) {
	frame := make([]byte, 8)
	binary.LittleEndian.PutUint32(frame[0:], math.Float32bits(1.0))
	binary.LittleEndian.PutUint32(frame[4:], math.Float32bits(float32(math.NaN())))

	if _, err := DecodeSamples(frame); err == nil {
		t.Error("Expected error for NaN sample")
	}

	binary.LittleEndian.PutUint32(frame[4:], math.Float32bits(float32(math.Inf(1))))
	if _, err := DecodeSamples(frame); err == nil {
		t.Error("Expected error for infinite sample")
	}
}

func TestIsEndOfStream(t *testing.T) {
	if !IsEndOfStream(EndOfStream) {
		t.Error("Expected end-of-stream message to be recognized")
	}
	if IsEndOfStream("hello") {
		t.Error("Unexpected end-of-stream for arbitrary control message")
	}
}
