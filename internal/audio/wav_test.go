package audio

import (
	"encoding/binary"
	"testing"
)

func TestEncodeWAVHeader(t *testing.T) {
	samples := make([]float32, 16000)
	data := EncodeWAV(samples, 16000)

	if len(data) != 44+len(samples)*2 {
		t.Fatalf("Expected %d bytes, got %d", 44+len(samples)*2, len(data))
	}

	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Error("Missing RIFF/WAVE markers")
	}
	if rate := binary.LittleEndian.Uint32(data[24:28]); rate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", rate)
	}
	if channels := binary.LittleEndian.Uint16(data[22:24]); channels != 1 {
		t.Errorf("Expected mono audio, got %d channels", channels)
	}
	if bits := binary.LittleEndian.Uint16(data[34:36]); bits != 16 {
		t.Errorf("Expected 16-bit PCM, got %d", bits)
	}
	if size := binary.LittleEndian.Uint32(data[40:44]); size != uint32(len(samples)*2) {
		t.Errorf("Expected data size %d, got %d", len(samples)*2, size)
	}
}

func TestEncodeWAVSampleConversion(t *testing.T) {
	data := EncodeWAV([]float32{0, 0.5, -0.5, 1.0, -1.0}, 16000)

	pcm := func(i int) int16 {
		return int16(binary.LittleEndian.Uint16(data[44+i*2:]))
	}

	if pcm(0) != 0 {
		t.Errorf("Expected silence to encode as 0, got %d", pcm(0))
	}
	if pcm(1) != 16383 {
		t.Errorf("Expected 0.5 to encode as 16383, got %d", pcm(1))
	}
	if pcm(3) != 32767 {
		t.Errorf("Expected full scale to encode as 32767, got %d", pcm(3))
	}
	if pcm(4) != -32767 {
		t.Errorf("Expected negative full scale to encode as -32767, got %d", pcm(4))
	}
}

func TestEncodeWAVClampsOutOfRange(t *testing.T) {
	data := EncodeWAV([]float32{2.0, -2.0}, 16000)

	first := int16(binary.LittleEndian.Uint16(data[44:]))
	second := int16(binary.LittleEndian.Uint16(data[46:]))

	if first != 32767 {
		t.Errorf("Expected clamp to 32767, got %d", first)
	}
	if second != -32767 {
		t.Errorf("Expected clamp to -32767, got %d", second)
	}
}
