package audio

import (
	"sync"
	"time"
)

// Ring is the sliding audio window for one session. Incoming samples are
// appended at the tail; once the buffered duration exceeds the high-water
// mark, history is evicted from the head down to the low-water mark and the
// origin offset advances by exactly the evicted duration. Absolute-time
// slicing stays valid across evictions.
//
// Append and SliceFrom are safe to call concurrently: the ingestion path is
// the only writer of the tail and origin, the recognition cycle only reads.
type Ring struct {
	sampleRate int
	highWater  int // samples
	lowWater   int // samples

	mu         sync.RWMutex
	samples    []float32
	origin     float64 // absolute offset (seconds) of samples[0]
	appended   uint64
	evicted    uint64
	lastUpdate time.Time
}

// RingStats represents buffer statistics for monitoring
type RingStats struct {
	BufferedSamples int     `json:"buffered_samples"`
	BufferedSeconds float64 `json:"buffered_seconds"`
	OriginOffset    float64 `json:"origin_offset"`
	TotalAppended   uint64  `json:"total_appended"`
	TotalEvicted    uint64  `json:"total_evicted"`
}

// NewRing creates a ring for the given sample rate with eviction bounds
// expressed in seconds of audio.
func NewRing(sampleRate int, highWaterSec, lowWaterSec float64) *Ring {
	return &Ring{
		sampleRate: sampleRate,
		highWater:  int(highWaterSec * float64(sampleRate)),
		lowWater:   int(lowWaterSec * float64(sampleRate)),
		samples:    make([]float32, 0, sampleRate*2),
		lastUpdate: time.Now(),
	}
}

// Append concatenates new samples to the buffer tail, evicting old history
// once the high-water mark is exceeded. Append never fails.
func (r *Ring) Append(samples []float32) {
	if len(samples) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.samples = append(r.samples, samples...)
	r.appended += uint64(len(samples))
	r.lastUpdate = time.Now()

	if len(r.samples) > r.highWater {
		evict := len(r.samples) - r.lowWater
		// Copy into a fresh slice so the evicted prefix can be collected.
		kept := make([]float32, r.lowWater, r.lowWater+r.sampleRate)
		copy(kept, r.samples[evict:])
		r.samples = kept
		r.origin += float64(evict) / float64(r.sampleRate)
		r.evicted += uint64(evict)
	}
}

// SliceFrom returns a copy of all samples at or after absOffset, together
// with the clamped offset the slice actually starts at. Requests that
// predate retained history indicate an upstream bug and are clamped to the
// origin; an empty buffer yields an empty slice.
func (r *Ring) SliceFrom(absOffset float64) ([]float32, float64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	start := absOffset
	if start < r.origin {
		start = r.origin
	}

	idx := int((start - r.origin) * float64(r.sampleRate))
	if idx >= len(r.samples) {
		return nil, r.origin + float64(len(r.samples))/float64(r.sampleRate)
	}
	if idx < 0 {
		idx = 0
	}

	out := make([]float32, len(r.samples)-idx)
	copy(out, r.samples[idx:])
	return out, r.origin + float64(idx)/float64(r.sampleRate)
}

// Origin returns the absolute offset (seconds) of the oldest retained sample.
func (r *Ring) Origin() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.origin
}

// End returns the absolute offset (seconds) just past the newest sample.
func (r *Ring) End() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.origin + float64(len(r.samples))/float64(r.sampleRate)
}

// Duration returns the currently buffered duration in seconds.
func (r *Ring) Duration() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return float64(len(r.samples)) / float64(r.sampleRate)
}

// Len returns the current number of buffered samples.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.samples)
}

// LastUpdate returns the time of the last append.
func (r *Ring) LastUpdate() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastUpdate
}

// Stats returns current buffer statistics.
func (r *Ring) Stats() RingStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RingStats{
		BufferedSamples: len(r.samples),
		BufferedSeconds: float64(len(r.samples)) / float64(r.sampleRate),
		OriginOffset:    r.origin,
		TotalAppended:   r.appended,
		TotalEvicted:    r.evicted,
	}
}
