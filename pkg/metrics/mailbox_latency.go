// Package metrics tracks model call latency and outcome counters.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// LatencyTracker keeps a sliding window of samples for percentile reporting.
type LatencyTracker struct {
	mu         sync.Mutex
	samples    []int64 // microseconds
	maxSamples int
	failures   int64
	total      int64
}

// NewLatencyTracker creates a tracker. windowSize <= 0 keeps the last 200 samples.
func NewLatencyTracker(windowSize int) *LatencyTracker {
	if windowSize <= 0 {
		windowSize = 200
	}
	return &LatencyTracker{
		samples:    make([]int64, 0, windowSize),
		maxSamples: windowSize,
	}
}

// Record records one call. Failed calls count toward the failure rate but
// their latency is kept too, since timeouts are the interesting tail.
func (lt *LatencyTracker) Record(d time.Duration, ok bool) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	lt.total++
	if !ok {
		lt.failures++
	}
	if len(lt.samples) >= lt.maxSamples {
		lt.samples = lt.samples[1:]
	}
	lt.samples = append(lt.samples, d.Microseconds())
}

// Stats returns a snapshot.
func (lt *LatencyTracker) Stats() LatencyStats {
	lt.mu.Lock()
	sorted := append([]int64(nil), lt.samples...)
	total, failures := lt.total, lt.failures
	lt.mu.Unlock()

	if len(sorted) == 0 {
		return LatencyStats{Calls: total, Failures: failures}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum int64
	for _, v := range sorted {
		sum += v
	}
	n := len(sorted)
	at := func(p float64) time.Duration {
		return time.Duration(sorted[int(float64(n-1)*p)]) * time.Microsecond
	}
	return LatencyStats{
		Calls:    total,
		Failures: failures,
		Min:      time.Duration(sorted[0]) * time.Microsecond,
		Max:      time.Duration(sorted[n-1]) * time.Microsecond,
		Avg:      time.Duration(sum/int64(n)) * time.Microsecond,
		P50:      at(0.50),
		P95:      at(0.95),
		Samples:  n,
	}
}

// LatencyStats holds latency statistics.
type LatencyStats struct {
	Calls    int64         `json:"calls"`
	Failures int64         `json:"failures"`
	Min      time.Duration `json:"min"`
	Max      time.Duration `json:"max"`
	Avg      time.Duration `json:"avg"`
	P50      time.Duration `json:"p50"`
	P95      time.Duration `json:"p95"`
	Samples  int           `json:"samples"`
}

// ToMap renders the stats in milliseconds for API responses.
func (s LatencyStats) ToMap() map[string]any {
	return map[string]any{
		"calls":       s.Calls,
		"failures":    s.Failures,
		"min_ms":      float64(s.Min.Microseconds()) / 1000,
		"max_ms":      float64(s.Max.Microseconds()) / 1000,
		"avg_ms":      float64(s.Avg.Microseconds()) / 1000,
		"p50_ms":      float64(s.P50.Microseconds()) / 1000,
		"p95_ms":      float64(s.P95.Microseconds()) / 1000,
		"sample_size": s.Samples,
	}
}

// Registry holds one tracker per operation name.
type Registry struct {
	mu       sync.RWMutex
	trackers map[string]*LatencyTracker
	window   int
}

func NewRegistry(windowSize int) *Registry {
	return &Registry{trackers: make(map[string]*LatencyTracker), window: windowSize}
}

// Record records a call for the given operation.
func (r *Registry) Record(op string, d time.Duration, ok bool) {
	r.mu.RLock()
	tracker, found := r.trackers[op]
	r.mu.RUnlock()

	if !found {
		r.mu.Lock()
		if tracker, found = r.trackers[op]; !found {
			tracker = NewLatencyTracker(r.window)
			r.trackers[op] = tracker
		}
		r.mu.Unlock()
	}
	tracker.Record(d, ok)
}

// AllStats returns statistics keyed by operation.
func (r *Registry) AllStats() map[string]LatencyStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]LatencyStats, len(r.trackers))
	for name, tracker := range r.trackers {
		result[name] = tracker.Stats()
	}
	return result
}
