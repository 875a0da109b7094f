package metrics

import (
	"sync"
	"time"

	"github.com/montanaflynn/stats"
)

const defaultWindow = 1024

// Latency keeps the most recent call durations.
type Latency struct {
	mu      sync.Mutex
	samples []float64
	next    int
	full    bool
}

// NewLatency keeps the last window samples. A non-positive window uses 1024.
func NewLatency(window int) *Latency {
	if window <= 0 {
		window = defaultWindow
	}
	return &Latency{samples: make([]float64, window)}
}

// Add records one duration.
func (l *Latency) Add(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.samples[l.next] = float64(d) / float64(time.Millisecond)
	l.next++
	if l.next == len(l.samples) {
		l.next = 0
		l.full = true
	}
}

// Summary describes the window in milliseconds.
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean_ms"`
	Median float64 `json:"median_ms"`
	P90    float64 `json:"p90_ms"`
	P99    float64 `json:"p99_ms"`
	Min    float64 `json:"min_ms"`
	Max    float64 `json:"max_ms"`
}

// Summary computes the current summary. It is zero when no sample exists.
func (l *Latency) Summary() Summary {
	l.mu.Lock()
	n := l.next
	if l.full {
		n = len(l.samples)
	}
	data := make(stats.Float64Data, n)
	copy(data, l.samples[:n])
	l.mu.Unlock()

	if n == 0 {
		return Summary{}
	}

	s := Summary{Count: n}
	s.Mean, _ = data.Mean()
	s.Median, _ = data.Median()
	s.P90, _ = data.Percentile(90)
	s.P99, _ = data.Percentile(99)
	s.Min, _ = data.Min()
	s.Max, _ = data.Max()
	return s
}
