// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// A thread-safe registry of named counters that a host embedding the
// manager can update and read without depending on any particular
// metrics exporter. The Manager itself does not write to it.

package control

import (
	"sync"
	"time"
)

// MetricsRegistry holds mutable counters with a last-update timestamp.
type MetricsRegistry struct {
	mu      sync.RWMutex
	metrics map[string]int64
	updated time.Time
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		metrics: make(map[string]int64),
	}
}

// Add increments a named counter by delta (may be negative).
func (mr *MetricsRegistry) Add(key string, delta int64) {
	mr.mu.Lock()
	mr.metrics[key] += delta
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// Set overwrites a named counter.
func (mr *MetricsRegistry) Set(key string, value int64) {
	mr.mu.Lock()
	mr.metrics[key] = value
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// Snapshot returns a copy of all counters.
func (mr *MetricsRegistry) Snapshot() map[string]int64 {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]int64, len(mr.metrics))
	for k, v := range mr.metrics {
		out[k] = v
	}
	return out
}

// Default is a process-wide registry; nothing in mgoose updates it.
var Default = NewMetricsRegistry()
