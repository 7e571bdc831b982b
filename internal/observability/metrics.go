package observability

import (
	"sync"
	"sync/atomic"
)

// Counter names reported on /health.
const (
	CounterServed       = "served"
	CounterForbidden    = "forbidden"
	CounterNotFound     = "not_found"
	CounterUploads      = "uploads"
	CounterUploadErrors = "upload_errors"
	CounterBadRequests  = "bad_requests"
)

// Metrics provides a minimal in-process metrics registry.
type Metrics struct {
	counters sync.Map // map[string]*atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncCounter(name string) {
	if m == nil {
		return
	}
	v, _ := m.counters.LoadOrStore(name, new(atomic.Int64))
	v.(*atomic.Int64).Add(1)
}

// Count returns the current value of a counter.
func (m *Metrics) Count(name string) int64 {
	if m == nil {
		return 0
	}
	v, ok := m.counters.Load(name)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

func (m *Metrics) Snapshot() map[string]int64 {
	out := make(map[string]int64)
	if m == nil {
		return out
	}
	m.counters.Range(func(k, v any) bool {
		out[k.(string)] = v.(*atomic.Int64).Load()
		return true
	})
	return out
}
