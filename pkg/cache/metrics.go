package cache

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics exports counters to Prometheus and keeps per-key access counts
// under a plain mutex. The counters are small; one lock is enough.
type metrics struct {
	hits      *prometheus.CounterVec
	misses    prometheus.Counter
	evictions prometheus.Counter
	l2Errors  prometheus.Counter

	mu       sync.Mutex
	accesses map[string]int64
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		hits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "event2table",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cache hits by tier.",
		}, []string{"tier"}),
		misses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "event2table",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Cache misses across both tiers.",
		}),
		evictions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "event2table",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "L1 LRU evictions.",
		}),
		l2Errors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "event2table",
			Subsystem: "cache",
			Name:      "l2_errors_total",
			Help:      "Errors talking to the shared store; the cache degrades to L1-only.",
		}),
		accesses: make(map[string]int64),
	}
}

func (m *metrics) recordAccess(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accesses[key]++
}

func (m *metrics) forgetKeys(keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.accesses, k)
	}
}

// AccessCount returns how many lookups a key has seen.
func (m *metrics) AccessCount(key string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accesses[key]
}
