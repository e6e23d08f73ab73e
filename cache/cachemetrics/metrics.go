// Package cachemetrics wires BlockCache instrumentation into
// Prometheus, the way the teacher wires its own consensus metrics
// (metrics/metrics.go: a thin struct holding a prometheus.Registerer).
package cachemetrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the counters/gauges for one BlockCache instance. A nil
// *Metrics is valid and simply does not record anything, so callers
// that do not care about instrumentation can pass nil to cache.New.
type Metrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
}

// New creates cache metrics and registers them with reg under the
// given subsystem name (e.g. "list" or "hamt"), so the same process
// can run a List cache and a Hamt cache with distinct series. A nil
// reg yields working, unregistered metrics.
func New(reg prometheus.Registerer, subsystem string) (*Metrics, error) {
	m := &Metrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "collections",
			Subsystem: subsystem,
			Name:      "cache_hits_total",
			Help:      "Number of BlockCache.Get calls served from the in-memory LRU.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "collections",
			Subsystem: subsystem,
			Name:      "cache_misses_total",
			Help:      "Number of BlockCache.Get calls that had to fetch from the store.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "collections",
			Subsystem: subsystem,
			Name:      "cache_evictions_total",
			Help:      "Number of LRU entries evicted to stay within cache_size.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.hits, m.misses, m.evictions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Hit() {
	if m == nil {
		return
	}
	m.hits.Inc()
}

func (m *Metrics) Miss() {
	if m == nil {
		return
	}
	m.misses.Inc()
}

func (m *Metrics) Eviction() {
	if m == nil {
		return
	}
	m.evictions.Inc()
}
