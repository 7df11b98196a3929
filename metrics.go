package gokv

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the counters and gauges a Store updates as it runs.
// Nothing here starts an HTTP listener; callers that want to expose
// these register them against their own prometheus.Registerer (or the
// default one) and serve /metrics themselves.
type Metrics struct {
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	PagesEvicted    prometheus.Counter
	Commits         prometheus.Counter
	Rollbacks       prometheus.Counter
	WALBytesWritten prometheus.Counter
	Checkpoints     prometheus.Counter
	DirtyBuffers    prometheus.Gauge
}

// NewMetrics constructs a Metrics bundle and registers it against reg.
// Pass prometheus.DefaultRegisterer to use the global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gokv", Name: "cache_hits_total", Help: "Buffer pool lookups resolved without a disk read.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gokv", Name: "cache_misses_total", Help: "Buffer pool lookups that required a disk read.",
		}),
		PagesEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gokv", Name: "pages_evicted_total", Help: "Clean pages evicted from the pool to make room.",
		}),
		Commits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gokv", Name: "commits_total", Help: "Transactions committed.",
		}),
		Rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gokv", Name: "rollbacks_total", Help: "Transactions rolled back.",
		}),
		WALBytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gokv", Name: "wal_bytes_written_total", Help: "Bytes appended to the write-ahead log.",
		}),
		Checkpoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gokv", Name: "checkpoints_total", Help: "WAL checkpoints performed.",
		}),
		DirtyBuffers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gokv", Name: "dirty_buffers", Help: "Buffers currently marked dirty.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.CacheHits, m.CacheMisses, m.PagesEvicted, m.Commits,
			m.Rollbacks, m.WALBytesWritten, m.Checkpoints, m.DirtyBuffers)
	}
	return m
}
