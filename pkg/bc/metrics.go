package bc

// metrics.go mirrors pkg/pa/metrics.go's sink-interface pattern.

import "github.com/prometheus/client_golang/prometheus"

type metricsSink interface {
	incHit()
	incMiss()
	incEvict()
	incRehome()
	incPinned()
	decPinned()
	observeDriverLatency(seconds float64)
}

type noopMetrics struct{}

func (noopMetrics) incHit()                        {}
func (noopMetrics) incMiss()                       {}
func (noopMetrics) incEvict()                      {}
func (noopMetrics) incRehome()                     {}
func (noopMetrics) incPinned()                     {}
func (noopMetrics) decPinned()                     {}
func (noopMetrics) observeDriverLatency(float64) {}

type promMetrics struct {
	hits    prometheus.Counter
	misses  prometheus.Counter
	evicts  prometheus.Counter
	rehomes prometheus.Counter
	pinned  prometheus.Gauge
	driverLatency prometheus.Histogram
}

func newPromMetrics(reg *prometheus.Registry) *promMetrics {
	pm := &promMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kcore_bc", Name: "hit_total", Help: "Acquire calls satisfied by a bucket scan.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kcore_bc", Name: "miss_total", Help: "Acquire calls that required the eviction gate.",
		}),
		evicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kcore_bc", Name: "evict_total", Help: "Buffers reassigned via LRU eviction.",
		}),
		rehomes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kcore_bc", Name: "rehome_total", Help: "Evicted buffers moved into a different bucket than their victim bucket.",
		}),
		pinned: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kcore_bc", Name: "pinned_buffers", Help: "Buffers currently held pinned via Pin beyond their own user-lock.",
		}),
		driverLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kcore_bc", Name: "driver_latency_seconds", Help: "Latency of BlockDevice ReadBlock/WriteBlock calls.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(pm.hits, pm.misses, pm.evicts, pm.rehomes, pm.pinned, pm.driverLatency)
	return pm
}

func (m *promMetrics) incHit()    { m.hits.Inc() }
func (m *promMetrics) incMiss()   { m.misses.Inc() }
func (m *promMetrics) incEvict()  { m.evicts.Inc() }
func (m *promMetrics) incRehome() { m.rehomes.Inc() }
func (m *promMetrics) incPinned() { m.pinned.Inc() }
func (m *promMetrics) decPinned() { m.pinned.Dec() }
func (m *promMetrics) observeDriverLatency(seconds float64) {
	m.driverLatency.Observe(seconds)
}

func newMetricsSink(reg *prometheus.Registry) metricsSink {
	if reg == nil {
		return noopMetrics{}
	}
	return newPromMetrics(reg)
}
