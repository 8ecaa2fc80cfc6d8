package pa

// metrics.go defines a metricsSink interface abstracting Prometheus vs
// no-op, selected at construction time by whether a *prometheus.Registry
// was supplied via WithMetrics.

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

type metricsSink interface {
	incAlloc(hart int)
	incFree(hart int)
	incAllocFailed()
	incSteal(hart int)
	addStealFrames(hart int, n int)
	setFreeFrames(hart int, n int)
}

type noopMetrics struct{}

func (noopMetrics) incAlloc(int)            {}
func (noopMetrics) incFree(int)             {}
func (noopMetrics) incAllocFailed()         {}
func (noopMetrics) incSteal(int)            {}
func (noopMetrics) addStealFrames(int, int) {}
func (noopMetrics) setFreeFrames(int, int)  {}

type promMetrics struct {
	allocs      *prometheus.CounterVec
	frees       *prometheus.CounterVec
	allocFailed prometheus.Counter
	steals      *prometheus.CounterVec
	stealFrames *prometheus.CounterVec
	freeFrames  *prometheus.GaugeVec
}

func newPromMetrics(reg *prometheus.Registry) *promMetrics {
	label := []string{"hart"}
	pm := &promMetrics{
		allocs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kcore_pa", Name: "alloc_total", Help: "Number of successful page allocations.",
		}, label),
		frees: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kcore_pa", Name: "free_total", Help: "Number of page frees.",
		}, label),
		allocFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kcore_pa", Name: "alloc_failed_total", Help: "Number of allocations that failed due to RAM exhaustion.",
		}),
		steals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kcore_pa", Name: "steal_total", Help: "Number of work-stealing events.",
		}, label),
		stealFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kcore_pa", Name: "steal_frames_total", Help: "Number of frames moved by work-stealing.",
		}, label),
		freeFrames: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "kcore_pa", Name: "free_frames", Help: "Current number of free frames in a shard's freelist.",
		}, label),
	}
	reg.MustRegister(pm.allocs, pm.frees, pm.allocFailed, pm.steals, pm.stealFrames, pm.freeFrames)
	return pm
}

func (m *promMetrics) incAlloc(hart int) { m.allocs.WithLabelValues(strconv.Itoa(hart)).Inc() }
func (m *promMetrics) incFree(hart int)  { m.frees.WithLabelValues(strconv.Itoa(hart)).Inc() }
func (m *promMetrics) incAllocFailed()   { m.allocFailed.Inc() }
func (m *promMetrics) incSteal(hart int) { m.steals.WithLabelValues(strconv.Itoa(hart)).Inc() }
func (m *promMetrics) addStealFrames(hart int, n int) {
	m.stealFrames.WithLabelValues(strconv.Itoa(hart)).Add(float64(n))
}
func (m *promMetrics) setFreeFrames(hart int, n int) {
	m.freeFrames.WithLabelValues(strconv.Itoa(hart)).Set(float64(n))
}

func newMetricsSink(hartCount int, reg *prometheus.Registry) metricsSink {
	_ = hartCount
	if reg == nil {
		return noopMetrics{}
	}
	return newPromMetrics(reg)
}
