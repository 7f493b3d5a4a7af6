package endpoint

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	"github.com/pior/wireloop"
	"github.com/pior/wireloop/buffet"
)

// StatsSource is what a Collector reads on every scrape. *Endpoint
// implements it.
type StatsSource interface {
	Stats() wireloop.Stats
	PoolStats() buffet.PoolStats
	BreakerState() gobreaker.State
}

// Collector exports the counters of a StatsSource as Prometheus metrics.
// Values are read at scrape time; nothing is updated in the hot path.
type Collector struct {
	src StatsSource

	connections  *prometheus.Desc
	reads        *prometheus.Desc
	bytesRead    *prometheus.Desc
	messages     *prometheus.Desc
	writes       *prometheus.Desc
	bytesWritten *prometheus.Desc
	pieces       *prometheus.Desc
	failures     *prometheus.Desc

	poolChunks   *prometheus.Desc
	poolAcquires *prometheus.Desc
	poolWaits    *prometheus.Desc
	poolErrors   *prometheus.Desc

	breakerState *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector for src. name is exported as the
// "endpoint" const label.
func NewCollector(name string, src StatsSource) *Collector {
	labels := prometheus.Labels{"endpoint": name}
	desc := func(metric, help string, variable ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("wireloop", "", metric), help, variable, labels)
	}

	return &Collector{
		src:          src,
		connections:  desc("connections_total", "Connections served"),
		reads:        desc("reads_total", "Transport read calls"),
		bytesRead:    desc("read_bytes_total", "Bytes read from connections"),
		messages:     desc("messages_total", "Messages parsed"),
		writes:       desc("writes_total", "Vectored writes issued"),
		bytesWritten: desc("written_bytes_total", "Bytes written to connections"),
		pieces:       desc("written_pieces_total", "Fragments written"),
		failures:     desc("failures_total", "Connection failures by kind", "kind"),
		poolChunks:   desc("pool_chunks", "Receive chunks by state", "state"),
		poolAcquires: desc("pool_acquires_total", "Receive chunk acquires"),
		poolWaits:    desc("pool_acquire_waits_total", "Receive chunk acquires that had to wait"),
		poolErrors:   desc("pool_acquire_errors_total", "Failed receive chunk acquires"),
		breakerState: desc("breaker_state", "Handler breaker state (0=closed, 1=half-open, 2=open)"),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connections
	ch <- c.reads
	ch <- c.bytesRead
	ch <- c.messages
	ch <- c.writes
	ch <- c.bytesWritten
	ch <- c.pieces
	ch <- c.failures
	ch <- c.poolChunks
	ch <- c.poolAcquires
	ch <- c.poolWaits
	ch <- c.poolErrors
	ch <- c.breakerState
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}

	counter(c.connections, s.Connections)
	counter(c.reads, s.Reads)
	counter(c.bytesRead, s.BytesRead)
	counter(c.messages, s.Messages)
	counter(c.writes, s.Writes)
	counter(c.bytesWritten, s.BytesWritten)
	counter(c.pieces, s.Pieces)
	for _, kind := range wireloop.FailureKinds() {
		counter(c.failures, s.Failures[kind], kind.String())
	}

	p := c.src.PoolStats()
	ch <- prometheus.MustNewConstMetric(c.poolChunks, prometheus.GaugeValue, float64(p.TotalChunks), "total")
	ch <- prometheus.MustNewConstMetric(c.poolChunks, prometheus.GaugeValue, float64(p.IdleChunks), "idle")
	ch <- prometheus.MustNewConstMetric(c.poolChunks, prometheus.GaugeValue, float64(p.ActiveChunks), "active")
	counter(c.poolAcquires, p.AcquireCount)
	counter(c.poolWaits, p.AcquireWaitCount)
	counter(c.poolErrors, p.AcquireErrors)

	ch <- prometheus.MustNewConstMetric(c.breakerState, prometheus.GaugeValue, float64(c.src.BreakerState()))
}
