package stats

import "github.com/prometheus/client_golang/prometheus"

// Collector adapts Stats to prometheus.Collector so a running simulator can
// be scraped directly, rather than only polled via Snapshot. Grounded on the
// runZeroInc-sockstats/ghjramos-aistore go.mod's prometheus/client_golang
// dependency, which the teacher repo never imports itself.
type Collector struct {
	stats *Stats

	requestsAdmitted  *prometheus.Desc
	requestsCompleted *prometheus.Desc
	cacheHits         *prometheus.Desc
	cacheMisses       *prometheus.Desc
	dramReads         *prometheus.Desc
	dramWrites        *prometheus.Desc
	mshrMerges        *prometheus.Desc
	uopsDispatched    *prometheus.Desc
	uopsCompleted     *prometheus.Desc
	avgLatencyCycles  *prometheus.Desc
	cycles            *prometheus.Desc
}

// NewCollector wraps stats for registration with a prometheus.Registry.
func NewCollector(stats *Stats) *Collector {
	return &Collector{
		stats:             stats,
		requestsAdmitted:  prometheus.NewDesc("cxlsim_requests_admitted_total", "Requests admitted into the pipeline.", nil, nil),
		requestsCompleted: prometheus.NewDesc("cxlsim_requests_completed_total", "Requests retired out of the pipeline.", nil, nil),
		cacheHits:         prometheus.NewDesc("cxlsim_cache_hits_total", "Device-side cache lookups that hit.", nil, nil),
		cacheMisses:       prometheus.NewDesc("cxlsim_cache_misses_total", "Device-side cache lookups that missed.", nil, nil),
		dramReads:         prometheus.NewDesc("cxlsim_dram_reads_total", "Read requests issued to the DRAM collaborator.", nil, nil),
		dramWrites:        prometheus.NewDesc("cxlsim_dram_writes_total", "Write requests issued to the DRAM collaborator.", nil, nil),
		mshrMerges:        prometheus.NewDesc("cxlsim_mshr_merges_total", "Misses merged onto an already-outstanding MSHR entry.", nil, nil),
		uopsDispatched:    prometheus.NewDesc("cxlsim_uops_dispatched_total", "Uops dispatched onto an execution port or handed to the memory interlock.", nil, nil),
		uopsCompleted:     prometheus.NewDesc("cxlsim_uops_completed_total", "Uops that finished executing.", nil, nil),
		avgLatencyCycles:  prometheus.NewDesc("cxlsim_request_latency_cycles_avg", "Average end-to-end request latency in cycles.", nil, nil),
		cycles:            prometheus.NewDesc("cxlsim_cycles_total", "Simulated cycles elapsed in the current run window.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.requestsAdmitted
	ch <- c.requestsCompleted
	ch <- c.cacheHits
	ch <- c.cacheMisses
	ch <- c.dramReads
	ch <- c.dramWrites
	ch <- c.mshrMerges
	ch <- c.uopsDispatched
	ch <- c.uopsCompleted
	ch <- c.avgLatencyCycles
	ch <- c.cycles
}

// Collect implements prometheus.Collector, snapshotting Stats on each scrape.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.stats.Snapshot()
	ch <- prometheus.MustNewConstMetric(c.requestsAdmitted, prometheus.CounterValue, float64(snap.RequestsAdmitted))
	ch <- prometheus.MustNewConstMetric(c.requestsCompleted, prometheus.CounterValue, float64(snap.RequestsCompleted))
	ch <- prometheus.MustNewConstMetric(c.cacheHits, prometheus.CounterValue, float64(snap.CacheHits))
	ch <- prometheus.MustNewConstMetric(c.cacheMisses, prometheus.CounterValue, float64(snap.CacheMisses))
	ch <- prometheus.MustNewConstMetric(c.dramReads, prometheus.CounterValue, float64(snap.DRAMReads))
	ch <- prometheus.MustNewConstMetric(c.dramWrites, prometheus.CounterValue, float64(snap.DRAMWrites))
	ch <- prometheus.MustNewConstMetric(c.mshrMerges, prometheus.CounterValue, float64(snap.MSHRMerges))
	ch <- prometheus.MustNewConstMetric(c.uopsDispatched, prometheus.CounterValue, float64(snap.UopsDispatched))
	ch <- prometheus.MustNewConstMetric(c.uopsCompleted, prometheus.CounterValue, float64(snap.UopsCompleted))
	ch <- prometheus.MustNewConstMetric(c.avgLatencyCycles, prometheus.GaugeValue, snap.AvgLatencyCycles)
	ch <- prometheus.MustNewConstMetric(c.cycles, prometheus.GaugeValue, float64(snap.Cycles))
}

var _ prometheus.Collector = (*Collector)(nil)
