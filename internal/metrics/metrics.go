// Package metrics exposes a Prometheus scrape endpoint over the server's
// live counters. Most of the surface a scrape reports (token/posting
// counts, heap usage, replication progress) is recomputed fresh at scrape
// time rather than accumulated as the server runs, so the package wraps a
// Source in a prometheus.Collector whose Collect method reads it on demand,
// the same pull-at-scrape shape node_exporter-style collectors use for
// external state client_golang's own counters/gauges don't own.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TableSnapshot is one table's index/document gauges for a single scrape.
type TableSnapshot struct {
	Name               string
	Documents          int
	Tokens             int
	TotalPostings      uint64
	DeltaEncodedLists  int
	RoaringBitmapLists int
	Optimizing         bool
	MemoryUsageBytes   uint64
}

// ReplicationSnapshot mirrors domain.ApplyCounters plus the applier's
// running state, for the mygramdb_replication_* series.
type ReplicationSnapshot struct {
	Running         bool
	ProcessedEvents int64

	InsertsApplied int64
	InsertsSkipped int64

	UpdatesAdded    int64
	UpdatesRemoved  int64
	UpdatesModified int64
	UpdatesSkipped  int64

	DeletesApplied int64
	DeletesSkipped int64
}

// Source is the read-only view of server state a scrape renders. Every
// method is expected to be cheap and non-blocking beyond the short
// per-table read lock taken by the server's MetricsSource.Tables.
type Source interface {
	Uptime() time.Duration
	TotalCommands() int64
	CommandCounts() map[string]int64
	HeapAllocBytes() uint64
	Tables() []TableSnapshot
	ClientsConnected() int64
	ClientsTotal() int64
	Replication() (ReplicationSnapshot, bool)
}

// descriptor set, built once; Collect fills in labels and values per scrape.
var (
	serverInfoDesc           = prometheus.NewDesc("mygramdb_server_info", "MygramDB server information", []string{"version"}, nil)
	uptimeDesc                = prometheus.NewDesc("mygramdb_server_uptime_seconds", "Server uptime in seconds", nil, nil)
	commandsTotalDesc         = prometheus.NewDesc("mygramdb_server_commands_total", "Total number of commands processed", nil, nil)
	commandTotalDesc          = prometheus.NewDesc("mygramdb_command_total", "Total number of commands executed by type", []string{"command"}, nil)
	memoryUsedDesc            = prometheus.NewDesc("mygramdb_memory_used_bytes", "Current heap memory usage in bytes", []string{"type"}, nil)
	clientsConnectedDesc      = prometheus.NewDesc("mygramdb_clients_connected", "Current number of connected clients", nil, nil)
	clientsTotalDesc          = prometheus.NewDesc("mygramdb_clients_total", "Total number of client connections received", nil, nil)
	indexDocumentsDesc        = prometheus.NewDesc("mygramdb_index_documents_total", "Total number of documents in the index", []string{"table"}, nil)
	indexTermsDesc            = prometheus.NewDesc("mygramdb_index_terms_total", "Total number of unique terms", []string{"table"}, nil)
	indexPostingsDesc         = prometheus.NewDesc("mygramdb_index_postings_total", "Total number of postings", []string{"table"}, nil)
	indexPostingsAvgDesc      = prometheus.NewDesc("mygramdb_index_postings_per_term_avg", "Average postings per term", []string{"table"}, nil)
	indexDeltaListsDesc       = prometheus.NewDesc("mygramdb_index_delta_encoded_lists", "Delta-encoded posting lists count", []string{"table"}, nil)
	indexBitmapListsDesc      = prometheus.NewDesc("mygramdb_index_roaring_bitmap_lists", "Roaring bitmap posting lists count", []string{"table"}, nil)
	indexOptimizingDesc       = prometheus.NewDesc("mygramdb_index_optimization_in_progress", "Index optimization in progress (0=idle, 1=running)", []string{"table"}, nil)
	indexMemoryDesc           = prometheus.NewDesc("mygramdb_index_memory_bytes", "Index memory usage in bytes", []string{"table"}, nil)
	replicationRunningDesc    = prometheus.NewDesc("mygramdb_replication_running", "Replication status (0=stopped, 1=running)", nil, nil)
	replicationEventsDesc     = prometheus.NewDesc("mygramdb_replication_events_processed", "Total number of replication events processed", nil, nil)
	replicationInsertsDesc    = prometheus.NewDesc("mygramdb_replication_inserts_total", "Total number of INSERT operations", []string{"status"}, nil)
	replicationUpdatesDesc    = prometheus.NewDesc("mygramdb_replication_updates_total", "Total number of UPDATE operations", []string{"status"}, nil)
	replicationDeletesDesc    = prometheus.NewDesc("mygramdb_replication_deletes_total", "Total number of DELETE operations", []string{"status"}, nil)
)

// Collector adapts a Source into a prometheus.Collector: Describe reports
// the fixed descriptor set above, Collect re-reads src and emits one sample
// per descriptor/label combination, computed fresh every scrape.
type Collector struct {
	src     Source
	version string
}

// NewCollector builds a Collector over src, stamping every scrape's
// mygramdb_server_info series with version.
func NewCollector(src Source, version string) *Collector {
	return &Collector{src: src, version: version}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- serverInfoDesc
	ch <- uptimeDesc
	ch <- commandsTotalDesc
	ch <- commandTotalDesc
	ch <- memoryUsedDesc
	ch <- clientsConnectedDesc
	ch <- clientsTotalDesc
	ch <- indexDocumentsDesc
	ch <- indexTermsDesc
	ch <- indexPostingsDesc
	ch <- indexPostingsAvgDesc
	ch <- indexDeltaListsDesc
	ch <- indexBitmapListsDesc
	ch <- indexOptimizingDesc
	ch <- indexMemoryDesc
	ch <- replicationRunningDesc
	ch <- replicationEventsDesc
	ch <- replicationInsertsDesc
	ch <- replicationUpdatesDesc
	ch <- replicationDeletesDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(serverInfoDesc, prometheus.GaugeValue, 1, c.version)
	ch <- prometheus.MustNewConstMetric(uptimeDesc, prometheus.CounterValue, c.src.Uptime().Seconds())
	ch <- prometheus.MustNewConstMetric(commandsTotalDesc, prometheus.CounterValue, float64(c.src.TotalCommands()))

	for name, count := range c.src.CommandCounts() {
		ch <- prometheus.MustNewConstMetric(commandTotalDesc, prometheus.CounterValue, float64(count), name)
	}

	ch <- prometheus.MustNewConstMetric(memoryUsedDesc, prometheus.GaugeValue, float64(c.src.HeapAllocBytes()), "heap")

	for _, t := range c.src.Tables() {
		ch <- prometheus.MustNewConstMetric(indexDocumentsDesc, prometheus.GaugeValue, float64(t.Documents), t.Name)
		ch <- prometheus.MustNewConstMetric(indexTermsDesc, prometheus.GaugeValue, float64(t.Tokens), t.Name)
		ch <- prometheus.MustNewConstMetric(indexPostingsDesc, prometheus.GaugeValue, float64(t.TotalPostings), t.Name)
		if t.Tokens > 0 {
			ch <- prometheus.MustNewConstMetric(indexPostingsAvgDesc, prometheus.GaugeValue, float64(t.TotalPostings)/float64(t.Tokens), t.Name)
		}
		ch <- prometheus.MustNewConstMetric(indexDeltaListsDesc, prometheus.GaugeValue, float64(t.DeltaEncodedLists), t.Name)
		ch <- prometheus.MustNewConstMetric(indexBitmapListsDesc, prometheus.GaugeValue, float64(t.RoaringBitmapLists), t.Name)
		optimizing := 0.0
		if t.Optimizing {
			optimizing = 1
		}
		ch <- prometheus.MustNewConstMetric(indexOptimizingDesc, prometheus.GaugeValue, optimizing, t.Name)
		ch <- prometheus.MustNewConstMetric(indexMemoryDesc, prometheus.GaugeValue, float64(t.MemoryUsageBytes), t.Name)
	}

	ch <- prometheus.MustNewConstMetric(clientsConnectedDesc, prometheus.GaugeValue, float64(c.src.ClientsConnected()))
	ch <- prometheus.MustNewConstMetric(clientsTotalDesc, prometheus.CounterValue, float64(c.src.ClientsTotal()))

	repl, configured := c.src.Replication()
	if !configured {
		return
	}
	running := 0.0
	if repl.Running {
		running = 1
	}
	ch <- prometheus.MustNewConstMetric(replicationRunningDesc, prometheus.GaugeValue, running)
	ch <- prometheus.MustNewConstMetric(replicationEventsDesc, prometheus.CounterValue, float64(repl.ProcessedEvents))
	ch <- prometheus.MustNewConstMetric(replicationInsertsDesc, prometheus.CounterValue, float64(repl.InsertsApplied), "applied")
	ch <- prometheus.MustNewConstMetric(replicationInsertsDesc, prometheus.CounterValue, float64(repl.InsertsSkipped), "skipped")
	ch <- prometheus.MustNewConstMetric(replicationUpdatesDesc, prometheus.CounterValue, float64(repl.UpdatesAdded), "added")
	ch <- prometheus.MustNewConstMetric(replicationUpdatesDesc, prometheus.CounterValue, float64(repl.UpdatesRemoved), "removed")
	ch <- prometheus.MustNewConstMetric(replicationUpdatesDesc, prometheus.CounterValue, float64(repl.UpdatesModified), "modified")
	ch <- prometheus.MustNewConstMetric(replicationUpdatesDesc, prometheus.CounterValue, float64(repl.UpdatesSkipped), "skipped")
	ch <- prometheus.MustNewConstMetric(replicationDeletesDesc, prometheus.CounterValue, float64(repl.DeletesApplied), "applied")
	ch <- prometheus.MustNewConstMetric(replicationDeletesDesc, prometheus.CounterValue, float64(repl.DeletesSkipped), "skipped")
}

// Handler builds a dedicated registry holding only this Collector (no Go
// runtime/process collectors — the mygramdb_memory_used_bytes series
// already covers heap usage) and serves it through promhttp, the standard
// client_golang scrape endpoint.
func Handler(src Source, version string) http.HandlerFunc {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollector(src, version))
	h := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return h.ServeHTTP
}
