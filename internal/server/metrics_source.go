package server

import (
	"runtime"
	"time"

	"github.com/libraz/mygramdb-go/internal/metrics"
)

// MetricsSource adapts a Dispatcher into the metrics.Source interface the
// Prometheus text-exposition handler scrapes.
type MetricsSource struct {
	dispatcher *Dispatcher
	clients    func() (connected, total int64)
}

// NewMetricsSource builds a MetricsSource over dispatcher. clients reports
// the current/cumulative connection counts the TCP acceptor tracks; pass
// nil to report zero for both.
func NewMetricsSource(dispatcher *Dispatcher, clients func() (connected, total int64)) *MetricsSource {
	return &MetricsSource{dispatcher: dispatcher, clients: clients}
}

func (s *MetricsSource) Uptime() time.Duration { return s.dispatcher.Uptime() }

func (s *MetricsSource) TotalCommands() int64 { return s.dispatcher.TotalCommands() }

func (s *MetricsSource) CommandCounts() map[string]int64 { return s.dispatcher.CommandCounts() }

func (s *MetricsSource) HeapAllocBytes() uint64 {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return mem.HeapAlloc
}

func (s *MetricsSource) Tables() []metrics.TableSnapshot {
	names := s.dispatcher.TableNames()
	out := make([]metrics.TableSnapshot, 0, len(names))
	for _, name := range names {
		ctx, ok := s.dispatcher.TableContext(name)
		if !ok {
			continue
		}
		ctx.RLock()
		idxStats := ctx.Index.Statistics()
		docs := ctx.Store.Size()
		optimizing := ctx.Index.IsOptimizing()
		ctx.RUnlock()

		out = append(out, metrics.TableSnapshot{
			Name:               name,
			Documents:          docs,
			Tokens:             idxStats.TokenCount,
			TotalPostings:      idxStats.TotalPostings,
			DeltaEncodedLists:  idxStats.DeltaEncodedLists,
			RoaringBitmapLists: idxStats.RoaringBitmapLists,
			Optimizing:         optimizing,
			MemoryUsageBytes:   idxStats.MemoryUsage,
		})
	}
	return out
}

func (s *MetricsSource) ClientsConnected() int64 {
	if s.clients == nil {
		return 0
	}
	connected, _ := s.clients()
	return connected
}

func (s *MetricsSource) ClientsTotal() int64 {
	if s.clients == nil {
		return 0
	}
	_, total := s.clients()
	return total
}

func (s *MetricsSource) Replication() (metrics.ReplicationSnapshot, bool) {
	status, ok := s.dispatcher.ReplicationStatus()
	if !ok {
		return metrics.ReplicationSnapshot{}, false
	}
	c := status.Counters
	return metrics.ReplicationSnapshot{
		Running:         status.Running,
		ProcessedEvents: status.ProcessedEvents,
		InsertsApplied:  c.InsertsApplied,
		InsertsSkipped:  c.InsertsSkipped,
		UpdatesAdded:    c.UpdatesAdded,
		UpdatesRemoved:  c.UpdatesRemoved,
		UpdatesModified: c.UpdatesModified,
		UpdatesSkipped:  c.UpdatesSkipped,
		DeletesApplied:  c.DeletesApplied,
		DeletesSkipped:  c.DeletesSkipped,
	}, true
}
