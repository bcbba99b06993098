package replication

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/libraz/mygramdb-go/internal/core/domain"
)

// EventSource is the decoded row-event stream the Runner drains. Events is
// expected to close when the upstream decoder's connection ends; the
// Runner treats a closed channel the same as an explicit Stop.
type EventSource interface {
	Events() <-chan RowEventOrError
}

// RowEventOrError lets an EventSource report a decode failure inline
// rather than silently dropping the position (a malformed event still
// advances nothing, but the Runner logs it instead of panicking).
type RowEventOrError struct {
	Event domain.RowEvent
	Err   error
}

// Runner drives the Applier against an EventSource on a dedicated
// goroutine, and implements server.
// ReplicationController so the wire protocol's REPLICATION STATUS/STOP/
// START commands can observe and control it.
type Runner struct {
	source  EventSource
	applier *Applier
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	processedEvents atomic.Int64
	queueSize       atomic.Int64
	lastErr         atomic.Value // string
}

// NewRunner builds a Runner over applier, draining source once Start is
// called.
func NewRunner(source EventSource, applier *Applier, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{source: source, applier: applier, logger: logger}
}

// Start launches the drain goroutine. Idempotent: calling Start while
// already running is a no-op, matching the applier's own idempotent-op
// conventions.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	go r.drain(r.stopCh, r.doneCh)
	return nil
}

func (r *Runner) drain(stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	events := r.source.Events()
	for {
		select {
		case <-stopCh:
			return
		case item, ok := <-events:
			if !ok {
				return
			}
			r.queueSize.Store(int64(len(events)))
			if item.Err != nil {
				r.logger.Error("replication decoder reported an error", "err", item.Err)
				r.lastErr.Store(item.Err.Error())
				continue
			}
			if err := r.applier.Apply(item.Event); err != nil {
				r.logger.Error("replication apply failed", "table", item.Event.Table, "err", err)
				r.lastErr.Store(err.Error())
				continue
			}
			r.processedEvents.Add(1)
		}
	}
}

// Stop halts the drain goroutine and waits for it to exit. Idempotent.
func (r *Runner) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	stopCh := r.stopCh
	doneCh := r.doneCh
	r.running = false
	r.mu.Unlock()

	close(stopCh)
	<-doneCh
	return nil
}

// NoopEventSource is the structural placeholder EventSource wired by
// default: its channel is immediately closed, so a Runner built over it
// starts and idles with zero processed events rather than blocking
// forever. The actual logical-replication decoder is an external
// collaborator out of scope for this engine; an operator
// supplies a real EventSource (reading a MySQL binlog stream, Postgres
// logical decoding slot, or similar) in its place.
type NoopEventSource struct{}

// Events returns an already-closed channel.
func (NoopEventSource) Events() <-chan RowEventOrError {
	ch := make(chan RowEventOrError)
	close(ch)
	return ch
}

// Status reports the fields the `REPLICATION STATUS` response
// needs: whether the drain loop is running, the applier's current logical
// position, the lifetime processed-event count, and the decoder's current
// buffered-event backlog.
func (r *Runner) Status() (running bool, currentPosition string, processedEvents int64, queueSize int) {
	r.mu.Lock()
	running = r.running
	r.mu.Unlock()
	return running, r.applier.CurrentPosition(), r.processedEvents.Load(), int(r.queueSize.Load())
}
