package invalidation

import (
	"log/slog"
	"sync"
	"time"
)

// Descriptor is one pending invalidation event enqueued by the replication
// applier: a mutation on table changed text from oldText to newText.
type Descriptor struct {
	Table   string
	OldText string
	NewText string
}

// AsyncQueue drains queued invalidation descriptors in batches, so the
// ingest path never blocks on invalidation work against hot tokens.
// Batching is safe because cache correctness only requires invalidation to
// precede the next use of a stale entry; callers are expected to honor the
// fencing rule (a query must observe every invalidation queued before its
// read lock was acquired) by routing per-table apply and
// invalidation-drain through the same table lock.
//
// Its lifecycle follows this module's standard goroutine pattern: a
// running flag guarded by mu, and stopCh/doneCh channels for
// Start/Stop.
type AsyncQueue struct {
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	batchSize int
	maxDelay  time.Duration

	pending chan Descriptor
	apply   func(Descriptor)
	logger  *slog.Logger
}

// NewAsyncQueue creates a queue that calls apply for every batch member,
// draining either when batchSize descriptors have accumulated or when a
// maxDelay timer fires, whichever comes first. The timer restarts after
// every such drain, so it measures time since the last drain, not the age
// of the oldest pending descriptor.
func NewAsyncQueue(batchSize int, maxDelay time.Duration, apply func(Descriptor), logger *slog.Logger) *AsyncQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &AsyncQueue{
		batchSize: batchSize,
		maxDelay:  maxDelay,
		pending:   make(chan Descriptor, batchSize*4),
		apply:     apply,
		logger:    logger,
	}
}

// Enqueue submits one descriptor. It blocks only if the internal buffer
// (sized at 4x batchSize) is full, which signals the drain loop is falling
// behind.
func (q *AsyncQueue) Enqueue(d Descriptor) {
	q.pending <- d
}

// Start launches the drain loop. Calling Start on an already-running queue
// is a no-op.
func (q *AsyncQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true
	q.stopCh = make(chan struct{})
	q.doneCh = make(chan struct{})
	go q.run(q.stopCh, q.doneCh)
}

func (q *AsyncQueue) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	batch := make([]Descriptor, 0, q.batchSize)
	timer := time.NewTimer(q.maxDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		for _, d := range batch {
			q.apply(d)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-stopCh:
			// Drain whatever is already buffered before exiting, then
			// flush the final partial batch.
			for {
				select {
				case d := <-q.pending:
					batch = append(batch, d)
				default:
					flush()
					return
				}
			}
		case d := <-q.pending:
			batch = append(batch, d)
			if len(batch) >= q.batchSize {
				flush()
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(q.maxDelay)
			}
		case <-timer.C:
			flush()
			timer.Reset(q.maxDelay)
		}
	}
}

// Stop signals the drain loop to flush and exit, and returns once it has.
func (q *AsyncQueue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	stopCh := q.stopCh
	doneCh := q.doneCh
	q.running = false
	q.mu.Unlock()

	close(stopCh)
	<-doneCh
}
