package invalidation

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAsyncQueueFlushesOnBatchSize(t *testing.T) {
	var mu sync.Mutex
	var applied []Descriptor

	q := NewAsyncQueue(2, time.Hour, func(d Descriptor) {
		mu.Lock()
		applied = append(applied, d)
		mu.Unlock()
	}, nil)
	q.Start()
	defer q.Stop()

	q.Enqueue(Descriptor{Table: "t", OldText: "a"})
	q.Enqueue(Descriptor{Table: "t", OldText: "b"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(applied) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestAsyncQueueFlushesOnMaxDelay(t *testing.T) {
	var mu sync.Mutex
	var applied []Descriptor

	q := NewAsyncQueue(100, 20*time.Millisecond, func(d Descriptor) {
		mu.Lock()
		applied = append(applied, d)
		mu.Unlock()
	}, nil)
	q.Start()
	defer q.Stop()

	q.Enqueue(Descriptor{Table: "t", OldText: "only-one"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(applied) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestAsyncQueueStopFlushesPending(t *testing.T) {
	var mu sync.Mutex
	var applied []Descriptor

	q := NewAsyncQueue(100, time.Hour, func(d Descriptor) {
		mu.Lock()
		applied = append(applied, d)
		mu.Unlock()
	}, nil)
	q.Start()

	q.Enqueue(Descriptor{Table: "t", OldText: "pending"})
	q.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, applied, 1)
}

func TestAsyncQueueStartIsIdempotent(t *testing.T) {
	q := NewAsyncQueue(10, time.Hour, func(Descriptor) {}, nil)
	q.Start()
	q.Start() // must not panic or spawn a second goroutine
	q.Stop()
}
