package main

import (
	"sync"

	"github.com/libraz/mygramdb-go/internal/invalidation"
	"github.com/libraz/mygramdb-go/internal/tablectx"
)

// tableRegistry owns the table-name-keyed state shared between the TCP
// dispatcher, the replication applier, and the snapshot bootstrap: the live
// table contexts and their invalidation queues. It exists because a DDL
// RENAME re-keys both maps at runtime, concurrently with lookups from the
// accept loop and the replication runner goroutine — the maps built once at
// startup in cmd/mygramdb/main.go were safe to read lock-free only as long
// as nothing ever mutated them after construction.
type tableRegistry struct {
	mu     sync.RWMutex
	tables map[string]*tablectx.Context
	queues map[string]*invalidation.AsyncQueue
}

func newTableRegistry() *tableRegistry {
	return &tableRegistry{
		tables: make(map[string]*tablectx.Context),
		queues: make(map[string]*invalidation.AsyncQueue),
	}
}

func (r *tableRegistry) addTable(name string, ctx *tablectx.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[name] = ctx
}

func (r *tableRegistry) addQueue(name string, q *invalidation.AsyncQueue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queues[name] = q
}

func (r *tableRegistry) lookupTable(name string) (*tablectx.Context, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[name]
	return t, ok
}

func (r *tableRegistry) lookupQueue(name string) (*invalidation.AsyncQueue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.queues[name]
	return q, ok
}

func (r *tableRegistry) tableNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}
	return names
}

// snapshot returns a point-in-time copy of the table map, for one-time
// startup work (snapshot bootstrap) that iterates it without holding the
// registry lock across blocking I/O.
func (r *tableRegistry) snapshot() map[string]*tablectx.Context {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*tablectx.Context, len(r.tables))
	for name, ctx := range r.tables {
		out[name] = ctx
	}
	return out
}

func (r *tableRegistry) allQueues() []*invalidation.AsyncQueue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*invalidation.AsyncQueue, 0, len(r.queues))
	for _, q := range r.queues {
		out = append(out, q)
	}
	return out
}

// rename moves both the table context and its invalidation queue from
// oldName to newName. A table halted mid-rename or renamed to a name that
// already exists still completes the move; the applier's own dispatch
// table is the source of truth for whether a given table should keep
// receiving events, not this registry.
func (r *tableRegistry) rename(oldName, newName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tables[oldName]; ok {
		delete(r.tables, oldName)
		r.tables[newName] = t
	}
	if q, ok := r.queues[oldName]; ok {
		delete(r.queues, oldName)
		r.queues[newName] = q
	}
}

func (r *tableRegistry) haltTable(name string) {
	if t, ok := r.lookupTable(name); ok {
		t.Halt()
	}
}
