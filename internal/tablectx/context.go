// Package tablectx owns the per-table pairing of inverted index and
// document store behind the single read-write lock both must share.
package tablectx

import (
	"sync"

	"github.com/libraz/mygramdb-go/internal/core/domain"
	"github.com/libraz/mygramdb-go/internal/docstore"
	"github.com/libraz/mygramdb-go/internal/index"
	"github.com/libraz/mygramdb-go/internal/invalidation"
)

// Context is one configured table's live state: its index, its document
// store, the invalidation engine tracking its cached query dependencies,
// and the RWMutex guarding index+store mutation together. Queries hold the
// read lock for the duration of evaluation; replication apply and
// optimization hold the write lock. There is no lock upgrade.
type Context struct {
	Config       domain.TableConfig
	Index        *index.Index
	Store        *docstore.Store
	Invalidation *invalidation.Engine

	mu     sync.RWMutex
	halted bool
}

// New builds a fresh table context for cfg.
func New(cfg domain.TableConfig) *Context {
	ngramSize := cfg.NgramSize
	if ngramSize <= 0 {
		ngramSize = 2
	}
	kanjiSize := cfg.KanjiNgramSize
	if kanjiSize <= 0 {
		kanjiSize = 1
	}
	return &Context{
		Config:       cfg,
		Index:        index.New(ngramSize, kanjiSize),
		Store:        docstore.New(),
		Invalidation: invalidation.New(ngramSize, kanjiSize),
	}
}

// RLock/RUnlock/Lock/Unlock expose the table's RWMutex directly — queries
// and mutations take the lock at the call site (the replication applier
// and the TCP command handlers) rather than through wrapper methods, so a
// single critical section can span index, store, and invalidation-queue
// draining together, matching the fencing requirement.
func (c *Context) RLock()   { c.mu.RLock() }
func (c *Context) RUnlock() { c.mu.RUnlock() }
func (c *Context) Lock()    { c.mu.Lock() }
func (c *Context) Unlock()  { c.mu.Unlock() }

// Halted reports whether this table has been marked unusable after an
// unrecoverable apply failure.
func (c *Context) Halted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.halted
}

// HaltedLocked is Halted's counterpart for callers that already hold
// either the read or write lock — sync.RWMutex is not reentrant, so
// calling Halted there would deadlock.
func (c *Context) HaltedLocked() bool { return c.halted }

// Halt marks the table halted; all subsequent writes must fail until an
// operator clears it by reloading the table.
func (c *Context) Halt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.halted = true
}

// HaltLocked is Halt's counterpart for callers that already hold the write
// lock (the replication applier, mid-apply, on an unrecoverable failure) —
// calling Halt there would deadlock on its own Lock call.
func (c *Context) HaltLocked() { c.halted = true }
