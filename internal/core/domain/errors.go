package domain

import "errors"

// Sentinel errors shared across the index, document store, cache, query and
// replication layers. Call sites wrap these with fmt.Errorf("...: %w", err)
// so callers can still match with errors.Is.
var (
	// ErrNotFound indicates the requested document or cache entry was not found.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a primary key is already mapped to a doc id.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed wire input: a bad filter operator,
	// an unknown command, or an unparsable query expression.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCapacityExceeded indicates a non-fatal capacity limit was hit: the
	// worker queue is full or an entry could not be made to fit in the cache.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrDocIdExhausted indicates the next doc id allocation would reach
	// DocID max; the table must be rebuilt to continue.
	ErrDocIdExhausted = errors.New("doc id space exhausted")

	// ErrTableHalted indicates a previous replication apply left the table in
	// an inconsistent state; writes are refused until operator intervention.
	ErrTableHalted = errors.New("table halted")

	// ErrTableUnknown indicates a command referenced a table not present in
	// the running configuration.
	ErrTableUnknown = errors.New("unknown table")

	// ErrShutdown indicates a submission was rejected because the pool or
	// server already began shutting down.
	ErrShutdown = errors.New("shutting down")
)
