// Package snapshot implements the consistent bulk loader: mirroring a source table's current rows into a table context's
// index and document store inside one transactionally consistent snapshot,
// capturing the replication stream's start position from that same
// snapshot so no row committed afterward is either missed or double-applied
// by the replication applier (C9).
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/libraz/mygramdb-go/internal/core/domain"
	"github.com/libraz/mygramdb-go/internal/docstore"
	"github.com/libraz/mygramdb-go/internal/index"
	"github.com/libraz/mygramdb-go/internal/ngram"
	"github.com/libraz/mygramdb-go/internal/tablectx"
)

// ColumnSpec describes one filter column's name and physical kind, so a
// SourceDB adapter knows how to coerce a driver-returned value.
type ColumnSpec struct {
	Name string
	Kind domain.FilterKind
}

// TableSource describes how to read one mirrored table from the source
// database: its primary key column, the column(s) making up the indexed
// text (concatenated with Delimiter when there is more than one, mirroring
// the original's text_source.column/concat choice), and the filter columns
// to carry into the document store. RequiredFilters is pushed down into the
// snapshot query's WHERE clause, exactly as it is enforced again on every
// subsequent replication event.
type TableSource struct {
	Table           string
	PrimaryKey      string
	TextColumns     []string
	TextDelimiter   string
	FilterColumns   []ColumnSpec
	RequiredFilters domain.RequiredFilters
}

// RowIterator walks the rows a SnapshotTx's query produced, one row at a
// time, so the loader never has to materialize the whole result set.
type RowIterator interface {
	Next(ctx context.Context) bool
	PrimaryKey() []byte
	Text() string
	Filters() map[string]domain.FilterValue
	Err() error
	Close() error
}

// SnapshotTx is one consistent-snapshot transaction: every TableSource
// queried through it observes the same point-in-time state, and Position
// reports the replication stream's position as of that same point.
type SnapshotTx interface {
	Position() string
	Rows(ctx context.Context, source TableSource) (RowIterator, error)
	Commit() error
	Rollback() error
}

// SourceDB is the collaborator the bulk loader needs from the (out-of-scope)
// production source database: the ability to open one transaction whose
// snapshot and whose replication-position read are mutually consistent — a
// "START TRANSACTION WITH CONSISTENT SNAPSHOT" followed immediately by a
// position capture, in the same transaction.
type SourceDB interface {
	BeginConsistentSnapshot(ctx context.Context) (SnapshotTx, error)
}

// Progress reports bulk-load throughput for an operator-facing callback.
type Progress struct {
	Table         string
	ProcessedRows uint64
	ElapsedSeconds float64
	RowsPerSecond float64
}

// ProgressFunc receives periodic Progress reports during Load.
type ProgressFunc func(Progress)

// Loader drives the one-time bulk load of a table context from a SourceDB,
// batching document-store and index insertion the way the original
// snapshot builder batches MySQL row fetches (default 1000 rows/batch).
type Loader struct {
	source    SourceDB
	batchSize int
	logger    *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithBatchSize overrides the default batch size of 1000 rows.
func WithBatchSize(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.batchSize = n
		}
	}
}

// WithLogger overrides the default slog.Default() logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader builds a Loader over source.
func NewLoader(source SourceDB, opts ...Option) *Loader {
	l := &Loader{source: source, batchSize: 1000, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load bulk-loads src into ctx's index and document store inside one
// consistent snapshot transaction, and returns the replication start
// position captured from that same transaction. ctx must be empty — Load
// does not merge with existing documents. The caller holds ctx's write
// lock for the duration, per the "no lock upgrade": a bulk load is
// a mutation like any replication apply.
func (l *Loader) Load(ctx context.Context, tableCtx *tablectx.Context, src TableSource, progress ProgressFunc) (position string, err error) {
	tx, err := l.source.BeginConsistentSnapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("begin consistent snapshot: %w", err)
	}

	rows, err := tx.Rows(ctx, src)
	if err != nil {
		_ = tx.Rollback()
		return "", fmt.Errorf("query snapshot rows for %s: %w", src.Table, err)
	}
	defer rows.Close()

	start := time.Now()
	var processed uint64

	docBatch := make([]docstore.BatchItem, 0, l.batchSize)
	textBatch := make([]string, 0, l.batchSize)

	flush := func() error {
		if len(docBatch) == 0 {
			return nil
		}
		ids, err := tableCtx.Store.AddDocumentBatch(docBatch)
		if err != nil {
			return fmt.Errorf("add document batch: %w", err)
		}
		items := make([]index.BatchItem, len(ids))
		for i, id := range ids {
			items[i] = index.BatchItem{DocID: id, Text: textBatch[i]}
		}
		tableCtx.Index.AddBatch(items)
		processed += uint64(len(docBatch))
		docBatch = docBatch[:0]
		textBatch = textBatch[:0]
		return nil
	}

	for rows.Next(ctx) {
		pk := rows.PrimaryKey()
		if len(pk) == 0 {
			l.logger.Error("snapshot row missing primary key, aborting load", "table", src.Table)
			_ = tx.Rollback()
			return "", fmt.Errorf("%w: row missing primary key in table %s", domain.ErrInvalidInput, src.Table)
		}
		text := rows.Text()
		if text == "" {
			l.logger.Debug("empty text for primary key, skipping", "table", src.Table, "pk", string(pk))
			continue
		}
		normalized := ngram.Normalize(text, ngram.NormalizeOptions{NFKC: true, Width: ngram.WidthNarrow, Lower: true})

		docBatch = append(docBatch, docstore.BatchItem{PK: pk, Filters: rows.Filters()})
		textBatch = append(textBatch, normalized)

		if len(docBatch) >= l.batchSize {
			if err := flush(); err != nil {
				_ = tx.Rollback()
				return "", err
			}
			if progress != nil {
				elapsed := time.Since(start).Seconds()
				progress(Progress{
					Table:          src.Table,
					ProcessedRows:  processed,
					ElapsedSeconds: elapsed,
					RowsPerSecond:  rate(processed, elapsed),
				})
			}
		}
	}
	if err := rows.Err(); err != nil {
		_ = tx.Rollback()
		return "", fmt.Errorf("iterate snapshot rows for %s: %w", src.Table, err)
	}
	if err := flush(); err != nil {
		_ = tx.Rollback()
		return "", err
	}

	position = tx.Position()
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit snapshot transaction: %w", err)
	}

	elapsed := time.Since(start).Seconds()
	l.logger.Info("snapshot load complete",
		"table", src.Table, "rows", processed, "elapsed_seconds", elapsed, "position", position)
	if progress != nil {
		progress(Progress{Table: src.Table, ProcessedRows: processed, ElapsedSeconds: elapsed, RowsPerSecond: rate(processed, elapsed)})
	}
	return position, nil
}

func rate(rows uint64, elapsed float64) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(rows) / elapsed
}
