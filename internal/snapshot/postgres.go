package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"

	"github.com/libraz/mygramdb-go/internal/core/domain"
)

// PostgresSourceDB is a reference SourceDB adapter over database/sql and
// lib/pq, standing in for the production source database client, which is
// out of scope here. Postgres has no literal "START TRANSACTION WITH CONSISTENT
// SNAPSHOT": REPEATABLE READ isolation establishes an equivalent
// point-in-time snapshot at the transaction's first statement, so
// BeginConsistentSnapshot immediately follows BEGIN with a throwaway
// statement to pin that snapshot before reading pg_current_wal_lsn() in the
// same transaction (snapshot_builder.cpp's GTID-capture-inside-the-snapshot
// pattern).
type PostgresSourceDB struct {
	db *sql.DB
}

// Open opens a lib/pq connection pool to dsn and verifies connectivity.
func Open(ctx context.Context, dsn string) (*PostgresSourceDB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres source: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres source: %w", err)
	}
	return &PostgresSourceDB{db: db}, nil
}

// NewPostgresSourceDB wraps an already-open pool, e.g. one shared with
// other components.
func NewPostgresSourceDB(db *sql.DB) *PostgresSourceDB { return &PostgresSourceDB{db: db} }

func (p *PostgresSourceDB) Close() error { return p.db.Close() }

func (p *PostgresSourceDB) BeginConsistentSnapshot(ctx context.Context) (SnapshotTx, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin repeatable-read transaction: %w", err)
	}
	// Pin the snapshot by issuing the first statement before capturing the
	// position, so nothing committed between BeginTx and here is included.
	if _, err := tx.ExecContext(ctx, "SELECT 1"); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("pin snapshot: %w", err)
	}

	var lsn sql.NullString
	if err := tx.QueryRowContext(ctx, "SELECT pg_current_wal_lsn()::text").Scan(&lsn); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("capture replication position: %w", err)
	}

	return &pgSnapshotTx{tx: tx, position: lsn.String}, nil
}

type pgSnapshotTx struct {
	tx       *sql.Tx
	position string
}

func (t *pgSnapshotTx) Position() string { return t.position }
func (t *pgSnapshotTx) Commit() error    { return t.tx.Commit() }
func (t *pgSnapshotTx) Rollback() error  { return t.tx.Rollback() }

func (t *pgSnapshotTx) Rows(ctx context.Context, source TableSource) (RowIterator, error) {
	query, args := buildSelectQuery(source)
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &pgRowIterator{rows: rows, source: source}, nil
}

// buildSelectQuery renders the primary key, text, and filter columns plus a
// WHERE clause pushing RequiredFilters down to the source, ordered by
// primary key for stable batch boundaries — the same shape as the original
// SnapshotBuilder::BuildSelectQuery, adapted to $N placeholders.
func buildSelectQuery(source TableSource) (string, []any) {
	columns := append([]string{source.PrimaryKey}, source.TextColumns...)
	for _, c := range source.FilterColumns {
		columns = append(columns, c.Name)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(columns, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(source.Table)

	var args []any
	if len(source.RequiredFilters) > 0 {
		sb.WriteString(" WHERE ")
		for i, f := range source.RequiredFilters {
			if i > 0 {
				sb.WriteString(" AND ")
			}
			sb.WriteString(f.Column)
			switch f.Op {
			case domain.OpIsNull:
				sb.WriteString(" IS NULL")
			case domain.OpIsNotNull:
				sb.WriteString(" IS NOT NULL")
			default:
				args = append(args, filterValueArg(f.Value))
				sb.WriteString(" ")
				sb.WriteString(f.Op.String())
				sb.WriteString(" $")
				sb.WriteString(strconv.Itoa(len(args)))
			}
		}
	}
	sb.WriteString(" ORDER BY ")
	sb.WriteString(source.PrimaryKey)
	return sb.String(), args
}

func filterValueArg(v domain.FilterValue) any {
	switch v.Kind() {
	case domain.FilterFloat64:
		return v.Float64()
	case domain.FilterBytes:
		return v.Bytes()
	case domain.FilterUint8, domain.FilterUint16, domain.FilterUint32, domain.FilterUint64:
		return v.Uint64()
	default:
		return v.Int64()
	}
}

type pgRowIterator struct {
	rows    *sql.Rows
	source  TableSource
	pk      []byte
	text    string
	filters map[string]domain.FilterValue
	err     error
}

func (it *pgRowIterator) Next(ctx context.Context) bool {
	if !it.rows.Next() {
		return false
	}

	numCols := 1 + len(it.source.TextColumns) + len(it.source.FilterColumns)
	dest := make([]any, numCols)
	raw := make([]sql.NullString, numCols)
	for i := range dest {
		dest[i] = &raw[i]
	}
	if err := it.rows.Scan(dest...); err != nil {
		it.err = err
		return false
	}

	it.pk = []byte(raw[0].String)

	var textParts []string
	for i := range it.source.TextColumns {
		v := raw[1+i]
		if v.Valid && v.String != "" {
			textParts = append(textParts, v.String)
		}
	}
	delim := it.source.TextDelimiter
	if delim == "" {
		delim = " "
	}
	it.text = strings.Join(textParts, delim)

	it.filters = make(map[string]domain.FilterValue, len(it.source.FilterColumns))
	offset := 1 + len(it.source.TextColumns)
	for i, spec := range it.source.FilterColumns {
		v := raw[offset+i]
		if !v.Valid {
			continue
		}
		fv, err := coerceFilterValue(spec.Kind, v.String)
		if err != nil {
			continue
		}
		it.filters[spec.Name] = fv
	}
	return true
}

// coerceFilterValue parses a column's text representation into the
// FilterValue kind the table configuration declares, mirroring
// SnapshotBuilder::ExtractFilters's type switch.
func coerceFilterValue(kind domain.FilterKind, text string) (domain.FilterValue, error) {
	switch kind {
	case domain.FilterInt8:
		n, err := strconv.ParseInt(text, 10, 8)
		return domain.NewFilterInt8(int8(n)), err
	case domain.FilterUint8:
		n, err := strconv.ParseUint(text, 10, 8)
		return domain.NewFilterUint8(uint8(n)), err
	case domain.FilterInt16:
		n, err := strconv.ParseInt(text, 10, 16)
		return domain.NewFilterInt16(int16(n)), err
	case domain.FilterUint16:
		n, err := strconv.ParseUint(text, 10, 16)
		return domain.NewFilterUint16(uint16(n)), err
	case domain.FilterInt32:
		n, err := strconv.ParseInt(text, 10, 32)
		return domain.NewFilterInt32(int32(n)), err
	case domain.FilterUint32:
		n, err := strconv.ParseUint(text, 10, 32)
		return domain.NewFilterUint32(uint32(n)), err
	case domain.FilterInt64, domain.FilterTimeOfDay:
		n, err := strconv.ParseInt(text, 10, 64)
		if kind == domain.FilterTimeOfDay {
			return domain.NewFilterTimeOfDay(n), err
		}
		return domain.NewFilterInt64(n), err
	case domain.FilterUint64:
		n, err := strconv.ParseUint(text, 10, 64)
		return domain.NewFilterUint64(n), err
	case domain.FilterFloat64:
		f, err := strconv.ParseFloat(text, 64)
		return domain.NewFilterFloat64(f), err
	case domain.FilterBytes:
		return domain.NewFilterBytes([]byte(text)), nil
	}
	return domain.FilterValue{}, fmt.Errorf("%w: unknown filter kind %d", domain.ErrInvalidInput, kind)
}

func (it *pgRowIterator) PrimaryKey() []byte                    { return it.pk }
func (it *pgRowIterator) Text() string                          { return it.text }
func (it *pgRowIterator) Filters() map[string]domain.FilterValue { return it.filters }
func (it *pgRowIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.rows.Err()
}
func (it *pgRowIterator) Close() error { return it.rows.Close() }
