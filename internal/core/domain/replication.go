package domain

// EventKind is the row-change kind carried by a decoded replication event.
type EventKind uint8

const (
	EventInsert EventKind = iota
	EventUpdate
	EventDelete
	EventDDL
)

// DDLKind narrows an EventDDL event: truncate, drop, alter, and rename,
// extending the upstream decoder's truncate/drop/alter set with rename.
type DDLKind uint8

const (
	DDLTruncate DDLKind = iota
	DDLDrop
	DDLAlter
	DDLRename
)

// RowEvent is the already-decoded row-change event the replication applier
// consumes. The logical replication decoder itself is out of scope — this struct is the interface contract the decoder must produce.
type RowEvent struct {
	Kind       EventKind
	Table      string
	PrimaryKey []byte
	Text       string
	OldText    string
	Filters    map[string]FilterValue
	OldFilters map[string]FilterValue

	// Position is the logical position token (e.g. a GTID string) this
	// event advances the stream to, recorded after a successful apply.
	Position string

	// DDL is only meaningful when Kind == EventDDL.
	DDL DDLKind
	// NewTableName is only meaningful for DDLRename.
	NewTableName string
}

// ApplyCounters tallies replication outcomes by kind, mirroring the counter
// names used by the wire protocol verbatim so INFO/Prometheus can surface
// them unmodified.
type ApplyCounters struct {
	InsertsApplied           int64
	InsertsSkipped           int64
	UpdatesAdded             int64
	UpdatesRemoved           int64
	UpdatesModified          int64
	UpdatesSkipped           int64
	DeletesApplied           int64
	DeletesSkipped           int64
	DDLExecuted              int64
	EventsSkippedOtherTables int64
}
