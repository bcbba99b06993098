package domain

// Document is the unit the document store holds per doc id: an opaque
// external primary key plus the immutable filter-column values captured at
// ingest time. The indexed text itself is not retained here —
// only the index's posting lists remember which n-grams a document produced.
type Document struct {
	PK      []byte
	Filters map[string]FilterValue
}

// FilterColumn describes one column a table configuration declares for
// post-filtering/sorting.
type FilterColumn struct {
	Name string
	Kind FilterKind
}

// TableConfig describes one mirrored source table.
type TableConfig struct {
	Name            string
	NgramSize       int // default 2
	KanjiNgramSize  int // default 1
	FilterColumns   []FilterColumn
	RequiredFilters RequiredFilters
	// DateTimeTZOffsetSeconds is applied when normalizing DATETIME columns
	// for this table to UTC epoch seconds.
	DateTimeTZOffsetSeconds int
}
