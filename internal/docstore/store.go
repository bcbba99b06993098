// Package docstore implements the document store: the
// bidirectional primary-key/doc-id mapping and per-document filter-column
// values that sit alongside the inverted index in each table context.
package docstore

import (
	"math"
	"sort"

	"github.com/libraz/mygramdb-go/internal/core/domain"
)

// Store holds one table's documents. Like index.Index it is not internally
// synchronized — the owning table context's RWMutex guards it and the
// index together.
type Store struct {
	nextID domain.DocID
	byID   map[domain.DocID]*domain.Document
	byPK   map[string]domain.DocID
}

func New() *Store {
	return &Store{
		byID: make(map[domain.DocID]*domain.Document),
		byPK: make(map[string]domain.DocID),
	}
}

func pkKey(pk []byte) string { return string(pk) }

// AddDocument allocates a fresh doc id for pk and records filters. It
// returns domain.ErrAlreadyExists if pk is already present, and
// domain.ErrDocIdExhausted once the monotonic counter reaches its ceiling.
func (s *Store) AddDocument(pk []byte, filters map[string]domain.FilterValue) (domain.DocID, error) {
	key := pkKey(pk)
	if _, exists := s.byPK[key]; exists {
		return domain.InvalidDocID, domain.ErrAlreadyExists
	}
	if s.nextID == domain.DocID(math.MaxUint32) {
		return domain.InvalidDocID, domain.ErrDocIdExhausted
	}
	id := s.nextID
	s.nextID++

	stored := append([]byte(nil), pk...)
	s.byID[id] = &domain.Document{PK: stored, Filters: filters}
	s.byPK[key] = id
	return id, nil
}

// BatchItem is one (primary key, filter values) pair for AddDocumentBatch.
type BatchItem struct {
	PK      []byte
	Filters map[string]domain.FilterValue
}

// AddDocumentBatch adds every item in order, assigning doc ids
// sequentially; it is equivalent to the same sequence of AddDocument calls
// with filter-column-less of per-call cost.
func (s *Store) AddDocumentBatch(items []BatchItem) ([]domain.DocID, error) {
	ids := make([]domain.DocID, 0, len(items))
	for _, item := range items {
		id, err := s.AddDocument(item.PK, item.Filters)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// UpdateDocument replaces the stored filter values for docID in place; the
// primary key and doc id are immutable once assigned.
func (s *Store) UpdateDocument(docID domain.DocID, filters map[string]domain.FilterValue) error {
	doc, ok := s.byID[docID]
	if !ok {
		return domain.ErrNotFound
	}
	doc.Filters = filters
	return nil
}

// RemoveDocument deletes docID and its primary-key mapping.
func (s *Store) RemoveDocument(docID domain.DocID) error {
	doc, ok := s.byID[docID]
	if !ok {
		return domain.ErrNotFound
	}
	delete(s.byPK, pkKey(doc.PK))
	delete(s.byID, docID)
	return nil
}

// GetDocID resolves a primary key to its doc id.
func (s *Store) GetDocID(pk []byte) (domain.DocID, bool) {
	id, ok := s.byPK[pkKey(pk)]
	return id, ok
}

// GetPrimaryKey resolves a doc id back to its primary key.
func (s *Store) GetPrimaryKey(docID domain.DocID) ([]byte, bool) {
	doc, ok := s.byID[docID]
	if !ok {
		return nil, false
	}
	return doc.PK, true
}

// GetDocument returns the full stored record for docID.
func (s *Store) GetDocument(docID domain.DocID) (*domain.Document, bool) {
	doc, ok := s.byID[docID]
	return doc, ok
}

// Clear empties the store (used by DDL TRUNCATE/DROP). It does not reset
// the doc id counter: doc ids must stay unique for the table's entire
// lifetime even across a TRUNCATE.
func (s *Store) Clear() {
	s.byID = make(map[domain.DocID]*domain.Document)
	s.byPK = make(map[string]domain.DocID)
}

func (s *Store) Size() int { return len(s.byID) }

// AllDocIDs returns every live doc id in strictly ascending order, holes
// (removed ids) skipped. Callers rely on this ordering directly rather than
// re-sorting it themselves.
func (s *Store) AllDocIDs() []domain.DocID {
	out := make([]domain.DocID, 0, len(s.byID))
	for id := range s.byID {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NextDocID reports the next doc id AddDocument would allocate, so a SAVE
// dump can persist it and a LOAD restore can resume allocation from the same
// point instead of colliding with doc ids already on disk.
func (s *Store) NextDocID() domain.DocID { return s.nextID }

// LoadDocument installs doc at an explicit doc id, for LOAD restoring a
// dump that already assigned ids during the original snapshot/replication
// history. It bypasses AddDocument's id allocation and pk-collision check.
func (s *Store) LoadDocument(id domain.DocID, pk []byte, filters map[string]domain.FilterValue) {
	stored := append([]byte(nil), pk...)
	s.byID[id] = &domain.Document{PK: stored, Filters: filters}
	s.byPK[pkKey(stored)] = id
	if id >= s.nextID {
		s.nextID = id + 1
	}
}

// SetNextDocID advances the allocation counter to at least next, for LOAD
// restoring a dump's header-recorded counter even when the highest id it
// covered was since deleted and LoadDocument never saw it.
func (s *Store) SetNextDocID(next domain.DocID) {
	if next > s.nextID {
		s.nextID = next
	}
}

func (s *Store) MemoryUsage() uint64 {
	var total uint64
	for _, doc := range s.byID {
		total += uint64(len(doc.PK)) * 2 // stored once in byID, keyed again in byPK
		total += uint64(len(doc.Filters)) * 32
	}
	return total
}
