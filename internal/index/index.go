// Package index implements the inverted index: a
// map<token, posting-list> with batch and incremental mutation and a
// background optimizer.
package index

import (
	"sort"
	"sync/atomic"

	"github.com/libraz/mygramdb-go/internal/core/domain"
	"github.com/libraz/mygramdb-go/internal/index/posting"
	"github.com/libraz/mygramdb-go/internal/ngram"
)

// Statistics summarizes one table's index for the INFO/Prometheus surface.
type Statistics struct {
	TokenCount         int
	TotalPostings      uint64
	MemoryUsage        uint64
	DeltaEncodedLists  int
	RoaringBitmapLists int
}

// Index is the inverted index for one table. It is not internally
// synchronized — one RWMutex per table context guards the index and
// document store pair together; callers must hold it.
type Index struct {
	ngramSize  int
	kanjiSize  int
	tokens     map[string]*posting.PostingList
	optimizing atomic.Bool
}

func New(ngramSize, kanjiSize int) *Index {
	return &Index{
		ngramSize: ngramSize,
		kanjiSize: kanjiSize,
		tokens:    make(map[string]*posting.PostingList),
	}
}

func (idx *Index) tokenize(text string) map[string]struct{} {
	return ngram.TokenizeSet([]byte(text), idx.ngramSize, idx.kanjiSize)
}

// AddDoc tokenizes text, deduplicates tokens and adds docID to each token's
// posting list, creating the list on first sight.
func (idx *Index) AddDoc(docID domain.DocID, text string) {
	for tok := range idx.tokenize(text) {
		pl, ok := idx.tokens[tok]
		if !ok {
			pl = posting.New()
			idx.tokens[tok] = pl
		}
		pl.Add(docID)
	}
}

// RemoveDoc removes docID from every token in text's tokenization.
func (idx *Index) RemoveDoc(docID domain.DocID, text string) {
	for tok := range idx.tokenize(text) {
		if pl, ok := idx.tokens[tok]; ok {
			pl.Remove(docID)
		}
	}
}

// UpdateDoc applies the symmetric difference of oldText's and newText's
// token sets: remove from old-only tokens, add to new-only tokens, and never
// touches unchanged tokens — the invariant the replication applier relies on
// for cheap renames.
func (idx *Index) UpdateDoc(docID domain.DocID, oldText, newText string) {
	oldSet := idx.tokenize(oldText)
	newSet := idx.tokenize(newText)

	for tok := range oldSet {
		if _, stillPresent := newSet[tok]; !stillPresent {
			if pl, ok := idx.tokens[tok]; ok {
				pl.Remove(docID)
			}
		}
	}
	for tok := range newSet {
		if _, wasPresent := oldSet[tok]; !wasPresent {
			pl, ok := idx.tokens[tok]
			if !ok {
				pl = posting.New()
				idx.tokens[tok] = pl
			}
			pl.Add(docID)
		}
	}
}

// BatchItem is one (doc id, text) pair for AddBatch.
type BatchItem struct {
	DocID domain.DocID
	Text  string
}

// AddBatch groups doc ids by token and hands each token's group to that
// posting list's AddBatch. It must produce byte-identical internal state to
// the equivalent sequence of AddDoc calls.
func (idx *Index) AddBatch(items []BatchItem) {
	byToken := make(map[string][]domain.DocID)
	for _, item := range items {
		for tok := range idx.tokenize(item.Text) {
			byToken[tok] = append(byToken[tok], item.DocID)
		}
	}
	for tok, docs := range byToken {
		pl, ok := idx.tokens[tok]
		if !ok {
			pl = posting.New()
			idx.tokens[tok] = pl
		}
		pl.AddBatch(docs)
	}
}

// Posting returns the posting list for a token, if any.
func (idx *Index) Posting(token string) (*posting.PostingList, bool) {
	pl, ok := idx.tokens[token]
	return pl, ok
}

func (idx *Index) Count(token string) uint64 {
	if pl, ok := idx.tokens[token]; ok {
		return pl.Len()
	}
	return 0
}

// SearchAnd intersects the posting lists of every term; if any term is
// missing the result is empty.
func (idx *Index) SearchAnd(terms []string) []domain.DocID {
	if len(terms) == 0 {
		return nil
	}
	lists := make([][]domain.DocID, 0, len(terms))
	for _, t := range terms {
		pl, ok := idx.tokens[t]
		if !ok {
			return nil
		}
		lists = append(lists, pl.Materialize())
	}
	// Smallest-first linear merge intersection.
	sort.Slice(lists, func(i, j int) bool { return len(lists[i]) < len(lists[j]) })
	result := lists[0]
	for _, l := range lists[1:] {
		result = intersectSorted(result, l)
		if len(result) == 0 {
			return nil
		}
	}
	return result
}

func intersectSorted(a, b []domain.DocID) []domain.DocID {
	out := make([]domain.DocID, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// SearchOr returns the ascending union of every term's posting list,
// deduplicated through a seen set and then sorted.
func (idx *Index) SearchOr(terms []string) []domain.DocID {
	seen := make(map[domain.DocID]struct{})
	var out []domain.DocID
	for _, t := range terms {
		pl, ok := idx.tokens[t]
		if !ok {
			continue
		}
		for _, d := range pl.Materialize() {
			if _, dup := seen[d]; !dup {
				seen[d] = struct{}{}
				out = append(out, d)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SearchNot returns universe minus the union of every term's posting list.
func (idx *Index) SearchNot(universe []domain.DocID, terms []string) []domain.DocID {
	exclude := make(map[domain.DocID]struct{})
	for _, t := range terms {
		if pl, ok := idx.tokens[t]; ok {
			for _, d := range pl.Materialize() {
				exclude[d] = struct{}{}
			}
		}
	}
	out := make([]domain.DocID, 0, len(universe))
	for _, d := range universe {
		if _, excluded := exclude[d]; !excluded {
			out = append(out, d)
		}
	}
	return out
}

// SearchAndTop returns the first limit matching doc ids, highest first when
// reverse is true. Every term's posting list is materialized in full (in
// descending order when reverse is true), the lists are intersected in
// full, and only then is the result cut to limit; it does not stop early
// once limit matches are found.
func (idx *Index) SearchAndTop(terms []string, limit int, reverse bool) []domain.DocID {
	if len(terms) == 0 || limit <= 0 {
		return nil
	}
	lists := make([][]domain.DocID, 0, len(terms))
	for _, t := range terms {
		pl, ok := idx.tokens[t]
		if !ok {
			return nil
		}
		if reverse {
			lists = append(lists, pl.MaterializeDescending())
		} else {
			lists = append(lists, pl.Materialize())
		}
	}

	if len(lists) == 1 {
		if len(lists[0]) > limit {
			return lists[0][:limit]
		}
		return lists[0]
	}

	// Intersect progressively; each list is already ordered per `reverse`.
	sort.Slice(lists, func(i, j int) bool { return len(lists[i]) < len(lists[j]) })
	result := lists[0]
	for _, l := range lists[1:] {
		if reverse {
			result = intersectOrderedDesc(result, l)
		} else {
			result = intersectSorted(result, l)
		}
		if len(result) == 0 {
			break
		}
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return result
}

func intersectOrderedDesc(a, b []domain.DocID) []domain.DocID {
	out := make([]domain.DocID, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] > b[j]:
			i++
		default:
			j++
		}
	}
	return out
}

// Clear empties the index (used by DDL TRUNCATE/DROP).
func (idx *Index) Clear() {
	idx.tokens = make(map[string]*posting.PostingList)
}

// IsOptimizing reports whether a background Optimize call is in flight.
func (idx *Index) IsOptimizing() bool { return idx.optimizing.Load() }

// Optimize iterates every token's posting list and converts its
// representation as appropriate for totalDocs. The caller must hold the
// table's write lock for the duration — Optimize itself only
// tracks the is_optimizing flag, it does not lock.
func (idx *Index) Optimize(totalDocs uint64) {
	idx.optimizing.Store(true)
	defer idx.optimizing.Store(false)
	for _, pl := range idx.tokens {
		pl.Optimize(totalDocs)
	}
}

func (idx *Index) MemoryUsage() uint64 {
	var total uint64
	for tok, pl := range idx.tokens {
		total += uint64(len(tok)) + pl.MemoryUsage()
	}
	return total
}

func (idx *Index) Statistics() Statistics {
	stats := Statistics{TokenCount: len(idx.tokens)}
	for _, pl := range idx.tokens {
		stats.TotalPostings += pl.Len()
		switch pl.Representation() {
		case posting.RepDeltaVarint:
			stats.DeltaEncodedLists++
		case posting.RepBitmap:
			stats.RoaringBitmapLists++
		}
	}
	stats.MemoryUsage = idx.MemoryUsage()
	return stats
}

// ForEachToken visits every token and its materialized (ascending) posting
// list. Used by the SAVE dump writer, which serializes the index's internal
// tables directly rather than re-tokenizing stored text.
func (idx *Index) ForEachToken(visit func(token string, docIDs []domain.DocID)) {
	for tok, pl := range idx.tokens {
		visit(tok, pl.Materialize())
	}
}

// LoadToken installs a posting list for token built directly from docIDs,
// bypassing tokenization. Used by LOAD to restore a dumped index without the
// original document text, which the index never retains.
func (idx *Index) LoadToken(token string, docIDs []domain.DocID) {
	pl := posting.New()
	pl.AddBatch(docIDs)
	idx.tokens[token] = pl
}
