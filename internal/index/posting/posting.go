// Package posting implements the adaptive posting-list representation: a
// sorted vector by default, promoted on demand to a delta-varint block
// encoding or a roaring-style bitmap.
//
// Rather than model the three representations as a class hierarchy (the
// source's C++ idiom), each is a small value type behind a single
// "representation" interface, and PostingList is the tagged-variant adapter
// that dispatches to whichever one is active.
package posting

import (
	"github.com/libraz/mygramdb-go/internal/core/domain"
)

// Representation names which physical encoding backs a PostingList.
type Representation uint8

const (
	RepSortedVector Representation = iota
	RepDeltaVarint
	RepBitmap
)

// Thresholds from the optimize() rule.
const (
	bitmapLenThreshold  = 4096
	bitmapDensityThresh = 0.05
	deltaLenThreshold   = 128
)

type representation interface {
	add(d uint32)
	remove(d uint32)
	contains(d uint32) bool
	len() int
	min() (uint32, bool)
	max() (uint32, bool)
	materialize() []uint32
	memoryUsage() uint64
}

// PostingList is an ordered set of DocIDs associated with one n-gram token.
// It is not internally synchronized: callers hold the owning table's
// read/write lock for the duration of any mutation or read.
type PostingList struct {
	rep  Representation
	impl representation
}

// New creates an empty posting list in its default sorted-vector
// representation.
func New() *PostingList {
	return &PostingList{rep: RepSortedVector, impl: newSortedSlice()}
}

func (p *PostingList) Representation() Representation { return p.rep }

// Add inserts d. Adding an already-present doc is a no-op.
func (p *PostingList) Add(d domain.DocID) { p.impl.add(uint32(d)) }

// Remove deletes d. Removing a missing doc is a no-op.
func (p *PostingList) Remove(d domain.DocID) { p.impl.remove(uint32(d)) }

func (p *PostingList) Contains(d domain.DocID) bool { return p.impl.contains(uint32(d)) }

func (p *PostingList) Len() uint64 { return uint64(p.impl.len()) }

func (p *PostingList) Min() (domain.DocID, bool) {
	v, ok := p.impl.min()
	return domain.DocID(v), ok
}

func (p *PostingList) Max() (domain.DocID, bool) {
	v, ok := p.impl.max()
	return domain.DocID(v), ok
}

// Materialize returns the full strictly-ascending doc id sequence.
func (p *PostingList) Materialize() []domain.DocID {
	raw := p.impl.materialize()
	out := make([]domain.DocID, len(raw))
	for i, v := range raw {
		out[i] = domain.DocID(v)
	}
	return out
}

// MaterializeDescending returns the doc ids in descending order, the basis
// for search_and_top's reverse walk.
func (p *PostingList) MaterializeDescending() []domain.DocID {
	asc := p.Materialize()
	out := make([]domain.DocID, len(asc))
	for i, v := range asc {
		out[len(asc)-1-i] = v
	}
	return out
}

func (p *PostingList) MemoryUsage() uint64 { return p.impl.memoryUsage() }

// Optimize picks the representation best suited to the current cardinality
// and density against totalDocs, and converts in place if
// a better representation applies. The conversion is one-shot: after it
// runs, add/remove continue to operate on the new representation without
// reverting until the next Optimize call.
func (p *PostingList) Optimize(totalDocs uint64) {
	n := p.impl.len()
	var density float64
	if totalDocs > 0 {
		density = float64(n) / float64(totalDocs)
	}

	var target Representation
	switch {
	case n >= bitmapLenThreshold || density >= bitmapDensityThresh:
		target = RepBitmap
	case n >= deltaLenThreshold:
		target = RepDeltaVarint
	default:
		target = RepSortedVector
	}

	if target == p.rep {
		return
	}

	docs := p.impl.materialize()
	switch target {
	case RepSortedVector:
		p.impl = newSortedSliceFrom(docs)
	case RepDeltaVarint:
		p.impl = newDeltaBlocksFrom(docs)
	case RepBitmap:
		p.impl = newBitmapRepFrom(docs)
	}
	p.rep = target
}

// AddBatch adds every doc in docs (which need not be sorted or deduplicated)
// and leaves the representation strictly ascending and deduplicated, per
// the add_batch contract. Batch and single-shot Add sequences
// over the same input must leave byte-identical materialized state.
func (p *PostingList) AddBatch(docs []domain.DocID) {
	for _, d := range docs {
		p.Add(d)
	}
}
