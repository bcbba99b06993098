package posting

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/libraz/mygramdb-go/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostingListAddContainsRemove(t *testing.T) {
	p := New()
	p.Add(1)
	p.Add(3)
	p.Add(2)
	require.True(t, p.Contains(2))
	require.Equal(t, []domain.DocID{1, 2, 3}, p.Materialize())

	p.Remove(2)
	require.False(t, p.Contains(2))
	require.Equal(t, []domain.DocID{1, 3}, p.Materialize())
}

func TestPostingListIdempotentAddRemove(t *testing.T) {
	p := New()
	p.Add(5)
	p.Add(5)
	require.Equal(t, uint64(1), p.Len())

	p.Remove(99) // no-op, missing doc
	require.Equal(t, uint64(1), p.Len())
}

func TestPostingListMinMax(t *testing.T) {
	p := New()
	_, ok := p.Min()
	require.False(t, ok)

	p.Add(10)
	p.Add(3)
	p.Add(20)
	min, ok := p.Min()
	require.True(t, ok)
	require.Equal(t, domain.DocID(3), min)
	max, ok := p.Max()
	require.True(t, ok)
	require.Equal(t, domain.DocID(20), max)
}

func referenceSemantic(ops []op) []domain.DocID {
	set := map[domain.DocID]struct{}{}
	for _, o := range ops {
		if o.add {
			set[o.doc] = struct{}{}
		} else {
			delete(set, o.doc)
		}
	}
	out := make([]domain.DocID, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type op struct {
	add bool
	doc domain.DocID
}

func TestPostingListMaterializeMatchesReferenceAcrossRandomOps(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	p := New()
	var ops []op
	for i := 0; i < 2000; i++ {
		d := domain.DocID(rng.Intn(500))
		add := rng.Intn(3) != 0
		ops = append(ops, op{add, d})
		if add {
			p.Add(d)
		} else {
			p.Remove(d)
		}
	}
	require.Equal(t, referenceSemantic(ops), p.Materialize())
}

func TestPostingListOptimizeTransitions(t *testing.T) {
	p := New()
	for i := 0; i < 50; i++ {
		p.Add(domain.DocID(i))
	}
	p.Optimize(100000) // low density, low count -> stays sorted vector
	require.Equal(t, RepSortedVector, p.Representation())

	for i := 50; i < 200; i++ {
		p.Add(domain.DocID(i))
	}
	p.Optimize(100000) // 200 docs, still low density -> delta varint
	require.Equal(t, RepDeltaVarint, p.Representation())

	for i := 200; i < 5000; i++ {
		p.Add(domain.DocID(i))
	}
	p.Optimize(100000) // >=4096 -> bitmap
	require.Equal(t, RepBitmap, p.Representation())
}

func TestPostingListOptimizeHighDensityPromotesToBitmap(t *testing.T) {
	p := New()
	for i := 0; i < 60; i++ {
		p.Add(domain.DocID(i))
	}
	// 60/1000 = 0.06 >= 0.05 density threshold
	p.Optimize(1000)
	require.Equal(t, RepBitmap, p.Representation())
}

func TestPostingListSurvivesMutationAfterConversion(t *testing.T) {
	p := New()
	for i := 0; i < 200; i++ {
		p.Add(domain.DocID(i))
	}
	p.Optimize(100000)
	require.Equal(t, RepDeltaVarint, p.Representation())

	p.Add(9999)
	p.Remove(0)
	require.True(t, p.Contains(9999))
	require.False(t, p.Contains(0))
	require.Equal(t, RepDeltaVarint, p.Representation()) // no auto-downgrade
}

func TestPostingListBatchEquivalence(t *testing.T) {
	docs := []domain.DocID{5, 1, 4, 1, 2, 3, 2}

	single := New()
	for _, d := range docs {
		single.Add(d)
	}

	batch := New()
	batch.AddBatch(docs)

	assert.Equal(t, single.Materialize(), batch.Materialize())
}

func TestMaterializeDescending(t *testing.T) {
	p := New()
	p.Add(1)
	p.Add(5)
	p.Add(3)
	require.Equal(t, []domain.DocID{5, 3, 1}, p.MaterializeDescending())
}
