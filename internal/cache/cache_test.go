package cache

import (
	"testing"

	"github.com/libraz/mygramdb-go/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func TestFingerprintIsStableAndDistinguishing(t *testing.T) {
	k1 := Fingerprint("(hello AND world)")
	k2 := Fingerprint("(hello AND world)")
	k3 := Fingerprint("(hello OR world)")
	require.Equal(t, k1, k2)
	require.NotEqual(t, k1, k3)
}

func TestEncodeCompressDecompressRoundTrip(t *testing.T) {
	docIDs := []domain.DocID{1, 2, 3, 1000, 1000000}
	compressed, uncompressedLen, err := encodeAndCompressDocIDs(docIDs)
	require.NoError(t, err)

	got, err := decompressAndDecodeDocIDs(compressed, uncompressedLen)
	require.NoError(t, err)
	require.Equal(t, docIDs, got)
}

func TestEncodeCompressEmptyDocIDs(t *testing.T) {
	compressed, uncompressedLen, err := encodeAndCompressDocIDs(nil)
	require.NoError(t, err)
	got, err := decompressAndDecodeDocIDs(compressed, uncompressedLen)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestInsertRejectsBelowMinCost(t *testing.T) {
	c := New(1<<20, 10.0)
	ok := c.Insert(Fingerprint("a"), []domain.DocID{1}, domain.CacheMetadata{Table: "t"}, 1.0)
	require.False(t, ok)
}

func TestInsertAndLookupRoundTrip(t *testing.T) {
	c := New(1<<20, 1.0)
	key := Fingerprint("a")
	ok := c.Insert(key, []domain.DocID{1, 2, 3}, domain.CacheMetadata{Table: "t"}, 5.0)
	require.True(t, ok)

	got, found := c.Lookup(key)
	require.True(t, found)
	require.Equal(t, []domain.DocID{1, 2, 3}, got)
}

func TestLookupMissIncrementsMisses(t *testing.T) {
	c := New(1<<20, 1.0)
	_, found := c.Lookup(Fingerprint("missing"))
	require.False(t, found)
	require.Equal(t, int64(1), c.Statistics().Misses)
}

func TestInsertEvictsLRUWhenOverBudget(t *testing.T) {
	// Each entry costs >entryOverheadBytes; budget only fits one at a time.
	c := New(entryOverheadBytes+32, 1.0)

	k1 := Fingerprint("one")
	k2 := Fingerprint("two")
	require.True(t, c.Insert(k1, []domain.DocID{1, 2, 3, 4, 5, 6}, domain.CacheMetadata{Table: "t"}, 5.0))
	require.True(t, c.Insert(k2, []domain.DocID{7, 8, 9, 10, 11, 12}, domain.CacheMetadata{Table: "t"}, 5.0))

	_, found := c.Lookup(k1)
	require.False(t, found, "k1 should have been evicted to make room for k2")
	_, found = c.Lookup(k2)
	require.True(t, found)
	require.Equal(t, int64(1), c.Statistics().Evictions)
}

func TestLookupMovesEntryToMRU(t *testing.T) {
	c := New((entryOverheadBytes+4)*2, 1.0)
	k1 := Fingerprint("one")
	k2 := Fingerprint("two")
	c.Insert(k1, []domain.DocID{1}, domain.CacheMetadata{Table: "t"}, 5.0)
	c.Insert(k2, []domain.DocID{2}, domain.CacheMetadata{Table: "t"}, 5.0)

	c.Lookup(k1) // touch k1, making k2 the LRU candidate

	k3 := Fingerprint("three")
	c.Insert(k3, []domain.DocID{3}, domain.CacheMetadata{Table: "t"}, 5.0)

	// The budget only fits two entries; the third insert must evict k2
	// (least recently used), leaving the touched k1 and the new k3.
	_, found := c.Lookup(k1)
	require.True(t, found)
	_, found = c.Lookup(k2)
	require.False(t, found)
	_, found = c.Lookup(k3)
	require.True(t, found)
}

func TestClearTableRemovesOnlyMatchingEntries(t *testing.T) {
	c := New(1<<20, 1.0)
	kA := Fingerprint("a")
	kB := Fingerprint("b")
	c.Insert(kA, []domain.DocID{1}, domain.CacheMetadata{Table: "tableA"}, 5.0)
	c.Insert(kB, []domain.DocID{2}, domain.CacheMetadata{Table: "tableB"}, 5.0)

	removed := c.ClearTable("tableA")
	require.Equal(t, []domain.CacheKey{kA}, removed)

	_, found := c.Lookup(kA)
	require.False(t, found)
	_, found = c.Lookup(kB)
	require.True(t, found)
}

func TestClearEmptiesEverything(t *testing.T) {
	c := New(1<<20, 1.0)
	c.Insert(Fingerprint("a"), []domain.DocID{1}, domain.CacheMetadata{Table: "t"}, 5.0)
	c.Clear()
	require.Equal(t, 0, c.Statistics().Entries)
}

func TestASTCacheParsesOnceAndReuses(t *testing.T) {
	ac, err := NewASTCache(8)
	require.NoError(t, err)

	e1, err := ac.GetOrParse("hello world")
	require.NoError(t, err)
	e2, err := ac.GetOrParse("hello world")
	require.NoError(t, err)
	require.Same(t, e1, e2)
	require.Equal(t, 1, ac.Len())
}
