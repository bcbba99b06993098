// Package cache implements the result cache: a
// byte-budget strict-LRU cache of LZ4-compressed doc-id payloads keyed by
// a blake2b fingerprint of the canonical query string, plus a secondary
// parsed-query AST cache.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/libraz/mygramdb-go/internal/core/domain"
)

// entryOverheadBytes is the fixed per-entry bookkeeping cost (metadata,
// map/list node overhead) added to the compressed payload size for byte
// budget accounting: budget is compressed payload size plus this fixed
// overhead.
const entryOverheadBytes = 128

// Statistics summarizes cache state for the INFO/Prometheus surface.
type Statistics struct {
	Entries   int
	UsedBytes int
	Hits      int64
	Misses    int64
	Evictions int64
}

// ResultCache is the SEARCH/COUNT result cache. It is internally
// synchronized, unlike the index/docstore pair, because it is shared
// across every table rather than owned by one table's lock.
type ResultCache struct {
	mu             sync.Mutex
	byteBudget     int
	minQueryCostMs float64
	usedBytes      int

	entries map[domain.CacheKey]*list.Element
	order   *list.List // front = LRU, back = MRU

	hits, misses, evictions int64
}

type cacheNode struct {
	key   domain.CacheKey
	entry *domain.CacheEntry
}

// New creates a result cache with the given byte budget and the minimum
// query cost (milliseconds) required for an Insert to be accepted.
func New(byteBudget int, minQueryCostMs float64) *ResultCache {
	return &ResultCache{
		byteBudget:     byteBudget,
		minQueryCostMs: minQueryCostMs,
		entries:        make(map[domain.CacheKey]*list.Element),
		order:          list.New(),
	}
}

// Lookup returns the cached doc ids for key, updating LastAccessed,
// AccessCount, and moving the entry to the MRU end.
func (c *ResultCache) Lookup(key domain.CacheKey) ([]domain.DocID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	node := el.Value.(*cacheNode)
	node.entry.AccessCount++
	node.entry.LastAccessed = time.Now()
	c.order.MoveToBack(el)
	c.hits++

	docIDs, err := decompressAndDecodeDocIDs(node.entry.CompressedDocIDs, node.entry.UncompressedLen)
	if err != nil {
		// A corrupt payload is treated as a miss rather than a panic; the
		// entry is dropped so it cannot be served again.
		c.removeLocked(key)
		c.misses++
		return nil, false
	}
	return docIDs, true
}

// Insert compresses docIDs and stores them under key if costMs meets the
// configured floor, evicting LRU entries as needed to stay within the byte
// budget. It returns false when the query was too cheap to cache or the
// entry could not be made to fit even after evicting everything.
func (c *ResultCache) Insert(key domain.CacheKey, docIDs []domain.DocID, metadata domain.CacheMetadata, costMs float64) bool {
	if costMs < c.minQueryCostMs {
		return false
	}

	compressed, uncompressedLen, err := encodeAndCompressDocIDs(docIDs)
	if err != nil {
		return false
	}
	size := len(compressed) + entryOverheadBytes
	if size > c.byteBudget {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		c.usedBytes -= existing.Value.(*cacheNode).entry.Bytes
		c.order.Remove(existing)
		delete(c.entries, key)
	}

	for c.usedBytes+size > c.byteBudget && c.order.Len() > 0 {
		c.evictOldestLocked()
	}
	if c.usedBytes+size > c.byteBudget {
		return false
	}

	now := time.Now()
	entry := &domain.CacheEntry{
		Key:              key,
		CompressedDocIDs: compressed,
		UncompressedLen:  uncompressedLen,
		Metadata:         metadata,
		CostMs:           costMs,
		CreatedAt:        now,
		LastAccessed:     now,
		Bytes:            size,
	}
	el := c.order.PushBack(&cacheNode{key: key, entry: entry})
	c.entries[key] = el
	c.usedBytes += size
	return true
}

func (c *ResultCache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	node := front.Value.(*cacheNode)
	c.usedBytes -= node.entry.Bytes
	c.order.Remove(front)
	delete(c.entries, node.key)
	c.evictions++
}

// Invalidate drops one entry, if present.
func (c *ResultCache) Invalidate(key domain.CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key)
}

func (c *ResultCache) removeLocked(key domain.CacheKey) {
	el, ok := c.entries[key]
	if !ok {
		return
	}
	node := el.Value.(*cacheNode)
	c.usedBytes -= node.entry.Bytes
	c.order.Remove(el)
	delete(c.entries, key)
}

// Clear empties the cache entirely.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[domain.CacheKey]*list.Element)
	c.order = list.New()
	c.usedBytes = 0
}

// ClearTable removes every entry whose metadata names table and returns the
// removed keys, so the caller can also purge them from the invalidation
// engine's reverse index.
func (c *ResultCache) ClearTable(table string) []domain.CacheKey {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed []domain.CacheKey
	var next *list.Element
	for el := c.order.Front(); el != nil; el = next {
		next = el.Next()
		node := el.Value.(*cacheNode)
		if node.entry.Metadata.Table == table {
			removed = append(removed, node.key)
			c.usedBytes -= node.entry.Bytes
			c.order.Remove(el)
			delete(c.entries, node.key)
		}
	}
	return removed
}

func (c *ResultCache) Statistics() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Statistics{
		Entries:   len(c.entries),
		UsedBytes: c.usedBytes,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}
