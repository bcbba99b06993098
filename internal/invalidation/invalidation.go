// Package invalidation implements the cache invalidation engine: a per-table forward/reverse token/cache-key index, plus an
// async batching queue fed by the replication applier.
package invalidation

import (
	"sync"

	"github.com/libraz/mygramdb-go/internal/core/domain"
	"github.com/libraz/mygramdb-go/internal/ngram"
)

// Engine holds one table's reverse index (token -> set of cache keys) and
// forward index (cache key -> set of tokens), so a cache entry's tokens can
// be dropped from the reverse index when the entry itself is evicted or
// invalidated without walking every token.
type Engine struct {
	mu      sync.Mutex
	reverse map[string]map[domain.CacheKey]struct{}
	forward map[domain.CacheKey]map[string]struct{}

	ngramSize int
	kanjiSize int
}

func New(ngramSize, kanjiSize int) *Engine {
	return &Engine{
		reverse:   make(map[string]map[domain.CacheKey]struct{}),
		forward:   make(map[domain.CacheKey]map[string]struct{}),
		ngramSize: ngramSize,
		kanjiSize: kanjiSize,
	}
}

// Register records that key's cache entry depends on every token in
// ngrams, inserting both the forward and reverse directions.
func (e *Engine) Register(key domain.CacheKey, ngrams map[string]struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registerLocked(key, ngrams)
}

func (e *Engine) registerLocked(key domain.CacheKey, ngrams map[string]struct{}) {
	tokens := make(map[string]struct{}, len(ngrams))
	for tok := range ngrams {
		tokens[tok] = struct{}{}
		set, ok := e.reverse[tok]
		if !ok {
			set = make(map[domain.CacheKey]struct{})
			e.reverse[tok] = set
		}
		set[key] = struct{}{}
	}
	e.forward[key] = tokens
}

// Unregister drops key from both directions.
func (e *Engine) Unregister(key domain.CacheKey) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unregisterLocked(key)
}

func (e *Engine) unregisterLocked(key domain.CacheKey) {
	tokens, ok := e.forward[key]
	if !ok {
		return
	}
	for tok := range tokens {
		if set, ok := e.reverse[tok]; ok {
			delete(set, key)
			if len(set) == 0 {
				delete(e.reverse, tok)
			}
		}
	}
	delete(e.forward, key)
}

// ClearTable drops every entry this engine knows about — one Engine
// instance covers a single table already, so this just empties both maps.
// It exists as a named operation because the table context, not this
// engine, decides when a whole table's dependencies should be dropped (on
// DDL TRUNCATE/DROP/RENAME).
//
// clear_table MUST NOT call the public Unregister in a loop while already
// holding the lock — that would deadlock against Unregister's own lock
// acquisition. It uses
// unregisterLocked directly instead.
func (e *Engine) ClearTable() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key := range e.forward {
		e.unregisterLocked(key)
	}
}

// InvalidateAffected computes tokens(oldText) ∪ tokens(newText) via hybrid
// tokenization, unions the reverse-index sets for each token, unregisters
// every affected key, and returns them so the caller can purge the result
// cache.
func (e *Engine) InvalidateAffected(oldText, newText string) []domain.CacheKey {
	tokens := affectedTokens(oldText, newText, e.ngramSize, e.kanjiSize)

	e.mu.Lock()
	defer e.mu.Unlock()

	affected := make(map[domain.CacheKey]struct{})
	for tok := range tokens {
		for key := range e.reverse[tok] {
			affected[key] = struct{}{}
		}
	}
	out := make([]domain.CacheKey, 0, len(affected))
	for key := range affected {
		out = append(out, key)
		e.unregisterLocked(key)
	}
	return out
}

func affectedTokens(oldText, newText string, ngramSize, kanjiSize int) map[string]struct{} {
	oldNorm := ngram.Normalize(oldText, ngram.NormalizeOptions{NFKC: true, Width: ngram.WidthNarrow, Lower: true})
	newNorm := ngram.Normalize(newText, ngram.NormalizeOptions{NFKC: true, Width: ngram.WidthNarrow, Lower: true})

	tokens := ngram.TokenizeSet(oldNorm, ngramSize, kanjiSize)
	for tok := range ngram.TokenizeSet(newNorm, ngramSize, kanjiSize) {
		tokens[tok] = struct{}{}
	}
	return tokens
}
