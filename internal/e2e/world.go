// Package e2e holds the godog step definitions exercising end-to-end
// behavior (ingest, search, normalization, invalidation, replication,
// shutdown, ACL, and cache round-trips) as Gherkin features under
// features/.
package e2e

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/libraz/mygramdb-go/internal/cache"
	"github.com/libraz/mygramdb-go/internal/core/domain"
	"github.com/libraz/mygramdb-go/internal/index"
	"github.com/libraz/mygramdb-go/internal/invalidation"
	"github.com/libraz/mygramdb-go/internal/ngram"
	"github.com/libraz/mygramdb-go/internal/replication"
	"github.com/libraz/mygramdb-go/internal/server"
	"github.com/libraz/mygramdb-go/internal/tablectx"
)

// world carries all per-scenario state step functions read and write.
// godog builds a fresh world for every scenario via ctx.Before.
type world struct {
	idx            *index.Index
	ngramSize      int
	kanjiNgramSize int
	inval          *invalidation.Engine

	tableCtx    *tablectx.Context
	applier     *replication.Applier
	primaryKey  []byte
	currentText string

	queryTokens []string

	lastErr error

	// S3: cache keys registered for the invalidation-precision scenario.
	registeredKeys map[string]domain.CacheKey
	invalidated    []domain.CacheKey

	// S6: worker pool scenario state.
	pool            *server.Pool
	submitted       int
	started         int64
	completed       int64
	shutdownElapsed time.Duration

	// S7: ACL scenario state.
	acl         *server.ACL
	aclVerdicts map[string]bool

	// S8: cache round-trip scenario state.
	resultCache *cache.ResultCache
	lookupKey   domain.CacheKey
	lookedUp    []domain.DocID
	lookupOK    bool
}

func newWorld() *world {
	return &world{
		registeredKeys: make(map[string]domain.CacheKey),
		aclVerdicts:    make(map[string]bool),
	}
}

func parseDocIDs(s string) ([]domain.DocID, error) {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]domain.DocID, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("parse doc id %q: %w", p, err)
		}
		out = append(out, domain.DocID(n))
	}
	return out, nil
}

func parseTokenList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.Trim(strings.TrimSpace(p), `"`))
	}
	return out
}

func normalizeQuery(text string) string {
	return string(ngram.Normalize(text, ngram.NormalizeOptions{NFKC: true, Width: ngram.WidthNarrow, Lower: true}))
}
