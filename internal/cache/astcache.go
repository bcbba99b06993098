package cache

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/libraz/mygramdb-go/internal/query"
)

// ASTCache memoizes Parse results by raw query text. Unlike ResultCache's
// byte-budget accounting (which tracks compressed query results), parsed
// ASTs are small and uniform, so a plain count-bounded LRU from
// golang-lru is the right fit here — the library's simpler count eviction
// that can't serve ResultCache's byte-budget requirement is exactly why
// ResultCache itself is hand-rolled instead (see DESIGN.md).
type ASTCache struct {
	inner *lru.Cache
}

// NewASTCache creates a cache holding up to size parsed queries.
func NewASTCache(size int) (*ASTCache, error) {
	inner, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &ASTCache{inner: inner}, nil
}

// GetOrParse returns the cached AST for raw, parsing and caching it on a
// miss.
func (c *ASTCache) GetOrParse(raw string) (*query.Expr, error) {
	if v, ok := c.inner.Get(raw); ok {
		return v.(*query.Expr), nil
	}
	expr, err := query.Parse(raw)
	if err != nil {
		return nil, err
	}
	c.inner.Add(raw, expr)
	return expr, nil
}

func (c *ASTCache) Len() int { return c.inner.Len() }

func (c *ASTCache) Purge() { c.inner.Purge() }
