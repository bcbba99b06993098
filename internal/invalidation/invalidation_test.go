package invalidation

import (
	"testing"

	"github.com/libraz/mygramdb-go/internal/core/domain"
	"github.com/libraz/mygramdb-go/internal/ngram"
	"github.com/stretchr/testify/require"
)

func ngramsOf(t *testing.T, text string) map[string]struct{} {
	t.Helper()
	norm := ngram.Normalize(text, ngram.NormalizeOptions{NFKC: true, Width: ngram.WidthNarrow, Lower: true})
	return ngram.TokenizeSet(norm, 2, 1)
}

func TestRegisterUnregisterRoundTrip(t *testing.T) {
	e := New(2, 1)
	key := domain.CacheKey{1}
	e.Register(key, ngramsOf(t, "hello"))

	affected := e.InvalidateAffected("hello", "hello")
	require.Contains(t, affected, key)

	// Already unregistered by InvalidateAffected; a second call finds nothing.
	affected2 := e.InvalidateAffected("hello", "hello")
	require.Empty(t, affected2)
}

func TestInvalidateAffectedCoversUnionOfOldAndNewTokens(t *testing.T) {
	e := New(2, 1)
	keyOld := domain.CacheKey{1}
	keyNew := domain.CacheKey{2}
	keyUnrelated := domain.CacheKey{3}

	e.Register(keyOld, ngramsOf(t, "apple"))
	e.Register(keyNew, ngramsOf(t, "mango"))
	e.Register(keyUnrelated, ngramsOf(t, "zzzzz"))

	affected := e.InvalidateAffected("apple", "mango")
	require.Contains(t, affected, keyOld)
	require.Contains(t, affected, keyNew)
	require.NotContains(t, affected, keyUnrelated)
}

func TestClearTableUnregistersEverythingWithoutDeadlock(t *testing.T) {
	e := New(2, 1)
	e.Register(domain.CacheKey{1}, ngramsOf(t, "one"))
	e.Register(domain.CacheKey{2}, ngramsOf(t, "two"))

	done := make(chan struct{})
	go func() {
		e.ClearTable()
		close(done)
	}()
	<-done // would hang forever if ClearTable deadlocked on its own lock

	require.Empty(t, e.forward)
	require.Empty(t, e.reverse)
}

func TestUnregisterDropsEmptyReverseSets(t *testing.T) {
	e := New(2, 1)
	key := domain.CacheKey{1}
	e.Register(key, map[string]struct{}{"ab": {}})
	e.Unregister(key)

	_, exists := e.reverse["ab"]
	require.False(t, exists, "an emptied reverse-index bucket must be deleted, not left dangling")
}
