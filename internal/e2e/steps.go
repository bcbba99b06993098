package e2e

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/cucumber/godog"

	"github.com/libraz/mygramdb-go/internal/cache"
	"github.com/libraz/mygramdb-go/internal/core/domain"
	"github.com/libraz/mygramdb-go/internal/index"
	"github.com/libraz/mygramdb-go/internal/invalidation"
	"github.com/libraz/mygramdb-go/internal/ngram"
	"github.com/libraz/mygramdb-go/internal/replication"
	"github.com/libraz/mygramdb-go/internal/server"
	"github.com/libraz/mygramdb-go/internal/tablectx"
)

// InitializeScenario registers every step definition against ctx. Called
// once per scenario by the godog runner in e2e_test.go.
func InitializeScenario(ctx *godog.ScenarioContext) {
	w := newWorld()
	ctx.Before(func(goCtx context.Context, sc *godog.Scenario) (context.Context, error) {
		*w = *newWorld()
		return goCtx, nil
	})

	// S1 / S2 / S5: inverted index behavior.
	ctx.Step(`^a fresh table with ngram size (\d+) and kanji ngram size (\d+)$`, w.freshIndex)
	ctx.Step(`^document (\d+) with text "([^"]*)"$`, w.addDocument)
	ctx.Step(`^documents (\d+) through (\d+) with text "([^"]*)"$`, w.addDocumentRange)
	ctx.Step(`^the count of token "([^"]*)" is (\d+)$`, w.assertCount)
	ctx.Step(`^searching AND for tokens (.+) returns docs (\[.*\])$`, w.assertSearchAnd)
	ctx.Step(`^searching NOT for universe (\[.*\]) excluding tokens (.+) returns docs (\[.*\])$`, w.assertSearchNot)
	ctx.Step(`^I normalize and tokenize the query "([^"]*)"$`, w.normalizeQueryStep)
	ctx.Step(`^searching AND for the query tokens returns docs (\[.*\])$`, w.assertSearchAndQueryTokens)
	ctx.Step(`^reverse top (\d+) for token "([^"]*)" is (\[.*\])$`, w.assertReverseTop)
	ctx.Step(`^document (\d+) is updated from "([^"]*)" to "([^"]*)"$`, w.updateDocument)

	// S3: invalidation engine precision.
	ctx.Step(`^a fresh invalidation engine with ngram size (\d+) and kanji ngram size (\d+)$`, w.freshInvalidation)
	ctx.Step(`^cache key "([^"]*)" registered on tokens (.+)$`, w.registerCacheKey)
	ctx.Step(`^text changes from "([^"]*)" to "([^"]*)"$`, w.invalidateText)
	ctx.Step(`^the invalidated keys are exactly (.+)$`, w.assertInvalidatedKeys)

	// S4: required-filter UPDATE transitions.
	ctx.Step(`^a table context requiring filter "([^"]*)" = "([^"]*)"$`, w.tableContextWithRequiredFilter)
	ctx.Step(`^an UPDATE event changes status from "([^"]*)" to "([^"]*)" with new text "([^"]*)"$`, w.updateEventStatusAndText)
	ctx.Step(`^an UPDATE event keeps status "([^"]*)" and changes text from "([^"]*)" to "([^"]*)"$`, w.updateEventTextOnly)
	ctx.Step(`^an UPDATE event changes status from "([^"]*)" to "([^"]*)"$`, w.updateEventStatusOnly)
	ctx.Step(`^the updates_added counter is (\d+)$`, w.assertUpdatesAdded)
	ctx.Step(`^the updates_modified counter is (\d+)$`, w.assertUpdatesModified)
	ctx.Step(`^the updates_removed counter is (\d+)$`, w.assertUpdatesRemoved)

	// S6: worker pool shutdown.
	ctx.Step(`^a worker pool of (\d+) workers with an unbounded queue$`, w.freshPool)
	ctx.Step(`^(\d+) tasks sleeping (\d+)ms are submitted$`, w.submitSleepTasks)
	ctx.Step(`^the pool is shut down gracefully with a (\d+)ms timeout$`, w.shutdownPool)
	ctx.Step(`^shutdown returns between (\d+)ms and (\d+)ms$`, w.assertShutdownWithin)
	ctx.Step(`^every task that started also completed$`, w.assertStartedEqualsCompleted)

	// S7: network ACL.
	ctx.Step(`^an ACL built from an empty allow-list$`, w.emptyACL)
	ctx.Step(`^address "([^"]*)" is denied$`, w.assertACLDenied)

	// S8: LZ4 round-trip via the result cache.
	ctx.Step(`^a result cache with a (\d+)MiB byte budget$`, w.freshResultCache)
	ctx.Step(`^doc ids (\d+) through (\d+) are inserted under a cache key$`, w.insertDocIDRange)
	ctx.Step(`^looking up that key returns the same (\d+) doc ids in order$`, w.assertLookupRoundTrip)
}

// --- S1 / S2 / S5 -----------------------------------------------------

func (w *world) freshIndex(ngramSize, kanjiSize int) error {
	w.idx = index.New(ngramSize, kanjiSize)
	w.ngramSize = ngramSize
	w.kanjiNgramSize = kanjiSize
	return nil
}

func (w *world) addDocument(docID int, text string) error {
	w.idx.AddDoc(domain.DocID(docID), normalizeQuery(text))
	return nil
}

func (w *world) addDocumentRange(from, to int, text string) error {
	for id := from; id <= to; id++ {
		w.idx.AddDoc(domain.DocID(id), normalizeQuery(text))
	}
	return nil
}

func (w *world) assertCount(token string, want uint64) error {
	got := w.idx.Count(token)
	if got != want {
		return fmt.Errorf("count(%q) = %d, want %d", token, got, want)
	}
	return nil
}

func (w *world) assertSearchAnd(tokensCSV, wantCSV string) error {
	got := w.idx.SearchAnd(parseTokenList(tokensCSV))
	want, err := parseDocIDs(wantCSV)
	if err != nil {
		return err
	}
	return compareDocIDs(got, want)
}

func (w *world) assertSearchNot(universeCSV, tokensCSV, wantCSV string) error {
	universe, err := parseDocIDs(universeCSV)
	if err != nil {
		return err
	}
	got := w.idx.SearchNot(universe, parseTokenList(tokensCSV))
	want, err := parseDocIDs(wantCSV)
	if err != nil {
		return err
	}
	return compareDocIDs(got, want)
}

func (w *world) normalizeQueryStep(text string) error {
	normalized := normalizeQuery(text)
	w.queryTokens = ngram.TokenizeAll([]byte(normalized), w.ngramSize, w.kanjiNgramSize)
	return nil
}

func (w *world) assertSearchAndQueryTokens(wantCSV string) error {
	got := w.idx.SearchAnd(w.queryTokens)
	want, err := parseDocIDs(wantCSV)
	if err != nil {
		return err
	}
	return compareDocIDs(got, want)
}

func (w *world) assertReverseTop(limit int, token, wantCSV string) error {
	got := w.idx.SearchAndTop([]string{token}, limit, true)
	want, err := parseDocIDs(wantCSV)
	if err != nil {
		return err
	}
	return compareOrderedDocIDs(got, want)
}

func (w *world) updateDocument(docID int, oldText, newText string) error {
	w.idx.UpdateDoc(domain.DocID(docID), normalizeQuery(oldText), normalizeQuery(newText))
	return nil
}

func compareDocIDs(got, want []domain.DocID) error {
	sortDocIDs(got)
	sortDocIDs(want)
	return compareOrderedDocIDs(got, want)
}

func compareOrderedDocIDs(got, want []domain.DocID) error {
	if len(got) != len(want) {
		return fmt.Errorf("got %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			return fmt.Errorf("got %v, want %v", got, want)
		}
	}
	return nil
}

func sortDocIDs(ids []domain.DocID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// --- S3 -----------------------------------------------------------------

func (w *world) freshInvalidation(ngramSize, kanjiSize int) error {
	w.inval = invalidation.New(ngramSize, kanjiSize)
	return nil
}

func (w *world) registerCacheKey(name, tokensCSV string) error {
	key := cacheKeyFromName(name)
	w.registeredKeys[name] = key
	ngrams := make(map[string]struct{})
	for _, t := range parseTokenList(tokensCSV) {
		ngrams[t] = struct{}{}
	}
	w.inval.Register(key, ngrams)
	return nil
}

func (w *world) invalidateText(oldText, newText string) error {
	w.invalidated = w.inval.InvalidateAffected(oldText, newText)
	return nil
}

func (w *world) assertInvalidatedKeys(wantNamesCSV string) error {
	wantNames := parseTokenList(wantNamesCSV)
	gotSet := make(map[domain.CacheKey]struct{}, len(w.invalidated))
	for _, k := range w.invalidated {
		gotSet[k] = struct{}{}
	}
	if len(gotSet) != len(wantNames) {
		return fmt.Errorf("invalidated %d keys, want %d (%v)", len(gotSet), len(wantNames), wantNames)
	}
	for _, name := range wantNames {
		key, ok := w.registeredKeys[name]
		if !ok {
			return fmt.Errorf("unknown cache key name %q", name)
		}
		if _, ok := gotSet[key]; !ok {
			return fmt.Errorf("expected key %q to be invalidated, was not", name)
		}
	}
	return nil
}

// cacheKeyFromName derives a stable, distinct CacheKey per human-readable
// name, good enough for set-membership assertions in this scenario without
// depending on cache.Fingerprint's canonical-query-string contract.
func cacheKeyFromName(name string) domain.CacheKey {
	var k domain.CacheKey
	copy(k[:], name)
	return k
}

// --- S4 -------------------------------------------------------------------

const s4Table = "articles"

func (w *world) tableContextWithRequiredFilter(column, value string) error {
	cfg := domain.TableConfig{
		Name:           s4Table,
		NgramSize:      2,
		KanjiNgramSize: 1,
		FilterColumns:  []domain.FilterColumn{{Name: column, Kind: domain.FilterBytes}},
		RequiredFilters: domain.RequiredFilters{
			{Column: column, Op: domain.OpEq, Value: domain.NewFilterBytes([]byte(value))},
		},
	}
	w.tableCtx = tablectx.New(cfg)
	w.primaryKey = []byte("s4-doc-1")
	lookup := func(table string) (*tablectx.Context, bool) {
		if table == s4Table {
			return w.tableCtx, true
		}
		return nil, false
	}
	w.applier = replication.New(lookup, nil, nil)
	return nil
}

func (w *world) applyStatusUpdate(newStatus, oldText, newText string) error {
	event := domain.RowEvent{
		Kind:       domain.EventUpdate,
		Table:      s4Table,
		PrimaryKey: w.primaryKey,
		Text:       newText,
		OldText:    oldText,
		Filters:    map[string]domain.FilterValue{"status": domain.NewFilterBytes([]byte(newStatus))},
	}
	if err := w.applier.Apply(event); err != nil {
		return err
	}
	w.currentText = newText
	return nil
}

func (w *world) updateEventStatusAndText(oldStatus, newStatus, newText string) error {
	return w.applyStatusUpdate(newStatus, w.currentText, newText)
}

func (w *world) updateEventTextOnly(status, oldText, newText string) error {
	return w.applyStatusUpdate(status, oldText, newText)
}

func (w *world) updateEventStatusOnly(oldStatus, newStatus string) error {
	return w.applyStatusUpdate(newStatus, w.currentText, w.currentText)
}

func (w *world) assertUpdatesAdded(want int64) error {
	return assertCounter("updates_added", w.applier.Counters().UpdatesAdded, want)
}

func (w *world) assertUpdatesModified(want int64) error {
	return assertCounter("updates_modified", w.applier.Counters().UpdatesModified, want)
}

func (w *world) assertUpdatesRemoved(want int64) error {
	return assertCounter("updates_removed", w.applier.Counters().UpdatesRemoved, want)
}

func assertCounter(name string, got, want int64) error {
	if got != want {
		return fmt.Errorf("%s = %d, want %d", name, got, want)
	}
	return nil
}

// --- S6 ---------------------------------------------------------------

func (w *world) freshPool(workers int) error {
	w.pool = server.NewPool(workers, 0, nil)
	w.pool.Start()
	return nil
}

func (w *world) submitSleepTasks(n int, sleepMs int) error {
	for i := 0; i < n; i++ {
		w.submitted++
		accepted := w.pool.Submit(func() {
			atomic.AddInt64(&w.started, 1)
			time.Sleep(time.Duration(sleepMs) * time.Millisecond)
			atomic.AddInt64(&w.completed, 1)
		})
		if !accepted {
			return fmt.Errorf("pool rejected task %d", i)
		}
	}
	return nil
}

func (w *world) shutdownPool(timeoutMs int) error {
	start := time.Now()
	w.pool.Shutdown(true, time.Duration(timeoutMs)*time.Millisecond)
	w.shutdownElapsed = time.Since(start)
	return nil
}

func (w *world) assertShutdownWithin(minMs, maxMs int) error {
	if w.shutdownElapsed < time.Duration(minMs)*time.Millisecond || w.shutdownElapsed > time.Duration(maxMs)*time.Millisecond {
		return fmt.Errorf("shutdown took %s, want between %dms and %dms", w.shutdownElapsed, minMs, maxMs)
	}
	return nil
}

func (w *world) assertStartedEqualsCompleted() error {
	started := atomic.LoadInt64(&w.started)
	completed := atomic.LoadInt64(&w.completed)
	if started != completed {
		return fmt.Errorf("%d tasks started but only %d completed", started, completed)
	}
	return nil
}

// --- S7 -----------------------------------------------------------------

func (w *world) emptyACL() error {
	w.acl = server.NewACL(nil)
	return nil
}

func (w *world) assertACLDenied(addr string) error {
	if w.acl.Allowed(addr + ":12345") {
		return fmt.Errorf("expected %q to be denied by an empty ACL, was allowed", addr)
	}
	return nil
}

// --- S8 -------------------------------------------------------------------

func (w *world) freshResultCache(mib int) error {
	w.resultCache = cache.New(mib*1024*1024, 0)
	return nil
}

func (w *world) insertDocIDRange(from, to int) error {
	ids := make([]domain.DocID, 0, to-from+1)
	for i := from; i <= to; i++ {
		ids = append(ids, domain.DocID(i))
	}
	w.lookupKey = cache.Fingerprint("e2e-lz4-roundtrip")
	w.resultCache.Insert(w.lookupKey, ids, domain.CacheMetadata{Table: "e2e"}, 0)
	return nil
}

func (w *world) assertLookupRoundTrip(want int) error {
	ids, ok := w.resultCache.Lookup(w.lookupKey)
	w.lookedUp, w.lookupOK = ids, ok
	if !ok {
		return fmt.Errorf("cache lookup miss, expected a hit")
	}
	if len(ids) != want {
		return fmt.Errorf("got %d doc ids, want %d", len(ids), want)
	}
	for i, id := range ids {
		if int(id) != i {
			return fmt.Errorf("doc id at position %d = %d, want %d", i, id, i)
		}
	}
	return nil
}
