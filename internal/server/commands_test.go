package server

import (
	"strings"
	"testing"

	"github.com/libraz/mygramdb-go/internal/cache"
	"github.com/libraz/mygramdb-go/internal/core/domain"
	"github.com/libraz/mygramdb-go/internal/tablectx"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *tablectx.Context) {
	t.Helper()
	ctx := tablectx.New(domain.TableConfig{Name: "posts", NgramSize: 2, KanjiNgramSize: 1})

	docs := []struct {
		pk     string
		text   string
		status int64
	}{
		{"1", "hello world", 1},
		{"2", "hello there", 0},
		{"3", "goodbye world", 1},
	}
	for _, d := range docs {
		id, err := ctx.Store.AddDocument([]byte(d.pk), map[string]domain.FilterValue{
			"status": domain.NewFilterInt64(d.status),
		})
		require.NoError(t, err)
		ctx.Index.AddDoc(id, d.text)
	}

	astCache, err := cache.NewASTCache(64)
	require.NoError(t, err)
	resultCache := cache.New(1<<20, 0)

	tables := func(name string) (*tablectx.Context, bool) {
		if name == "posts" {
			return ctx, true
		}
		return nil, false
	}
	tableNames := func() []string { return []string{"posts"} }

	d := NewDispatcher(tables, tableNames, resultCache, astCache, nil, nil, nil, func() string {
		return "mysql:\n  password: secret123\n  host: localhost\n"
	}, func(path string) (string, bool) {
		if path == "cache.max_bytes" {
			return "path: cache.max_bytes\ntype: uint64\n", true
		}
		return "", false
	})
	return d, ctx
}

func TestDispatchSearchReturnsMatches(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp := d.Dispatch(Command{Kind: CmdSearch, Table: "posts", Text: "hello"})
	require.True(t, strings.HasPrefix(resp, "OK RESULTS 2"))
	require.Contains(t, resp, "1")
	require.Contains(t, resp, "2")
}

func TestDispatchSearchUnknownTable(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp := d.Dispatch(Command{Kind: CmdSearch, Table: "nope", Text: "hello"})
	require.True(t, strings.HasPrefix(resp, "ERROR"))
}

func TestDispatchCountSharesCacheWithSearch(t *testing.T) {
	d, _ := newTestDispatcher(t)

	countResp := d.Dispatch(Command{Kind: CmdCount, Table: "posts", Text: "hello"})
	require.Equal(t, "OK COUNT 2\r\n", countResp)

	searchResp := d.Dispatch(Command{Kind: CmdSearch, Table: "posts", Text: "hello", Limit: 1})
	require.True(t, strings.HasPrefix(searchResp, "OK RESULTS 2"))

	stats := d.cache.Statistics()
	require.Equal(t, 1, stats.Entries, "COUNT and a paginated SEARCH for the same query must share one cache entry")
}

func TestDispatchSearchWithFilterNarrowsAndUsesDistinctCacheEntry(t *testing.T) {
	d, _ := newTestDispatcher(t)

	d.Dispatch(Command{Kind: CmdCount, Table: "posts", Text: "hello"})
	filtered := d.Dispatch(Command{
		Kind:  CmdCount,
		Table: "posts",
		Text:  "hello",
		Filters: []domain.FilterPredicate{
			{Column: "status", Op: domain.OpEq, Value: domain.NewFilterInt64(1)},
		},
	})
	require.Equal(t, "OK COUNT 1\r\n", filtered)

	stats := d.cache.Statistics()
	require.Equal(t, 2, stats.Entries, "a FILTER clause must produce a distinct cache entry from the unfiltered query")
}

func TestDispatchSearchAndTopFastPathBypassesCache(t *testing.T) {
	d, _ := newTestDispatcher(t)

	resp := d.Dispatch(Command{
		Kind:  CmdSearch,
		Table: "posts",
		Text:  "hello",
		Limit: 5,
		Sort:  &domain.SortSpec{Column: "doc_id", Direction: domain.SortDescending},
	})
	require.True(t, strings.HasPrefix(resp, "OK RESULTS"))
	require.Equal(t, 0, d.cache.Statistics().Entries, "the search_and_top fast path must never populate the result cache")
}

func TestDispatchSearchCoercesWireFilterLiteralToColumnKind(t *testing.T) {
	ctx := tablectx.New(domain.TableConfig{
		Name:           "posts",
		NgramSize:      2,
		KanjiNgramSize: 1,
		FilterColumns:  []domain.FilterColumn{{Name: "status", Kind: domain.FilterInt64}},
	})
	for _, d := range []struct {
		pk     string
		text   string
		status int64
	}{
		{"1", "hello world", 1},
		{"2", "hello there", 0},
	} {
		id, err := ctx.Store.AddDocument([]byte(d.pk), map[string]domain.FilterValue{
			"status": domain.NewFilterInt64(d.status),
		})
		require.NoError(t, err)
		ctx.Index.AddDoc(id, d.text)
	}

	astCache, err := cache.NewASTCache(64)
	require.NoError(t, err)
	resultCache := cache.New(1<<20, 0)
	tables := func(name string) (*tablectx.Context, bool) {
		if name == "posts" {
			return ctx, true
		}
		return nil, false
	}
	dispatcher := NewDispatcher(tables, func() []string { return []string{"posts"} }, resultCache, astCache, nil, nil, nil, nil, nil)

	// A wire-parsed FILTER clause always starts out as FilterBytes
	// (parseFilterClause has no column-kind context); dispatchSearch must
	// coerce it to the column's declared int64 kind before it reaches
	// FilterValue.Equal, or this never matches.
	cmd, err := ParseLine(`SEARCH posts hello FILTER status=1`)
	require.NoError(t, err)

	resp := dispatcher.Dispatch(cmd)
	require.Equal(t, "OK RESULTS 1 1\r\n", resp)
}

func TestDispatchGetHitAndMiss(t *testing.T) {
	d, _ := newTestDispatcher(t)

	hit := d.Dispatch(Command{Kind: CmdGet, Table: "posts", PK: "1"})
	require.True(t, strings.HasPrefix(hit, "OK DOC 1"))
	require.Contains(t, hit, "status=1")

	miss := d.Dispatch(Command{Kind: CmdGet, Table: "posts", PK: "999"})
	require.Equal(t, "ERROR Document not found\r\n", miss)
}

func TestDispatchInfoEndsWithEND(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp := d.Dispatch(Command{Kind: CmdInfo})
	require.True(t, strings.HasPrefix(resp, "OK INFO"))
	require.True(t, strings.HasSuffix(resp, "END\r\n"))
	require.Contains(t, resp, "# Server")
	require.Contains(t, resp, "# Tables")
}

func TestDispatchConfigMasksSensitiveFields(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp := d.Dispatch(Command{Kind: CmdConfig})
	require.True(t, strings.HasPrefix(resp, "OK CONFIG"))
	require.NotContains(t, resp, "secret123")
	require.Contains(t, resp, "password:")
	require.Contains(t, resp, "***")
	require.Contains(t, resp, "host: localhost")
}

func TestDispatchConfigHelpKnownAndUnknownPath(t *testing.T) {
	d, _ := newTestDispatcher(t)

	resp := d.Dispatch(Command{Kind: CmdConfigHelp, Path: "cache.max_bytes"})
	require.True(t, strings.HasPrefix(resp, "OK CONFIG_HELP"))
	require.Contains(t, resp, "cache.max_bytes")

	resp = d.Dispatch(Command{Kind: CmdConfigHelp, Path: "no.such.path"})
	require.True(t, strings.HasPrefix(resp, "ERROR"))
}

func TestDispatchSaveLoadWithoutPersisterErrors(t *testing.T) {
	d, _ := newTestDispatcher(t)
	require.Equal(t, "ERROR persistence not configured\r\n", d.Dispatch(Command{Kind: CmdSave}))
	require.Equal(t, "ERROR persistence not configured\r\n", d.Dispatch(Command{Kind: CmdLoad}))
}

func TestDispatchReplicationWithoutControllerReportsNotConfigured(t *testing.T) {
	d, _ := newTestDispatcher(t)
	resp := d.Dispatch(Command{Kind: CmdReplicationStatus})
	require.Contains(t, resp, "status: not_configured")

	require.Equal(t, "ERROR replication not configured\r\n", d.Dispatch(Command{Kind: CmdReplicationStop}))
	require.Equal(t, "ERROR replication not configured\r\n", d.Dispatch(Command{Kind: CmdReplicationStart}))
}

type stubReplicationController struct {
	running  bool
	position string
}

func (s *stubReplicationController) Status() (bool, string, int64, int) {
	return s.running, s.position, 42, 0
}
func (s *stubReplicationController) Stop() error  { s.running = false; return nil }
func (s *stubReplicationController) Start() error { s.running = true; return nil }

func TestDispatchReplicationStartStopWithController(t *testing.T) {
	d, _ := newTestDispatcher(t)
	stub := &stubReplicationController{position: "0-0-0"}
	d.repl = stub

	start := d.Dispatch(Command{Kind: CmdReplicationStart})
	require.Equal(t, "OK REPLICATION_STARTED\r\n", start)
	require.True(t, stub.running)

	status := d.Dispatch(Command{Kind: CmdReplicationStatus})
	require.Contains(t, status, "status: running")

	stop := d.Dispatch(Command{Kind: CmdReplicationStop})
	require.Equal(t, "OK REPLICATION_STOPPED\r\n", stop)
	require.False(t, stub.running)
}
