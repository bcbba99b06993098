package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	uptime  time.Duration
	repl    ReplicationSnapshot
	hasRepl bool
}

func (f fakeSource) Uptime() time.Duration { return f.uptime }
func (f fakeSource) TotalCommands() int64  { return 42 }
func (f fakeSource) CommandCounts() map[string]int64 {
	return map[string]int64{"search": 30, "get": 12}
}
func (f fakeSource) HeapAllocBytes() uint64 { return 1024 }
func (f fakeSource) Tables() []TableSnapshot {
	return []TableSnapshot{
		{Name: "posts", Documents: 10, Tokens: 100, TotalPostings: 500, DeltaEncodedLists: 2, RoaringBitmapLists: 1},
	}
}
func (f fakeSource) ClientsConnected() int64                  { return 3 }
func (f fakeSource) ClientsTotal() int64                      { return 7 }
func (f fakeSource) Replication() (ReplicationSnapshot, bool) { return f.repl, f.hasRepl }

func scrape(t *testing.T, src Source) string {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	Handler(src, "dev")(rr, req)
	require.Equal(t, 200, rr.Code)
	return rr.Body.String()
}

func TestHandlerIncludesCoreSeries(t *testing.T) {
	out := scrape(t, fakeSource{uptime: 90 * time.Second})

	require.Contains(t, out, `mygramdb_server_info{version="dev"} 1`)
	require.Contains(t, out, "mygramdb_server_uptime_seconds 90")
	require.Contains(t, out, "mygramdb_server_commands_total 42")
	require.Contains(t, out, `mygramdb_command_total{command="search"} 30`)
	require.Contains(t, out, `mygramdb_command_total{command="get"} 12`)
	require.Contains(t, out, `mygramdb_index_documents_total{table="posts"} 10`)
	require.Contains(t, out, `mygramdb_index_postings_per_term_avg{table="posts"} 5`)
	require.Contains(t, out, "mygramdb_clients_connected 3")
	require.Contains(t, out, "mygramdb_clients_total 7")
	require.NotContains(t, out, "mygramdb_replication_running", "replication series are omitted when unconfigured")
}

func TestHandlerIncludesReplicationWhenConfigured(t *testing.T) {
	src := fakeSource{
		hasRepl: true,
		repl: ReplicationSnapshot{
			Running:         true,
			ProcessedEvents: 5,
			InsertsApplied:  2,
			UpdatesModified: 1,
		},
	}
	out := scrape(t, src)
	require.Contains(t, out, "mygramdb_replication_running 1")
	require.Contains(t, out, "mygramdb_replication_events_processed 5")
	require.Contains(t, out, `mygramdb_replication_inserts_total{status="applied"} 2`)
	require.Contains(t, out, `mygramdb_replication_updates_total{status="modified"} 1`)
}
