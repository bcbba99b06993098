package server

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/libraz/mygramdb-go/internal/cache"
	"github.com/libraz/mygramdb-go/internal/config"
	"github.com/libraz/mygramdb-go/internal/core/domain"
	"github.com/libraz/mygramdb-go/internal/ngram"
	"github.com/libraz/mygramdb-go/internal/query"
	"github.com/libraz/mygramdb-go/internal/replication"
	"github.com/libraz/mygramdb-go/internal/tablectx"
)

// Persister captures the on-disk dump surface a Dispatcher delegates
// SAVE/LOAD to, so this package doesn't need to know the binary layout.
type Persister interface {
	Save() (path string, err error)
	Load() (path string, err error)
}

// ReplicationController is the subset of the replication runner a
// Dispatcher needs for the REPLICATION STATUS/STOP/START commands.
type ReplicationController interface {
	Status() (running bool, currentPosition string, processedEvents int64, queueSize int)
	Stop() error
	Start() error
}

// Dispatcher resolves parsed Commands against the live table set, the
// shared result cache, and the replication subsystem, and renders wire
// responses.
type Dispatcher struct {
	tables     func(name string) (*tablectx.Context, bool)
	tableNames func() []string
	cache      *cache.ResultCache
	astCache   *cache.ASTCache
	applier    *replication.Applier
	repl       ReplicationController
	persister  Persister
	configDump func() string
	configHelp func(path string) (body string, ok bool)
	clients    *ClientRegistry

	startedAt    time.Time
	commandCount atomic.Int64
	commandKinds sync.Map
}

// NewDispatcher builds a Dispatcher. resultCache and astCache must be
// non-nil; repl and persister may be nil when the corresponding feature is
// unconfigured, in which case the affected commands answer with ERROR
// rather than panicking.
func NewDispatcher(
	tables func(name string) (*tablectx.Context, bool),
	tableNames func() []string,
	resultCache *cache.ResultCache,
	astCache *cache.ASTCache,
	applier *replication.Applier,
	repl ReplicationController,
	persister Persister,
	configDump func() string,
	configHelp func(path string) (string, bool),
) *Dispatcher {
	return &Dispatcher{
		tables:     tables,
		tableNames: tableNames,
		cache:      resultCache,
		astCache:   astCache,
		applier:    applier,
		repl:       repl,
		persister:  persister,
		configDump: configDump,
		configHelp: configHelp,
		startedAt:  time.Now(),
	}
}

// SetClients attaches the connection-tracking registry the TCP acceptor
// populates, so dispatchInfo can render the "# Clients" section. Optional —
// INFO omits that section when none is set.
func (d *Dispatcher) SetClients(clients *ClientRegistry) { d.clients = clients }

// Dispatch executes one parsed command and renders its full wire response,
// including the trailing `\r\n`. It never returns an error: a command-level
// failure is itself rendered as an `ERROR ...` response line, so per-request
// errors stay confined to that request instead of tearing down the
// connection.
func (d *Dispatcher) Dispatch(cmd Command) string {
	d.commandCount.Add(1)
	d.recordCommandKind(cmd.Kind)

	switch cmd.Kind {
	case CmdSearch:
		return d.dispatchSearch(cmd, false)
	case CmdCount:
		return d.dispatchSearch(cmd, true)
	case CmdGet:
		return d.dispatchGet(cmd)
	case CmdInfo:
		return d.dispatchInfo()
	case CmdConfig:
		return d.dispatchConfig()
	case CmdConfigHelp:
		return d.dispatchConfigHelp(cmd.Path)
	case CmdSave:
		return d.dispatchSave()
	case CmdLoad:
		return d.dispatchLoad()
	case CmdReplicationStatus:
		return d.dispatchReplicationStatus()
	case CmdReplicationStop:
		return d.dispatchReplicationControl(false)
	case CmdReplicationStart:
		return d.dispatchReplicationControl(true)
	default:
		return errorLine("unknown command")
	}
}

func (d *Dispatcher) recordCommandKind(kind CommandKind) {
	key := kindLabel(kind)
	val, _ := d.commandKinds.LoadOrStore(key, new(atomic.Int64))
	val.(*atomic.Int64).Add(1)
}

// Uptime reports how long this Dispatcher has been serving commands.
func (d *Dispatcher) Uptime() time.Duration { return time.Since(d.startedAt) }

// TotalCommands reports the atomic total command count, for the metrics
// package's Source interface.
func (d *Dispatcher) TotalCommands() int64 { return d.commandCount.Load() }

// CommandCounts snapshots the per-kind atomic command counters.
func (d *Dispatcher) CommandCounts() map[string]int64 {
	counts := make(map[string]int64)
	d.commandKinds.Range(func(k, v any) bool {
		counts[k.(string)] = v.(*atomic.Int64).Load()
		return true
	})
	return counts
}

// TableNames exposes the configured table set to callers outside this
// package (the metrics scrape handler).
func (d *Dispatcher) TableNames() []string {
	if d.tableNames == nil {
		return nil
	}
	return d.tableNames()
}

// TableContext resolves name to its table context, for callers that need
// to read index/store statistics directly (the metrics scrape handler).
func (d *Dispatcher) TableContext(name string) (*tablectx.Context, bool) {
	return d.tables(name)
}

// ReplicationStatus reports the replication applier's running state and
// counters, or ok=false when no ReplicationController is configured.
func (d *Dispatcher) ReplicationStatus() (status ReplicationSnapshotFields, ok bool) {
	if d.repl == nil {
		return ReplicationSnapshotFields{}, false
	}
	running, position, processed, queueSize := d.repl.Status()
	status = ReplicationSnapshotFields{Running: running, CurrentPosition: position, ProcessedEvents: processed, QueueSize: queueSize}
	if d.applier != nil {
		status.Counters = d.applier.Counters()
	}
	return status, true
}

// ReplicationSnapshotFields is the replication state TableContext/metrics
// callers need, decoupled from the ReplicationController interface's
// positional return values.
type ReplicationSnapshotFields struct {
	Running         bool
	CurrentPosition string
	ProcessedEvents int64
	QueueSize       int
	Counters        domain.ApplyCounters
}

func (d *Dispatcher) dispatchSearch(cmd Command, countOnly bool) string {
	ctx, ok := d.tables(cmd.Table)
	if !ok {
		return errorLine(fmt.Sprintf("unknown table %q", cmd.Table))
	}

	coerced, err := coerceFilters(ctx.Config.FilterColumns, cmd.Filters)
	if err != nil {
		return errorLine(err.Error())
	}
	cmd.Filters = coerced

	ast, err := d.parseQuery(cmd.Text, cmd.NotTerms)
	if err != nil {
		return errorLine(err.Error())
	}

	if !countOnly {
		if resp, handled := d.dispatchSearchAndTopFastPath(ctx, ast, cmd); handled {
			return resp
		}
	}

	// The cache stores the full filtered+sorted (but not yet paginated)
	// doc-id list, so LIMIT/OFFSET never invalidates another request's cache
	// entry for the same text/filters/sort and COUNT can share it with
	// SEARCH.
	plan := query.Plan{
		AST:       ast,
		Filters:   cmd.Filters,
		Debug:     cmd.Debug,
		NgramSize: ctx.Config.NgramSize,
		KanjiSize: ctx.Config.KanjiNgramSize,
	}
	if cmd.Sort != nil {
		plan.Sort = *cmd.Sort
	}

	canonical := query.Canonical(ast)
	key := cache.Fingerprint(cmd.Table + "\x00" + canonical + "\x00" + filterAndSortKey(cmd.Filters, cmd.Sort))

	var full []domain.DocID
	var stages []domain.StageTiming
	if cached, hit := d.cache.Lookup(key); hit && !cmd.Debug {
		full = cached
	} else {
		start := time.Now()
		ctx.RLock()
		full, stages, err = query.Execute(ctx.Index, ctx.Store, plan)
		ctx.RUnlock()
		if err != nil {
			return errorLine(err.Error())
		}
		cost := float64(time.Since(start).Microseconds()) / 1000.0
		positive, negated := query.Terms(ast)
		ngrams := make(map[string]struct{})
		for _, t := range append(append([]string{}, positive...), negated...) {
			normalized := ngram.Normalize(t, ngram.NormalizeOptions{NFKC: true, Width: ngram.WidthNarrow, Lower: true})
			for _, tok := range ngram.TokenizeAll(normalized, ctx.Config.NgramSize, ctx.Config.KanjiNgramSize) {
				ngrams[tok] = struct{}{}
			}
		}
		if d.cache.Insert(key, full, domain.CacheMetadata{Table: cmd.Table, Ngrams: ngrams}, cost) {
			ctx.Invalidation.Register(key, ngrams)
		}
	}

	if countOnly {
		return okLine(fmt.Sprintf("COUNT %d", len(full)))
	}

	page := paginateDocIDs(full, cmd.Offset, cmd.Limit)
	return renderSearchResult(ctx, page, len(full), stages, cmd.Debug)
}

// coerceFilters re-parses every wire-protocol filter literal (always decoded
// as FilterBytes by parseFilterClause) into the target column's declared
// FilterKind, the same coercion config.ResolveTable already applies to
// required_filters YAML literals. FilterValue.Equal and Compare are
// kind-sensitive, so a clause left as FilterBytes against a non-bytes column
// silently never matches. Columns the table has no declared kind for
// (unknown to this table's configuration) pass through unchanged; query
// execution evaluates them like any other predicate, against the stored
// value for that column or its absence.
func coerceFilters(columns []domain.FilterColumn, filters []domain.FilterPredicate) ([]domain.FilterPredicate, error) {
	if len(filters) == 0 {
		return filters, nil
	}
	kinds := make(map[string]domain.FilterKind, len(columns))
	for _, c := range columns {
		kinds[c.Name] = c.Kind
	}
	out := make([]domain.FilterPredicate, len(filters))
	for i, f := range filters {
		kind, ok := kinds[f.Column]
		if !ok {
			out[i] = f
			continue
		}
		switch f.Op {
		case domain.OpIsNull, domain.OpIsNotNull:
			out[i] = f
		case domain.OpIn:
			values := make([]domain.FilterValue, len(f.Values))
			for j, v := range f.Values {
				cv, err := config.ParseFilterValue(kind, v.String())
				if err != nil {
					return nil, fmt.Errorf("filter %s: %w", f.Column, err)
				}
				values[j] = cv
			}
			f.Values = values
			out[i] = f
		default:
			cv, err := config.ParseFilterValue(kind, f.Value.String())
			if err != nil {
				return nil, fmt.Errorf("filter %s: %w", f.Column, err)
			}
			f.Value = cv
			out[i] = f
		}
	}
	return out, nil
}

// filterAndSortKey renders the filter clauses and sort spec into a stable
// string so they participate in the cache fingerprint alongside the query
// text — two SEARCHes with the same text but different FILTER/SORT clauses
// must never share a cache entry.
func filterAndSortKey(filters []domain.FilterPredicate, sortSpec *domain.SortSpec) string {
	var sb strings.Builder
	for _, f := range filters {
		sb.WriteString(f.Column)
		sb.WriteString(f.Op.String())
		sb.WriteString(f.Value.String())
		for _, v := range f.Values {
			sb.WriteString(",")
			sb.WriteString(v.String())
		}
		sb.WriteString(";")
	}
	if sortSpec != nil {
		sb.WriteString("sort:")
		sb.WriteString(sortSpec.Column)
		if sortSpec.Direction == domain.SortDescending {
			sb.WriteString(":desc")
		} else {
			sb.WriteString(":asc")
		}
	}
	return sb.String()
}

// dispatchSearchAndTopFastPath recognizes the single-term/SORT doc_id
// DESC/LIMIT n/no-filters shape the executor's search_and_top fast path
// covers and, when it applies, answers directly from the index without
// going through the result cache. Caching is skipped here deliberately: the
// cache stores the full filtered+sorted set, but the fast path returns only
// the first LIMIT ids, so there is nothing whole to cache.
func (d *Dispatcher) dispatchSearchAndTopFastPath(ctx *tablectx.Context, ast *query.Expr, cmd Command) (string, bool) {
	plan := query.Plan{
		AST:       ast,
		Filters:   cmd.Filters,
		Limit:     cmd.Limit,
		Offset:    cmd.Offset,
		Debug:     cmd.Debug,
		NgramSize: ctx.Config.NgramSize,
		KanjiSize: ctx.Config.KanjiNgramSize,
	}
	if cmd.Sort != nil {
		plan.Sort = *cmd.Sort
	}
	if _, ok := query.SearchAndTopTerms(plan); !ok {
		return "", false
	}

	ctx.RLock()
	docIDs, stages, err := query.Execute(ctx.Index, ctx.Store, plan)
	ctx.RUnlock()
	if err != nil {
		return errorLine(err.Error()), true
	}
	return renderSearchResult(ctx, docIDs, len(docIDs), stages, cmd.Debug), true
}

// paginateDocIDs applies OFFSET/LIMIT to an already filtered+sorted slice.
// limit <= 0 means no limit, matching the wire default.
func paginateDocIDs(ids []domain.DocID, offset, limit int) []domain.DocID {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(ids) {
		return nil
	}
	ids = ids[offset:]
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	return ids
}

// parseQuery compiles the SEARCH/COUNT text plus any "NOT <term>" clauses
// into a single AST, going through the AST cache so repeated identical
// query text across requests skips re-parsing.
func (d *Dispatcher) parseQuery(text string, notTerms []string) (*query.Expr, error) {
	var ast *query.Expr
	var err error
	if d.astCache != nil {
		ast, err = d.astCache.GetOrParse(text)
	} else {
		ast, err = query.Parse(text)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidInput, err)
	}
	if len(notTerms) == 0 {
		return ast, nil
	}
	children := []*query.Expr{ast}
	for _, t := range notTerms {
		children = append(children, &query.Expr{Kind: query.NodeNot, Children: []*query.Expr{{Kind: query.NodeTerm, Text: t}}})
	}
	return &query.Expr{Kind: query.NodeAnd, Children: children}, nil
}

func (d *Dispatcher) dispatchGet(cmd Command) string {
	ctx, ok := d.tables(cmd.Table)
	if !ok {
		return errorLine(fmt.Sprintf("unknown table %q", cmd.Table))
	}

	ctx.RLock()
	defer ctx.RUnlock()

	docID, ok := ctx.Store.GetDocID([]byte(cmd.PK))
	if !ok {
		return errorLine("Document not found")
	}
	doc, ok := ctx.Store.GetDocument(docID)
	if !ok {
		return errorLine("Document not found")
	}

	var sb strings.Builder
	sb.WriteString("OK DOC ")
	sb.WriteString(string(doc.PK))
	for col, val := range doc.Filters {
		sb.WriteString(" ")
		sb.WriteString(col)
		sb.WriteString("=")
		sb.WriteString(val.String())
	}
	sb.WriteString("\r\n")
	return sb.String()
}

func renderSearchResult(ctx *tablectx.Context, docIDs []domain.DocID, total int, stages []domain.StageTiming, debug bool) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("OK RESULTS %d", total))
	for _, id := range docIDs {
		if pk, ok := ctx.Store.GetPrimaryKey(id); ok {
			sb.WriteString(" ")
			sb.Write(pk)
		}
	}
	sb.WriteString("\r\n")
	if debug {
		sb.WriteString("\r\n# DEBUG\r\n")
		for _, s := range stages {
			sb.WriteString(fmt.Sprintf("%s: %s (%d)\r\n", s.Stage, s.Duration, s.Cardinality))
		}
	}
	return sb.String()
}

func (d *Dispatcher) dispatchInfo() string {
	var sb strings.Builder
	sb.WriteString("OK INFO\r\n")

	sb.WriteString("\r\n# Server\r\n")
	sb.WriteString(fmt.Sprintf("uptime_seconds: %d\r\n", int(time.Since(d.startedAt).Seconds())))
	sb.WriteString(fmt.Sprintf("go_version: %s\r\n", runtime.Version()))

	sb.WriteString("\r\n# Stats\r\n")
	sb.WriteString(fmt.Sprintf("total_commands: %d\r\n", d.commandCount.Load()))

	sb.WriteString("\r\n# Commandstats\r\n")
	d.commandKinds.Range(func(k, v any) bool {
		sb.WriteString(fmt.Sprintf("%s: %d\r\n", k, v.(*atomic.Int64).Load()))
		return true
	})

	sb.WriteString("\r\n# Memory\r\n")
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	sb.WriteString(fmt.Sprintf("heap_alloc_bytes: %d\r\n", mem.HeapAlloc))

	if d.cache != nil {
		stats := d.cache.Statistics()
		sb.WriteString("\r\n# Cache\r\n")
		sb.WriteString(fmt.Sprintf("entries: %d\r\nused_bytes: %d\r\nhits: %d\r\nmisses: %d\r\nevictions: %d\r\n",
			stats.Entries, stats.UsedBytes, stats.Hits, stats.Misses, stats.Evictions))
	}

	sb.WriteString("\r\n# Tables\r\n")
	if d.tableNames != nil {
		for _, name := range d.tableNames() {
			if ctx, ok := d.tables(name); ok {
				ctx.RLock()
				stats := ctx.Index.Statistics()
				docCount := ctx.Store.Size()
				ctx.RUnlock()
				sb.WriteString(fmt.Sprintf("%s.tokens: %d\r\n%s.documents: %d\r\n", name, stats.TokenCount, name, docCount))
			}
		}
	}

	if d.clients != nil {
		sb.WriteString("\r\n# Clients\r\n")
		connected, total := d.clients.Counts()
		sb.WriteString(fmt.Sprintf("connected: %d\r\ntotal: %d\r\n", connected, total))
	}

	if d.applier != nil {
		sb.WriteString("\r\n# Replication\r\n")
		counters := d.applier.Counters()
		sb.WriteString(fmt.Sprintf("inserts_applied: %d\r\nupdates_modified: %d\r\ndeletes_applied: %d\r\ncurrent_position: %s\r\n",
			counters.InsertsApplied, counters.UpdatesModified, counters.DeletesApplied, d.applier.CurrentPosition()))
	}

	sb.WriteString("END\r\n")
	return sb.String()
}

func (d *Dispatcher) dispatchConfig() string {
	if d.configDump == nil {
		return errorLine("no configuration loaded")
	}
	return "OK CONFIG\n" + maskSensitive(d.configDump()) + "\n"
}

func (d *Dispatcher) dispatchConfigHelp(path string) string {
	if d.configHelp == nil {
		return errorLine("no configuration loaded")
	}
	body, ok := d.configHelp(path)
	if !ok {
		return errorLine(fmt.Sprintf("unknown config path %q", path))
	}
	return "OK CONFIG_HELP\n" + maskSensitive(body) + "\n"
}

func (d *Dispatcher) dispatchSave() string {
	if d.persister == nil {
		return errorLine("persistence not configured")
	}
	path, err := d.persister.Save()
	if err != nil {
		return errorLine(err.Error())
	}
	return okLine(fmt.Sprintf("SAVED %s", path))
}

func (d *Dispatcher) dispatchLoad() string {
	if d.persister == nil {
		return errorLine("persistence not configured")
	}
	path, err := d.persister.Load()
	if err != nil {
		return errorLine(err.Error())
	}
	return okLine(fmt.Sprintf("LOADED %s", path))
}

func (d *Dispatcher) dispatchReplicationStatus() string {
	if d.repl == nil {
		var sb strings.Builder
		sb.WriteString("OK REPLICATION\r\nstatus: not_configured\r\nEND\r\n")
		return sb.String()
	}
	running, position, processed, queueSize := d.repl.Status()
	status := "stopped"
	if running {
		status = "running"
	}
	var sb strings.Builder
	sb.WriteString("OK REPLICATION\r\n")
	sb.WriteString(fmt.Sprintf("status: %s\r\ncurrent_gtid: %s\r\nprocessed_events: %d\r\nqueue_size: %d\r\n",
		status, position, processed, queueSize))
	sb.WriteString("END\r\n")
	return sb.String()
}

func (d *Dispatcher) dispatchReplicationControl(start bool) string {
	if d.repl == nil {
		return errorLine("replication not configured")
	}
	var err error
	if start {
		err = d.repl.Start()
	} else {
		err = d.repl.Stop()
	}
	if err != nil {
		return errorLine(err.Error())
	}
	if start {
		return okLine("REPLICATION_STARTED")
	}
	return okLine("REPLICATION_STOPPED")
}

func kindLabel(kind CommandKind) string {
	switch kind {
	case CmdSearch:
		return "search"
	case CmdCount:
		return "count"
	case CmdGet:
		return "get"
	case CmdInfo:
		return "info"
	case CmdConfig, CmdConfigHelp:
		return "config"
	case CmdSave:
		return "save"
	case CmdLoad:
		return "load"
	case CmdReplicationStatus, CmdReplicationStop, CmdReplicationStart:
		return "replication"
	default:
		return "unknown"
	}
}
