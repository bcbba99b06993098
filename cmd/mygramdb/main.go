// Command mygramdb runs the n-gram full-text search engine: it loads
// configuration, bulk-loads every configured table from the source
// database, starts the TCP line server, the replication applier, and the
// Prometheus text-exposition endpoint, and shuts all of it down cleanly on
// SIGINT/SIGTERM.
//
// Bootstrap logging here uses the bare "log" package for fatal startup
// errors, before a *slog.Logger exists; every other package in this module
// logs exclusively through an injected *slog.Logger.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/libraz/mygramdb-go/internal/cache"
	"github.com/libraz/mygramdb-go/internal/config"
	"github.com/libraz/mygramdb-go/internal/core/domain"
	"github.com/libraz/mygramdb-go/internal/invalidation"
	"github.com/libraz/mygramdb-go/internal/metrics"
	"github.com/libraz/mygramdb-go/internal/replication"
	"github.com/libraz/mygramdb-go/internal/server"
	"github.com/libraz/mygramdb-go/internal/snapshot"
	"github.com/libraz/mygramdb-go/internal/tablectx"
)

func main() {
	configPath := flag.String("config", os.Getenv("MYGRAMDB_CONFIG"), "path to a YAML configuration file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	registry, err := config.NewRegistry()
	if err != nil {
		log.Fatalf("build config registry: %v", err)
	}

	tableReg := newTableRegistry()
	sources := make(map[string]snapshot.TableSource, len(cfg.Tables))
	for _, spec := range cfg.Tables {
		tc, err := config.ResolveTable(spec)
		if err != nil {
			log.Fatalf("resolve table %q: %v", spec.Name, err)
		}
		tableReg.addTable(spec.Name, tablectx.New(tc))
		sources[spec.Name] = tableSourceFromSpec(spec, tc)
	}

	lookupTable := tableReg.lookupTable
	tableNames := tableReg.tableNames

	resultCache := cache.New(int(cfg.Cache.MaxBytes), cfg.Cache.MinQueryCostMs)
	astCache, err := cache.NewASTCache(256)
	if err != nil {
		log.Fatalf("build AST cache: %v", err)
	}

	for name, tc := range tableReg.snapshot() {
		ctx := tc
		queue := invalidation.NewAsyncQueue(cfg.Replication.InvalidationBatch, cfg.Replication.InvalidationMaxDelay,
			func(d invalidation.Descriptor) {
				for _, key := range ctx.Invalidation.InvalidateAffected(d.OldText, d.NewText) {
					resultCache.Invalidate(key)
				}
			}, logger.With("table", name))
		queue.Start()
		tableReg.addQueue(name, queue)
	}

	applier := replication.New(lookupTable, func(table string, d invalidation.Descriptor) {
		if q, ok := tableReg.lookupQueue(table); ok {
			q.Enqueue(d)
		}
	}, logger.With("component", "replication"))
	applier.SetAlarmFunc(tableReg.haltTable)
	applier.SetRenameFunc(tableReg.rename)

	if cfg.MySQL.Host != "" {
		bootstrapSnapshots(cfg, tableReg.snapshot(), sources, applier, logger)
	}

	var runner *replication.Runner
	var repl server.ReplicationController
	if cfg.Replication.Enabled {
		runner = replication.NewRunner(replication.NoopEventSource{}, applier, logger.With("component", "replication"))
		if err := runner.Start(); err != nil {
			log.Fatalf("start replication runner: %v", err)
		}
		repl = runner
	}

	persister := snapshot.NewDump(lookupTable, tableNames, applier, cfg.Dump.Directory)

	configHelp := func(path string) (string, bool) {
		leaf, ok := registry.Help(path)
		if !ok {
			return "", false
		}
		return config.FormatHelp(leaf), true
	}

	dispatcher := server.NewDispatcher(
		lookupTable,
		tableNames,
		resultCache,
		astCache,
		applier,
		repl,
		persister,
		func() string { return config.Dump(cfg) },
		configHelp,
	)

	acl := server.NewACL(cfg.API.ACLAllow)
	pool := server.NewPool(cfg.API.WorkerCount, cfg.API.QueueCapacity, logger.With("component", "pool"))
	clientReg := server.NewClientRegistry()
	dispatcher.SetClients(clientReg)

	srv := server.New(server.Config{
		Addr:            cfg.API.ListenAddr,
		ACL:             acl,
		Pool:            pool,
		Dispatcher:      dispatcher,
		ConnRecvTimeout: cfg.API.ReceiveTimeout,
		Logger:          logger.With("component", "tcp"),
		Clients:         clientReg,
	})

	metricsSrc := server.NewMetricsSource(dispatcher, clientReg.Counts)
	metricsSrv := startMetricsServer(cfg.API.MetricsAddr, metricsSrc, logger)

	go func() {
		if err := srv.Serve(); err != nil {
			logger.Error("tcp server exited", "err", err)
		}
	}()

	logger.Info("mygramdb started", "listen_addr", cfg.API.ListenAddr, "metrics_addr", cfg.API.MetricsAddr, "tables", len(tableNames()))

	waitForShutdownSignal()

	logger.Info("shutting down")
	srv.Shutdown(true, 10*time.Second)
	if runner != nil {
		_ = runner.Stop()
	}
	for _, q := range tableReg.allQueues() {
		q.Stop()
	}
	if metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsSrv.Shutdown(ctx)
		cancel()
	}
	logger.Info("shutdown complete")
}

// waitForShutdownSignal blocks until SIGINT or SIGTERM arrives. The actual
// signal.Notify registration is async-signal-safe per the Go runtime's own
// guarantees; no work happens inside a handler, only a channel
// send, matching the two-atomic-flags design note's spirit translated to Go
// channels.
func waitForShutdownSignal() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
}

// tableSourceFromSpec builds the snapshot loader's view of one table from
// the same YAML spec config.ResolveTable already turned into a
// domain.TableConfig, so the two stay in lockstep (same filter columns,
// same required-filters predicate pushed down into the bulk-load query).
func tableSourceFromSpec(spec config.TableSpec, tc domain.TableConfig) snapshot.TableSource {
	columns := make([]snapshot.ColumnSpec, len(tc.FilterColumns))
	for i, fc := range tc.FilterColumns {
		columns[i] = snapshot.ColumnSpec{Name: fc.Name, Kind: fc.Kind}
	}
	return snapshot.TableSource{
		Table:           spec.Name,
		PrimaryKey:      spec.PrimaryKey,
		TextColumns:     spec.TextColumns,
		TextDelimiter:   " ",
		FilterColumns:   columns,
		RequiredFilters: tc.RequiredFilters,
	}
}

// bootstrapSnapshots bulk-loads every configured table from the source
// database before the server starts accepting
// connections, seeding the replication applier's starting position from
// the same consistent-snapshot transaction the row scan itself used.
func bootstrapSnapshots(cfg config.Config, tables map[string]*tablectx.Context, sources map[string]snapshot.TableSource, applier *replication.Applier, logger *slog.Logger) {
	ctx := context.Background()
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.MySQL.Host, cfg.MySQL.Port, cfg.MySQL.User, cfg.MySQL.Password, cfg.MySQL.Database)
	db, err := snapshot.Open(ctx, dsn)
	if err != nil {
		logger.Error("snapshot source unreachable, starting with empty tables", "err", err)
		return
	}
	defer db.Close()

	loader := snapshot.NewLoader(db, snapshot.WithLogger(logger.With("component", "snapshot")))
	for name, tableCtx := range tables {
		src, ok := sources[name]
		if !ok {
			continue
		}
		position, err := loader.Load(ctx, tableCtx, src, func(p snapshot.Progress) {
			logger.Info("snapshot progress", "table", p.Table, "rows", p.ProcessedRows, "rows_per_sec", p.RowsPerSecond)
		})
		if err != nil {
			log.Fatalf("snapshot load table %q: %v", name, err)
		}
		applier.SetPosition(position)
	}
}

// startMetricsServer serves the Prometheus text exposition on
// its own HTTP listener, independent of the TCP line protocol's listener
// and worker pool, per the "observability ... does not coordinate
// with the data-path locks". Returns nil if addr is empty.
func startMetricsServer(addr string, src metrics.Source, logger *slog.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", metrics.Handler(src, "dev"))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server exited", "err", err)
		}
	}()
	return srv
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
