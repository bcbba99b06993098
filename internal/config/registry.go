package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-memdb"
)

// Leaf describes one addressable configuration value for the CONFIG HELP
// wire command.
type Leaf struct {
	Path        string // dotted, e.g. "cache.max_bytes"
	Description string
	Type        string
	Default     string
	Min         string
	Max         string
	Allowed     []string
	// Sensitive drives the `***` masking rule: any leaf whose
	// path contains password/token/secret/private_key, case-insensitive.
	Sensitive bool
}

const leafTable = "leaf"

func newSchema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			leafTable: {
				Name: leafTable,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Path"},
					},
				},
			},
		},
	}
}

// Registry holds every configuration leaf's metadata, backed by an
// in-memory go-memdb database so CONFIG HELP lookups and future additions
// (new leaves registered by optional adapters) stay a simple indexed query
// rather than a hand-rolled map with manual locking.
type Registry struct {
	db *memdb.MemDB
}

// NewRegistry builds a Registry pre-populated with every leaf Default()
// describes.
func NewRegistry() (*Registry, error) {
	db, err := memdb.NewMemDB(newSchema())
	if err != nil {
		return nil, fmt.Errorf("create config registry: %w", err)
	}
	r := &Registry{db: db}
	if err := r.register(defaultLeaves()...); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) register(leaves ...Leaf) error {
	txn := r.db.Txn(true)
	defer txn.Abort()
	for _, l := range leaves {
		l.Sensitive = isSensitivePath(l.Path)
		if err := txn.Insert(leafTable, l); err != nil {
			return fmt.Errorf("register config leaf %s: %w", l.Path, err)
		}
	}
	txn.Commit()
	return nil
}

// Help returns the leaf registered at path, for CONFIG HELP <path>.
func (r *Registry) Help(path string) (Leaf, bool) {
	txn := r.db.Txn(false)
	defer txn.Abort()
	raw, err := txn.First(leafTable, "id", path)
	if err != nil || raw == nil {
		return Leaf{}, false
	}
	return raw.(Leaf), true
}

// All returns every registered leaf, sorted by path.
func (r *Registry) All() []Leaf {
	txn := r.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get(leafTable, "id")
	if err != nil {
		return nil
	}
	var leaves []Leaf
	for raw := it.Next(); raw != nil; raw = it.Next() {
		leaves = append(leaves, raw.(Leaf))
	}
	sort.Slice(leaves, func(i, j int) bool { return leaves[i].Path < leaves[j].Path })
	return leaves
}

func isSensitivePath(path string) bool {
	lower := strings.ToLower(path)
	for _, needle := range []string{"password", "token", "secret", "private_key"} {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}

// FormatHelp renders one leaf's CONFIG HELP response body.
func FormatHelp(l Leaf) string {
	var b strings.Builder
	fmt.Fprintf(&b, "path: %s\n", l.Path)
	fmt.Fprintf(&b, "description: %s\n", l.Description)
	fmt.Fprintf(&b, "type: %s\n", l.Type)
	fmt.Fprintf(&b, "default: %s\n", l.Default)
	if l.Min != "" {
		fmt.Fprintf(&b, "min: %s\n", l.Min)
	}
	if l.Max != "" {
		fmt.Fprintf(&b, "max: %s\n", l.Max)
	}
	if len(l.Allowed) > 0 {
		fmt.Fprintf(&b, "allowed: %s\n", strings.Join(l.Allowed, ", "))
	}
	return b.String()
}

func defaultLeaves() []Leaf {
	return []Leaf{
		{Path: "mysql.host", Description: "source database host", Type: "string", Default: "localhost"},
		{Path: "mysql.port", Description: "source database port", Type: "int", Default: "3306"},
		{Path: "mysql.user", Description: "source database user", Type: "string"},
		{Path: "mysql.password", Description: "source database password", Type: "string"},
		{Path: "mysql.database", Description: "source database name", Type: "string"},
		{Path: "tables", Description: "mirrored source tables and their filter columns", Type: "list"},
		{Path: "build.optimize_interval", Description: "interval between background posting-list optimization passes", Type: "duration", Default: "5m"},
		{Path: "build.bitmap_threshold", Description: "posting-list length at or above which optimize converts to a bitmap", Type: "int", Default: "4096", Min: "1"},
		{Path: "build.bitmap_density", Description: "posting-list density at or above which optimize converts to a bitmap", Type: "float", Default: "0.05", Min: "0", Max: "1"},
		{Path: "build.delta_varint_min", Description: "posting-list length at or above which optimize converts to delta-varint", Type: "int", Default: "128", Min: "1"},
		{Path: "replication.enabled", Description: "whether the replication applier starts automatically", Type: "bool", Default: "false"},
		{Path: "replication.invalidation_batch", Description: "max invalidation descriptors drained per batch", Type: "int", Default: "256", Min: "1"},
		{Path: "replication.invalidation_max_delay", Description: "max time an invalidation descriptor waits before its batch is drained", Type: "duration", Default: "200ms"},
		{Path: "replication.queue_capacity", Description: "bounded replication event queue capacity", Type: "int", Default: "4096", Min: "0"},
		{Path: "memory.soft_limit_bytes", Description: "soft memory budget surfaced in INFO/metrics, not enforced", Type: "uint64"},
		{Path: "dump.directory", Description: "directory SAVE writes to and LOAD reads the latest dump from", Type: "string", Default: "./dumps"},
		{Path: "api.listen_addr", Description: "TCP line protocol listen address", Type: "string", Default: ":6400"},
		{Path: "api.metrics_addr", Description: "Prometheus text exposition listen address", Type: "string", Default: ":9400"},
		{Path: "api.worker_count", Description: "bounded worker pool size", Type: "int", Default: "4", Min: "1"},
		{Path: "api.queue_capacity", Description: "worker pool queue capacity, 0 = unbounded", Type: "int", Default: "0", Min: "0"},
		{Path: "api.receive_timeout", Description: "per-connection TCP receive timeout", Type: "duration", Default: "30s"},
		{Path: "api.acl_allow", Description: "CIDR allow-list for inbound connections, comma-separated", Type: "list"},
		{Path: "logging.level", Description: "slog level", Type: "string", Default: "info", Allowed: []string{"debug", "info", "warn", "error"}},
		{Path: "logging.format", Description: "slog handler format", Type: "string", Default: "text", Allowed: []string{"text", "json"}},
		{Path: "cache.max_bytes", Description: "result cache byte budget before LRU eviction", Type: "uint64", Default: "268435456", Min: "0"},
		{Path: "cache.min_query_cost_ms", Description: "queries cheaper than this are never cached", Type: "float", Default: "1.0", Min: "0"},
	}
}
