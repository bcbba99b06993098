// Package config loads mygramdb's nested configuration surface
// from an optional YAML file overlaid by environment variables, and exposes
// every leaf to the CONFIG/CONFIG HELP wire commands through a Registry.
package config

import "time"

// MySQLConfig names the source database connection the snapshot loader and
// replication applier read from. The client library itself is out of scope
//; this only carries the connection parameters.
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// FilterColumnSpec is one table's declared filter column, as read from YAML
// before being resolved into a domain.FilterColumn.
type FilterColumnSpec struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"` // "int8".."uint64", "float64", "bytes", "time_of_day"
}

// RequiredFilterSpec is one predicate in a table's required_filters
// conjunction, as read from YAML before being resolved into a
// domain.FilterPredicate.
type RequiredFilterSpec struct {
	Column string `yaml:"column"`
	Op     string `yaml:"op"`
	Value  string `yaml:"value"`
}

// TableSpec describes one mirrored source table.
type TableSpec struct {
	Name                    string               `yaml:"name"`
	PrimaryKey              string               `yaml:"primary_key"`
	TextColumns             []string             `yaml:"text_columns"`
	NgramSize               int                  `yaml:"ngram_size"`
	KanjiNgramSize          int                  `yaml:"kanji_ngram_size"`
	FilterColumns           []FilterColumnSpec   `yaml:"filter_columns"`
	RequiredFilters         []RequiredFilterSpec `yaml:"required_filters"`
	DateTimeTZOffsetSeconds int                  `yaml:"datetime_tz_offset_seconds"`
}

// BuildConfig controls background index optimization.
type BuildConfig struct {
	OptimizeInterval    time.Duration `yaml:"optimize_interval"`
	BitmapThreshold     int           `yaml:"bitmap_threshold"`
	BitmapDensity       float64       `yaml:"bitmap_density"`
	DeltaVarintMin      int           `yaml:"delta_varint_min"`
}

// ReplicationConfig controls the applier and its invalidation batching.
type ReplicationConfig struct {
	Enabled              bool          `yaml:"enabled"`
	InvalidationBatch    int           `yaml:"invalidation_batch"`
	InvalidationMaxDelay time.Duration `yaml:"invalidation_max_delay"`
	QueueCapacity        int           `yaml:"queue_capacity"`
}

// MemoryConfig bounds process-wide memory usage reporting and guard rails.
type MemoryConfig struct {
	SoftLimitBytes uint64 `yaml:"soft_limit_bytes"`
}

// DumpConfig controls the SAVE/LOAD persister.
type DumpConfig struct {
	Directory string `yaml:"directory"`
}

// APIConfig controls the TCP line server and the
// Prometheus text-exposition HTTP endpoint.
type APIConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	MetricsAddr    string        `yaml:"metrics_addr"`
	WorkerCount    int           `yaml:"worker_count"`
	QueueCapacity  int           `yaml:"queue_capacity"`
	ReceiveTimeout time.Duration `yaml:"receive_timeout"`
	ACLAllow       []string      `yaml:"acl_allow"`
}

// LoggingConfig controls the injected *slog.Logger's handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// CacheConfig controls the result cache.
type CacheConfig struct {
	MaxBytes       uint64  `yaml:"max_bytes"`
	MinQueryCostMs float64 `yaml:"min_query_cost_ms"`
}

// Config is the full nested configuration tree.
type Config struct {
	MySQL       MySQLConfig       `yaml:"mysql"`
	Tables      []TableSpec       `yaml:"tables"`
	Build       BuildConfig       `yaml:"build"`
	Replication ReplicationConfig `yaml:"replication"`
	Memory      MemoryConfig      `yaml:"memory"`
	Dump        DumpConfig        `yaml:"dump"`
	API         APIConfig         `yaml:"api"`
	Logging     LoggingConfig     `yaml:"logging"`
	Cache       CacheConfig       `yaml:"cache"`
}

// Default returns a Config with every leaf at its documented default
// (ngram_size 2, kanji_ngram_size 1, worker count 4, queue capacity
// unbounded, ...). The worker count default is the fixed value 4; it is
// not derived from hardware parallelism here. Only an explicit worker
// count of 0 or less is resolved to the CPU count, by the server's pool.
func Default() Config {
	return Config{
		Build: BuildConfig{
			OptimizeInterval: 5 * time.Minute,
			BitmapThreshold:  4096,
			BitmapDensity:    0.05,
			DeltaVarintMin:   128,
		},
		Replication: ReplicationConfig{
			InvalidationBatch:    256,
			InvalidationMaxDelay: 200 * time.Millisecond,
			QueueCapacity:        4096,
		},
		Dump: DumpConfig{
			Directory: "./dumps",
		},
		API: APIConfig{
			ListenAddr:     ":6400",
			MetricsAddr:    ":9400",
			WorkerCount:    4,
			QueueCapacity:  0,
			ReceiveTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Cache: CacheConfig{
			MaxBytes:       256 << 20,
			MinQueryCostMs: 1.0,
		},
	}
}
