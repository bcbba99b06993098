package config

import (
	"fmt"
	"strings"
)

// Dump renders cfg as the indented key/value text the CONFIG
// command returns (sensitive values are masked downstream by the server
// package's maskSensitive, which works on this same "key: value" shape).
func Dump(cfg Config) string {
	var b strings.Builder
	writeSection(&b, "mysql", 0)
	writeKV(&b, "host", cfg.MySQL.Host, 1)
	writeKV(&b, "port", cfg.MySQL.Port, 1)
	writeKV(&b, "user", cfg.MySQL.User, 1)
	writeKV(&b, "password", cfg.MySQL.Password, 1)
	writeKV(&b, "database", cfg.MySQL.Database, 1)

	writeSection(&b, "tables", 0)
	for _, t := range cfg.Tables {
		fmt.Fprintf(&b, "  - %s\n", t.Name)
		writeKV(&b, "primary_key", t.PrimaryKey, 2)
		writeKV(&b, "ngram_size", t.NgramSize, 2)
		writeKV(&b, "kanji_ngram_size", t.KanjiNgramSize, 2)
	}

	writeSection(&b, "build", 0)
	writeKV(&b, "optimize_interval", cfg.Build.OptimizeInterval, 1)
	writeKV(&b, "bitmap_threshold", cfg.Build.BitmapThreshold, 1)
	writeKV(&b, "bitmap_density", cfg.Build.BitmapDensity, 1)
	writeKV(&b, "delta_varint_min", cfg.Build.DeltaVarintMin, 1)

	writeSection(&b, "replication", 0)
	writeKV(&b, "enabled", cfg.Replication.Enabled, 1)
	writeKV(&b, "invalidation_batch", cfg.Replication.InvalidationBatch, 1)
	writeKV(&b, "invalidation_max_delay", cfg.Replication.InvalidationMaxDelay, 1)
	writeKV(&b, "queue_capacity", cfg.Replication.QueueCapacity, 1)

	writeSection(&b, "memory", 0)
	writeKV(&b, "soft_limit_bytes", cfg.Memory.SoftLimitBytes, 1)

	writeSection(&b, "dump", 0)
	writeKV(&b, "directory", cfg.Dump.Directory, 1)

	writeSection(&b, "api", 0)
	writeKV(&b, "listen_addr", cfg.API.ListenAddr, 1)
	writeKV(&b, "metrics_addr", cfg.API.MetricsAddr, 1)
	writeKV(&b, "worker_count", cfg.API.WorkerCount, 1)
	writeKV(&b, "queue_capacity", cfg.API.QueueCapacity, 1)
	writeKV(&b, "receive_timeout", cfg.API.ReceiveTimeout, 1)
	writeKV(&b, "acl_allow", strings.Join(cfg.API.ACLAllow, ","), 1)

	writeSection(&b, "logging", 0)
	writeKV(&b, "level", cfg.Logging.Level, 1)
	writeKV(&b, "format", cfg.Logging.Format, 1)

	writeSection(&b, "cache", 0)
	writeKV(&b, "max_bytes", cfg.Cache.MaxBytes, 1)
	writeKV(&b, "min_query_cost_ms", cfg.Cache.MinQueryCostMs, 1)

	return b.String()
}

func writeSection(b *strings.Builder, name string, indent int) {
	fmt.Fprintf(b, "%s%s:\n", strings.Repeat("  ", indent), name)
}

func writeKV(b *strings.Builder, key string, value any, indent int) {
	fmt.Fprintf(b, "%s%s: %v\n", strings.Repeat("  ", indent), key, value)
}
