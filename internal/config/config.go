package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/libraz/mygramdb-go/internal/core/domain"
	"gopkg.in/yaml.v3"
)

// Load builds a Config starting from Default(), overlaid by path's YAML
// contents when path is non-empty and the file exists, overlaid in turn by
// environment variables — standard twelve-factor precedence, with a YAML
// layer inserted beneath the environment overlay.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// no file is not an error: env vars and defaults stand alone.
		default:
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	applyEnvOverlay(&cfg)
	return cfg, nil
}

func applyEnvOverlay(cfg *Config) {
	cfg.MySQL.Host = getEnv("MYGRAMDB_MYSQL_HOST", cfg.MySQL.Host)
	cfg.MySQL.Port = getEnvInt("MYGRAMDB_MYSQL_PORT", cfg.MySQL.Port)
	cfg.MySQL.User = getEnv("MYGRAMDB_MYSQL_USER", cfg.MySQL.User)
	cfg.MySQL.Password = getEnv("MYGRAMDB_MYSQL_PASSWORD", cfg.MySQL.Password)
	cfg.MySQL.Database = getEnv("MYGRAMDB_MYSQL_DATABASE", cfg.MySQL.Database)

	cfg.Replication.Enabled = getEnvBool("MYGRAMDB_REPLICATION_ENABLED", cfg.Replication.Enabled)
	cfg.Replication.InvalidationBatch = getEnvInt("MYGRAMDB_REPLICATION_INVALIDATION_BATCH", cfg.Replication.InvalidationBatch)
	cfg.Replication.InvalidationMaxDelay = getEnvDuration("MYGRAMDB_REPLICATION_INVALIDATION_MAX_DELAY", cfg.Replication.InvalidationMaxDelay)
	cfg.Replication.QueueCapacity = getEnvInt("MYGRAMDB_REPLICATION_QUEUE_CAPACITY", cfg.Replication.QueueCapacity)

	cfg.Dump.Directory = getEnv("MYGRAMDB_DUMP_DIRECTORY", cfg.Dump.Directory)

	cfg.API.ListenAddr = getEnv("MYGRAMDB_API_LISTEN_ADDR", cfg.API.ListenAddr)
	cfg.API.MetricsAddr = getEnv("MYGRAMDB_API_METRICS_ADDR", cfg.API.MetricsAddr)
	cfg.API.WorkerCount = getEnvInt("MYGRAMDB_API_WORKER_COUNT", cfg.API.WorkerCount)
	cfg.API.QueueCapacity = getEnvInt("MYGRAMDB_API_QUEUE_CAPACITY", cfg.API.QueueCapacity)
	cfg.API.ReceiveTimeout = getEnvDuration("MYGRAMDB_API_RECEIVE_TIMEOUT", cfg.API.ReceiveTimeout)
	if allow := getEnv("MYGRAMDB_API_ACL_ALLOW", ""); allow != "" {
		cfg.API.ACLAllow = strings.Split(allow, ",")
	}

	cfg.Logging.Level = getEnv("MYGRAMDB_LOGGING_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("MYGRAMDB_LOGGING_FORMAT", cfg.Logging.Format)

	cfg.Cache.MaxBytes = getEnvUint64("MYGRAMDB_CACHE_MAX_BYTES", cfg.Cache.MaxBytes)
	cfg.Cache.MinQueryCostMs = getEnvFloat("MYGRAMDB_CACHE_MIN_QUERY_COST_MS", cfg.Cache.MinQueryCostMs)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.Atoi(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.ParseUint(value, 10, 64); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.ParseFloat(value, 64); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if result, err := time.ParseDuration(value); err == nil {
			return result
		}
	}
	return defaultValue
}

// ResolveTable converts a TableSpec read from YAML into the domain.TableConfig
// the table context and snapshot loader operate on.
func ResolveTable(spec TableSpec) (domain.TableConfig, error) {
	cols := make([]domain.FilterColumn, 0, len(spec.FilterColumns))
	kinds := make(map[string]domain.FilterKind, len(spec.FilterColumns))
	for _, c := range spec.FilterColumns {
		kind, err := parseFilterKind(c.Kind)
		if err != nil {
			return domain.TableConfig{}, fmt.Errorf("table %s filter column %s: %w", spec.Name, c.Name, err)
		}
		cols = append(cols, domain.FilterColumn{Name: c.Name, Kind: kind})
		kinds[c.Name] = kind
	}

	required := make(domain.RequiredFilters, 0, len(spec.RequiredFilters))
	for _, rf := range spec.RequiredFilters {
		kind, ok := kinds[rf.Column]
		if !ok {
			return domain.TableConfig{}, fmt.Errorf("table %s required_filters column %s is not a declared filter column", spec.Name, rf.Column)
		}
		op, err := parseFilterOp(rf.Op)
		if err != nil {
			return domain.TableConfig{}, fmt.Errorf("table %s required_filters column %s: %w", spec.Name, rf.Column, err)
		}
		value, err := ParseFilterValue(kind, rf.Value)
		if err != nil {
			return domain.TableConfig{}, fmt.Errorf("table %s required_filters column %s: %w", spec.Name, rf.Column, err)
		}
		required = append(required, domain.FilterPredicate{Column: rf.Column, Op: op, Value: value})
	}

	ngramSize := spec.NgramSize
	if ngramSize == 0 {
		ngramSize = 2
	}
	kanjiSize := spec.KanjiNgramSize
	if kanjiSize == 0 {
		kanjiSize = 1
	}

	return domain.TableConfig{
		Name:                    spec.Name,
		NgramSize:               ngramSize,
		KanjiNgramSize:          kanjiSize,
		FilterColumns:           cols,
		RequiredFilters:         required,
		DateTimeTZOffsetSeconds: spec.DateTimeTZOffsetSeconds,
	}, nil
}

func parseFilterKind(s string) (domain.FilterKind, error) {
	switch strings.ToLower(s) {
	case "int8":
		return domain.FilterInt8, nil
	case "uint8":
		return domain.FilterUint8, nil
	case "int16":
		return domain.FilterInt16, nil
	case "uint16":
		return domain.FilterUint16, nil
	case "int32":
		return domain.FilterInt32, nil
	case "uint32":
		return domain.FilterUint32, nil
	case "int64":
		return domain.FilterInt64, nil
	case "uint64":
		return domain.FilterUint64, nil
	case "float64":
		return domain.FilterFloat64, nil
	case "bytes", "string":
		return domain.FilterBytes, nil
	case "time_of_day":
		return domain.FilterTimeOfDay, nil
	}
	return 0, fmt.Errorf("%w: unknown filter column kind %q", domain.ErrInvalidInput, s)
}

func parseFilterOp(s string) (domain.FilterOp, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "=", "EQ":
		return domain.OpEq, nil
	case "!=", "NE":
		return domain.OpNe, nil
	case "<", "LT":
		return domain.OpLt, nil
	case "<=", "LE":
		return domain.OpLe, nil
	case ">", "GT":
		return domain.OpGt, nil
	case ">=", "GE":
		return domain.OpGe, nil
	case "IN":
		return domain.OpIn, nil
	case "IS NULL":
		return domain.OpIsNull, nil
	case "IS NOT NULL":
		return domain.OpIsNotNull, nil
	}
	return 0, fmt.Errorf("%w: unknown filter operator %q", domain.ErrInvalidInput, s)
}

// ParseFilterValue parses raw into a FilterValue of the given kind, the same
// coercion required_filters applies to its YAML literals. Callers building a
// FilterValue from any other text source (e.g. the wire protocol) must run
// it through here too: FilterValue.Equal and Compare are kind-sensitive, and
// a literal left as FilterBytes never matches a non-bytes column.
func ParseFilterValue(kind domain.FilterKind, raw string) (domain.FilterValue, error) {
	switch kind {
	case domain.FilterBytes:
		return domain.NewFilterBytes([]byte(raw)), nil
	case domain.FilterFloat64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.FilterValue{}, err
		}
		return domain.NewFilterFromRaw(kind, math.Float64bits(f), nil), nil
	case domain.FilterUint8, domain.FilterUint16, domain.FilterUint32, domain.FilterUint64:
		u, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return domain.FilterValue{}, err
		}
		return domain.NewFilterFromRaw(kind, u, nil), nil
	default:
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.FilterValue{}, err
		}
		return domain.NewFilterFromRaw(kind, uint64(i), nil), nil
	}
}
