package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWhenNoFileOrEnv(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ":6400", cfg.API.ListenAddr)
	require.Equal(t, 4, cfg.API.WorkerCount)
	require.Equal(t, 1.0, cfg.Cache.MinQueryCostMs)
}

func TestLoadOverlaysYAMLFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mygramdb.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  listen_addr: \":7000\"\n  worker_count: 8\n"), 0o644))

	t.Setenv("MYGRAMDB_API_WORKER_COUNT", "16")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.API.ListenAddr, "YAML overlay applies over the default")
	require.Equal(t, 16, cfg.API.WorkerCount, "env var wins over both default and YAML")
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default().API.ListenAddr, cfg.API.ListenAddr)
}

func TestResolveTableBuildsRequiredFilters(t *testing.T) {
	spec := TableSpec{
		Name:       "posts",
		PrimaryKey: "id",
		FilterColumns: []FilterColumnSpec{
			{Name: "status", Kind: "int64"},
		},
		RequiredFilters: []RequiredFilterSpec{
			{Column: "status", Op: "=", Value: "1"},
		},
	}
	tc, err := ResolveTable(spec)
	require.NoError(t, err)
	require.Equal(t, 2, tc.NgramSize)
	require.Equal(t, 1, tc.KanjiNgramSize)
	require.Len(t, tc.RequiredFilters, 1)
}

func TestResolveTableRejectsRequiredFilterOnUndeclaredColumn(t *testing.T) {
	spec := TableSpec{
		Name: "posts",
		RequiredFilters: []RequiredFilterSpec{
			{Column: "status", Op: "=", Value: "1"},
		},
	}
	_, err := ResolveTable(spec)
	require.Error(t, err)
}

func TestRegistryHelpLooksUpLeafByPath(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	leaf, ok := r.Help("cache.max_bytes")
	require.True(t, ok)
	require.Equal(t, "uint64", leaf.Type)
	require.False(t, leaf.Sensitive)

	_, ok = r.Help("no.such.path")
	require.False(t, ok)
}

func TestRegistryFlagsSensitivePaths(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	leaf, ok := r.Help("mysql.password")
	require.True(t, ok)
	require.True(t, leaf.Sensitive)
}

func TestRegistryAllIsSortedByPath(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	leaves := r.All()
	require.NotEmpty(t, leaves)
	for i := 1; i < len(leaves); i++ {
		require.LessOrEqual(t, leaves[i-1].Path, leaves[i].Path)
	}
}

func TestDumpRendersNestedSections(t *testing.T) {
	cfg := Default()
	cfg.MySQL.Host = "db.internal"
	out := Dump(cfg)
	require.Contains(t, out, "mysql:")
	require.Contains(t, out, "host: db.internal")
	require.Contains(t, out, "cache:")
}
