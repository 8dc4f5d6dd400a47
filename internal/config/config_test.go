package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.Equal(t, "sqlkv.db", cfg.DefaultDBPath)
	require.Equal(t, 500, cfg.ImportBatchSize)
}

func TestParseOverlaysDefaults(t *testing.T) {
	const doc = `
default_db_path = "/var/lib/sqlkv/main.db"
output_format = "json"
`
	cfg, err := Parse(strings.NewReader(doc), Default())
	require.NoError(t, err)
	require.Equal(t, "/var/lib/sqlkv/main.db", cfg.DefaultDBPath)
	require.Equal(t, "json", cfg.OutputFormat)
	require.Equal(t, 500, cfg.ImportBatchSize)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path/sqlkv.toml")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}
