// Package config loads sqlkv's small CLI configuration file: a
// BurntSushi/toml decode into a plain struct, with sane zero-value
// defaults when no file is given.
package config

import (
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is sqlkv's CLI configuration: a default database path, the row
// batch size the importer uses per INSERT statement, and a default output
// format for query results. cmd/sqlkv reads only ImportBatchSize, from
// Default(); its subcommands take the database path from a required --db
// flag.
type Config struct {
	DefaultDBPath   string `toml:"default_db_path"`
	ImportBatchSize int    `toml:"import_batch_size"`
	OutputFormat    string `toml:"output_format"`
}

// Default returns the configuration used when no config file is present.
func Default() Config {
	return Config{
		DefaultDBPath:   "sqlkv.db",
		ImportBatchSize: 500,
		OutputFormat:    "table",
	}
}

// Load reads path as a TOML config file and overlays it onto Default().
// A missing file is not an error: the defaults are returned as-is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()
	return Parse(f, cfg)
}

// Parse decodes TOML from r, overlaying it onto base.
func Parse(r io.Reader, base Config) (Config, error) {
	cfg := base
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return base, fmt.Errorf("config: decode: %w", err)
	}
	if cfg.ImportBatchSize <= 0 {
		cfg.ImportBatchSize = base.ImportBatchSize
	}
	return cfg, nil
}
