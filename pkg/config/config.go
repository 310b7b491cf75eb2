// Package config loads the layered DBConfig tdbctl and embedders use to open
// a database: defaults, then an optional YAML file, then command-line flags,
// mirroring the teacher's Config-struct-plus-flags layering pattern.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/module/tdb/pkg/dberr"
	"github.com/module/tdb/pkg/logging"
	"github.com/module/tdb/pkg/primitives"
)

// DurabilityMode is a configured fsync policy name for WriteTxn commits. It
// is carried in the configuration only: the commit path does not read it,
// and every commit fsyncs through alloc.Allocator.FlushHeader whichever
// mode is set.
type DurabilityMode string

const (
	// DurabilityFull names fsync on every commit.
	DurabilityFull DurabilityMode = "full"
	// DurabilityRelaxed names deferred fsync; the commit path fsyncs regardless.
	DurabilityRelaxed DurabilityMode = "relaxed"
)

// DBConfig is the resolved configuration for opening a database.
type DBConfig struct {
	Path          string         `yaml:"path"`
	InMemory      bool           `yaml:"in_memory"`
	EncryptionKey string         `yaml:"encryption_key"`
	PageSizeHint  int            `yaml:"page_size_hint"`
	Durability    DurabilityMode `yaml:"durability"`
	Logging       logging.Config `yaml:"logging"`
}

// Default returns a DBConfig suitable for a fresh in-memory database with
// console logging at info level.
func Default() DBConfig {
	return DBConfig{
		InMemory:     true,
		PageSizeHint: 4096,
		Durability:   DurabilityFull,
		Logging: logging.Config{
			Level:  logging.LevelInfo,
			Format: "text",
		},
	}
}

// Load reads a YAML config file into a copy of Default(), returning the
// defaults unchanged if path is empty. A file that doesn't parse is a
// DescriptorMismatch, matching the Kind other malformed-persisted-state
// errors use elsewhere in the engine.
func Load(path string) (DBConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, dberr.Wrap(err, dberr.FileAccess, "config.Load")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, dberr.Wrap(err, dberr.DescriptorMismatch, "config.Load: parse")
	}
	return cfg, nil
}

// Filepath returns cfg.Path as a primitives.Filepath for use with txn.Open.
func (c DBConfig) Filepath() primitives.Filepath {
	return primitives.Filepath(c.Path)
}

// Key returns the encryption key as raw bytes, or nil if none is configured.
func (c DBConfig) Key() []byte {
	if c.EncryptionKey == "" {
		return nil
	}
	return []byte(c.EncryptionKey)
}
