package config

import (
	"github.com/spf13/pflag"
)

// AddFlags registers cfg's overridable fields on fs, following the
// AddFlags(fs *pflag.FlagSet) convention the wider pack's CLI tools use to
// let a struct own its own flag set instead of a command hand-wiring each
// field.
func (c *DBConfig) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Path, "db", c.Path, "path to the database file")
	fs.BoolVar(&c.InMemory, "in-memory", c.InMemory, "use an in-memory database instead of a file")
	fs.StringVar(&c.EncryptionKey, "encryption-key", c.EncryptionKey, "32-byte page encryption key")
	fs.IntVar(&c.PageSizeHint, "page-size-hint", c.PageSizeHint, "allocator page size hint in bytes")
	fs.StringVar((*string)(&c.Durability), "durability", string(c.Durability), "durability mode: full|relaxed")
	fs.StringVar((*string)(&c.Logging.Level), "log-level", string(c.Logging.Level), "log level: DEBUG|INFO|WARN|ERROR")
	fs.StringVar(&c.Logging.Format, "log-format", c.Logging.Format, "log format: text|json")
}
