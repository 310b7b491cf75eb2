package logging

import (
	"log/slog"
)

// WithTx creates a logger with transaction context.
// Use this to automatically include transaction ID in all logs.
//
// Example:
//
//	log := logging.WithTx(tx.ID())
//	log.Info("starting commit")
func WithTx(txID int64) *slog.Logger {
	return GetLogger().With("tx_id", txID)
}

// WithTable creates a logger with table context.
// Use this for group and table operations.
//
// Example:
//
//	log := logging.WithTable("employees")
//	log.Info("table operation", "action", "create")
func WithTable(tableName string) *slog.Logger {
	return GetLogger().With("table", tableName)
}

// WithTableTx creates a logger with both transaction and table context.
//
// Example:
//
//	log := logging.WithTableTx(tx.ID(), "orders")
//	log.Info("inserting objects", "count", 10)
func WithTableTx(txID int64, tableName string) *slog.Logger {
	return GetLogger().With("tx_id", txID, "table", tableName)
}

// WithIndex creates a logger with index context.
//
// Example:
//
//	log := logging.WithIndex("idx_user_email")
//	log.Debug("radix lookup", "key", email)
func WithIndex(indexName string) *slog.Logger {
	return GetLogger().With("index", indexName)
}

// WithRef creates a logger with node-ref context.
// Useful for allocator and node-forest operations.
//
// Example:
//
//	log := logging.WithRef(ref)
//	log.Debug("node freed", "size", size)
func WithRef(ref uint64) *slog.Logger {
	return GetLogger().With("ref", ref)
}

// WithVersion creates a logger with snapshot-version context.
//
// Example:
//
//	log := logging.WithVersion(version)
//	log.Info("commit published")
func WithVersion(version uint64) *slog.Logger {
	return GetLogger().With("version", version)
}

// WithComponent creates a logger with component/subsystem context.
//
// Example:
//
//	log := logging.WithComponent("radix")
//	log.Info("component initialized")
func WithComponent(component string) *slog.Logger {
	return GetLogger().With("component", component)
}

// WithError creates a logger with error context.
// Use this when logging errors to include the error in structured format.
//
// Example:
//
//	log := logging.WithError(err)
//	log.Error("commit failed", "operation", "GroupWriter.Commit")
func WithError(err error) *slog.Logger {
	return GetLogger().With("error", err.Error())
}
