package main

import (
	"github.com/module/tdb/pkg/config"
	"github.com/module/tdb/pkg/txn"
)

func openDB(cfg *config.DBConfig) (*txn.DB, error) {
	if cfg.InMemory || cfg.Path == "" {
		return txn.OpenMemory(cfg.Key())
	}
	return txn.Open(cfg.Filepath(), cfg.Key())
}
