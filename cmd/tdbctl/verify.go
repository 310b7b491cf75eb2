package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/module/tdb/pkg/cluster"
	"github.com/module/tdb/pkg/config"
	"github.com/module/tdb/pkg/primitives"
	"github.com/module/tdb/pkg/report"
)

type checkResult struct {
	table string
	ok    bool
	detail string
}

func newVerifyCmd(cfg *config.DBConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "walk every table and column, reporting any read failure",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, cfg)
		},
	}
}

func runVerify(cmd *cobra.Command, cfg *config.DBConfig) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	r, err := db.BeginRead()
	if err != nil {
		return err
	}
	defer r.Close()

	var results []checkResult
	for _, entry := range r.Group().Tables() {
		tbl, err := r.Table(entry.Name)
		if err != nil {
			results = append(results, checkResult{table: entry.Name, ok: false, detail: err.Error()})
			continue
		}
		results = append(results, verifyTable(entry.Name, tbl))
	}

	cmd.Println(report.Title(fmt.Sprintf("verify: %d table(s) at version %d", len(results), r.Version())))
	rows := make([][]string, 0, len(results))
	allOK := true
	for _, res := range results {
		status := report.OK("PASS")
		if !res.ok {
			status = report.Fail("FAIL")
			allOK = false
		}
		rows = append(rows, []string{res.table, status, res.detail})
	}
	cmd.Println(report.Table([]string{"table", "status", "detail"}, rows))
	if !allOK {
		return fmt.Errorf("verify found %d failing table(s)", countFailures(results))
	}
	return nil
}

func verifyTable(name string, tbl *cluster.Table) checkResult {
	var detail string
	err := tbl.Iterate(func(key primitives.ObjKey) bool {
		for _, col := range tbl.Schema {
			if _, err := tbl.GetValue(key, col.Key); err != nil {
				detail = fmt.Sprintf("row %s, column %s: %v", key, col.Name, err)
				return false
			}
		}
		return true
	})
	if err != nil && detail == "" {
		detail = err.Error()
	}
	return checkResult{table: name, ok: err == nil && detail == "", detail: detail}
}

func countFailures(results []checkResult) int {
	n := 0
	for _, r := range results {
		if !r.ok {
			n++
		}
	}
	return n
}
