package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
)

// Status is the cell value of a summary table.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
	// StatusProfiledFailure is a failure observed with profiling enabled,
	// where event timestamps may have serialised the queues.
	StatusProfiledFailure Status = "SUCCESS*"
)

// StatusOf classifies a record.
func StatusOf(r *Record) Status {
	if r.Outcome == "SUCCESS" {
		return StatusSuccess
	}
	if r.Profiling {
		return StatusProfiledFailure
	}
	return StatusFailure
}

// Table is the summary of one environment: command lists by mode.
type Table struct {
	Env   string
	Modes []string
	Rows  []Row
}

type Row struct {
	Commands string
	Status   map[string]Status
}

// Summarize groups records by environment, then by command list and mode.
// A later record for the same cell replaces an earlier one.
func Summarize(records []*Record) []Table {
	type envData struct {
		modes map[string]struct{}
		rows  map[string]map[string]Status
		order []string
	}
	byEnv := make(map[string]*envData)
	var envOrder []string
	for _, r := range records {
		e, ok := byEnv[r.Env]
		if !ok {
			e = &envData{modes: map[string]struct{}{}, rows: map[string]map[string]Status{}}
			byEnv[r.Env] = e
			envOrder = append(envOrder, r.Env)
		}
		label := strings.Join(r.Commands, " ")
		if r.Args != "" {
			label += " " + r.Args
		}
		row, ok := e.rows[label]
		if !ok {
			row = make(map[string]Status)
			e.rows[label] = row
			e.order = append(e.order, label)
		}
		row[r.Mode] = StatusOf(r)
		e.modes[r.Mode] = struct{}{}
	}

	tables := make([]Table, 0, len(envOrder))
	for _, env := range envOrder {
		e := byEnv[env]
		t := Table{Env: env}
		for m := range e.modes {
			t.Modes = append(t.Modes, m)
		}
		sort.Strings(t.Modes)
		for _, label := range e.order {
			t.Rows = append(t.Rows, Row{Commands: label, Status: e.rows[label]})
		}
		tables = append(tables, t)
	}
	return tables
}

// WriteTables prints each table under its environment name.
func WriteTables(w io.Writer, tables []Table) error {
	for _, t := range tables {
		env := t.Env
		if env == "" {
			env = "(default environment)"
		}
		fmt.Fprintln(w, env)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "commands\t%s\n", strings.Join(t.Modes, "\t"))
		rule := make([]string, len(t.Modes)+1)
		rule[0] = strings.Repeat("-", len("commands"))
		for i, m := range t.Modes {
			rule[i+1] = strings.Repeat("-", len(m))
		}
		fmt.Fprintln(tw, strings.Join(rule, "\t"))
		for _, row := range t.Rows {
			cells := []string{row.Commands}
			for _, m := range t.Modes {
				cells = append(cells, string(row.Status[m]))
			}
			fmt.Fprintln(tw, strings.Join(cells, "\t"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}
	return nil
}

// LoadRecords reads every path; directories contribute their *.yaml and
// *.yml files in name order.
func LoadRecords(paths []string) ([]*Record, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		for _, pattern := range []string{"*.yaml", "*.yml"} {
			matches, err := filepath.Glob(filepath.Join(p, pattern))
			if err != nil {
				return nil, err
			}
			sort.Strings(matches)
			files = append(files, matches...)
		}
	}
	records := make([]*Record, 0, len(files))
	for _, f := range files {
		r, err := ReadRecord(f)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}
