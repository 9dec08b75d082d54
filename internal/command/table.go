package command

import (
	"fmt"
	"sort"

	"github.com/fxnlabs/concbench/internal/bencherr"
	"go.uber.org/zap"
)

// Source records where a parameter value came from.
type Source int

const (
	// Unresolved entries have no value yet.
	Unresolved Source = iota
	// User entries were given literally and are never tuned.
	User
	// Provisional entries hold a default until calibration replaces them.
	Provisional
	// Tuned entries were computed by calibration.
	Tuned
)

func (s Source) String() string {
	switch s {
	case Unresolved:
		return "unresolved"
	case User:
		return "user"
	case Provisional:
		return "default"
	case Tuned:
		return "tuned"
	}
	return fmt.Sprintf("Source(%d)", int(s))
}

// Defaults are the provisional parameter values.
type Defaults struct {
	Tripcount          int64
	ComputeGlobalSize  int64
	TransferGlobalSize int64
	// MaxElements caps every size; zero means no cap.
	MaxElements int64
}

const (
	DefaultTripcount         = 40000
	DefaultComputeGlobalSize = 1
	// DefaultTransferBytes is the transfer size used when neither a size nor a
	// default memory size is given.
	DefaultTransferBytes = 1e9
)

// Entry is one row of the table.
type Entry struct {
	Param  Param
	Value  int64
	Source Source
}

// Table maps parameters to their values. It is not safe for concurrent use.
type Table struct {
	entries map[Param]Entry
}

func NewTable() *Table {
	return &Table{entries: make(map[Param]Entry)}
}

// Set records a user literal. Negative values mean "tune this parameter"
// and leave the entry unresolved.
func (t *Table) Set(p Param, value int64) {
	if value < 0 {
		t.entries[p] = Entry{Param: p, Source: Unresolved}
		return
	}
	t.entries[p] = Entry{Param: p, Value: value, Source: User}
}

// SetNamed parses name and records value.
func (t *Table) SetNamed(name string, value int64) error {
	p, err := ParseParam(name)
	if err != nil {
		return err
	}
	t.Set(p, value)
	return nil
}

// Get returns the entry for p; absent parameters are unresolved.
func (t *Table) Get(p Param) Entry {
	if e, ok := t.entries[p]; ok {
		return e
	}
	return Entry{Param: p, Source: Unresolved}
}

// NeedsTuning reports whether calibration may change p.
func (t *Table) NeedsTuning(p Param) bool {
	switch t.Get(p).Source {
	case Unresolved, Provisional:
		return true
	}
	return false
}

// ApplyDefaults gives every unresolved parameter of kinds a provisional value.
// User values above d.MaxElements are clamped too.
func (t *Table) ApplyDefaults(kinds []Kind, d Defaults, logger *zap.Logger) {
	for _, k := range kinds {
		for _, p := range k.Params() {
			e := t.Get(p)
			if e.Source == Unresolved {
				e = Entry{Param: p, Value: d.value(p), Source: Provisional}
			}
			if p.Field == GlobalSize && d.MaxElements > 0 && e.Value > d.MaxElements {
				logger.Warn("clamping size to the device allocation limit",
					zap.Stringer("parameter", p),
					zap.Int64("requested", e.Value),
					zap.Int64("limit", d.MaxElements))
				e.Value = d.MaxElements
			}
			t.entries[p] = e
		}
	}
}

func (d Defaults) value(p Param) int64 {
	switch {
	case p.Field == Tripcount:
		return d.Tripcount
	case p.Kind.Op == Compute:
		return d.ComputeGlobalSize
	default:
		return d.TransferGlobalSize
	}
}

// Tune stores a calibrated value.
func (t *Table) Tune(p Param, value int64) {
	t.entries[p] = Entry{Param: p, Value: value, Source: Tuned}
}

// Resolve builds one command per kind, in order. Every parameter must have a
// value by now.
func (t *Table) Resolve(kinds []Kind) ([]Command, error) {
	cmds := make([]Command, 0, len(kinds))
	for _, k := range kinds {
		c := Command{Kind: k}
		for _, p := range k.Params() {
			e, ok := t.entries[p]
			if !ok || e.Source == Unresolved {
				return nil, bencherr.Configf("parameter %s has no value", p)
			}
			switch p.Field {
			case GlobalSize:
				c.GlobalSize = e.Value
			case Tripcount:
				c.Tripcount = e.Value
			}
		}
		cmds = append(cmds, c)
	}
	return cmds, nil
}

// Used lists the parameters the given kinds use, in the order the
// "Parameters used" listing prints them: the tuned parameter of each
// distinct kind, and globalsize_C after tripcount_C.
func (t *Table) Used(kinds []Kind) []Entry {
	var out []Entry
	for _, k := range Distinct(kinds) {
		out = append(out, t.Get(k.TunedParam()))
		if k.Op == Compute {
			out = append(out, t.Get(Param{Field: GlobalSize, Kind: k}))
		}
	}
	return out
}

// Entries returns every entry sorted by name.
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Param.String() < out[j].Param.String() })
	return out
}
