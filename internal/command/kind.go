// Package command models the commands a benchmark run executes: a synthetic
// compute kernel or a copy between two memory spaces, the parameters that
// size them, and the buffers they own.
package command

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fxnlabs/concbench/internal/bencherr"
	"github.com/fxnlabs/concbench/internal/device"
)

// Op is the operation class of a command.
type Op int

const (
	Compute Op = iota
	Transfer
)

func (o Op) String() string {
	switch o {
	case Compute:
		return "compute"
	case Transfer:
		return "transfer"
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Kind identifies a command. Src and Dst are only meaningful for transfers.
type Kind struct {
	Op  Op
	Src device.Space
	Dst device.Space
}

// ComputeKind is the kind of the synthetic kernel.
var ComputeKind = Kind{Op: Compute}

// TransferKind is a copy from src to dst.
func TransferKind(src, dst device.Space) Kind {
	return Kind{Op: Transfer, Src: src, Dst: dst}
}

// ParseKind accepts "C" or two memory letters optionally separated by "2",
// such as "M2D", "MD" or "D2H".
func ParseKind(token string) (Kind, error) {
	sanitized := strings.ReplaceAll(token, "2", "")
	if sanitized == "C" {
		return ComputeKind, nil
	}
	if len(sanitized) == 2 {
		src, okSrc := device.ParseSpace(sanitized[0])
		dst, okDst := device.ParseSpace(sanitized[1])
		if okSrc && okDst && strings.Count(token, "2") <= 1 {
			return TransferKind(src, dst), nil
		}
	}
	return Kind{}, bencherr.Configf("unsupported command %q (want C or a pair of M, D, H, S such as M2D)", token)
}

// String is the canonical token: "C" or the two memory letters.
func (k Kind) String() string {
	switch k.Op {
	case Compute:
		return "C"
	case Transfer:
		return string([]byte{k.Src.Letter(), k.Dst.Letter()})
	}
	panic(fmt.Sprintf("command: invalid op %d", int(k.Op)))
}

// Long is the human readable form used on the command line, e.g. "M2D".
func (k Kind) Long() string {
	if k.Op == Compute {
		return "C"
	}
	return string([]byte{k.Src.Letter(), '2', k.Dst.Letter()})
}

// TunedParam is the free parameter calibration adjusts for this kind.
func (k Kind) TunedParam() Param {
	switch k.Op {
	case Compute:
		return Param{Field: Tripcount, Kind: k}
	case Transfer:
		return Param{Field: GlobalSize, Kind: k}
	}
	panic(fmt.Sprintf("command: invalid op %d", int(k.Op)))
}

// Params lists every parameter a command of this kind needs.
func (k Kind) Params() []Param {
	switch k.Op {
	case Compute:
		return []Param{{Field: Tripcount, Kind: k}, {Field: GlobalSize, Kind: k}}
	case Transfer:
		return []Param{{Field: GlobalSize, Kind: k}}
	}
	panic(fmt.Sprintf("command: invalid op %d", int(k.Op)))
}

// ParseKinds parses every token, failing on the first bad one.
func ParseKinds(tokens []string) ([]Kind, error) {
	kinds := make([]Kind, 0, len(tokens))
	for _, t := range tokens {
		k, err := ParseKind(t)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// Distinct collapses duplicates and sorts by canonical token.
func Distinct(kinds []Kind) []Kind {
	seen := make(map[Kind]struct{}, len(kinds))
	out := make([]Kind, 0, len(kinds))
	for _, k := range kinds {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
