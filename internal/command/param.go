package command

import (
	"fmt"
	"strings"

	"github.com/fxnlabs/concbench/internal/bencherr"
)

// Field is the quantity a parameter controls.
type Field int

const (
	// GlobalSize is the number of elements a command works on.
	GlobalSize Field = iota
	// Tripcount is the number of 64-FMA rounds per kernel work item.
	Tripcount
)

func (f Field) String() string {
	switch f {
	case GlobalSize:
		return "globalsize"
	case Tripcount:
		return "tripcount"
	}
	return fmt.Sprintf("Field(%d)", int(f))
}

// Param names one entry of the tuning table, e.g. tripcount_C or globalsize_MD.
type Param struct {
	Field Field
	Kind  Kind
}

func (p Param) String() string {
	return p.Field.String() + "_" + p.Kind.String()
}

// ParseParam parses a parameter key. Transfer kinds may use the long form,
// so globalsize_M2D and globalsize_MD name the same parameter.
func ParseParam(name string) (Param, error) {
	field, token, ok := strings.Cut(name, "_")
	if !ok {
		return Param{}, bencherr.Configf("malformed parameter %q", name)
	}
	kind, err := ParseKind(token)
	if err != nil {
		return Param{}, bencherr.Configf("parameter %q: unknown command %q", name, token)
	}
	switch field {
	case "globalsize":
		return Param{Field: GlobalSize, Kind: kind}, nil
	case "tripcount":
		if kind.Op != Compute {
			return Param{}, bencherr.Configf("parameter %q: only the compute kernel has a tripcount", name)
		}
		return Param{Field: Tripcount, Kind: kind}, nil
	}
	return Param{}, bencherr.Configf("parameter %q: unknown field %q", name, field)
}
