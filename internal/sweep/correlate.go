package sweep

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// DeriveFunc computes result values from static and variable values. The
// slices follow the order of the owning rule's Static and Variable names.
type DeriveFunc func(static, variable []any) ([]any, error)

// Derivation is a named derivation function.
type Derivation struct {
	Name string
	Fn   DeriveFunc
}

// call invokes the derivation, converting a panic into an error.
func (d Derivation) call(static, variable []any) (out []any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("derivation %q panicked: %v", d.Name, r)
		}
	}()
	if d.Fn == nil {
		return nil, fmt.Errorf("derivation %q has no function", d.Name)
	}
	return d.Fn(static, variable)
}

// Rule derives the Result parameters from Static and Variable parameters.
type Rule struct {
	Static     []string
	Variable   []string
	Result     []string
	Derivation Derivation
}

func (r Rule) String() string {
	return fmt.Sprintf("%s(%v, %v) -> %v", r.Derivation.Name, r.Static, r.Variable, r.Result)
}

var (
	derivationsMu sync.RWMutex
	derivations   = map[string]Derivation{}
)

// RegisterDerivation makes d available to LookupDerivation. Registering a
// name twice replaces the earlier function.
func RegisterDerivation(d Derivation) {
	derivationsMu.Lock()
	defer derivationsMu.Unlock()
	derivations[d.Name] = d
}

// LookupDerivation returns the derivation registered under name.
func LookupDerivation(name string) (Derivation, bool) {
	derivationsMu.RLock()
	defer derivationsMu.RUnlock()
	d, ok := derivations[name]
	return d, ok
}

// DerivationNames lists the registered derivations in sorted order.
func DerivationNames() []string {
	derivationsMu.RLock()
	defer derivationsMu.RUnlock()
	names := make([]string, 0, len(derivations))
	for n := range derivations {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func init() {
	RegisterDerivation(CellCount)
	RegisterDerivation(Identity)
	RegisterDerivation(Product)
}

// CellCount estimates the number of cells seeded into a PhysiCell domain.
// Static inputs are x_min, x_max, y_min, y_max, z_min, z_max, dx, dy, dz
// (floats) and use_2D (bool); the single variable input is the spacing
// fraction between cells. The result is one int.
var CellCount = Derivation{
	Name: "cell_count",
	Fn: func(static, variable []any) ([]any, error) {
		if len(static) != 10 || len(variable) != 1 {
			return nil, fmt.Errorf("cell_count expects 10 static and 1 variable inputs, got %d and %d", len(static), len(variable))
		}
		var dims [9]float64
		for i := range dims {
			f, ok := toFloat64(static[i])
			if !ok {
				return nil, fmt.Errorf("cell_count: static input %d is %T, want a number", i, static[i])
			}
			dims[i] = f
		}
		use2D, ok := static[9].(bool)
		if !ok {
			return nil, fmt.Errorf("cell_count: use_2D is %T, want bool", static[9])
		}
		sep, ok := toFloat64(variable[0])
		if !ok {
			return nil, fmt.Errorf("cell_count: separation is %T, want a number", variable[0])
		}
		if dims[6] == 0 || dims[7] == 0 || dims[8] == 0 {
			return nil, fmt.Errorf("cell_count: voxel size must be non-zero")
		}

		nx := (dims[1] - dims[0]) / dims[6]
		ny := (dims[3] - dims[2]) / dims[7]
		nz := (dims[5] - dims[4]) / dims[8]
		dim := 3.0
		total := nx * ny * nz
		if use2D {
			dim = 2
			total = nx * ny
		}
		cells := total * math.Pow(1-sep, dim)
		return []any{int(math.RoundToEven(cells))}, nil
	},
}

// Identity returns its variable inputs unchanged.
var Identity = Derivation{
	Name: "identity",
	Fn: func(_, variable []any) ([]any, error) {
		out := make([]any, len(variable))
		copy(out, variable)
		return out, nil
	},
}

// Product multiplies every static and variable input into a single float.
var Product = Derivation{
	Name: "product",
	Fn: func(static, variable []any) ([]any, error) {
		p := 1.0
		for _, v := range append(append([]any{}, static...), variable...) {
			f, ok := toFloat64(v)
			if !ok {
				return nil, fmt.Errorf("product: input %v is %T, want a number", v, v)
			}
			p *= f
		}
		return []any{p}, nil
	},
}
