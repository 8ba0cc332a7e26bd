package sweep

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// Kind identifies a sampling strategy variant.
type Kind string

const (
	KindBoundedRandom Kind = "bounded_random"
	KindFixedGrid     Kind = "fixed_grid"
	KindExplicit      Kind = "explicit"
)

// Kinds lists the supported strategy variants.
var Kinds = []Kind{KindBoundedRandom, KindFixedGrid, KindExplicit}

// Sampling info keys.
const (
	InfoBoundLow  = "bound_low"
	InfoBoundHigh = "bound_high"
	InfoIncrement = "increment"
	InfoValues    = "values"
)

// Info is the per-parameter sampling configuration passed to AddParam.
type Info map[string]any

// Entry is one parameter registered with a strategy.
type Entry struct {
	Name  string
	Param *Parameter
	Info  Info
}

// Strategy produces combinations for the parameters registered with it.
// Generate returns one row per combination; each row holds one value per
// entry of names, which lists the strategy's parameters in registration order.
type Strategy interface {
	Name() string
	Kind() Kind
	AddParam(name string, p *Parameter, info Info) error
	Params() []Entry
	Generate() (values [][]any, names []string, err error)
}

// StrategyOptions configures NewStrategy.
type StrategyOptions struct {
	// Draws is the number of tuples a bounded-random strategy produces.
	Draws int
	// Seed makes bounded-random draws reproducible. Nil draws from an
	// unseeded source.
	Seed *uint64
	// Warn receives non-fatal registration conditions.
	Warn func(format string, args ...interface{})
}

// NewStrategy constructs the strategy variant named by kind.
func NewStrategy(kind Kind, name string, opts StrategyOptions) (Strategy, error) {
	if name == "" {
		return nil, configErrorf("strategy name must not be empty")
	}
	switch kind {
	case KindBoundedRandom:
		s, err := NewBoundedRandom(name, opts.Draws, opts.Seed)
		if err != nil {
			return nil, err
		}
		return s, nil
	case KindFixedGrid:
		return NewFixedGrid(name, opts.Warn), nil
	case KindExplicit:
		return NewExplicit(name), nil
	}
	return nil, configErrorf("unknown strategy kind %q, choose from %v", kind, Kinds)
}

// registry holds the entries common to all strategy variants.
type registry struct {
	name    string
	entries []Entry
}

func (r *registry) Name() string { return r.name }

func (r *registry) Params() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *registry) names() []string {
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Name
	}
	return out
}

// precheck validates the parts of a registration every variant shares.
func (r *registry) precheck(name string, p *Parameter, info Info, allowed, required []string) error {
	if name == "" {
		return configErrorf("strategy %q: parameter name must not be empty", r.name)
	}
	if p == nil {
		return configErrorf("strategy %q: parameter %q is nil", r.name, name)
	}
	for _, e := range r.entries {
		if e.Name == name {
			return configErrorf("strategy %q: parameter %q already registered", r.name, name)
		}
	}
	return checkInfoKeys(r.name, name, info, allowed, required)
}

func checkInfoKeys(strategy, name string, info Info, allowed, required []string) error {
	var unknown []string
	for k := range info {
		if !contains(allowed, k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return configErrorf("strategy %q: parameter %q: unrecognized info keys %v (allowed: %v)", strategy, name, unknown, allowed)
	}
	for _, k := range required {
		if _, ok := info[k]; !ok {
			return configErrorf("strategy %q: parameter %q: expected key %q in info", strategy, name, k)
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func copyInfo(info Info) Info {
	out := make(Info, len(info))
	for k, v := range info {
		out[k] = v
	}
	return out
}

// BoundedRandom draws a fixed number of tuples, each value uniform within
// its parameter's bounds. Integer bounds are inclusive.
type BoundedRandom struct {
	registry
	draws int
	rng   *rand.Rand
	// bounds holds the validated bounds of entries[i].
	bounds []bounds
}

// bounds of one parameter. Integer parameters use lo/hi, floats use
// low/high.
type bounds struct {
	low, high float64
	lo, hi    int
}

// NewBoundedRandom returns a bounded-random strategy producing draws tuples.
func NewBoundedRandom(name string, draws int, seed *uint64) (*BoundedRandom, error) {
	if draws < 1 {
		return nil, configErrorf("strategy %q: draws must be at least 1, got %d", name, draws)
	}
	var src rand.Source
	if seed != nil {
		src = rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15)
	} else {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &BoundedRandom{
		registry: registry{name: name},
		draws:    draws,
		rng:      rand.New(src),
	}, nil
}

func (s *BoundedRandom) Kind() Kind { return KindBoundedRandom }

// Draws returns the number of tuples Generate produces.
func (s *BoundedRandom) Draws() int { return s.draws }

func (s *BoundedRandom) AddParam(name string, p *Parameter, info Info) error {
	keys := []string{InfoBoundLow, InfoBoundHigh}
	if err := s.precheck(name, p, info, keys, keys); err != nil {
		return err
	}
	if !p.Type().Numeric() {
		return configErrorf("strategy %q: parameter %q: %v parameters cannot be sampled from bounds, use int or float", s.name, name, p.Type())
	}
	var b bounds
	var err error
	if p.Type() == TypeInt {
		b.lo, b.hi, err = intBounds(info)
		if err == nil && b.lo >= b.hi {
			err = errInvertedBounds
		}
	} else {
		b.low, b.high, err = numericBounds(p.Type(), info)
		if err == nil && b.low >= b.high {
			err = errInvertedBounds
		}
	}
	if err != nil {
		return configErrorf("strategy %q: parameter %q: %v", s.name, name, err)
	}
	s.entries = append(s.entries, Entry{Name: name, Param: p, Info: copyInfo(info)})
	s.bounds = append(s.bounds, b)
	return nil
}

var errInvertedBounds = errors.New("bound_high should be higher than bound_low")

func (s *BoundedRandom) Generate() ([][]any, []string, error) {
	values := make([][]any, s.draws)
	for i := range values {
		row := make([]any, len(s.entries))
		for j, e := range s.entries {
			b := s.bounds[j]
			if e.Param.Type() == TypeInt {
				row[j] = s.drawInt(b.lo, b.hi)
				continue
			}
			u := distuv.Uniform{Min: b.low, Max: b.high, Src: s.rng}
			row[j] = u.Rand()
		}
		values[i] = row
	}
	return values, s.names(), nil
}

// drawInt returns a uniform integer in [lo, hi]. The offset is drawn in
// uint64 so the full int range works without overflow.
func (s *BoundedRandom) drawInt(lo, hi int) int {
	span := uint64(hi) - uint64(lo)
	var off uint64
	if span == math.MaxUint64 {
		off = s.rng.Uint64()
	} else {
		off = s.rng.Uint64N(span + 1)
	}
	return int(uint64(lo) + off)
}

// intBounds reads bound_low and bound_high as ints.
func intBounds(info Info) (int, int, error) {
	read := func(key string) (int, error) {
		v, err := coerceValue(info[key], TypeInt)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return v.(int), nil
	}
	low, err := read(InfoBoundLow)
	if err != nil {
		return 0, 0, err
	}
	high, err := read(InfoBoundHigh)
	if err != nil {
		return 0, 0, err
	}
	return low, high, nil
}

// numericBounds reads bound_low and bound_high as values of typ.
func numericBounds(typ Type, info Info) (float64, float64, error) {
	read := func(key string) (float64, error) {
		v, err := coerceValue(info[key], typ)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		f, _ := toFloat64(v)
		return f, nil
	}
	low, err := read(InfoBoundLow)
	if err != nil {
		return 0, 0, err
	}
	high, err := read(InfoBoundHigh)
	if err != nil {
		return 0, 0, err
	}
	return low, high, nil
}

// FixedGrid produces the cartesian product of inclusive arithmetic
// progressions, one per parameter.
type FixedGrid struct {
	registry
	warn   func(format string, args ...interface{})
	points [][]any
}

// NewFixedGrid returns an empty fixed-grid strategy. warn may be nil.
func NewFixedGrid(name string, warn func(format string, args ...interface{})) *FixedGrid {
	return &FixedGrid{registry: registry{name: name}, warn: warn}
}

func (s *FixedGrid) Kind() Kind { return KindFixedGrid }

func (s *FixedGrid) AddParam(name string, p *Parameter, info Info) error {
	keys := []string{InfoBoundLow, InfoBoundHigh, InfoIncrement}
	if err := s.precheck(name, p, info, keys, keys); err != nil {
		return err
	}
	if !p.Type().Numeric() {
		return configErrorf("strategy %q: parameter %q: %v parameters cannot be sampled on a grid, use int or float", s.name, name, p.Type())
	}
	var (
		points []any
		err    error
	)
	if p.Type() == TypeInt {
		points, err = s.intPoints(name, info)
	} else {
		points, err = s.floatPoints(name, info)
	}
	if err != nil {
		return err
	}

	s.entries = append(s.entries, Entry{Name: name, Param: p, Info: copyInfo(info)})
	s.points = append(s.points, points)
	return nil
}

func (s *FixedGrid) intPoints(name string, info Info) ([]any, error) {
	low, high, err := intBounds(info)
	if err != nil {
		return nil, configErrorf("strategy %q: parameter %q: %v", s.name, name, err)
	}
	incV, err := coerceValue(info[InfoIncrement], TypeInt)
	if err != nil {
		return nil, configErrorf("strategy %q: parameter %q: increment: %v", s.name, name, err)
	}
	inc := incV.(int)
	if low >= high {
		return nil, configErrorf("strategy %q: parameter %q: %v", s.name, name, errInvertedBounds)
	}
	if inc <= 0 {
		return nil, configErrorf("strategy %q: parameter %q: increment must be positive, got %d", s.name, name, inc)
	}
	if uint64(inc) > uint64(high)-uint64(low) && s.warn != nil {
		s.warn("increment of parameter %s was chosen to be larger than total range", name)
	}
	ints, err := GenerateIntRange(low, high, inc)
	if err != nil {
		return nil, configErrorf("strategy %q: parameter %q: %v", s.name, name, err)
	}
	points := make([]any, len(ints))
	for i, v := range ints {
		points[i] = v
	}
	return points, nil
}

func (s *FixedGrid) floatPoints(name string, info Info) ([]any, error) {
	low, high, err := numericBounds(TypeFloat, info)
	if err != nil {
		return nil, configErrorf("strategy %q: parameter %q: %v", s.name, name, err)
	}
	incV, err := coerceValue(info[InfoIncrement], TypeFloat)
	if err != nil {
		return nil, configErrorf("strategy %q: parameter %q: increment: %v", s.name, name, err)
	}
	inc := incV.(float64)
	if low >= high {
		return nil, configErrorf("strategy %q: parameter %q: %v", s.name, name, errInvertedBounds)
	}
	if inc <= 0 {
		return nil, configErrorf("strategy %q: parameter %q: increment must be positive, got %v", s.name, name, inc)
	}
	if inc > high-low && s.warn != nil {
		s.warn("increment of parameter %s was chosen to be larger than total range", name)
	}
	floats, err := GenerateRange(low, high, inc)
	if err != nil {
		return nil, configErrorf("strategy %q: parameter %q: %v", s.name, name, err)
	}
	points := make([]any, len(floats))
	for i, v := range floats {
		points[i] = v
	}
	return points, nil
}

// Points returns the grid values of the named parameter.
func (s *FixedGrid) Points(name string) []any {
	for i, e := range s.entries {
		if e.Name == name {
			out := make([]any, len(s.points[i]))
			copy(out, s.points[i])
			return out
		}
	}
	return nil
}

func (s *FixedGrid) Generate() ([][]any, []string, error) {
	values, err := product(s.points)
	if err != nil {
		return nil, nil, fmt.Errorf("strategy %q: %w", s.name, err)
	}
	return values, s.names(), nil
}

// Explicit enumerates literal values per parameter and combines them by
// cartesian product.
type Explicit struct {
	registry
	lists [][]any
}

// NewExplicit returns an empty explicit strategy.
func NewExplicit(name string) *Explicit {
	return &Explicit{registry: registry{name: name}}
}

func (s *Explicit) Kind() Kind { return KindExplicit }

func (s *Explicit) AddParam(name string, p *Parameter, info Info) error {
	keys := []string{InfoValues}
	if err := s.precheck(name, p, info, keys, keys); err != nil {
		return err
	}
	raw, ok := anySlice(info[InfoValues])
	if !ok {
		return configErrorf("strategy %q: parameter %q: values must be a list, got %T", s.name, name, info[InfoValues])
	}
	if len(raw) == 0 {
		return configErrorf("strategy %q: parameter %q: values must not be empty", s.name, name)
	}
	list := make([]any, len(raw))
	for i, v := range raw {
		c, err := coerceValue(v, p.Type())
		if err != nil {
			return configErrorf("strategy %q: parameter %q: value %d: %v", s.name, name, i, err)
		}
		list[i] = c
	}
	s.entries = append(s.entries, Entry{Name: name, Param: p, Info: copyInfo(info)})
	s.lists = append(s.lists, list)
	return nil
}

func (s *Explicit) Generate() ([][]any, []string, error) {
	values, err := product(s.lists)
	if err != nil {
		return nil, nil, fmt.Errorf("strategy %q: %w", s.name, err)
	}
	return values, s.names(), nil
}

// anySlice accepts the list forms callers commonly build values from.
func anySlice(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []int:
		return toAny(l), true
	case []float64:
		return toAny(l), true
	case []string:
		return toAny(l), true
	case []bool:
		return toAny(l), true
	}
	return nil, false
}

func toAny[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
