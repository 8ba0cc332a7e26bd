package sweep

import (
	"fmt"
	"log"

	"github.com/banshee-data/paramsweep/internal/configtree"
	"github.com/banshee-data/paramsweep/internal/monitoring"
)

// Bucket says which role a named parameter plays in an experiment.
type Bucket int

const (
	BucketNone Bucket = iota
	BucketStatic
	BucketVariable
	BucketCorrelated
)

func (b Bucket) String() string {
	switch b {
	case BucketStatic:
		return "static"
	case BucketVariable:
		return "variable"
	case BucketCorrelated:
		return "correlated"
	}
	return "none"
}

// Options configures an Experiment.
type Options struct {
	// Strict turns ambiguous node paths into errors.
	Strict bool
	// Trace receives node-search and param-set lines during build-up.
	Trace *log.Logger
}

// Experiment registers parameters, strategies and correlation rules against
// one configuration document and generates the resulting sweep.
type Experiment struct {
	doc     *configtree.Document
	locator Locator
	warns   *monitoring.Collector

	strategies     []Strategy
	strategyByName map[string]Strategy

	params  map[string]*Parameter
	buckets map[string]Bucket
	order   map[Bucket][]string

	rules   []Rule
	claimed map[string]int
}

// NewExperiment returns an empty experiment bound to doc.
func NewExperiment(doc *configtree.Document, opts Options) *Experiment {
	e := &Experiment{
		doc:            doc,
		warns:          &monitoring.Collector{},
		strategyByName: make(map[string]Strategy),
		params:         make(map[string]*Parameter),
		buckets:        make(map[string]Bucket),
		order:          make(map[Bucket][]string),
		claimed:        make(map[string]int),
	}
	e.locator = Locator{Strict: opts.Strict, Warn: e.warns.Warnf, Trace: opts.Trace}
	return e
}

// Document returns the base configuration document.
func (e *Experiment) Document() *configtree.Document { return e.doc }

// Locator returns the locator parameters of this experiment resolve with.
func (e *Experiment) Locator() Locator { return e.locator }

// Warnings returns the non-fatal conditions recorded so far.
func (e *Experiment) Warnings() []string { return e.warns.Warnings() }

// Warnf records a warning on the experiment.
func (e *Experiment) Warnf(format string, args ...interface{}) {
	e.warns.Warnf(format, args...)
}

// AddStrategy registers s. Strategy names must be unique.
func (e *Experiment) AddStrategy(s Strategy) error {
	if s == nil {
		return configErrorf("strategy is nil")
	}
	if _, ok := e.strategyByName[s.Name()]; ok {
		return configErrorf("strategy %q already registered", s.Name())
	}
	e.strategies = append(e.strategies, s)
	e.strategyByName[s.Name()] = s
	return nil
}

// NewStrategy constructs a strategy wired to the experiment's warning
// collector and registers it.
func (e *Experiment) NewStrategy(kind Kind, name string, opts StrategyOptions) (Strategy, error) {
	if opts.Warn == nil {
		opts.Warn = e.warns.Warnf
	}
	s, err := NewStrategy(kind, name, opts)
	if err != nil {
		return nil, err
	}
	if err := e.AddStrategy(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Strategies returns the registered strategies in registration order.
func (e *Experiment) Strategies() []Strategy {
	out := make([]Strategy, len(e.strategies))
	copy(out, e.strategies)
	return out
}

// Strategy returns the strategy registered under name.
func (e *Experiment) Strategy(name string) (Strategy, bool) {
	s, ok := e.strategyByName[name]
	return s, ok
}

func (e *Experiment) newParam(name string, typ Type, path NodePath) (*Parameter, error) {
	if name == "" {
		return nil, configErrorf("parameter name must not be empty")
	}
	if b, ok := e.buckets[name]; ok {
		return nil, configErrorf("parameter %q already registered as %v", name, b)
	}
	p, err := NewParameter(e.doc, typ, path, e.locator)
	if err != nil {
		return nil, fmt.Errorf("parameter %q: %w", name, err)
	}
	return p, nil
}

func (e *Experiment) register(name string, b Bucket, p *Parameter) {
	e.params[name] = p
	e.buckets[name] = b
	e.order[b] = append(e.order[b], name)
}

// AddStatic registers a read-only parameter used as a derivation input.
func (e *Experiment) AddStatic(name string, typ Type, path NodePath) (*Parameter, error) {
	p, err := e.newParam(name, typ, path)
	if err != nil {
		return nil, err
	}
	if _, err := p.Get(); err != nil {
		return nil, fmt.Errorf("parameter %q: %w", name, err)
	}
	e.register(name, BucketStatic, p)
	return p, nil
}

// AddVariable registers a sampled parameter with the named strategy, which
// validates info immediately.
func (e *Experiment) AddVariable(name string, typ Type, path NodePath, info Info, strategy string) (*Parameter, error) {
	s, ok := e.strategyByName[strategy]
	if !ok {
		return nil, configErrorf("parameter %q: strategy %q not registered", name, strategy)
	}
	p, err := e.newParam(name, typ, path)
	if err != nil {
		return nil, err
	}
	if err := s.AddParam(name, p, info); err != nil {
		return nil, err
	}
	e.register(name, BucketVariable, p)
	return p, nil
}

// AddCorrelated registers a parameter whose value a correlation rule derives.
func (e *Experiment) AddCorrelated(name string, typ Type, path NodePath) (*Parameter, error) {
	p, err := e.newParam(name, typ, path)
	if err != nil {
		return nil, err
	}
	e.register(name, BucketCorrelated, p)
	return p, nil
}

// Parameter returns the parameter registered under name.
func (e *Experiment) Parameter(name string) (*Parameter, bool) {
	p, ok := e.params[name]
	return p, ok
}

// Bucket returns the role of the named parameter.
func (e *Experiment) Bucket(name string) Bucket {
	return e.buckets[name]
}

// Names returns the parameter names of bucket b in registration order.
func (e *Experiment) Names(b Bucket) []string {
	out := make([]string, len(e.order[b]))
	copy(out, e.order[b])
	return out
}

// Rules returns the registered correlation rules in registration order.
func (e *Experiment) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Correlate validates and registers r. The derivation is called once with
// the current document values and must return one value of the declared
// type per result parameter.
func (e *Experiment) Correlate(r Rule) error {
	if r.Derivation.Fn == nil {
		return configErrorf("correlation %s: derivation has no function", r)
	}
	if len(r.Result) == 0 {
		return configErrorf("correlation %s: no result parameters", r)
	}
	if err := e.checkNames(r.Static, BucketStatic); err != nil {
		return fmt.Errorf("correlation %s: %w", r, err)
	}
	if err := e.checkNames(r.Variable, BucketVariable); err != nil {
		return fmt.Errorf("correlation %s: %w", r, err)
	}
	if err := e.checkNames(r.Result, BucketCorrelated); err != nil {
		return fmt.Errorf("correlation %s: %w", r, err)
	}
	seen := make(map[string]bool, len(r.Result))
	for _, name := range r.Result {
		if idx, ok := e.claimed[name]; ok {
			return configErrorf("correlation %s: parameter %q is already correlated by %s", r, name, e.rules[idx])
		}
		if seen[name] {
			return configErrorf("correlation %s: result %q listed twice", r, name)
		}
		seen[name] = true
	}

	static, err := e.currentValues(r.Static)
	if err != nil {
		return fmt.Errorf("correlation %s: %w", r, err)
	}
	variable, err := e.currentValues(r.Variable)
	if err != nil {
		return fmt.Errorf("correlation %s: %w", r, err)
	}
	out, err := r.Derivation.call(static, variable)
	if err != nil {
		return fmt.Errorf("%w: correlation %s: test call failed: %w", ErrConfiguration, r, err)
	}
	if err := e.checkResults(r, out); err != nil {
		return err
	}

	rule := Rule{
		Static:     append([]string(nil), r.Static...),
		Variable:   append([]string(nil), r.Variable...),
		Result:     append([]string(nil), r.Result...),
		Derivation: r.Derivation,
	}
	e.rules = append(e.rules, rule)
	for _, name := range rule.Result {
		e.claimed[name] = len(e.rules) - 1
	}
	return nil
}

func (e *Experiment) checkNames(names []string, want Bucket) error {
	for _, n := range names {
		got := e.buckets[n]
		if got == BucketNone {
			return configErrorf("parameter %q not registered", n)
		}
		if got != want {
			return configErrorf("parameter %q is %v, want %v", n, got, want)
		}
	}
	return nil
}

func (e *Experiment) currentValues(names []string) ([]any, error) {
	out := make([]any, len(names))
	for i, n := range names {
		v, err := e.params[n].Get()
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", n, err)
		}
		out[i] = v
	}
	return out, nil
}

func (e *Experiment) checkResults(r Rule, out []any) error {
	if len(out) != len(r.Result) {
		return typeErrorf("correlation %s: derivation returned %d values for %d results", r, len(out), len(r.Result))
	}
	for i, name := range r.Result {
		typ := e.params[name].Type()
		if !typ.Matches(out[i]) {
			return typeErrorf("correlation %s: result %q is %T, want %v", r, name, out[i], typ)
		}
	}
	return nil
}

// Sweep is the generated set of combinations. Every combination has one
// value per entry of Names.
type Sweep struct {
	Names        []string
	Combinations [][]any
}

// Len returns the number of combinations.
func (s *Sweep) Len() int { return len(s.Combinations) }

// Index returns the position of name in Names, or -1.
func (s *Sweep) Index(name string) int {
	for i, n := range s.Names {
		if n == name {
			return i
		}
	}
	return -1
}

// Column returns the values of name across all combinations.
func (s *Sweep) Column(name string) []any {
	idx := s.Index(name)
	if idx < 0 {
		return nil
	}
	out := make([]any, len(s.Combinations))
	for i, c := range s.Combinations {
		out[i] = c[idx]
	}
	return out
}

// Generate composes every strategy by cartesian product, in registration
// order with the last strategy varying fastest, then applies the
// correlation rules to each combination. With no strategies the sweep holds
// a single empty combination.
func (e *Experiment) Generate() (*Sweep, error) {
	var names []string
	blocks := make([][][]any, len(e.strategies))
	sizes := make([]int, len(e.strategies))
	for i, s := range e.strategies {
		values, sn, err := s.Generate()
		if err != nil {
			return nil, fmt.Errorf("strategy %q: %w", s.Name(), err)
		}
		blocks[i] = values
		sizes[i] = len(values)
		names = append(names, sn...)
	}

	idx, err := cartesian(sizes)
	if err != nil {
		return nil, err
	}
	combos := make([][]any, len(idx))
	for i, tuple := range idx {
		row := make([]any, 0, len(names))
		for dim, j := range tuple {
			row = append(row, blocks[dim][j]...)
		}
		combos[i] = row
	}

	sweep := &Sweep{Names: names, Combinations: combos}
	for _, r := range e.rules {
		if err := e.apply(r, sweep); err != nil {
			return nil, err
		}
	}
	monitoring.Logf("generated %d combination(s) over %d parameter(s)", sweep.Len(), len(sweep.Names))
	return sweep, nil
}

// apply evaluates r for every combination and extends Names with r's
// results once.
func (e *Experiment) apply(r Rule, sweep *Sweep) error {
	static, err := e.currentValues(r.Static)
	if err != nil {
		return fmt.Errorf("%w: correlation %s: %w", ErrDerivation, r, err)
	}
	varIdx := make([]int, len(r.Variable))
	for i, n := range r.Variable {
		varIdx[i] = sweep.Index(n)
		if varIdx[i] < 0 {
			return fmt.Errorf("%w: correlation %s: variable %q missing from sweep", ErrDerivation, r, n)
		}
	}
	for _, n := range r.Result {
		if sweep.Index(n) < 0 {
			sweep.Names = append(sweep.Names, n)
		}
	}

	for i, combo := range sweep.Combinations {
		variable := make([]any, len(varIdx))
		for j, k := range varIdx {
			variable[j] = combo[k]
		}
		out, err := r.Derivation.call(static, variable)
		if err != nil {
			return fmt.Errorf("%w: correlation %s on combination %d: %w", ErrDerivation, r, i, err)
		}
		if len(out) != len(r.Result) {
			return fmt.Errorf("%w: correlation %s on combination %d: returned %d values for %d results",
				ErrDerivation, r, i, len(out), len(r.Result))
		}
		sweep.Combinations[i] = append(combo, out...)
	}
	return nil
}
