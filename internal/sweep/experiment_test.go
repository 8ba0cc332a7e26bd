package sweep

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var domainStatics = []struct {
	name string
	typ  Type
}{
	{"x_min", TypeFloat}, {"x_max", TypeFloat},
	{"y_min", TypeFloat}, {"y_max", TypeFloat},
	{"z_min", TypeFloat}, {"z_max", TypeFloat},
	{"dx", TypeFloat}, {"dy", TypeFloat}, {"dz", TypeFloat},
	{"use_2D", TypeBool},
}

// physicellExperiment builds the cell-count experiment over a fixed grid of
// space_seperation values from 0.0 to 0.8.
func physicellExperiment(t *testing.T) *Experiment {
	t.Helper()
	exp := NewExperiment(loadSettings(t), Options{})
	_, err := exp.NewStrategy(KindFixedGrid, "linear", StrategyOptions{})
	require.NoError(t, err)

	var statics []string
	for _, s := range domainStatics {
		_, err := exp.AddStatic(s.name, s.typ, Path("domain", s.name))
		require.NoError(t, err)
		statics = append(statics, s.name)
	}
	_, err = exp.AddVariable("space_seperation", TypeFloat, Path("user_parameters", "space_seperation"),
		Info{"bound_low": 0.0, "bound_high": 0.8, "increment": 0.2}, "linear")
	require.NoError(t, err)
	_, err = exp.AddCorrelated("number_of_cells", TypeInt, Path("user_parameters", "number_of_cells"))
	require.NoError(t, err)

	require.NoError(t, exp.Correlate(Rule{
		Static:     statics,
		Variable:   []string{"space_seperation"},
		Result:     []string{"number_of_cells"},
		Derivation: CellCount,
	}))
	return exp
}

func TestExperiment_PhysiCellCellCount(t *testing.T) {
	exp := physicellExperiment(t)

	sweep, err := exp.Generate()
	require.NoError(t, err)

	assert.Equal(t, []string{"space_seperation", "number_of_cells"}, sweep.Names)
	want := [][]any{
		{0.0, 2500},
		{0.2, 1600},
		{0.4, 900},
		{0.6, 400},
		{0.8, 100},
	}
	if diff := cmp.Diff(want, sweep.Combinations); diff != "" {
		t.Errorf("sweep mismatch (-want +got):\n%s", diff)
	}

	again, err := exp.Generate()
	require.NoError(t, err)
	assert.Equal(t, sweep, again, "non-random sweeps must be deterministic")
}

func TestExperiment_CartesianAcrossStrategies(t *testing.T) {
	doc := loadSettings(t)
	exp := NewExperiment(doc, Options{})

	_, err := exp.NewStrategy(KindExplicit, "first", StrategyOptions{})
	require.NoError(t, err)
	_, err = exp.NewStrategy(KindExplicit, "second", StrategyOptions{})
	require.NoError(t, err)

	_, err = exp.AddVariable("seed", TypeInt, Path("user_parameters", "random_seed"), Info{"values": []any{1, 2}}, "first")
	require.NoError(t, err)
	_, err = exp.AddVariable("dx", TypeFloat, Path("domain", "dx"), Info{"values": []any{1.0, 2.0, 3.0}}, "second")
	require.NoError(t, err)
	_, err = exp.AddVariable("dy", TypeFloat, Path("domain", "dy"), Info{"values": []any{9.0}}, "second")
	require.NoError(t, err)

	sweep, err := exp.Generate()
	require.NoError(t, err)
	assert.Equal(t, []string{"seed", "dx", "dy"}, sweep.Names)
	require.Equal(t, 6, sweep.Len())
	for _, c := range sweep.Combinations {
		assert.Len(t, c, 3)
	}
	assert.Equal(t, []any{1, 1.0, 9.0}, sweep.Combinations[0])
	assert.Equal(t, []any{1, 2.0, 9.0}, sweep.Combinations[1])
	assert.Equal(t, []any{2, 3.0, 9.0}, sweep.Combinations[5])
	assert.Equal(t, []any{1, 1, 1, 2, 2, 2}, sweep.Column("seed"))
	assert.Nil(t, sweep.Column("missing"))
}

func TestExperiment_RandomTimesGrid(t *testing.T) {
	doc := loadSettings(t)
	exp := NewExperiment(doc, Options{})
	seed := uint64(1)
	_, err := exp.NewStrategy(KindBoundedRandom, "mc", StrategyOptions{Draws: 4, Seed: &seed})
	require.NoError(t, err)
	_, err = exp.NewStrategy(KindFixedGrid, "grid", StrategyOptions{})
	require.NoError(t, err)

	_, err = exp.AddVariable("speed", TypeFloat,
		NodePath{Tag("cell_definitions"), At("cell_definition", 0), Tag("phenotype"), Tag("motility"), Tag("speed")},
		Info{"bound_low": 0.0, "bound_high": 2.0}, "mc")
	require.NoError(t, err)
	_, err = exp.AddVariable("pers_time", TypeFloat,
		NodePath{Tag("cell_definitions"), At("cell_definition", 0), Tag("phenotype"), Tag("motility"), Tag("persistence_time")},
		Info{"bound_low": 5.0, "bound_high": 10.0}, "mc")
	require.NoError(t, err)
	_, err = exp.AddVariable("threads", TypeInt, Path("parallel", "omp_num_threads"),
		Info{"bound_low": 1, "bound_high": 2, "increment": 1}, "grid")
	require.NoError(t, err)

	sweep, err := exp.Generate()
	require.NoError(t, err)
	assert.Equal(t, []string{"speed", "pers_time", "threads"}, sweep.Names)
	require.Equal(t, 8, sweep.Len())
	for _, c := range sweep.Combinations {
		assert.InDelta(t, 1.0, c[0].(float64), 1.0)
		assert.InDelta(t, 7.5, c[1].(float64), 2.5)
	}
	// Each draw is paired with both grid points.
	assert.Equal(t, sweep.Combinations[0][0], sweep.Combinations[1][0])
	assert.Equal(t, 1, sweep.Combinations[0][2])
	assert.Equal(t, 2, sweep.Combinations[1][2])
}

func TestExperiment_NoStrategies(t *testing.T) {
	exp := NewExperiment(loadSettings(t), Options{})
	sweep, err := exp.Generate()
	require.NoError(t, err)
	assert.Empty(t, sweep.Names)
	require.Equal(t, 1, sweep.Len())
	assert.Empty(t, sweep.Combinations[0])
}

func TestExperiment_CorrelationConflict(t *testing.T) {
	exp := physicellExperiment(t)

	err := exp.Correlate(Rule{
		Variable:   []string{"space_seperation"},
		Result:     []string{"number_of_cells"},
		Derivation: Derivation{Name: "other", Fn: func(_, _ []any) ([]any, error) { return []any{1}, nil }},
	})
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "already correlated")
	assert.Len(t, exp.Rules(), 1)
}

func TestExperiment_CorrelateValidation(t *testing.T) {
	newExp := func(t *testing.T) *Experiment {
		exp := NewExperiment(loadSettings(t), Options{})
		_, err := exp.NewStrategy(KindExplicit, "list", StrategyOptions{})
		require.NoError(t, err)
		_, err = exp.AddStatic("dx", TypeFloat, Path("domain", "dx"))
		require.NoError(t, err)
		_, err = exp.AddVariable("sep", TypeFloat, Path("user_parameters", "space_seperation"), Info{"values": []any{0.1}}, "list")
		require.NoError(t, err)
		_, err = exp.AddCorrelated("cells", TypeInt, Path("user_parameters", "number_of_cells"))
		require.NoError(t, err)
		_, err = exp.AddCorrelated("label", TypeString, Path("user_parameters", "label"))
		require.NoError(t, err)
		return exp
	}
	constant := func(out ...any) Derivation {
		return Derivation{Name: "constant", Fn: func(_, _ []any) ([]any, error) { return out, nil }}
	}

	testCases := []struct {
		name    string
		rule    Rule
		wantErr error
	}{
		{"unknown_static", Rule{Static: []string{"dz"}, Result: []string{"cells"}, Derivation: constant(1)}, ErrConfiguration},
		{"static_in_variable_slot", Rule{Variable: []string{"dx"}, Result: []string{"cells"}, Derivation: constant(1)}, ErrConfiguration},
		{"result_not_correlated", Rule{Static: []string{"dx"}, Result: []string{"sep"}, Derivation: constant(1.0)}, ErrConfiguration},
		{"result_listed_twice", Rule{Result: []string{"cells", "cells"}, Derivation: constant(1, 2)}, ErrConfiguration},
		{"no_results", Rule{Static: []string{"dx"}, Derivation: constant()}, ErrConfiguration},
		{"nil_function", Rule{Result: []string{"cells"}, Derivation: Derivation{Name: "nil"}}, ErrConfiguration},
		{"wrong_arity", Rule{Result: []string{"cells"}, Derivation: constant(1, 2)}, ErrTypeMismatch},
		{"wrong_type", Rule{Result: []string{"cells"}, Derivation: constant(1.0)}, ErrTypeMismatch},
		{"wrong_order", Rule{Result: []string{"cells", "label"}, Derivation: constant("x", 1)}, ErrTypeMismatch},
		{"test_call_fails", Rule{Result: []string{"cells"}, Derivation: Derivation{Name: "fails", Fn: func(_, _ []any) ([]any, error) {
			return nil, errors.New("boom")
		}}}, ErrConfiguration},
		{"test_call_panics", Rule{Result: []string{"cells"}, Derivation: Derivation{Name: "panics", Fn: func(_, _ []any) ([]any, error) {
			panic("bad input")
		}}}, ErrConfiguration},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			exp := newExp(t)
			err := exp.Correlate(tc.rule)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Empty(t, exp.Rules())
		})
	}
}

func TestExperiment_CorrelationUsesDeclaredVariableOrder(t *testing.T) {
	exp := NewExperiment(loadSettings(t), Options{})
	_, err := exp.NewStrategy(KindExplicit, "list", StrategyOptions{})
	require.NoError(t, err)
	_, err = exp.AddVariable("a", TypeFloat, Path("domain", "dx"), Info{"values": []any{1.0}}, "list")
	require.NoError(t, err)
	_, err = exp.AddVariable("b", TypeFloat, Path("domain", "dy"), Info{"values": []any{2.0}}, "list")
	require.NoError(t, err)
	_, err = exp.AddCorrelated("first", TypeFloat, Path("domain", "z_min"))
	require.NoError(t, err)
	_, err = exp.AddCorrelated("second", TypeFloat, Path("domain", "z_max"))
	require.NoError(t, err)

	require.NoError(t, exp.Correlate(Rule{
		Variable:   []string{"b", "a"},
		Result:     []string{"first", "second"},
		Derivation: Identity,
	}))

	sweep, err := exp.Generate()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "first", "second"}, sweep.Names)
	assert.Equal(t, [][]any{{1.0, 2.0, 2.0, 1.0}}, sweep.Combinations)
}

func TestExperiment_DerivationRuntimeError(t *testing.T) {
	testCases := []struct {
		name string
		fn   DeriveFunc
	}{
		{"returns_error", func(_, variable []any) ([]any, error) {
			if variable[0].(float64) > 0.5 {
				return nil, errors.New("separation too large")
			}
			return []any{1}, nil
		}},
		{"panics", func(_, variable []any) ([]any, error) {
			if variable[0].(float64) > 0.5 {
				panic("separation too large")
			}
			return []any{1}, nil
		}},
		{"changes_arity", func(_, variable []any) ([]any, error) {
			if variable[0].(float64) > 0.5 {
				return []any{}, nil
			}
			return []any{1}, nil
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			exp := NewExperiment(loadSettings(t), Options{})
			_, err := exp.NewStrategy(KindFixedGrid, "grid", StrategyOptions{})
			require.NoError(t, err)
			_, err = exp.AddVariable("sep", TypeFloat, Path("user_parameters", "space_seperation"),
				Info{"bound_low": 0.0, "bound_high": 0.8, "increment": 0.4}, "grid")
			require.NoError(t, err)
			_, err = exp.AddCorrelated("cells", TypeInt, Path("user_parameters", "number_of_cells"))
			require.NoError(t, err)

			// The document holds 0.5, so the registration call succeeds.
			require.NoError(t, exp.Correlate(Rule{
				Variable:   []string{"sep"},
				Result:     []string{"cells"},
				Derivation: Derivation{Name: tc.name, Fn: tc.fn},
			}))

			_, err = exp.Generate()
			assert.ErrorIs(t, err, ErrDerivation)
		})
	}
}

func TestExperiment_Registration(t *testing.T) {
	exp := NewExperiment(loadSettings(t), Options{})
	_, err := exp.NewStrategy(KindExplicit, "list", StrategyOptions{})
	require.NoError(t, err)

	_, err = exp.NewStrategy(KindFixedGrid, "list", StrategyOptions{})
	assert.ErrorIs(t, err, ErrConfiguration, "duplicate strategy name")

	_, err = exp.AddVariable("dx", TypeFloat, Path("domain", "dx"), Info{"values": []any{1.0}}, "missing")
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = exp.AddStatic("dx", TypeFloat, Path("domain", "dx"))
	require.NoError(t, err)
	_, err = exp.AddVariable("dx", TypeFloat, Path("domain", "dy"), Info{"values": []any{1.0}}, "list")
	assert.ErrorIs(t, err, ErrConfiguration, "names are unique across buckets")
	_, err = exp.AddCorrelated("dx", TypeFloat, Path("domain", "dz"))
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = exp.AddStatic("flag", TypeInt, Path("domain", "use_2D"))
	assert.ErrorIs(t, err, ErrParse, "static values are read at registration")

	_, err = exp.AddCorrelated("nowhere", TypeInt, Path("user_parameters", "missing"))
	assert.ErrorIs(t, err, ErrAddressing)

	p, ok := exp.Parameter("dx")
	require.True(t, ok)
	assert.Equal(t, TypeFloat, p.Type())
	assert.Equal(t, BucketStatic, exp.Bucket("dx"))
	assert.Equal(t, BucketNone, exp.Bucket("missing"))
	assert.Equal(t, []string{"dx"}, exp.Names(BucketStatic))
}

func TestExperiment_StrictPaths(t *testing.T) {
	exp := NewExperiment(loadSettings(t), Options{Strict: true})
	_, err := exp.AddStatic("speed", TypeFloat, Path("cell_definitions", "cell_definition", "phenotype", "motility", "speed"))
	assert.ErrorIs(t, err, ErrAmbiguous)
	assert.Empty(t, exp.Warnings())

	lenient := NewExperiment(loadSettings(t), Options{})
	_, err = lenient.AddStatic("speed", TypeFloat, Path("cell_definitions", "cell_definition", "phenotype", "motility", "speed"))
	require.NoError(t, err)
	assert.Len(t, lenient.Warnings(), 1)
}

func TestDerivationRegistry(t *testing.T) {
	for _, name := range []string{"cell_count", "identity", "product"} {
		d, ok := LookupDerivation(name)
		require.True(t, ok, name)
		assert.Equal(t, name, d.Name)
	}
	_, ok := LookupDerivation("nope")
	assert.False(t, ok)
	assert.Subset(t, DerivationNames(), []string{"cell_count", "identity", "product"})

	out, err := Product.Fn([]any{2.0, 3}, []any{0.5})
	require.NoError(t, err)
	assert.Equal(t, []any{3.0}, out)

	_, err = CellCount.Fn([]any{1.0}, []any{0.1})
	assert.Error(t, err)
}
