package sweep

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/paramsweep/internal/configtree"
	"github.com/banshee-data/paramsweep/internal/monitoring"
)

func TestLocator_Resolve(t *testing.T) {
	doc := loadSettings(t)

	testCases := []struct {
		name     string
		path     NodePath
		want     string
		warnings int
	}{
		{
			name: "unique_tags",
			path: Path("domain", "x_min"),
			want: "-500",
		},
		{
			name:     "ambiguous_first_match",
			path:     Path("cell_definitions", "cell_definition", "phenotype", "motility", "speed"),
			want:     "1",
			warnings: 1,
		},
		{
			name: "index",
			path: NodePath{Tag("cell_definitions"), At("cell_definition", 1), Tag("phenotype"), Tag("motility"), Tag("speed")},
			want: "2",
		},
		{
			name: "exact_attributes",
			path: NodePath{
				Tag("microenvironment_setup"),
				Where("variable", map[string]string{"name": "prey signal", "units": "dimensionless", "ID": "1"}),
				Tag("physical_parameter_set"), Tag("diffusion_coefficient"),
			},
			want: "1000",
		},
		{
			name: "partial_attributes_unique",
			path: NodePath{
				Tag("microenvironment_setup"),
				Where("variable", map[string]string{"name": "prey signal"}),
				Tag("physical_parameter_set"), Tag("diffusion_coefficient"),
			},
			want: "1000",
		},
		{
			name: "partial_attributes_ambiguous",
			path: NodePath{
				Tag("microenvironment_setup"),
				Where("variable", map[string]string{"name": "oxygen"}),
				Tag("physical_parameter_set"), Tag("diffusion_coefficient"),
			},
			want:     "100000.0",
			warnings: 1,
		},
		{
			name: "invalid_index_falls_back_to_attributes",
			path: NodePath{
				Tag("cell_definitions"),
				{Tag: "cell_definition", Index: intPtr(7), Attributes: map[string]string{"name": "predator"}},
				Tag("phenotype"), Tag("motility"), Tag("persistence_time"),
			},
			want:     "5",
			warnings: 1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var warns monitoring.Collector
			loc := Locator{Warn: warns.Warnf}
			node, err := loc.Resolve(doc, tc.path)
			require.NoError(t, err)
			assert.Equal(t, tc.want, configtree.Text(node))
			assert.Equal(t, tc.warnings, warns.Len(), "warnings: %v", warns.Warnings())
		})
	}
}

func TestLocator_Errors(t *testing.T) {
	doc := loadSettings(t)

	testCases := []struct {
		name string
		path NodePath
	}{
		{"missing_tag", Path("domain", "w_min")},
		{"missing_root_child", Path("nowhere")},
		{"index_out_of_range", NodePath{Tag("cell_definitions"), At("cell_definition", 2)}},
		{"negative_index", NodePath{Tag("cell_definitions"), At("cell_definition", -1)}},
		{"attributes_match_nothing", NodePath{Tag("cell_definitions"), Where("cell_definition", map[string]string{"name": "prey"})}},
		{"attribute_value_differs", NodePath{Tag("microenvironment_setup"), Where("variable", map[string]string{"name": "oxygen", "ID": "1"})}},
		{"empty_path", NodePath{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Locator{}.Resolve(doc, tc.path)
			assert.ErrorIs(t, err, ErrAddressing)
		})
	}
}

func TestLocator_ExactBeatsPartial(t *testing.T) {
	doc := parseInline(t, `<r><v a="1" b="2">partial</v><v a="1">exact</v></r>`)

	var warns monitoring.Collector
	node, err := Locator{Warn: warns.Warnf}.Resolve(doc, NodePath{Where("v", map[string]string{"a": "1"})})
	require.NoError(t, err)
	assert.Equal(t, "exact", configtree.Text(node))
	assert.Zero(t, warns.Len())
}

func TestLocator_Strict(t *testing.T) {
	doc := loadSettings(t)
	loc := Locator{Strict: true}

	_, err := loc.Resolve(doc, Path("cell_definitions", "cell_definition", "phenotype"))
	assert.ErrorIs(t, err, ErrAmbiguous)
	assert.ErrorIs(t, err, ErrAddressing)

	_, err = loc.Resolve(doc, NodePath{Tag("microenvironment_setup"), Where("variable", map[string]string{"name": "oxygen"})})
	assert.ErrorIs(t, err, ErrAmbiguous)

	node, err := loc.Resolve(doc, NodePath{Tag("cell_definitions"), At("cell_definition", 0), Tag("phenotype"), Tag("motility"), Tag("speed")})
	require.NoError(t, err)
	assert.Equal(t, "1", configtree.Text(node))
}

func TestLocator_Idempotent(t *testing.T) {
	doc := loadSettings(t)
	path := NodePath{Tag("cell_definitions"), Where("cell_definition", map[string]string{"name": "predator"}), Tag("phenotype"), Tag("motility"), Tag("speed")}

	first, err := Locator{}.Resolve(doc, path)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := Locator{}.Resolve(doc, path)
		require.NoError(t, err)
		assert.Same(t, first, again)
		assert.Equal(t, configtree.Text(first), configtree.Text(again))
	}
}

func TestLocator_Trace(t *testing.T) {
	doc := loadSettings(t)
	var buf bytes.Buffer
	loc := Locator{Trace: log.New(&buf, "", 0)}

	_, err := loc.Resolve(doc, Path("domain", "dx"))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "[node-search] domain: 1 candidate(s)")
	assert.Contains(t, buf.String(), "[node-search] dx")
}

func TestNodePath_String(t *testing.T) {
	p := NodePath{Tag("a"), At("b", 1), Where("c", map[string]string{"z": "2", "k": "v"})}
	assert.Equal(t, "a -> b[1] -> c{k=v,z=2}", p.String())
}

func TestNodePath_Clone(t *testing.T) {
	p := NodePath{At("b", 1), Where("c", map[string]string{"k": "v"})}
	c := p.Clone()
	*c[0].Index = 5
	c[1].Attributes["k"] = "changed"
	assert.Equal(t, 1, *p[0].Index)
	assert.Equal(t, "v", p[1].Attributes["k"])
}

func intPtr(i int) *int { return &i }
