// Package config loads experiment files: the YAML or JSON description of a
// sweep, its target project and where results are filed.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/paramsweep/internal/report"
	"github.com/banshee-data/paramsweep/internal/sweep"
)

// DefaultSaveDir is where run directories go when save_dir is unset.
const DefaultSaveDir = "save_dir"

const maxFileSize = 1 * 1024 * 1024 // 1MB

var validate = validator.New()

// Experiment is the root of an experiment file.
type Experiment struct {
	Name          string   `json:"name" yaml:"name" validate:"required"`
	ProjectFolder string   `json:"project_folder" yaml:"project_folder" validate:"required"`
	Binary        string   `json:"binary" yaml:"binary" validate:"required"`
	ConfigFile    string   `json:"config_file" yaml:"config_file" validate:"required"`
	Args          []string `json:"args,omitempty" yaml:"args,omitempty"`
	Parallel      int      `json:"parallel,omitempty" yaml:"parallel,omitempty" validate:"gte=0"`
	SaveDir       string   `json:"save_dir,omitempty" yaml:"save_dir,omitempty"`
	Seed          *uint64  `json:"seed,omitempty" yaml:"seed,omitempty"`
	StrictPaths   bool     `json:"strict_paths,omitempty" yaml:"strict_paths,omitempty"`

	Samplers     []Sampler     `json:"samplers,omitempty" yaml:"samplers,omitempty" validate:"dive"`
	Static       []Param       `json:"static,omitempty" yaml:"static,omitempty" validate:"dive"`
	Variable     []Variable    `json:"variable,omitempty" yaml:"variable,omitempty" validate:"dive"`
	Correlated   []Param       `json:"correlated,omitempty" yaml:"correlated,omitempty" validate:"dive"`
	Correlations []Correlation `json:"correlations,omitempty" yaml:"correlations,omitempty" validate:"dive"`
	PostRun      *PostRun      `json:"post_run,omitempty" yaml:"post_run,omitempty"`
	Registry     string        `json:"registry,omitempty" yaml:"registry,omitempty"`
	Report       *Report       `json:"report,omitempty" yaml:"report,omitempty"`

	// baseDir anchors relative paths; it is the experiment file's directory.
	baseDir string
}

// Sampler declares one sampling strategy.
type Sampler struct {
	Name  string  `json:"name" yaml:"name" validate:"required"`
	Kind  string  `json:"kind" yaml:"kind" validate:"required,oneof=bounded_random fixed_grid explicit"`
	Draws int     `json:"draws,omitempty" yaml:"draws,omitempty" validate:"gte=0"`
	Seed  *uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// Param declares a static or correlated parameter.
type Param struct {
	Name string    `json:"name" yaml:"name" validate:"required"`
	Type string    `json:"type" yaml:"type" validate:"required"`
	Path []Segment `json:"path" yaml:"path" validate:"required,min=1"`
}

// Variable declares a sampled parameter.
type Variable struct {
	Param   `yaml:",inline"`
	Sampler string         `json:"sampler" yaml:"sampler" validate:"required"`
	Info    map[string]any `json:"info" yaml:"info"`
}

// Correlation binds a registered derivation to parameter names.
type Correlation struct {
	Derivation string   `json:"derivation" yaml:"derivation" validate:"required"`
	Static     []string `json:"static,omitempty" yaml:"static,omitempty"`
	Variable   []string `json:"variable,omitempty" yaml:"variable,omitempty"`
	Result     []string `json:"result" yaml:"result" validate:"required,min=1"`
}

// PostRun is a shell command run in each run directory after the
// simulation, with files copied from Folder beforehand.
type PostRun struct {
	Command string   `json:"command" yaml:"command" validate:"required"`
	Files   []string `json:"files,omitempty" yaml:"files,omitempty"`
	Folder  string   `json:"folder,omitempty" yaml:"folder,omitempty"`
}

// Report configures the files written once the sweep finishes.
type Report struct {
	Dir    string `json:"dir,omitempty" yaml:"dir,omitempty"`
	Charts bool   `json:"charts,omitempty" yaml:"charts,omitempty"`
}

// Load reads, decodes and validates the experiment file at path. YAML
// (.yaml, .yml) and JSON (.json) are accepted; unknown fields are rejected.
func Load(path string) (*Experiment, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".yaml" && ext != ".yml" && ext != ".json" {
		return nil, fmt.Errorf("experiment file must have .yaml, .yml or .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat experiment file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("experiment file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read experiment file: %w", err)
	}

	cfg, err := Decode(data, ext == ".json")
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(filepath.Dir(cleanPath))
	if err != nil {
		return nil, err
	}
	cfg.baseDir = abs
	return cfg, nil
}

// Decode parses an experiment from data, applies defaults and validates it.
// Relative paths resolve against the working directory.
func Decode(data []byte, isJSON bool) (*Experiment, error) {
	cfg := &Experiment{}
	if isJSON {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse experiment JSON: %w", err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse experiment YAML: %w", err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid experiment: %w", err)
	}
	return cfg, nil
}

func (c *Experiment) applyDefaults() {
	if c.Parallel == 0 {
		c.Parallel = 1
	}
	if c.SaveDir == "" {
		c.SaveDir = DefaultSaveDir
	}
}

// Validate checks field constraints and the references between samplers,
// parameters and correlations.
func (c *Experiment) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Parallel < 1 {
		return fmt.Errorf("parallel must be a positive integer, got %d", c.Parallel)
	}
	if filepath.IsAbs(c.ConfigFile) {
		return fmt.Errorf("config_file must be relative to project_folder, got %q", c.ConfigFile)
	}

	samplers := map[string]Sampler{}
	for _, s := range c.Samplers {
		if _, dup := samplers[s.Name]; dup {
			return fmt.Errorf("sampler %q is declared twice", s.Name)
		}
		if sweep.Kind(s.Kind) == sweep.KindBoundedRandom && s.Draws < 1 {
			return fmt.Errorf("sampler %q: bounded_random needs draws >= 1", s.Name)
		}
		samplers[s.Name] = s
	}

	buckets := map[string]string{}
	declare := func(p Param, bucket string) error {
		if prev, dup := buckets[p.Name]; dup {
			return fmt.Errorf("parameter %q is declared as both %s and %s", p.Name, prev, bucket)
		}
		if _, err := sweep.ParseType(p.Type); err != nil {
			return fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		if err := report.CheckNames([]string{p.Name}); err != nil {
			return err
		}
		buckets[p.Name] = bucket
		return nil
	}
	for _, p := range c.Static {
		if err := declare(p, "static"); err != nil {
			return err
		}
	}
	for _, v := range c.Variable {
		if err := declare(v.Param, "variable"); err != nil {
			return err
		}
		if _, ok := samplers[v.Sampler]; !ok {
			return fmt.Errorf("parameter %q references undeclared sampler %q", v.Name, v.Sampler)
		}
	}
	for _, p := range c.Correlated {
		if err := declare(p, "correlated"); err != nil {
			return err
		}
	}

	for i, r := range c.Correlations {
		if _, ok := sweep.LookupDerivation(r.Derivation); !ok {
			return fmt.Errorf("correlation %d: unknown derivation %q (registered: %s)",
				i, r.Derivation, strings.Join(sweep.DerivationNames(), ", "))
		}
		check := func(names []string, want string) error {
			for _, n := range names {
				if got := buckets[n]; got != want {
					return fmt.Errorf("correlation %d (%s): %q must be a %s parameter", i, r.Derivation, n, want)
				}
			}
			return nil
		}
		if err := check(r.Static, "static"); err != nil {
			return err
		}
		if err := check(r.Variable, "variable"); err != nil {
			return err
		}
		if err := check(r.Result, "correlated"); err != nil {
			return err
		}
	}
	return nil
}

// BaseDir returns the directory relative paths resolve against.
func (c *Experiment) BaseDir() string { return c.baseDir }

// Resolve anchors a relative path at the experiment file's directory.
func (c *Experiment) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || c.baseDir == "" {
		return p
	}
	return filepath.Join(c.baseDir, p)
}
