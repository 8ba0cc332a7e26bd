package config

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/banshee-data/paramsweep/internal/configtree"
	"github.com/banshee-data/paramsweep/internal/dispatch"
	"github.com/banshee-data/paramsweep/internal/sweep"
)

// Project returns the dispatch project described by the experiment.
func (c *Experiment) Project() dispatch.Project {
	p := dispatch.Project{
		Folder:     c.Resolve(c.ProjectFolder),
		Binary:     c.Binary,
		ConfigFile: filepath.Clean(c.ConfigFile),
		Args:       c.Args,
	}
	if c.PostRun != nil {
		folder := c.PostRun.Folder
		if folder == "" {
			folder = c.ProjectFolder
		}
		p.PostRun = &dispatch.PostRun{
			Command: c.PostRun.Command,
			Files:   c.PostRun.Files,
			Folder:  c.Resolve(folder),
		}
	}
	return p
}

// SaveDirPath returns the resolved directory run directories go under.
func (c *Experiment) SaveDirPath() string { return c.Resolve(c.SaveDir) }

// RegistryPath returns the resolved registry database path, or "" when no
// registry is configured.
func (c *Experiment) RegistryPath() string { return c.Resolve(c.Registry) }

// ReportDir returns the resolved report directory, defaulting to the save
// directory. It is "" when no report is configured.
func (c *Experiment) ReportDir() string {
	if c.Report == nil {
		return ""
	}
	if c.Report.Dir == "" {
		return c.SaveDirPath()
	}
	return c.Resolve(c.Report.Dir)
}

// samplerSeed picks the seed for the i-th sampler: its own seed if set,
// otherwise the experiment seed offset by i so samplers draw independently.
func (c *Experiment) samplerSeed(i int) *uint64 {
	if s := c.Samplers[i].Seed; s != nil {
		return s
	}
	if c.Seed == nil {
		return nil
	}
	v := *c.Seed + uint64(i)
	return &v
}

// Build parses the project's configuration document and registers every
// sampler, parameter and correlation of the experiment against it. trace,
// when non-nil, receives node-search lines.
func (c *Experiment) Build(trace *log.Logger) (*sweep.Experiment, error) {
	doc, err := configtree.Parse(c.Project().ConfigPath())
	if err != nil {
		return nil, err
	}
	exp := sweep.NewExperiment(doc, sweep.Options{Strict: c.StrictPaths, Trace: trace})

	for i, s := range c.Samplers {
		_, err := exp.NewStrategy(sweep.Kind(s.Kind), s.Name, sweep.StrategyOptions{
			Draws: s.Draws,
			Seed:  c.samplerSeed(i),
		})
		if err != nil {
			return nil, fmt.Errorf("sampler %q: %w", s.Name, err)
		}
	}

	for _, p := range c.Static {
		typ, err := sweep.ParseType(p.Type)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		if _, err := exp.AddStatic(p.Name, typ, NodePath(p.Path)); err != nil {
			return nil, err
		}
	}
	for _, v := range c.Variable {
		typ, err := sweep.ParseType(v.Type)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", v.Name, err)
		}
		if _, err := exp.AddVariable(v.Name, typ, NodePath(v.Path), sweep.Info(v.Info), v.Sampler); err != nil {
			return nil, err
		}
	}
	for _, p := range c.Correlated {
		typ, err := sweep.ParseType(p.Type)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		if _, err := exp.AddCorrelated(p.Name, typ, NodePath(p.Path)); err != nil {
			return nil, err
		}
	}

	for _, r := range c.Correlations {
		d, ok := sweep.LookupDerivation(r.Derivation)
		if !ok {
			return nil, fmt.Errorf("unknown derivation %q", r.Derivation)
		}
		if err := exp.Correlate(sweep.Rule{
			Static:     r.Static,
			Variable:   r.Variable,
			Result:     r.Result,
			Derivation: d,
		}); err != nil {
			return nil, err
		}
	}
	return exp, nil
}
