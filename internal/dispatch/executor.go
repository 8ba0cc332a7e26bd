package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/banshee-data/paramsweep/internal/configtree"
	"github.com/banshee-data/paramsweep/internal/fsutil"
	"github.com/banshee-data/paramsweep/internal/security"
)

// Log files written inside every run's logs directory.
const (
	ParamLogFile   = "param_logs.txt"
	SimLogFile     = "log_sim.txt"
	PostRunLogFile = "log_post_run.txt"
)

// Stages reported in TaskError.
const (
	StageAllocate = "allocate"
	StageStage    = "staging"
	StageConfig   = "configure"
	StageSimulate = "simulate"
	StagePostRun  = "post-run"
	StageSkipped  = "skipped"
)

// PostRun is a command executed in the run directory after the simulation.
type PostRun struct {
	Command string
	// Files are copied from Folder into the run directory before the run.
	Files  []string
	Folder string
}

// Project locates the simulation inputs copied into every run.
type Project struct {
	// Folder is the project root. Binary and ConfigFile are relative to it.
	Folder     string
	Binary     string
	ConfigFile string
	Args       []string
	PostRun    *PostRun
}

// BinaryPath returns the absolute-or-relative path of the project binary.
func (p Project) BinaryPath() string { return filepath.Join(p.Folder, p.Binary) }

// ConfigPath returns the path of the base configuration document.
func (p Project) ConfigPath() string { return filepath.Join(p.Folder, p.ConfigFile) }

// Validate checks that every file a run copies exists.
func (p Project) Validate(fsys fsutil.FileSystem) error {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	if p.Binary == "" {
		return errors.New("project binary must be set")
	}
	if p.ConfigFile == "" {
		return errors.New("project config file must be set")
	}
	if filepath.IsAbs(p.ConfigFile) {
		return fmt.Errorf("config file %q must be relative to the project folder", p.ConfigFile)
	}
	if !fsys.Exists(p.BinaryPath()) {
		return fmt.Errorf("binary %s could not be found", p.BinaryPath())
	}
	if !fsys.Exists(p.ConfigPath()) {
		return fmt.Errorf("config file %s could not be found", p.ConfigPath())
	}
	if err := security.WithinDirectory(p.ConfigPath(), p.Folder); err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	if p.PostRun != nil {
		if p.PostRun.Command == "" {
			return errors.New("post-run command must not be empty")
		}
		for _, f := range p.PostRun.Files {
			src := filepath.Join(p.PostRun.Folder, f)
			if !fsys.Exists(src) {
				return fmt.Errorf("post-run file %s could not be found", src)
			}
			if err := security.WithinDirectory(src, p.PostRun.Folder); err != nil {
				return fmt.Errorf("post-run file: %w", err)
			}
		}
	}
	return nil
}

// Executor materialises and runs a single task.
type Executor struct {
	Project  Project
	Alloc    *Allocator
	FS       fsutil.FileSystem
	Commands CommandBuilder
	// DryRun stages run directories and writes configurations but launches
	// nothing.
	DryRun bool
}

// NewExecutor returns an executor using the OS filesystem and real commands.
func NewExecutor(project Project, alloc *Allocator) *Executor {
	return &Executor{
		Project:  project,
		Alloc:    alloc,
		FS:       fsutil.OSFileSystem{},
		Commands: NewRealCommandBuilder(),
	}
}

// Execute runs t and returns its run directory. Failures are returned as
// *TaskError.
func (e *Executor) Execute(ctx context.Context, t *Task) (string, error) {
	fail := func(dir, stage string, err error) error {
		return &TaskError{Index: t.Index, ID: t.ID, RunDir: dir, Stage: stage, Err: err}
	}

	dir, err := e.Alloc.Next()
	if err != nil {
		return "", fail("", StageAllocate, err)
	}
	if err := e.stage(dir); err != nil {
		return dir.Path, fail(dir.Path, StageStage, err)
	}
	if err := e.configure(dir, t); err != nil {
		return dir.Path, fail(dir.Path, StageConfig, err)
	}
	if e.DryRun {
		return dir.Path, nil
	}

	binary := "./" + filepath.Base(e.Project.Binary)
	if err := e.run(dir, SimLogFile, func(out *os.File) CommandExecutor {
		return e.Commands.BuildCommand(ctx, dir.Path, out, binary, e.Project.Args...)
	}); err != nil {
		return dir.Path, fail(dir.Path, StageSimulate, err)
	}

	if pr := e.Project.PostRun; pr != nil {
		if err := e.run(dir, PostRunLogFile, func(out *os.File) CommandExecutor {
			return e.Commands.BuildShellCommand(ctx, dir.Path, out, pr.Command)
		}); err != nil {
			return dir.Path, fail(dir.Path, StagePostRun, err)
		}
	}
	return dir.Path, nil
}

// stage copies the configuration document, the binary and post-run files
// into the run directory. The configuration keeps its project-relative path.
func (e *Executor) stage(dir RunDir) error {
	if err := fsutil.CopyFile(e.FS, e.Project.ConfigPath(), filepath.Join(dir.Path, e.Project.ConfigFile), 0644); err != nil {
		return err
	}
	if err := fsutil.CopyFile(e.FS, e.Project.BinaryPath(), filepath.Join(dir.Path, filepath.Base(e.Project.Binary)), 0755); err != nil {
		return err
	}
	if pr := e.Project.PostRun; pr != nil {
		for _, f := range pr.Files {
			if err := fsutil.CopyFile(e.FS, filepath.Join(pr.Folder, f), filepath.Join(dir.Path, f), 0); err != nil {
				return err
			}
		}
	}
	return nil
}

// configure writes the task's values into the copied document through
// fresh duplicates of its parameters.
func (e *Executor) configure(dir RunDir, t *Task) error {
	doc, err := configtree.Parse(filepath.Join(dir.Path, e.Project.ConfigFile))
	if err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir.Logs(), ParamLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening parameter log: %w", err)
	}
	defer f.Close()
	trace := log.New(f, "", log.LstdFlags)

	for i, p := range t.params {
		q := p.Duplicate()
		if err := q.Rebind(doc, trace); err != nil {
			return fmt.Errorf("parameter %q: %w", t.names[i], err)
		}
		if err := q.Set(t.values[i]); err != nil {
			return fmt.Errorf("parameter %q: %w", t.names[i], err)
		}
	}
	return nil
}

func (e *Executor) run(dir RunDir, logName string, build func(*os.File) CommandExecutor) error {
	out, err := os.OpenFile(filepath.Join(dir.Logs(), logName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", logName, err)
	}
	defer out.Close()
	return build(out).Run()
}
