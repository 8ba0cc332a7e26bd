package dispatch

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/banshee-data/paramsweep/internal/fsutil"
)

// RunDirPattern formats run directory names from the allocation counter.
const RunDirPattern = "run_%010d"

// Subdirectories created inside every run directory.
const (
	OutputDir = "output"
	ConfigDir = "config"
	LogsDir   = "logs"
)

// maxAllocAttempts bounds the number of names tried by one Next call.
const maxAllocAttempts = 1 << 20

// RunDir is an allocated run directory.
type RunDir struct {
	Index int
	Path  string
}

// Output returns the simulation output directory.
func (d RunDir) Output() string { return filepath.Join(d.Path, OutputDir) }

// Config returns the directory holding the copied configuration.
func (d RunDir) Config() string { return filepath.Join(d.Path, ConfigDir) }

// Logs returns the log directory.
func (d RunDir) Logs() string { return filepath.Join(d.Path, LogsDir) }

// Allocator hands out fresh run directories under one save directory.
// Allocation is serialised by a mutex around a shared counter; names that
// already exist on disk, or that another process claims first, are skipped.
type Allocator struct {
	fs   fsutil.FileSystem
	root string

	mu     sync.Mutex
	next   int
	seeded bool
}

// NewAllocator returns an allocator creating run directories under root.
func NewAllocator(fsys fsutil.FileSystem, root string) *Allocator {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	return &Allocator{fs: fsys, root: filepath.Clean(root)}
}

// Root returns the save directory.
func (a *Allocator) Root() string { return a.root }

// Next claims the next free run directory and creates its subdirectories.
func (a *Allocator) Next() (RunDir, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.fs.MkdirAll(a.root, 0755); err != nil {
		return RunDir{}, fmt.Errorf("creating save dir %s: %w", a.root, err)
	}
	if !a.seeded {
		if err := a.seed(); err != nil {
			return RunDir{}, err
		}
	}

	for attempt := 0; attempt < maxAllocAttempts; attempt++ {
		idx := a.next
		a.next++
		path := filepath.Join(a.root, fmt.Sprintf(RunDirPattern, idx))
		if a.fs.Exists(path) {
			continue
		}
		if err := a.fs.Mkdir(path, 0755); err != nil {
			if errors.Is(err, fs.ErrExist) {
				continue
			}
			return RunDir{}, fmt.Errorf("creating run dir %s: %w", path, err)
		}
		dir := RunDir{Index: idx, Path: path}
		for _, sub := range []string{dir.Output(), dir.Config(), dir.Logs()} {
			if err := a.fs.MkdirAll(sub, 0755); err != nil {
				return RunDir{}, fmt.Errorf("creating %s: %w", sub, err)
			}
		}
		return dir, nil
	}
	return RunDir{}, fmt.Errorf("no free run directory under %s after %d attempts", a.root, maxAllocAttempts)
}

// seed starts the counter after the highest run directory already in the
// save directory, so a reused save directory is not rescanned name by name.
func (a *Allocator) seed() error {
	names, err := a.fs.ReadDirNames(a.root)
	if err != nil {
		return fmt.Errorf("listing save dir %s: %w", a.root, err)
	}
	for _, name := range names {
		var idx int
		if _, err := fmt.Sscanf(name, RunDirPattern, &idx); err != nil || fmt.Sprintf(RunDirPattern, idx) != name {
			continue
		}
		if idx >= a.next {
			a.next = idx + 1
		}
	}
	a.seeded = true
	return nil
}
