// Package dispatch turns a generated sweep into simulation runs: one task per
// combination, each executed in its own run directory against its own copy
// of the configuration document.
package dispatch

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/paramsweep/internal/sweep"
)

// Task is one combination ready to run. Tasks are not modified after
// BuildTasks returns them.
type Task struct {
	Index int
	ID    uuid.UUID

	names  []string
	values []any
	params []*sweep.Parameter
}

// Assignment is one parameter value written by a task.
type Assignment struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// BuildTasks creates one task per combination of s. Each task holds its own
// duplicates of the experiment parameters named in s.Names.
func BuildTasks(exp *sweep.Experiment, s *sweep.Sweep) ([]*Task, error) {
	base := make([]*sweep.Parameter, len(s.Names))
	for i, name := range s.Names {
		p, ok := exp.Parameter(name)
		if !ok {
			return nil, fmt.Errorf("sweep names unknown parameter %q", name)
		}
		base[i] = p
	}

	tasks := make([]*Task, len(s.Combinations))
	for i, combo := range s.Combinations {
		if len(combo) != len(s.Names) {
			return nil, fmt.Errorf("combination %d has %d values for %d names", i, len(combo), len(s.Names))
		}
		t := &Task{
			Index:  i,
			ID:     uuid.New(),
			names:  append([]string(nil), s.Names...),
			values: append([]any(nil), combo...),
			params: make([]*sweep.Parameter, len(base)),
		}
		for j, p := range base {
			t.params[j] = p.Duplicate()
		}
		tasks[i] = t
	}
	return tasks, nil
}

// Names returns the parameter names in write order.
func (t *Task) Names() []string { return append([]string(nil), t.names...) }

// Values returns the combination values aligned with Names.
func (t *Task) Values() []any { return append([]any(nil), t.values...) }

// Assignments pairs every parameter name with its value.
func (t *Task) Assignments() []Assignment {
	out := make([]Assignment, len(t.names))
	for i, n := range t.names {
		out[i] = Assignment{Name: n, Value: t.values[i]}
	}
	return out
}

// ValueMap returns the assignments keyed by name.
func (t *Task) ValueMap() map[string]any {
	out := make(map[string]any, len(t.names))
	for i, n := range t.names {
		out[n] = t.values[i]
	}
	return out
}

func (t *Task) String() string {
	return fmt.Sprintf("task %d (%s)", t.Index, t.ID)
}

// TaskError reports a failed task with the context needed to reproduce it.
type TaskError struct {
	Index  int
	ID     uuid.UUID
	RunDir string
	Stage  string
	Err    error
}

func (e *TaskError) Error() string {
	dir := e.RunDir
	if dir == "" {
		dir = "<unallocated>"
	}
	return fmt.Sprintf("task %d (%s) failed during %s in %s: %v", e.Index, e.ID, e.Stage, dir, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }
