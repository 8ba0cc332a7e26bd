package dispatch

import (
	"context"
	"io"
	"os/exec"
	"sync"
)

// CommandExecutor runs one prepared command.
// This abstraction enables unit testing without launching simulations.
type CommandExecutor interface {
	// Run executes the command, streaming stdout and stderr to the writer
	// given at build time.
	Run() error
}

// CommandBuilder builds the commands an Executor launches inside a run
// directory.
type CommandBuilder interface {
	// BuildCommand creates a CommandExecutor for a binary with arguments.
	BuildCommand(ctx context.Context, dir string, out io.Writer, name string, args ...string) CommandExecutor

	// BuildShellCommand creates a CommandExecutor for a shell command via sh -c.
	BuildShellCommand(ctx context.Context, dir string, out io.Writer, command string) CommandExecutor
}

// RealCommandExecutor wraps exec.Cmd to implement CommandExecutor.
type RealCommandExecutor struct {
	cmd *exec.Cmd
}

// Run executes the command.
func (r *RealCommandExecutor) Run() error {
	return r.cmd.Run()
}

// RealCommandBuilder implements CommandBuilder using exec.CommandContext.
type RealCommandBuilder struct{}

// NewRealCommandBuilder creates a new RealCommandBuilder.
func NewRealCommandBuilder() *RealCommandBuilder {
	return &RealCommandBuilder{}
}

func newCmd(ctx context.Context, dir string, out io.Writer, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = out
	cmd.Stderr = out
	return cmd
}

// BuildCommand creates a CommandExecutor for the given binary and arguments.
func (b *RealCommandBuilder) BuildCommand(ctx context.Context, dir string, out io.Writer, name string, args ...string) CommandExecutor {
	return &RealCommandExecutor{cmd: newCmd(ctx, dir, out, name, args...)}
}

// BuildShellCommand creates a CommandExecutor for shell commands.
func (b *RealCommandBuilder) BuildShellCommand(ctx context.Context, dir string, out io.Writer, command string) CommandExecutor {
	return &RealCommandExecutor{cmd: newCmd(ctx, dir, out, "sh", "-c", command)}
}

// MockCommandExecutor implements CommandExecutor for testing.
type MockCommandExecutor struct {
	// Output is written to the command's writer when Run is called.
	Output []byte
	// Err is the error to return from Run.
	Err error

	out io.Writer
}

// Run writes the configured output and returns the configured error.
func (m *MockCommandExecutor) Run() error {
	if m.out != nil && len(m.Output) > 0 {
		if _, err := m.out.Write(m.Output); err != nil {
			return err
		}
	}
	return m.Err
}

// MockBuiltCommand records details of a built command.
type MockBuiltCommand struct {
	Dir     string
	Name    string
	Args    []string
	IsShell bool
}

// MockCommandBuilder implements CommandBuilder for testing. It is safe for
// use by concurrent workers.
type MockCommandBuilder struct {
	mu       sync.Mutex
	commands []MockBuiltCommand

	// ExecutorFactory creates executors based on the command. When nil
	// every command succeeds without output.
	ExecutorFactory func(dir, name string, args []string) *MockCommandExecutor
}

// NewMockCommandBuilder creates a new MockCommandBuilder.
func NewMockCommandBuilder() *MockCommandBuilder {
	return &MockCommandBuilder{}
}

// BuildCommand records the command and returns a mock executor.
func (b *MockCommandBuilder) BuildCommand(_ context.Context, dir string, out io.Writer, name string, args ...string) CommandExecutor {
	return b.record(MockBuiltCommand{Dir: dir, Name: name, Args: args}, out)
}

// BuildShellCommand records the shell command and returns a mock executor.
func (b *MockCommandBuilder) BuildShellCommand(_ context.Context, dir string, out io.Writer, command string) CommandExecutor {
	return b.record(MockBuiltCommand{Dir: dir, Name: "sh", Args: []string{"-c", command}, IsShell: true}, out)
}

func (b *MockCommandBuilder) record(c MockBuiltCommand, out io.Writer) CommandExecutor {
	b.mu.Lock()
	b.commands = append(b.commands, c)
	b.mu.Unlock()

	var exe *MockCommandExecutor
	if b.ExecutorFactory != nil {
		exe = b.ExecutorFactory(c.Dir, c.Name, c.Args)
	}
	if exe == nil {
		exe = &MockCommandExecutor{}
	}
	exe.out = out
	return exe
}

// Commands returns a copy of every command built so far.
func (b *MockCommandBuilder) Commands() []MockBuiltCommand {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]MockBuiltCommand, len(b.commands))
	copy(out, b.commands)
	return out
}
