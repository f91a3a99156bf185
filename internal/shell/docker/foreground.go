package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"

	corecontainer "github.com/artpar/riptide-engine/internal/core/container"
)

// DefaultExecCommand opens the best shell available in the container.
const DefaultExecCommand = "if command -v bash >> /dev/null; then bash; else sh; fi"

// ExecOptions controls an interactive exec into a running container.
type ExecOptions struct {
	Cols  int
	Lines int
	Root  bool
	User  string // "uid:gid"; ignored when Root is set
	Args  []string
}

// Foreground runs containers attached to the user's terminal.
type Foreground interface {
	// Run launches the builder's container and returns its exit code.
	Run(ctx context.Context, b *corecontainer.Builder) (int, error)
	// Exec runs a shell command in a running container and returns its
	// exit code.
	Exec(ctx context.Context, containerName, command string, opts ExecOptions) (int, error)
}

// CLIForeground runs containers through the docker CLI.
type CLIForeground struct {
	Binary string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

var _ Foreground = (*CLIForeground)(nil)

// NewCLIForeground creates a foreground runner on the process's terminal.
func NewCLIForeground() *CLIForeground {
	return &CLIForeground{
		Binary: "docker",
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Run executes the builder's CLI invocation.
func (f *CLIForeground) Run(ctx context.Context, b *corecontainer.Builder) (int, error) {
	tokens := b.BuildCLIInvocation()
	return f.run(ctx, tokens[1:])
}

// Exec runs command with sh -c inside containerName.
func (f *CLIForeground) Exec(ctx context.Context, containerName, command string, opts ExecOptions) (int, error) {
	return f.run(ctx, ExecInvocation(containerName, command, opts))
}

// ExecInvocation returns the docker CLI arguments, without the binary, of
// an interactive exec.
func ExecInvocation(containerName, command string, opts ExecOptions) []string {
	args := []string{"exec", "-it"}
	switch {
	case opts.Root:
		args = append(args, "-u", "0")
	case opts.User != "":
		args = append(args, "-u", opts.User)
	}
	if opts.Cols > 0 {
		args = append(args, "-e", "COLUMNS="+strconv.Itoa(opts.Cols))
	}
	if opts.Lines > 0 {
		args = append(args, "-e", "LINES="+strconv.Itoa(opts.Lines))
	}
	args = append(args, containerName, "sh", "-c", command)
	if len(opts.Args) > 0 {
		args = append(args, "--")
		args = append(args, opts.Args...)
	}
	return args
}

func (f *CLIForeground) run(ctx context.Context, args []string) (int, error) {
	binary := f.Binary
	if binary == "" {
		binary = "docker"
	}
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdin = f.Stdin
	cmd.Stdout = f.Stdout
	cmd.Stderr = f.Stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, fmt.Errorf("failed to run %s: %w", binary, err)
	}
	return 0, nil
}
