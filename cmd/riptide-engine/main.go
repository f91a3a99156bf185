package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/artpar/riptide-engine/internal/shell/docker"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess      = 0
	ExitConfigError  = 1
	ExitProjectError = 2
	ExitDockerError  = 3
	ExitServiceError = 4
)

// CommandError carries the exit code a failed command maps to.
type CommandError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *CommandError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// exitCodeFor maps engine errors to exit codes. Errors the engine does not
// classify get fallback.
func exitCodeFor(err error, fallback int) int {
	switch {
	case errors.Is(err, docker.ErrServiceNotFound), errors.Is(err, docker.ErrCommandNotFound):
		return ExitProjectError
	case errors.Is(err, docker.ErrConnectionFailed),
		errors.Is(err, docker.ErrImageNotFound),
		errors.Is(err, docker.ErrImagePullFailed):
		return ExitDockerError
	case errors.Is(err, docker.ErrServiceStopped),
		errors.Is(err, docker.ErrContainerAlreadyRunning),
		errors.Is(err, docker.ErrContainerNotRunning):
		return ExitServiceError
	}
	return fallback
}

// exitStatus ends a command with the exit code of a process it ran. It is
// not reported as an error.
type exitStatus int

func (s exitStatus) Error() string {
	return fmt.Sprintf("exit status %d", int(s))
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	var status exitStatus
	if errors.As(err, &status) {
		return int(status)
	}

	fmt.Fprintf(os.Stderr, "%s %v\n", red("Error:"), err)
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.ExitCode
	}
	return ExitConfigError
}
