package docker

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	corecontainer "github.com/artpar/riptide-engine/internal/core/container"
	"github.com/artpar/riptide-engine/internal/core/naming"
	"github.com/artpar/riptide-engine/internal/core/project"
)

// maxAliasDepth bounds alias chains between commands.
const maxAliasDepth = 8

// DetachedResult is the outcome of a command run without a terminal.
type DetachedResult struct {
	ExitCode int
	Output   string
}

// =============================================================================
// Commands
// =============================================================================

// Cmd runs a project command in a new container attached to the terminal
// and returns its exit code.
func (e *Engine) Cmd(ctx context.Context, p *project.Project, command string, args []string) (int, error) {
	if err := e.ensureNetwork(ctx, p); err != nil {
		return -1, err
	}

	name, cmd, err := resolveCommand(p, command)
	if err != nil {
		return -1, err
	}
	b, err := e.commandBuilder(ctx, p, name, cmd)
	if err != nil {
		return -1, err
	}
	b.SetArgs(args).
		SetEnv(corecontainer.EnvNoStdoutRedirect, "yes").
		SetWorkdir(commandWorkdir(p))

	e.logger.Debug("running command", "project", p.Name, "command", name)
	return e.fg.Run(ctx, b)
}

// CmdInService runs a project command inside the running container of a
// service. It fails with ErrServiceStopped when the service is down.
func (e *Engine) CmdInService(ctx context.Context, p *project.Project, command, service string, args []string) (int, error) {
	if !e.ServiceStatus(ctx, p, service) {
		return -1, NewDockerError("CmdInService", "service", service, "service must be running to use this command", ErrServiceStopped)
	}

	_, cmd, err := resolveCommand(p, command)
	if err != nil {
		return -1, err
	}
	line := corecontainer.ShellCommand(cmd.Command).WithArgs(args).String()

	return e.fg.Exec(ctx, naming.ServiceContainerName(p.Name, service), line, ExecOptions{
		User: strconv.Itoa(os.Getuid()) + ":" + strconv.Itoa(os.Getgid()),
	})
}

// CmdDetached runs a command to completion without a terminal and returns
// its exit code and combined output. The container is removed afterwards.
func (e *Engine) CmdDetached(ctx context.Context, p *project.Project, cmd *project.Command, runAsRoot bool) (DetachedResult, error) {
	if err := e.ensureNetwork(ctx, p); err != nil {
		return DetachedResult{}, err
	}

	b, err := e.commandBuilder(ctx, p, cmd.Name, cmd)
	if err != nil {
		return DetachedResult{}, err
	}
	b.SetName(naming.DetachedCommandContainerName(p.Name, cmd.Name, e.pid, newRunID()))
	if !runAsRoot {
		b.SetEnv(corecontainer.EnvUser, strconv.Itoa(os.Getuid())).
			SetEnv(corecontainer.EnvGroup, strconv.Itoa(os.Getgid())).
			SetEnv(corecontainer.EnvRunMainCmdAsUser, "yes")
	}

	args := b.BuildAPIArguments(true, false)
	id, err := e.docker.CreateContainer(ctx, args)
	if err != nil {
		return DetachedResult{}, err
	}
	defer func() {
		if err := e.docker.RemoveContainer(context.WithoutCancel(ctx), id, RemoveOptions{Force: true}); err != nil {
			e.logger.Warn("failed to remove command container", "container", args.Name, "error", err)
		}
	}()

	if err := e.docker.StartContainer(ctx, id); err != nil {
		return DetachedResult{}, err
	}
	code, err := e.docker.WaitContainer(ctx, id)
	if err != nil {
		return DetachedResult{ExitCode: code}, err
	}

	output, err := e.readLogs(ctx, id, "all")
	if err != nil {
		return DetachedResult{ExitCode: code}, err
	}
	return DetachedResult{ExitCode: code, Output: output}, nil
}

// newRunID returns a short random id for a detached run.
func newRunID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// commandBuilder prepares the launch of a command container.
func (e *Engine) commandBuilder(ctx context.Context, p *project.Project, name string, cmd *project.Command) (*corecontainer.Builder, error) {
	if err := e.ensureImage(ctx, cmd.Image); err != nil {
		return nil, err
	}
	img, err := e.imageConfig(ctx, cmd.Image)
	if err != nil {
		return nil, err
	}

	command := corecontainer.CommandLine{}
	if cmd.Command != "" {
		command = corecontainer.ShellCommand(cmd.Command)
	}
	return e.newBuilder(cmd.Image, command).
		InitFromCommand(cmd, img).
		SetName(naming.CommandContainerName(p.Name, name, e.pid)).
		SetNetwork(naming.NetworkName(p.Name)), nil
}

// resolveCommand follows aliases to the command that declares an image.
func resolveCommand(p *project.Project, name string) (string, *project.Command, error) {
	for i := 0; i < maxAliasDepth; i++ {
		cmd, ok := p.Command(name)
		if !ok {
			return "", nil, NewDockerError("ResolveCommand", "command", name, "command not found", ErrCommandNotFound)
		}
		if cmd.Aliases == "" {
			return name, cmd, nil
		}
		name = cmd.Aliases
	}
	return "", nil, NewDockerError("ResolveCommand", "command", name, "alias chain too long", ErrCommandNotFound)
}

// commandWorkdir maps the current directory into the mounted source, so
// commands run where the user is. Outside the source it is the source root.
func commandWorkdir(p *project.Project) string {
	cwd, err := os.Getwd()
	if err != nil {
		return project.SrcMountPath
	}
	rel, err := filepath.Rel(p.SrcPath(), cwd)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return project.SrcMountPath
	}
	return path.Join(project.SrcMountPath, filepath.ToSlash(rel))
}

// =============================================================================
// Services In The Foreground
// =============================================================================

// ServiceFg runs a service attached to the terminal instead of detached.
func (e *Engine) ServiceFg(ctx context.Context, p *project.Project, service string, args []string, commandGroup string) error {
	if err := e.ensureNetwork(ctx, p); err != nil {
		return err
	}

	release, err := e.startHook(ctx, p)
	if err != nil {
		return fmt.Errorf("failed to prepare project start: %w", err)
	}
	defer release()

	svc, ok := p.Service(service)
	if !ok {
		return NewDockerError("ServiceFg", "service", service, "service not found", ErrServiceNotFound)
	}
	if e.ServiceStatus(ctx, p, service) {
		return NewDockerError("ServiceFg", "service", service, "service is already running", ErrContainerAlreadyRunning)
	}
	// A stopped container would block the name
	_ = e.docker.RemoveContainer(ctx, naming.ServiceContainerName(p.Name, service), RemoveOptions{Force: true})

	if err := e.ensureImage(ctx, svc.Image); err != nil {
		return err
	}
	img, err := e.imageConfig(ctx, svc.Image)
	if err != nil {
		return err
	}

	b := e.serviceBuilder(p, svc, commandGroup, img).SetArgs(args)

	// The CLI binds the port later; it stays reserved until the run ends.
	e.portMu.Lock()
	_, err = b.AddMainPort(svc)
	if host, ok := b.Port(svc.Port); err == nil && ok {
		defer e.reservePort(host)()
	}
	e.portMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to allocate main port: %w", err)
	}

	code, err := e.fg.Run(ctx, b)
	if err != nil {
		return err
	}
	e.logger.Debug("foreground service exited", "project", p.Name, "service", service, "exit_code", code)
	return nil
}

// ExecInteractive opens a shell in a running service container.
func (e *Engine) ExecInteractive(ctx context.Context, p *project.Project, service string, opts ExecOptions) error {
	return e.ExecCustom(ctx, p, service, DefaultExecCommand, opts)
}

// ExecCustom runs a shell command in a running service container.
func (e *Engine) ExecCustom(ctx context.Context, p *project.Project, service, command string, opts ExecOptions) error {
	if !e.ServiceStatus(ctx, p, service) {
		return NewDockerError("Exec", "service", service, "service must be running", ErrServiceStopped)
	}
	code, err := e.fg.Exec(ctx, naming.ServiceContainerName(p.Name, service), command, opts)
	if err != nil {
		return err
	}
	if code != 0 {
		e.logger.Debug("exec exited", "project", p.Name, "service", service, "exit_code", code)
	}
	return nil
}
