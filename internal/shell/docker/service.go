package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/pkg/stdcopy"

	corecontainer "github.com/artpar/riptide-engine/internal/core/container"
	"github.com/artpar/riptide-engine/internal/core/naming"
	"github.com/artpar/riptide-engine/internal/core/project"
	"github.com/artpar/riptide-engine/internal/core/results"
)

// Result texts reported on service queues.
const (
	MsgServiceNotFound   = "Service not found."
	MsgAlreadyStarted    = "Already started"
	MsgStartedOK         = "Started successfully"
	MsgServiceNotRunning = "Service not running"
	MsgStoppedOK         = "Stopped successfully"
	MsgStartCancelled    = "Start cancelled"
	MsgStopCancelled     = "Stop cancelled"
)

// logTailLines is how much output is attached to a failed start.
const logTailLines = "50"

// =============================================================================
// Start / Stop
// =============================================================================

// StartProject schedules a start task per requested service and returns
// their result queues without waiting. Unknown services get a queue ended
// with an error.
func (e *Engine) StartProject(ctx context.Context, p *project.Project, services []string, quick bool, commandGroup string) (*results.MultiResultQueue, error) {
	release, err := e.startHook(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare project start: %w", err)
	}
	defer release()

	if err := e.ensureNetwork(ctx, p); err != nil {
		return nil, err
	}

	queues := make(map[string]*results.ResultQueue, len(services))
	for _, name := range services {
		q := results.NewResultQueue()
		queues[name] = q

		svc, ok := p.Service(name)
		if !ok {
			q.EndWithError(results.NewResultError(MsgServiceNotFound, nil, ""))
			continue
		}

		e.logger.Info("scheduling service start", "project", p.Name, "service", name, "quick", quick)
		if err := e.pool.Submit("start "+name, func(ctx context.Context) {
			e.startService(ctx, p, svc, commandGroup, quick, q)
		}); err != nil {
			q.EndWithError(results.NewResultError("Could not schedule start", err, ""))
		}
	}

	return results.NewMultiResultQueue(queues), nil
}

// StopProject schedules a stop task per requested service.
func (e *Engine) StopProject(ctx context.Context, p *project.Project, services []string) (*results.MultiResultQueue, error) {
	queues := make(map[string]*results.ResultQueue, len(services))
	for _, name := range services {
		q := results.NewResultQueue()
		queues[name] = q

		e.logger.Info("scheduling service stop", "project", p.Name, "service", name)
		if err := e.pool.Submit("stop "+name, func(ctx context.Context) {
			e.stopService(ctx, p, name, q)
		}); err != nil {
			q.EndWithError(results.NewResultError("Could not schedule stop", err, ""))
		}
	}
	return results.NewMultiResultQueue(queues), nil
}

func step(current, total int, text string) results.StartStopResultStep {
	return results.StartStopResultStep{Current: current, Total: total, Text: text}
}

// startService runs the start steps of one service and reports on q.
func (e *Engine) startService(ctx context.Context, p *project.Project, svc *project.Service, group string, quick bool, q *results.ResultQueue) {
	name := naming.ServiceContainerName(p.Name, svc.Name)
	logger := e.logger.With("project", p.Name, "service", svc.Name, "container", name)
	total := 4
	if quick {
		total = 3
	}
	if err := ctx.Err(); err != nil {
		q.EndWithError(results.NewResultError(MsgStartCancelled, err, ""))
		return
	}

	// 1. Image
	if !quick {
		q.Put(step(1, total, "Checking image..."))
		if err := e.ensureImage(ctx, svc.Image); err != nil {
			logger.Error("image unavailable", "image", svc.Image, "error", err)
			q.EndWithError(results.NewResultError("Error pulling the image", err, ""))
			return
		}
	}

	// 2. Existing container
	existing, err := e.docker.InspectContainer(ctx, name)
	switch {
	case err == nil && existing.Running():
		q.End(step(total, total, MsgAlreadyStarted))
		return
	case err == nil:
		logger.Debug("removing stale container", "status", existing.Status)
		if err := e.docker.RemoveContainer(ctx, name, RemoveOptions{Force: true}); err != nil && !errors.Is(err, ErrContainerNotFound) {
			q.EndWithError(results.NewResultError("Error removing the old container", err, ""))
			return
		}
	case !errors.Is(err, ErrContainerNotFound):
		q.EndWithError(results.NewResultError("Error inspecting the container", err, ""))
		return
	}

	// 3. Build
	img, err := e.imageConfig(ctx, svc.Image)
	if err != nil {
		q.EndWithError(results.NewResultError("Error reading the image", err, ""))
		return
	}
	b := e.serviceBuilder(p, svc, group, img)

	// 4. Create and start, holding the port lock until the port is bound
	q.Put(step(total-1, total, "Starting container..."))
	if err := e.createAndStart(ctx, b, svc, false); err != nil {
		logger.Error("failed to start service", "error", err)
		q.EndWithError(results.NewResultError("Error starting the container", err, ""))
		return
	}

	// 5. Verify
	if !quick {
		if err := e.verifyRunning(ctx, name); err != nil {
			logs := e.logTail(ctx, name)
			logger.Error("service exited after start", "error", err)
			q.EndWithError(results.NewResultError("Container failed to start", err, logs))
			return
		}
	}

	logger.Info("service started")
	q.End(step(total, total, MsgStartedOK))
}

// serviceBuilder prepares the launch of a service container.
func (e *Engine) serviceBuilder(p *project.Project, svc *project.Service, group string, img corecontainer.ImageConfig) *corecontainer.Builder {
	b := e.newBuilder(svc.Image, corecontainer.FromInvocation(svc.Command.Resolve(group))).
		InitFromService(svc, img).
		SetName(naming.ServiceContainerName(p.Name, svc.Name)).
		SetNetwork(naming.NetworkName(p.Name)).
		SetHostname(svc.Name)
	if wd := serviceWorkdir(svc); wd != "" {
		b.SetWorkdir(wd)
	}
	return b
}

// serviceWorkdir resolves a relative working directory against the
// mounted project source.
func serviceWorkdir(svc *project.Service) string {
	wd := svc.WorkingDirectory
	if wd == "" || path.IsAbs(wd) {
		return wd
	}
	return path.Join(project.SrcMountPath, wd)
}

// createAndStart allocates the main port and starts the container under
// the engine's port lock.
func (e *Engine) createAndStart(ctx context.Context, b *corecontainer.Builder, svc *project.Service, remove bool) error {
	e.portMu.Lock()
	defer e.portMu.Unlock()

	if _, err := b.AddMainPort(svc); err != nil {
		return fmt.Errorf("failed to allocate main port: %w", err)
	}

	args := b.BuildAPIArguments(true, remove)
	id, err := e.docker.CreateContainer(ctx, args)
	if err != nil {
		return err
	}
	if err := e.docker.StartContainer(ctx, id); err != nil {
		_ = e.docker.RemoveContainer(ctx, id, RemoveOptions{Force: true})
		return err
	}
	return nil
}

// verifyRunning waits the verify delay and checks the container is up.
func (e *Engine) verifyRunning(ctx context.Context, name string) error {
	if e.verifyDelay > 0 {
		select {
		case <-time.After(e.verifyDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	info, err := e.docker.InspectContainer(ctx, name)
	if err != nil {
		return err
	}
	if !info.Running() {
		return NewDockerError("StartService", "container", name, "exited with code "+strconv.Itoa(info.ExitCode), ErrContainerNotRunning)
	}
	return nil
}

// logTail returns the last lines of a container's output, or "" when the
// logs cannot be read.
func (e *Engine) logTail(ctx context.Context, name string) string {
	out, err := e.readLogs(ctx, name, logTailLines)
	if err != nil {
		e.logger.Debug("could not read container logs", "container", name, "error", err)
		return ""
	}
	return out
}

// readLogs demultiplexes a container's output into one string.
func (e *Engine) readLogs(ctx context.Context, name, tail string) (string, error) {
	reader, err := e.docker.ContainerLogs(ctx, name, LogOptions{Tail: tail})
	if err != nil {
		return "", err
	}
	defer reader.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, reader); err != nil {
		return "", fmt.Errorf("failed to read logs: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// stopService stops and removes one service container.
func (e *Engine) stopService(ctx context.Context, p *project.Project, service string, q *results.ResultQueue) {
	name := naming.ServiceContainerName(p.Name, service)
	logger := e.logger.With("project", p.Name, "service", service, "container", name)
	if err := ctx.Err(); err != nil {
		q.EndWithError(results.NewResultError(MsgStopCancelled, err, ""))
		return
	}

	info, err := e.docker.InspectContainer(ctx, name)
	if errors.Is(err, ErrContainerNotFound) {
		q.End(step(1, 1, MsgServiceNotRunning))
		return
	}
	if err != nil {
		q.EndWithError(results.NewResultError("Error inspecting the container", err, ""))
		return
	}

	q.Put(step(1, 2, "Stopping..."))
	if info.Running() {
		timeout := e.stopTimeout
		if err := e.docker.StopContainer(ctx, name, &timeout); err != nil && !errors.Is(err, ErrContainerNotFound) {
			logger.Error("failed to stop service", "error", err)
			q.EndWithError(results.NewResultError("Error stopping the container", err, ""))
			return
		}
	}
	if err := e.docker.RemoveContainer(ctx, name, RemoveOptions{Force: true}); err != nil && !errors.Is(err, ErrContainerNotFound) {
		q.EndWithError(results.NewResultError("Error removing the container", err, ""))
		return
	}

	logger.Info("service stopped")
	q.End(step(2, 2, MsgStoppedOK))
}

// =============================================================================
// Status
// =============================================================================

// Status reports for every declared service whether its container runs.
func (e *Engine) Status(ctx context.Context, p *project.Project) map[string]bool {
	status := make(map[string]bool, len(p.App.Services))
	for _, name := range p.ServiceNames() {
		status[name] = e.ServiceStatus(ctx, p, name)
	}
	return status
}

// ServiceStatus reports whether the service container runs. Any error
// counts as not running.
func (e *Engine) ServiceStatus(ctx context.Context, p *project.Project, service string) bool {
	info, err := e.docker.InspectContainer(ctx, naming.ServiceContainerName(p.Name, service))
	if err != nil {
		if !errors.Is(err, ErrContainerNotFound) {
			e.logger.Debug("status check failed", "project", p.Name, "service", service, "error", err)
		}
		return false
	}
	return info.Running()
}

// Address is where a service's main port is reachable from the host.
type Address struct {
	Host string
	Port int
}

func (a Address) String() string {
	return a.Host + ":" + strconv.Itoa(a.Port)
}

// AddressFor returns the host address of a running service's main port.
func (e *Engine) AddressFor(ctx context.Context, p *project.Project, service string) (Address, bool) {
	svc, ok := p.Service(service)
	if !ok || !svc.HasPort() {
		return Address{}, false
	}

	info, err := e.docker.InspectContainer(ctx, naming.ServiceContainerName(p.Name, service))
	if err != nil || !info.Running() {
		return Address{}, false
	}

	label, ok := info.Labels[corecontainer.LabelPort]
	if !ok {
		return Address{}, false
	}
	port, err := strconv.Atoi(label)
	if err != nil {
		return Address{}, false
	}
	return Address{Host: "127.0.0.1", Port: port}, true
}
