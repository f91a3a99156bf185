package docker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	corecontainer "github.com/artpar/riptide-engine/internal/core/container"
	"github.com/artpar/riptide-engine/internal/core/naming"
	"github.com/artpar/riptide-engine/internal/core/ports"
	"github.com/artpar/riptide-engine/internal/core/project"
	"github.com/artpar/riptide-engine/internal/shell/workers"
)

// =============================================================================
// Engine - Manages Project Lifecycle
// =============================================================================

// StartHook opens a resource scoped to the scheduling of a project start.
// The returned release function is called once scheduling is done.
type StartHook func(ctx context.Context, p *project.Project) (release func(), err error)

// Options configures an Engine.
type Options struct {
	Logger *slog.Logger

	// Workers bounds concurrent start/stop tasks.
	Workers int

	// EntrypointScript is the host path of the wrapper entrypoint.
	EntrypointScript string

	// PortBase is the first host port tried for main ports.
	PortBase int

	StartHook  StartHook
	Foreground Foreground

	// StopTimeout is handed to the daemon when stopping services.
	StopTimeout time.Duration

	// VerifyDelay is how long a started service must stay up before it
	// counts as started.
	VerifyDelay time.Duration

	// BuilderOptions are appended to every container builder.
	BuilderOptions []corecontainer.Option
}

// Engine starts, stops and inspects the containers of riptide projects.
type Engine struct {
	docker Client
	logger *slog.Logger
	pool   *workers.Pool
	fg     Foreground

	startHook   StartHook
	stopTimeout time.Duration
	verifyDelay time.Duration
	builderOpts []corecontainer.Option
	pid         int

	// portMu is held from main port lookup until the container is bound.
	portMu sync.Mutex

	// reserved holds main ports handed to foreground runs that the docker
	// CLI binds later.
	resMu    sync.Mutex
	reserved map[int]int
}

// NewEngine creates an engine and checks that the daemon is reachable.
func NewEngine(ctx context.Context, docker Client, opts Options) (*Engine, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PortBase == 0 {
		opts.PortBase = ports.DefaultBase
	}
	if opts.StartHook == nil {
		opts.StartHook = func(context.Context, *project.Project) (func(), error) { return func() {}, nil }
	}
	if opts.StopTimeout == 0 {
		opts.StopTimeout = 10 * time.Second
	}
	if opts.Foreground == nil {
		opts.Foreground = NewCLIForeground()
	}

	if err := docker.Ping(ctx); err != nil {
		if errors.Is(err, ErrConnectionFailed) {
			return nil, err
		}
		return nil, NewDockerError("NewEngine", "", "", "connection with docker daemon failed", fmt.Errorf("%w: %w", ErrConnectionFailed, err))
	}

	e := &Engine{
		docker:      docker,
		logger:      opts.Logger,
		pool:        workers.NewPool(opts.Workers, opts.Logger),
		fg:          opts.Foreground,
		startHook:   opts.StartHook,
		stopTimeout: opts.StopTimeout,
		verifyDelay: opts.VerifyDelay,
		pid:         os.Getpid(),
		reserved:    make(map[int]int),
	}
	e.builderOpts = append([]corecontainer.Option{
		corecontainer.WithEntrypointScript(opts.EntrypointScript),
		corecontainer.WithPortBase(opts.PortBase),
		corecontainer.WithPortFinder(ports.ReservingFinder(e.reservedPorts)),
	}, opts.BuilderOptions...)
	return e, nil
}

// Close waits for scheduled tasks and releases the pool.
func (e *Engine) Close(ctx context.Context) error {
	return e.pool.Shutdown(ctx)
}

// Wait blocks until all scheduled start and stop tasks have returned.
func (e *Engine) Wait() {
	e.pool.Wait()
}

// =============================================================================
// Port Reservations
// =============================================================================

// reservePort keeps port from being handed out again until the returned
// release is called.
func (e *Engine) reservePort(port int) (release func()) {
	e.resMu.Lock()
	e.reserved[port]++
	e.resMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.resMu.Lock()
			defer e.resMu.Unlock()
			if e.reserved[port]--; e.reserved[port] <= 0 {
				delete(e.reserved, port)
			}
		})
	}
}

func (e *Engine) reservedPorts() []int {
	e.resMu.Lock()
	defer e.resMu.Unlock()
	out := make([]int, 0, len(e.reserved))
	for port := range e.reserved {
		out = append(out, port)
	}
	return out
}

// ContainerNameFor returns the container name of a project service.
func (e *Engine) ContainerNameFor(p *project.Project, service string) string {
	return naming.ServiceContainerName(p.Name, service)
}

// newBuilder creates a container builder carrying the engine's options.
func (e *Engine) newBuilder(image string, command corecontainer.CommandLine) *corecontainer.Builder {
	return corecontainer.New(image, command, e.builderOpts...)
}

// =============================================================================
// Network
// =============================================================================

// ensureNetwork creates the project network if it does not exist yet.
func (e *Engine) ensureNetwork(ctx context.Context, p *project.Project) error {
	name := naming.NetworkName(p.Name)
	_, err := e.docker.CreateNetwork(ctx, NetworkSpec{
		Name: name,
		Labels: map[string]string{
			corecontainer.LabelIsRiptide: "1",
			corecontainer.LabelProject:   p.Name,
		},
	})
	if err != nil && !errors.Is(err, ErrNetworkAlreadyExists) {
		return fmt.Errorf("failed to create network %s: %w", name, err)
	}
	if err == nil {
		e.logger.Debug("created network", "project", p.Name, "network", name)
	}
	return nil
}

// =============================================================================
// Images
// =============================================================================

// ensureImage pulls the image when it is not present locally.
func (e *Engine) ensureImage(ctx context.Context, ref string) error {
	exists, err := e.docker.ImageExists(ctx, ref)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	e.logger.Info("pulling image", "image", ref)
	return e.pullImage(ctx, ref, func(string) {})
}

// imageConfig returns the entrypoint, user and labels of a local image.
func (e *Engine) imageConfig(ctx context.Context, ref string) (corecontainer.ImageConfig, error) {
	cfg, err := e.docker.InspectImage(ctx, ref)
	if err != nil {
		return corecontainer.ImageConfig{}, err
	}
	return *cfg, nil
}
