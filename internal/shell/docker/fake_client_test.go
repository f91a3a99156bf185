package docker

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/pkg/stdcopy"

	corecontainer "github.com/artpar/riptide-engine/internal/core/container"
	"github.com/artpar/riptide-engine/internal/core/images"
	"github.com/artpar/riptide-engine/internal/core/ports"
)

// setupTestLogger creates a logger for tests that discards output
func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =============================================================================
// Fake Client
// =============================================================================

type fakeContainer struct {
	args     corecontainer.RunArguments
	status   ContainerStatus
	exitCode int
}

// fakeClient is an in-memory Client. Containers are addressed by name;
// the container ID is the name.
type fakeClient struct {
	mu sync.Mutex

	pingErr     error
	containers  map[string]*fakeContainer
	images      map[string]*corecontainer.ImageConfig
	networks    map[string]int
	pulls       []string
	pullStreams map[string]string
	pullErrs    map[string]error
	exitOnStart map[string]int // image -> exit code of a container that dies at once
	logs        map[string]string // container name, or image for any of its containers
	removed     []string
	createErr   error
	blockImages bool // ImageExists waits for its context to end
}

var _ Client = (*fakeClient)(nil)

func newFakeClient() *fakeClient {
	return &fakeClient{
		containers:  make(map[string]*fakeContainer),
		images:      make(map[string]*corecontainer.ImageConfig),
		networks:    make(map[string]int),
		pullStreams: make(map[string]string),
		pullErrs:    make(map[string]error),
		exitOnStart: make(map[string]int),
		logs:        make(map[string]string),
	}
}

func (f *fakeClient) addImage(ref string, cfg corecontainer.ImageConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[images.WithDefaultTag(ref)] = &cfg
}

func (f *fakeClient) addContainer(name string, status ContainerStatus, labels map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.containers[name] = &fakeContainer{
		args:   corecontainer.RunArguments{Name: name, Labels: labels},
		status: status,
	}
}

func (f *fakeClient) container(name string) (*fakeContainer, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	return c, ok
}

// hostPortsInUse returns host ports bound by running containers.
func (f *fakeClient) hostPortsInUse() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var used []int
	for _, c := range f.containers {
		if c.status != ContainerStatusRunning {
			continue
		}
		for _, host := range c.args.Ports {
			used = append(used, host)
		}
	}
	return used
}

// portFinder scans against the fake's bound ports, the way a real scan
// sees ports bound by the daemon.
func (f *fakeClient) portFinder() ports.Finder {
	return func(base int) (int, error) {
		// Widen the window between scan and bind
		time.Sleep(time.Millisecond)
		return ports.Allocate(ports.From(base), f.hostPortsInUse(), nil)
	}
}

func (f *fakeClient) CreateContainer(ctx context.Context, args corecontainer.RunArguments) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	if _, exists := f.containers[args.Name]; exists {
		return "", NewDockerError("CreateContainer", "container", args.Name, "container already exists", cerrdefs.ErrConflict)
	}
	f.containers[args.Name] = &fakeContainer{args: args, status: ContainerStatusCreated}
	return args.Name, nil
}

func (f *fakeClient) StartContainer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return NewDockerError("StartContainer", "container", id, "container not found", ErrContainerNotFound)
	}
	if code, dies := f.exitOnStart[c.args.Image]; dies {
		c.status = ContainerStatusExited
		c.exitCode = code
		return nil
	}
	c.status = ContainerStatusRunning
	return nil
}

func (f *fakeClient) StopContainer(ctx context.Context, id string, timeout *time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return NewDockerError("StopContainer", "container", id, "container not found", ErrContainerNotFound)
	}
	c.status = ContainerStatusExited
	return nil
}

func (f *fakeClient) RemoveContainer(ctx context.Context, id string, opts RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.containers[id]; !ok {
		return NewDockerError("RemoveContainer", "container", id, "container not found", ErrContainerNotFound)
	}
	delete(f.containers, id)
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeClient) InspectContainer(ctx context.Context, id string) (*ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return nil, NewDockerError("InspectContainer", "container", id, "container not found", ErrContainerNotFound)
	}
	return &ContainerInfo{
		ID:       id,
		Name:     id,
		Image:    c.args.Image,
		Status:   c.status,
		Labels:   c.args.Labels,
		ExitCode: c.exitCode,
	}, nil
}

func (f *fakeClient) WaitContainer(ctx context.Context, id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return -1, NewDockerError("WaitContainer", "container", id, "container not found", ErrContainerNotFound)
	}
	c.status = ContainerStatusExited
	return c.exitCode, nil
}

func (f *fakeClient) ContainerLogs(ctx context.Context, id string, opts LogOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.containers[id]; !ok {
		return nil, NewDockerError("ContainerLogs", "container", id, "container not found", ErrContainerNotFound)
	}
	out, ok := f.logs[id]
	if !ok {
		out = f.logs[f.containers[id].args.Image]
	}
	var buf bytes.Buffer
	if out != "" {
		_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte(out))
	}
	return io.NopCloser(&buf), nil
}

func (f *fakeClient) CreateNetwork(ctx context.Context, spec NetworkSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.networks[spec.Name]++
	if f.networks[spec.Name] > 1 {
		return "", NewDockerError("CreateNetwork", "network", spec.Name, "network already exists", ErrNetworkAlreadyExists)
	}
	return spec.Name, nil
}

func (f *fakeClient) PullImage(ctx context.Context, ref string, opts PullOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls = append(f.pulls, ref)
	if err := f.pullErrs[ref]; err != nil {
		return nil, err
	}
	stream, ok := f.pullStreams[ref]
	if !ok {
		stream = `{"status":"Pulling from library"}` + "\n"
	}
	if !strings.Contains(stream, `"error"`) {
		f.images[ref] = &corecontainer.ImageConfig{}
	}
	return io.NopCloser(strings.NewReader(stream)), nil
}

func (f *fakeClient) ImageExists(ctx context.Context, ref string) (bool, error) {
	f.mu.Lock()
	_, ok := f.images[images.WithDefaultTag(ref)]
	block := f.blockImages
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return false, ctx.Err()
	}
	return ok, nil
}

func (f *fakeClient) InspectImage(ctx context.Context, ref string) (*corecontainer.ImageConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg, ok := f.images[images.WithDefaultTag(ref)]
	if !ok {
		return nil, NewDockerError("InspectImage", "image", ref, "image not found", ErrImageNotFound)
	}
	return cfg, nil
}

func (f *fakeClient) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeClient) Close() error { return nil }

// =============================================================================
// Fake Foreground
// =============================================================================

type fgExec struct {
	container string
	command   string
	opts      ExecOptions
}

type fakeForeground struct {
	mu       sync.Mutex
	runs     [][]string
	execs    []fgExec
	exitCode int
}

func (f *fakeForeground) Run(ctx context.Context, b *corecontainer.Builder) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, b.BuildCLIInvocation())
	return f.exitCode, nil
}

func (f *fakeForeground) Exec(ctx context.Context, containerName, command string, opts ExecOptions) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, fgExec{container: containerName, command: command, opts: opts})
	return f.exitCode, nil
}

// blockingForeground holds Run open until release is closed. started
// receives the CLI tokens of each run.
type blockingForeground struct {
	started chan []string
	release chan struct{}
}

func newBlockingForeground() *blockingForeground {
	return &blockingForeground{started: make(chan []string, 1), release: make(chan struct{})}
}

func (f *blockingForeground) Run(ctx context.Context, b *corecontainer.Builder) (int, error) {
	f.started <- b.BuildCLIInvocation()
	select {
	case <-f.release:
		return 0, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

func (f *blockingForeground) Exec(ctx context.Context, containerName, command string, opts ExecOptions) (int, error) {
	return 0, nil
}
