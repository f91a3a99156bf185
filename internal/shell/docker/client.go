package docker

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/mattn/go-shellwords"

	corecontainer "github.com/artpar/riptide-engine/internal/core/container"
)

// =============================================================================
// Docker Client Implementation
// =============================================================================

// DockerClient implements the Client interface using the Docker SDK.
type DockerClient struct {
	cli *client.Client
}

var _ Client = (*DockerClient)(nil)

// NewDockerClient creates a new Docker client.
// If host is empty, it uses the default Docker host from environment.
// On macOS with Docker Desktop, it automatically detects the correct socket.
func NewDockerClient(ctx context.Context, host string) (*DockerClient, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, NewDockerError("NewDockerClient", "", "", "failed to create client", fmt.Errorf("%w: %w", ErrConnectionFailed, err))
	}

	if host == "" {
		if _, pingErr := cli.Ping(ctx); pingErr != nil {
			// Docker Desktop keeps its socket in the user's home directory
			homeDir, _ := os.UserHomeDir()
			desktop, err2 := client.NewClientWithOpts(
				client.WithHost("unix://"+homeDir+"/.docker/run/docker.sock"),
				client.WithAPIVersionNegotiation(),
			)
			if err2 == nil {
				if _, pingErr2 := desktop.Ping(ctx); pingErr2 == nil {
					cli.Close()
					return &DockerClient{cli: desktop}, nil
				}
				desktop.Close()
			}
		}
	}

	return &DockerClient{cli: cli}, nil
}

// Ping checks if Docker daemon is reachable.
func (d *DockerClient) Ping(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return NewDockerError("Ping", "", "", fmt.Sprintf("failed to ping docker: %v", err), fmt.Errorf("%w: %w", ErrConnectionFailed, err))
	}
	return nil
}

// Close closes the Docker client connection.
func (d *DockerClient) Close() error {
	return d.cli.Close()
}

// =============================================================================
// Container Operations
// =============================================================================

// CreateContainer creates a container from structured run arguments.
func (d *DockerClient) CreateContainer(ctx context.Context, args corecontainer.RunArguments) (string, error) {
	cmd, err := commandArgv(args.Command)
	if err != nil {
		return "", NewDockerError("CreateContainer", "container", args.Name, "invalid command", err)
	}

	config := &container.Config{
		Image:      args.Image,
		Cmd:        cmd,
		Entrypoint: args.Entrypoint,
		WorkingDir: args.WorkingDir,
		Hostname:   args.Hostname,
		Labels:     args.Labels,
		Env:        args.EnvList(),
		Tty:        false,
	}
	if args.User != nil {
		config.User = strconv.Itoa(*args.User)
	}

	hostConfig := &container.HostConfig{
		AutoRemove: args.Remove,
	}
	if args.Network != "" {
		hostConfig.NetworkMode = container.NetworkMode(args.Network)
	}

	// Port bindings
	if len(args.Ports) > 0 {
		portBindings := nat.PortMap{}
		exposedPorts := nat.PortSet{}
		for containerPort, hostPort := range args.Ports {
			port := nat.Port(fmt.Sprintf("%d/tcp", containerPort))
			exposedPorts[port] = struct{}{}
			portBindings[port] = []nat.PortBinding{{HostPort: strconv.Itoa(hostPort)}}
		}
		config.ExposedPorts = exposedPorts
		hostConfig.PortBindings = portBindings
	}

	// Bind mounts
	for _, m := range args.Mounts {
		hostConfig.Mounts = append(hostConfig.Mounts, mount.Mount{
			Type:        mount.TypeBind,
			Source:      m.HostPath,
			Target:      m.ContainerPath,
			ReadOnly:    m.ReadOnly(),
			Consistency: mount.Consistency(m.Consistency),
		})
	}

	var networkConfig *network.NetworkingConfig
	if args.Network != "" {
		networkConfig = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				args.Network: {Aliases: aliases(args.Hostname)},
			},
		}
	}

	resp, err := d.cli.ContainerCreate(ctx, config, hostConfig, networkConfig, nil, args.Name)
	if err != nil {
		if cerrdefs.IsConflict(err) {
			return "", NewDockerError("CreateContainer", "container", args.Name, "container already exists", err)
		}
		if cerrdefs.IsNotFound(err) {
			return "", NewDockerError("CreateContainer", "image", args.Image, "image not found", ErrImageNotFound)
		}
		return "", NewDockerError("CreateContainer", "container", args.Name, err.Error(), err)
	}

	return resp.ID, nil
}

// StartContainer starts a created container.
func (d *DockerClient) StartContainer(ctx context.Context, containerID string) error {
	err := d.cli.ContainerStart(ctx, containerID, container.StartOptions{})
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return NewDockerError("StartContainer", "container", containerID, "container not found", ErrContainerNotFound)
		}
		return NewDockerError("StartContainer", "container", containerID, err.Error(), err)
	}
	return nil
}

// StopContainer stops a running container.
func (d *DockerClient) StopContainer(ctx context.Context, containerID string, timeout *time.Duration) error {
	stopOptions := container.StopOptions{}
	if timeout != nil {
		seconds := int(timeout.Seconds())
		stopOptions.Timeout = &seconds
	}

	err := d.cli.ContainerStop(ctx, containerID, stopOptions)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return NewDockerError("StopContainer", "container", containerID, "container not found", ErrContainerNotFound)
		}
		return NewDockerError("StopContainer", "container", containerID, err.Error(), err)
	}
	return nil
}

// RemoveContainer removes a container.
func (d *DockerClient) RemoveContainer(ctx context.Context, containerID string, opts RemoveOptions) error {
	err := d.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force:         opts.Force,
		RemoveVolumes: opts.RemoveVolumes,
	})
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return NewDockerError("RemoveContainer", "container", containerID, "container not found", ErrContainerNotFound)
		}
		// Removal already in progress (auto-remove) counts as removed
		if cerrdefs.IsConflict(err) && strings.Contains(err.Error(), "already in progress") {
			return nil
		}
		return NewDockerError("RemoveContainer", "container", containerID, err.Error(), err)
	}
	return nil
}

// InspectContainer returns information about a container.
func (d *DockerClient) InspectContainer(ctx context.Context, containerID string) (*ContainerInfo, error) {
	resp, err := d.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return nil, NewDockerError("InspectContainer", "container", containerID, "container not found", ErrContainerNotFound)
		}
		return nil, NewDockerError("InspectContainer", "container", containerID, err.Error(), err)
	}

	info := &ContainerInfo{
		ID:   resp.ID,
		Name: strings.TrimPrefix(resp.Name, "/"),
	}
	info.CreatedAt, _ = time.Parse(time.RFC3339Nano, resp.Created)

	if resp.Config != nil {
		info.Image = resp.Config.Image
		info.Labels = resp.Config.Labels
	}
	if resp.State != nil {
		info.Status = ContainerStatus(resp.State.Status)
		info.ExitCode = resp.State.ExitCode
		if resp.State.StartedAt != "" && resp.State.StartedAt != "0001-01-01T00:00:00Z" {
			t, _ := time.Parse(time.RFC3339Nano, resp.State.StartedAt)
			info.StartedAt = &t
		}
	}

	return info, nil
}

// WaitContainer blocks until the container stops and returns its exit code.
func (d *DockerClient) WaitContainer(ctx context.Context, containerID string) (int, error) {
	statusCh, errCh := d.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		if status.Error != nil {
			return int(status.StatusCode), NewDockerError("WaitContainer", "container", containerID, status.Error.Message, ErrContainerNotRunning)
		}
		return int(status.StatusCode), nil
	case err := <-errCh:
		if cerrdefs.IsNotFound(err) {
			return -1, NewDockerError("WaitContainer", "container", containerID, "container not found", ErrContainerNotFound)
		}
		return -1, NewDockerError("WaitContainer", "container", containerID, err.Error(), err)
	}
}

// ContainerLogs returns the multiplexed log stream of a container.
// Use stdcopy to split it.
func (d *DockerClient) ContainerLogs(ctx context.Context, containerID string, opts LogOptions) (io.ReadCloser, error) {
	reader, err := d.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     opts.Follow,
		Tail:       opts.Tail,
		Timestamps: opts.Timestamps,
	})
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return nil, NewDockerError("ContainerLogs", "container", containerID, "container not found", ErrContainerNotFound)
		}
		return nil, NewDockerError("ContainerLogs", "container", containerID, err.Error(), err)
	}
	return reader, nil
}

// =============================================================================
// Network Operations
// =============================================================================

// CreateNetwork creates a new Docker network.
func (d *DockerClient) CreateNetwork(ctx context.Context, spec NetworkSpec) (string, error) {
	driver := spec.Driver
	if driver == "" {
		driver = "bridge"
	}

	resp, err := d.cli.NetworkCreate(ctx, spec.Name, network.CreateOptions{
		Driver: driver,
		Labels: spec.Labels,
	})
	if err != nil {
		if cerrdefs.IsConflict(err) || strings.Contains(err.Error(), "already exists") {
			return "", NewDockerError("CreateNetwork", "network", spec.Name, "network already exists", ErrNetworkAlreadyExists)
		}
		return "", NewDockerError("CreateNetwork", "network", spec.Name, err.Error(), err)
	}

	return resp.ID, nil
}

// =============================================================================
// Image Operations
// =============================================================================

// PullImage starts pulling an image and returns the daemon's progress
// stream of JSON lines. The pull completes when the stream is drained.
func (d *DockerClient) PullImage(ctx context.Context, imageName string, opts PullOptions) (io.ReadCloser, error) {
	reader, err := d.cli.ImagePull(ctx, imageName, image.PullOptions{Platform: opts.Platform})
	if err != nil {
		if cerrdefs.IsNotFound(err) || IsImageNotFoundMessage(err.Error()) {
			return nil, NewDockerError("PullImage", "image", imageName, "image not found", ErrImageNotFound)
		}
		return nil, NewDockerError("PullImage", "image", imageName, err.Error(), ErrImagePullFailed)
	}
	return reader, nil
}

// ImageExists checks if an image exists locally.
func (d *DockerClient) ImageExists(ctx context.Context, imageName string) (bool, error) {
	if _, err := d.cli.ImageInspect(ctx, imageName); err != nil {
		if cerrdefs.IsNotFound(err) {
			return false, nil
		}
		return false, NewDockerError("ImageExists", "image", imageName, err.Error(), err)
	}
	return true, nil
}

// InspectImage returns the entrypoint, user and labels of a local image.
func (d *DockerClient) InspectImage(ctx context.Context, imageName string) (*corecontainer.ImageConfig, error) {
	resp, err := d.cli.ImageInspect(ctx, imageName)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return nil, NewDockerError("InspectImage", "image", imageName, "image not found", ErrImageNotFound)
		}
		return nil, NewDockerError("InspectImage", "image", imageName, err.Error(), err)
	}

	cfg := &corecontainer.ImageConfig{}
	if resp.Config != nil {
		// The daemon stores shell-form entrypoints already wrapped in /bin/sh -c
		cfg.Entrypoint = corecontainer.ExecEntrypoint(resp.Config.Entrypoint...)
		cfg.User = resp.Config.User
		cfg.Labels = resp.Config.Labels
	}
	return cfg, nil
}

// IsImageNotFoundMessage reports whether a daemon or registry message means
// the image does not exist upstream.
func IsImageNotFoundMessage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "not found") ||
		strings.Contains(msg, "manifest unknown") ||
		strings.Contains(msg, "repository does not exist") ||
		strings.Contains(msg, "pull access denied")
}

// =============================================================================
// Helpers
// =============================================================================

// commandArgv converts a command line for the API. Shell strings are split
// with shell quoting rules.
func commandArgv(c corecontainer.CommandLine) ([]string, error) {
	if c.IsArgv() {
		return c.Argv, nil
	}
	if c.Shell == "" {
		return nil, nil
	}
	return shellwords.Parse(c.Shell)
}

func aliases(hostname string) []string {
	if hostname == "" {
		return nil
	}
	return []string{hostname}
}
