// Package container builds the launch description of a riptide container.
//
// A Builder is filled from a service or command document and serialised
// either as structured API arguments or as an equivalent docker CLI
// invocation. Both forms carry the same environment, labels, mounts, ports
// and entrypoint override.
package container

import (
	"os"
	"runtime"

	"github.com/artpar/riptide-engine/internal/core/ports"
)

// Mount modes.
const (
	ModeReadOnly  = "ro"
	ModeReadWrite = "rw"
)

// ConsistencyDelegated is the bind mount consistency requested for every
// mount. Only Docker Desktop on macOS honours it.
const ConsistencyDelegated = "delegated"

// Mount is a bind mount of a host path into the container.
type Mount struct {
	HostPath      string
	ContainerPath string
	Mode          string
	Consistency   string
}

// ReadOnly reports whether the mount is read-only.
func (m Mount) ReadOnly() bool {
	return m.Mode == ModeReadOnly
}

// Builder accumulates the launch description of one container. Map-valued
// setters overwrite on key, so re-applying a document is idempotent.
//
// A Builder is not safe for concurrent use.
type Builder struct {
	image      string
	command    CommandLine
	args       []string
	entrypoint string
	workdir    string
	hostname   string
	network    string
	name       string
	runAsRoot  bool

	env    map[string]string
	labels map[string]string
	mounts map[string]Mount
	ports  map[int]int

	entrypointScript string
	uid, gid         int
	findPort         ports.Finder
	portBase         int
	platform         string
}

// Option configures a Builder.
type Option func(*Builder)

// WithEntrypointScript sets the host path of the wrapper entrypoint script.
func WithEntrypointScript(hostPath string) Option {
	return func(b *Builder) { b.entrypointScript = hostPath }
}

// WithUser sets the host uid and gid handed to the wrapper entrypoint.
func WithUser(uid, gid int) Option {
	return func(b *Builder) { b.uid, b.gid = uid, gid }
}

// WithPortFinder replaces the free port lookup used by AddMainPort.
func WithPortFinder(find ports.Finder) Option {
	return func(b *Builder) { b.findPort = find }
}

// WithPortBase sets the first host port tried for a service's main port.
func WithPortBase(base int) Option {
	return func(b *Builder) { b.portBase = base }
}

// WithPlatform sets the GOOS the CLI invocation is built for.
func WithPlatform(goos string) Option {
	return func(b *Builder) { b.platform = goos }
}

// New creates a builder for image running command. Every container built
// this way carries the managed label.
func New(image string, command CommandLine, opts ...Option) *Builder {
	b := &Builder{
		image:    image,
		command:  command,
		env:      make(map[string]string),
		labels:   make(map[string]string),
		mounts:   make(map[string]Mount),
		ports:    make(map[int]int),
		uid:      os.Getuid(),
		gid:      os.Getgid(),
		findPort: ports.FindFreePortFrom,
		portBase: ports.DefaultBase,
		platform: runtime.GOOS,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.SetLabel(LabelIsRiptide, "1")
	return b
}

// =============================================================================
// Mutators
// =============================================================================

func (b *Builder) SetEnv(name, value string) *Builder {
	b.env[name] = value
	return b
}

func (b *Builder) SetLabel(name, value string) *Builder {
	b.labels[name] = value
	return b
}

// SetMount binds hostPath at containerPath. An empty mode means read-write.
func (b *Builder) SetMount(hostPath, containerPath, mode string) *Builder {
	if mode == "" {
		mode = ModeReadWrite
	}
	b.mounts[hostPath] = Mount{
		HostPath:      hostPath,
		ContainerPath: containerPath,
		Mode:          mode,
		Consistency:   ConsistencyDelegated,
	}
	return b
}

func (b *Builder) SetPort(containerPort, hostPort int) *Builder {
	b.ports[containerPort] = hostPort
	return b
}

func (b *Builder) SetNetwork(network string) *Builder {
	b.network = network
	return b
}

func (b *Builder) SetName(name string) *Builder {
	b.name = name
	return b
}

func (b *Builder) SetEntrypoint(entrypoint string) *Builder {
	b.entrypoint = entrypoint
	return b
}

// SetArgs sets extra arguments appended, quoted, to the command.
func (b *Builder) SetArgs(args []string) *Builder {
	b.args = append([]string(nil), args...)
	return b
}

func (b *Builder) SetWorkdir(dir string) *Builder {
	b.workdir = dir
	return b
}

func (b *Builder) SetHostname(hostname string) *Builder {
	b.hostname = hostname
	return b
}

// SetCommand replaces the command given at construction.
func (b *Builder) SetCommand(command CommandLine) *Builder {
	b.command = command
	return b
}

// SetRunAsRoot forces uid 0 for the container process.
func (b *Builder) SetRunAsRoot(root bool) *Builder {
	b.runAsRoot = root
	return b
}

// Env returns the value of an environment entry.
func (b *Builder) Env(name string) (string, bool) {
	v, ok := b.env[name]
	return v, ok
}

// Label returns the value of a label.
func (b *Builder) Label(name string) (string, bool) {
	v, ok := b.labels[name]
	return v, ok
}

// Port returns the host port published for containerPort.
func (b *Builder) Port(containerPort int) (int, bool) {
	v, ok := b.ports[containerPort]
	return v, ok
}
