package container

import (
	"maps"
	"slices"
	"strconv"
)

// =============================================================================
// API Arguments
// =============================================================================

// RunArguments is the structured form of a container launch.
type RunArguments struct {
	Detach     bool
	Remove     bool
	Image      string
	Command    CommandLine
	Name       string
	Network    string
	Entrypoint []string
	WorkingDir string
	User       *int
	Hostname   string
	Env        map[string]string
	Labels     map[string]string
	Ports      map[int]int
	Mounts     []Mount
}

// EnvList returns the environment as sorted KEY=value entries.
func (a RunArguments) EnvList() []string {
	out := make([]string, 0, len(a.Env))
	for _, k := range slices.Sorted(maps.Keys(a.Env)) {
		out = append(out, k+"="+a.Env[k])
	}
	return out
}

// BuildAPIArguments returns the launch as structured arguments. Extra args
// are appended to an argv command and quoted onto a shell command.
func (b *Builder) BuildAPIArguments(detach, remove bool) RunArguments {
	args := RunArguments{
		Detach:     detach,
		Remove:     remove,
		Image:      b.image,
		Command:    b.command.WithArgs(b.args),
		Name:       b.name,
		Network:    b.network,
		WorkingDir: b.workdir,
		Hostname:   b.hostname,
		Env:        maps.Clone(b.env),
		Labels:     maps.Clone(b.labels),
		Ports:      maps.Clone(b.ports),
		Mounts:     b.sortedMounts(),
	}
	if b.entrypoint != "" {
		args.Entrypoint = []string{b.entrypoint}
	}
	if b.runAsRoot {
		root := 0
		args.User = &root
	}
	return args
}

// =============================================================================
// CLI Invocation
// =============================================================================

// BuildCLIInvocation returns the launch as docker CLI tokens. The last
// token is the whole command as one shell string.
func (b *Builder) BuildCLIInvocation() []string {
	cli := []string{"docker", "run", "--rm", "-it"}

	if b.name != "" {
		cli = append(cli, "--name", b.name)
	}
	if b.network != "" {
		cli = append(cli, "--network", b.network)
	}
	if b.entrypoint != "" {
		cli = append(cli, "--entrypoint", b.entrypoint)
	}
	if b.workdir != "" {
		cli = append(cli, "-w", b.workdir)
	}
	if b.runAsRoot {
		cli = append(cli, "-u", "0")
	}
	if b.hostname != "" {
		cli = append(cli, "--hostname", b.hostname)
	}

	for _, k := range slices.Sorted(maps.Keys(b.env)) {
		cli = append(cli, "-e", k+"="+b.env[k])
	}
	for _, k := range slices.Sorted(maps.Keys(b.labels)) {
		cli = append(cli, "--label", k+"="+b.labels[k])
	}
	for _, container := range slices.Sorted(maps.Keys(b.ports)) {
		cli = append(cli, "-p", strconv.Itoa(b.ports[container])+":"+strconv.Itoa(container))
	}

	suffix := ""
	if b.platform == "darwin" {
		suffix = ":" + ConsistencyDelegated
	}
	for _, m := range b.sortedMounts() {
		cli = append(cli, "-v", m.HostPath+":"+m.ContainerPath+":"+m.Mode+suffix)
	}

	return append(cli, b.image, b.command.WithArgs(b.args).String())
}

func (b *Builder) sortedMounts() []Mount {
	out := make([]Mount, 0, len(b.mounts))
	for _, host := range slices.Sorted(maps.Keys(b.mounts)) {
		out = append(out, b.mounts[host])
	}
	return out
}
