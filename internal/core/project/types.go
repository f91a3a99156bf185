// Package project holds the configuration documents an engine operates on:
// a project, the services it runs permanently and the commands it runs on
// demand.
//
// Documents are plain values. Loading and validation live in loader.go;
// nothing in this package talks to the container runtime.
package project

import (
	"path/filepath"
	"slices"
	"sort"
)

// Well-known service roles.
const (
	RoleMain = "main"
	RoleSrc  = "src"
)

// SrcMountPath is where the project source is mounted in containers that
// get it.
const SrcMountPath = "/src"

// DefaultCommandGroup is used when a service has no command for the
// requested group.
const DefaultCommandGroup = "default"

// =============================================================================
// Project
// =============================================================================

// Project is a named collection of services and commands sharing one network.
type Project struct {
	Name string `yaml:"name" validate:"required"`
	Src  string `yaml:"src"`
	App  App    `yaml:"app"`

	dir string
}

// App groups the declared services and commands of a project.
type App struct {
	Name     string              `yaml:"name"`
	Services map[string]*Service `yaml:"services" validate:"dive"`
	Commands map[string]*Command `yaml:"commands" validate:"dive"`
}

// Dir returns the directory the project document was loaded from.
func (p *Project) Dir() string {
	return p.dir
}

// SrcPath returns the absolute host path of the project source.
func (p *Project) SrcPath() string {
	return resolveHostPath(p.dir, p.Src)
}

// Service returns the declared service with the given name.
func (p *Project) Service(name string) (*Service, bool) {
	svc, ok := p.App.Services[name]
	return svc, ok
}

// Command returns the declared command with the given name.
func (p *Project) Command(name string) (*Command, bool) {
	cmd, ok := p.App.Commands[name]
	return cmd, ok
}

// ServiceNames returns the declared service names in sorted order.
func (p *Project) ServiceNames() []string {
	names := make([]string, 0, len(p.App.Services))
	for name := range p.App.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CommandNames returns the declared command names in sorted order.
func (p *Project) CommandNames() []string {
	names := make([]string, 0, len(p.App.Commands))
	for name := range p.App.Commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// link sets names and parent pointers after decoding.
func (p *Project) link() {
	for name, svc := range p.App.Services {
		if svc == nil {
			svc = &Service{}
			p.App.Services[name] = svc
		}
		svc.Name = name
		svc.project = p
	}
	for name, cmd := range p.App.Commands {
		if cmd == nil {
			cmd = &Command{}
			p.App.Commands[name] = cmd
		}
		cmd.Name = name
		cmd.project = p
	}
}

// =============================================================================
// Shared Declarations
// =============================================================================

// VolumeDecl is a declared bind mount.
type VolumeDecl struct {
	Host      string `yaml:"host" validate:"required"`
	Container string `yaml:"container" validate:"required"`
	Mode      string `yaml:"mode" validate:"omitempty,oneof=ro rw"`
}

// Volume is a collected mount target, keyed by absolute host path.
type Volume struct {
	Bind string
	Mode string // "ro", "rw" or "" for the default
}

// AdditionalPort publishes a container port on a fixed host port.
type AdditionalPort struct {
	Title     string `yaml:"title"`
	Container int    `yaml:"container" validate:"required,min=1,max=65535"`
	Host      int    `yaml:"host" validate:"required,min=1,max=65535"`
}

// Logging holds the commands the wrapper entrypoint runs in the background,
// each logged to /cmd_logs/<name>.
type Logging struct {
	Commands map[string]string `yaml:"commands"`
}

// Document is what the container builder needs from either a service or a
// command.
type Document interface {
	DocumentName() string
	ImageName() string
	CollectVolumes() map[string]Volume
	CollectEnvironment() map[string]string
}

var (
	_ Document = (*Service)(nil)
	_ Document = (*Command)(nil)
)

// =============================================================================
// Service
// =============================================================================

// Service is a long-running container definition.
type Service struct {
	Name             string            `yaml:"-"`
	Image            string            `yaml:"image" validate:"required"`
	Command          CommandSpec       `yaml:"command"`
	Port             int               `yaml:"port" validate:"omitempty,min=1,max=65535"`
	Roles            []string          `yaml:"roles"`
	Environment      map[string]string `yaml:"environment"`
	Volumes          []VolumeDecl      `yaml:"additional_volumes" validate:"dive"`
	AdditionalPorts  []AdditionalPort  `yaml:"additional_ports" validate:"dive"`
	Logging          Logging           `yaml:"logging"`
	RunAsCurrentUser bool              `yaml:"run_as_current_user"`
	DontCreateUser   bool              `yaml:"dont_create_user"`
	WorkingDirectory string            `yaml:"working_directory"`

	project *Project
}

// Project returns the project the service belongs to.
func (s *Service) Project() *Project {
	return s.project
}

// ProjectName returns the name of the owning project, or "" when detached.
func (s *Service) ProjectName() string {
	if s.project == nil {
		return ""
	}
	return s.project.Name
}

// DocumentName implements Document.
func (s *Service) DocumentName() string { return s.Name }

// ImageName implements Document.
func (s *Service) ImageName() string { return s.Image }

// HasPort reports whether the service declares a main port.
func (s *Service) HasPort() bool {
	return s.Port > 0
}

// HasRole reports whether the service declares the role.
func (s *Service) HasRole(role string) bool {
	return slices.Contains(s.Roles, role)
}

// CollectVolumes returns the declared volumes keyed by absolute host path.
// Services with the src role also get the project source.
func (s *Service) CollectVolumes() map[string]Volume {
	volumes := collectVolumes(s.project, s.Volumes)
	if s.HasRole(RoleSrc) && s.project != nil {
		volumes[s.project.SrcPath()] = Volume{Bind: SrcMountPath, Mode: "rw"}
	}
	return volumes
}

// CollectEnvironment returns a copy of the declared environment.
func (s *Service) CollectEnvironment() map[string]string {
	return copyEnv(s.Environment)
}

// CollectPorts returns the additional ports as container port -> host port.
func (s *Service) CollectPorts() map[int]int {
	ports := make(map[int]int, len(s.AdditionalPorts))
	for _, p := range s.AdditionalPorts {
		ports[p.Container] = p.Host
	}
	return ports
}

// =============================================================================
// Command
// =============================================================================

// Command is a short-lived container definition run on demand.
// Commands without an image are aliases of another command.
type Command struct {
	Name        string            `yaml:"-"`
	Image       string            `yaml:"image" validate:"required_without=Aliases"`
	Command     string            `yaml:"command"`
	Aliases     string            `yaml:"aliases"`
	Environment map[string]string `yaml:"environment"`
	Volumes     []VolumeDecl      `yaml:"additional_volumes" validate:"dive"`

	project *Project
}

// Project returns the project the command belongs to.
func (c *Command) Project() *Project {
	return c.project
}

// DocumentName implements Document.
func (c *Command) DocumentName() string { return c.Name }

// ImageName implements Document.
func (c *Command) ImageName() string { return c.Image }

// CollectVolumes returns the declared volumes keyed by absolute host path.
// Commands always get the project source.
func (c *Command) CollectVolumes() map[string]Volume {
	volumes := collectVolumes(c.project, c.Volumes)
	if c.project != nil {
		volumes[c.project.SrcPath()] = Volume{Bind: SrcMountPath, Mode: "rw"}
	}
	return volumes
}

// CollectEnvironment returns a copy of the declared environment.
func (c *Command) CollectEnvironment() map[string]string {
	return copyEnv(c.Environment)
}

// =============================================================================
// Helpers
// =============================================================================

func collectVolumes(p *Project, decls []VolumeDecl) map[string]Volume {
	dir := ""
	if p != nil {
		dir = p.dir
	}
	volumes := make(map[string]Volume, len(decls))
	for _, v := range decls {
		volumes[resolveHostPath(dir, v.Host)] = Volume{Bind: v.Container, Mode: v.Mode}
	}
	return volumes
}

func resolveHostPath(dir, path string) string {
	if path == "" {
		path = "."
	}
	if filepath.IsAbs(path) || dir == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(dir, path)
}

func copyEnv(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}
