package container

// EntrypointContainerPath is where the wrapper script is mounted.
const EntrypointContainerPath = "/entrypoint_riptide.sh"

// Environment read by the wrapper entrypoint.
const (
	EnvOriginalEntrypoint = "RIPTIDE__DOCKER_ORIGINAL_ENTRYPOINT"
	EnvDontRunCmd         = "RIPTIDE__DOCKER_DONT_RUN_CMD"
	EnvUser               = "RIPTIDE__DOCKER_USER"
	EnvUserRun            = "RIPTIDE__DOCKER_USER_RUN"
	EnvGroup              = "RIPTIDE__DOCKER_GROUP"
	EnvRunMainCmdAsUser   = "RIPTIDE__DOCKER_RUN_MAIN_CMD_AS_USER"
	EnvCmdLoggingPrefix   = "RIPTIDE__DOCKER_CMD_LOGGING_"
	EnvNoStdoutRedirect   = "RIPTIDE__DOCKER_NO_STDOUT_REDIRECT"
)

// Labels put on managed containers.
const (
	LabelIsRiptide = "riptide"
	LabelProject   = "riptide_project"
	LabelService   = "riptide_service"
	LabelMain      = "riptide_main"
	LabelPort      = "riptide_port"
)

// Entrypoint is an image entrypoint: absent, exec form or shell form.
type Entrypoint struct {
	Exec  []string
	Shell string
}

// ExecEntrypoint returns an exec-form entrypoint.
func ExecEntrypoint(argv ...string) Entrypoint {
	return Entrypoint{Exec: argv}
}

// ShellEntrypoint returns a shell-form entrypoint.
func ShellEntrypoint(s string) Entrypoint {
	return Entrypoint{Shell: s}
}

// IsZero reports whether the image declares no entrypoint.
func (e Entrypoint) IsZero() bool {
	return len(e.Exec) == 0 && e.Shell == ""
}

// ImageConfig is the image metadata the builder needs.
type ImageConfig struct {
	Entrypoint Entrypoint
	User       string
	Labels     map[string]string
}

// ParseEntrypoint translates an image entrypoint into the wrapper's
// environment. The wrapper re-executes an exec-form entrypoint and then
// runs the main command. A shell-form entrypoint swallows the command as
// its arguments, so the wrapper must not run it separately.
func ParseEntrypoint(e Entrypoint) map[string]string {
	switch {
	case len(e.Exec) > 0:
		return map[string]string{
			EnvOriginalEntrypoint: joinQuoted(e.Exec[0], e.Exec[1:]),
		}
	case e.Shell != "":
		return map[string]string{
			EnvOriginalEntrypoint: "/bin/sh -c " + e.Shell,
			EnvDontRunCmd:         "true",
		}
	default:
		return map[string]string{EnvOriginalEntrypoint: ""}
	}
}

// EnableEntrypointOverride replaces the image entrypoint with the wrapper
// script. The wrapper starts as root and drops privileges itself.
func (b *Builder) EnableEntrypointOverride(img ImageConfig) *Builder {
	b.runAsRoot = true
	b.SetMount(b.entrypointScript, EntrypointContainerPath, ModeReadOnly)
	for k, v := range ParseEntrypoint(img.Entrypoint) {
		b.SetEnv(k, v)
	}
	return b.SetEntrypoint(EntrypointContainerPath)
}
