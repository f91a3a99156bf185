package container

import (
	"strconv"

	"github.com/artpar/riptide-engine/internal/core/project"
)

// InitFromService applies a service document: entrypoint override, volumes,
// environment, labels, additional ports, logging commands and the user
// settings of the wrapper. The main port is left to AddMainPort.
func (b *Builder) InitFromService(svc *project.Service, img ImageConfig) *Builder {
	b.initCommon(svc, img)

	for k, v := range ServiceLabels(svc) {
		b.SetLabel(k, v)
	}
	for container, host := range svc.CollectPorts() {
		b.SetPort(container, host)
	}
	for k, v := range LoggingEnv(svc) {
		b.SetEnv(k, v)
	}
	for k, v := range UserEnv(svc, b.uid, b.gid, img) {
		b.SetEnv(k, v)
	}
	return b
}

// InitFromCommand applies a command document: entrypoint override, volumes
// and environment.
func (b *Builder) InitFromCommand(cmd *project.Command, img ImageConfig) *Builder {
	return b.initCommon(cmd, img)
}

func (b *Builder) initCommon(doc project.Document, img ImageConfig) *Builder {
	b.EnableEntrypointOverride(img)
	for host, vol := range doc.CollectVolumes() {
		b.SetMount(host, vol.Bind, vol.Mode)
	}
	for k, v := range doc.CollectEnvironment() {
		b.SetEnv(k, v)
	}
	return b
}

// AddMainPort publishes the service's main port on the first free host
// port at or above the builder's port base and records it in a label.
// Services without a main port are left untouched.
//
// The lookup and the later bind are not atomic. Callers starting several
// services at once must hold one lock from this call until the container
// has started.
func (b *Builder) AddMainPort(svc *project.Service) (*Builder, error) {
	if !svc.HasPort() {
		return b, nil
	}
	host, err := b.findPort(b.portBase)
	if err != nil {
		return b, err
	}
	b.SetLabel(LabelPort, strconv.Itoa(host))
	b.SetPort(svc.Port, host)
	return b, nil
}

// ServiceLabels returns the labels identifying a service container.
func ServiceLabels(svc *project.Service) map[string]string {
	main := "0"
	if svc.HasRole(project.RoleMain) {
		main = "1"
	}
	return map[string]string{
		LabelIsRiptide: "1",
		LabelProject:   svc.ProjectName(),
		LabelService:   svc.Name,
		LabelMain:      main,
	}
}

// LoggingEnv returns one environment entry per logging command.
func LoggingEnv(svc *project.Service) map[string]string {
	env := make(map[string]string, len(svc.Logging.Commands))
	for name, command := range svc.Logging.Commands {
		env[EnvCmdLoggingPrefix+name] = command
	}
	return env
}

// UserEnv returns the wrapper settings deciding which user runs the main
// command.
func UserEnv(svc *project.Service, uid, gid int, img ImageConfig) map[string]string {
	env := make(map[string]string)
	if !svc.DontCreateUser {
		env[EnvUser] = strconv.Itoa(uid)
		env[EnvGroup] = strconv.Itoa(gid)
	}

	switch {
	case svc.RunAsCurrentUser:
		env[EnvRunMainCmdAsUser] = "yes"
	case img.User != "":
		env[EnvRunMainCmdAsUser] = "yes"
		env[EnvUserRun] = img.User
	}
	return env
}
