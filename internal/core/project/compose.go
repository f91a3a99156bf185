package project

import (
	"context"
	"strconv"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

// RolesLabel is the compose service label listing riptide roles,
// comma separated.
const RolesLabel = "riptide.roles"

// FromCompose imports a docker-compose document as a project. Only what the
// engine can express is kept: image, command, environment, bind mounts,
// ports and working directory. The first port without a published host
// port becomes the main port. dir resolves relative bind sources.
func FromCompose(content, name, dir string) (*Project, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyInput
	}

	cp, err := loadCompose(content, name)
	if err != nil {
		return nil, err
	}

	if len(cp.Secrets) > 0 {
		return nil, NewParseError("secrets", "secrets are not supported", ErrUnsupportedFeature)
	}
	if len(cp.Services) == 0 {
		return nil, ErrNoServices
	}

	p := &Project{
		Name: name,
		App: App{
			Name:     name,
			Services: make(map[string]*Service, len(cp.Services)),
		},
		dir: dir,
	}

	for svcName, svc := range cp.Services {
		converted, err := convertComposeService(svcName, svc)
		if err != nil {
			return nil, err
		}
		p.App.Services[svcName] = converted
	}

	p.link()
	if err := Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

func loadCompose(content, name string) (*types.Project, error) {
	var dict map[string]interface{}
	if err := yaml.Unmarshal([]byte(content), &dict); err != nil || dict == nil {
		return nil, NewParseError("", "invalid YAML syntax", ErrInvalidYAML)
	}

	cp, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{
				Content: []byte(content),
				Config:  dict,
			},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName(name, true)
		opts.SkipNormalization = true
		opts.SkipExtends = true
	})
	if err != nil {
		return nil, NewParseError("", err.Error(), ErrInvalidYAML)
	}
	return cp, nil
}

func convertComposeService(name string, svc types.ServiceConfig) (*Service, error) {
	if svc.Image == "" {
		return nil, NewParseError("services."+name+".image", "only image based services are supported", ErrUnsupportedFeature)
	}

	service := &Service{
		Image:            svc.Image,
		Environment:      make(map[string]string, len(svc.Environment)),
		WorkingDirectory: svc.WorkingDir,
	}

	if len(svc.Command) > 0 {
		service.Command = ArgvCommand(svc.Command...)
	}

	for k, v := range svc.Environment {
		if v != nil {
			service.Environment[k] = *v
		}
	}

	for _, v := range svc.Volumes {
		if !isBindVolume(v) {
			return nil, NewParseError("services."+name+".volumes", "named volumes are not supported", ErrUnsupportedFeature)
		}
		mode := "rw"
		if v.ReadOnly {
			mode = "ro"
		}
		service.Volumes = append(service.Volumes, VolumeDecl{Host: v.Source, Container: v.Target, Mode: mode})
	}

	for _, port := range svc.Ports {
		if port.Published == "" {
			if service.Port == 0 {
				service.Port = int(port.Target)
			}
			continue
		}
		host, err := strconv.Atoi(port.Published)
		if err != nil {
			return nil, NewParseError("services."+name+".ports", "published port must be a single port", ErrUnsupportedFeature)
		}
		service.AdditionalPorts = append(service.AdditionalPorts, AdditionalPort{
			Title:     strconv.Itoa(int(port.Target)),
			Container: int(port.Target),
			Host:      host,
		})
	}

	if roles, ok := svc.Labels[RolesLabel]; ok {
		for _, role := range strings.Split(roles, ",") {
			if role = strings.TrimSpace(role); role != "" {
				service.Roles = append(service.Roles, role)
			}
		}
	}

	return service, nil
}

func isBindVolume(v types.ServiceVolumeConfig) bool {
	switch v.Type {
	case types.VolumeTypeBind:
		return true
	case "":
		return strings.HasPrefix(v.Source, "./") || strings.HasPrefix(v.Source, "/") || strings.HasPrefix(v.Source, "~")
	default:
		return false
	}
}
