package docker

import (
	"errors"
	"strings"
)

// Daemon conditions the engine branches on. Other daemon errors are
// wrapped unchanged.
var (
	ErrConnectionFailed     = errors.New("docker connection failed")
	ErrContainerNotFound    = errors.New("container not found")
	ErrContainerNotRunning  = errors.New("container is not running")
	ErrNetworkAlreadyExists = errors.New("network already exists")
	ErrImageNotFound        = errors.New("image not found")
	ErrImagePullFailed      = errors.New("image pull failed")
)

// Project lookups, mapped to exit codes by the CLI.
var (
	ErrServiceNotFound         = errors.New("service not found")
	ErrCommandNotFound         = errors.New("command not found")
	ErrServiceStopped          = errors.New("service must be running")
	ErrContainerAlreadyRunning = errors.New("container is already running")
)

// DockerError names the engine operation that failed and what it acted on:
// an entity kind (container, network, image, service, command) and its id.
type DockerError struct {
	Op      string
	Entity  string
	ID      string
	Message string
	Err     error
}

func NewDockerError(op, entity, id, message string, err error) *DockerError {
	return &DockerError{Op: op, Entity: entity, ID: id, Message: message, Err: err}
}

// Error renders "op entity id: message", leaving out empty parts.
func (e *DockerError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	for _, part := range []string{e.Entity, e.ID} {
		if part != "" {
			b.WriteByte(' ')
			b.WriteString(part)
		}
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

func (e *DockerError) Unwrap() error { return e.Err }
