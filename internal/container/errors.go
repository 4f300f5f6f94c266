// ABOUTME: Container-specific error types with helpful messages
// ABOUTME: Provides actionable error messages for Docker issues

package container

import (
	"fmt"

	"github.com/harper/codeql-relay/internal/errors"
)

type ContainerError struct {
	Type    string
	Message string
	Actions []string
	Cause   error
}

func (e *ContainerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ContainerError) Unwrap() error {
	return e.Cause
}

func (e *ContainerError) ToJSONRPCError() errors.JSONRPCError {
	return errors.JSONRPCError{
		Code:    errors.ServerError,
		Message: e.Error(),
		Data: map[string]interface{}{
			"error_type":        e.Type,
			"explanation":       e.Message,
			"suggested_actions": e.Actions,
			"recoverable":       true,
		},
	}
}

func NewDockerUnavailableError(cause error) *ContainerError {
	return &ContainerError{
		Type:    "docker_unavailable",
		Message: "Cannot connect to Docker daemon. Is Docker running? Check: docker ps",
		Actions: []string{
			"Start Docker (or Colima/Podman) and retry",
			"Set engine.container.docker_host if the socket is not in the default location",
			"Switch engine.mode to 'process' to run the CLI locally",
		},
		Cause: cause,
	}
}

func NewImageNotFoundError(image string, cause error) *ContainerError {
	return &ContainerError{
		Type:    "image_not_found",
		Message: fmt.Sprintf("Docker image '%s' not found. Build or pull it with:\n  docker pull %s", image, image),
		Actions: []string{fmt.Sprintf("docker pull %s", image), "Check engine.container.image in config.yaml"},
		Cause:   cause,
	}
}

func NewAttachFailedError(cause error) *ContainerError {
	return &ContainerError{
		Type:    "attach_failed",
		Message: "Failed to attach to container stdio",
		Actions: []string{"Check the container did not exit immediately: docker logs <container>"},
		Cause:   cause,
	}
}

func NewMountError(mount string, cause error) *ContainerError {
	return &ContainerError{
		Type:    "invalid_mount",
		Message: fmt.Sprintf("Cannot mount '%s' into the engine container", mount),
		Actions: []string{"Mounts must be existing host directories, optionally suffixed with :ro"},
		Cause:   cause,
	}
}
