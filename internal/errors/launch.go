// ABOUTME: Launch errors for the query-server subprocess
// ABOUTME: Used when the engine executable cannot be found or spawned

package errors

import (
	"fmt"
	"strings"
)

type LaunchError struct {
	Command string
	Args    []string
	Cause   error
}

func NewLaunchError(command string, args []string, cause error) *LaunchError {
	return &LaunchError{Command: command, Args: args, Cause: cause}
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch query server %q: %v", e.Command, e.Cause)
}

func (e *LaunchError) Unwrap() error {
	return e.Cause
}

func (e *LaunchError) ToJSONRPCError() JSONRPCError {
	return JSONRPCError{
		Code:    ServerError,
		Message: e.Error(),
		Data: map[string]interface{}{
			"error_type":  "launch_failed",
			"explanation": "The relay could not start the CodeQL query server subprocess.",
			"possible_causes": []string{
				"The CodeQL CLI is not installed or not on PATH",
				"engine.codeql_path points at a missing or non-executable file",
				"The container image for container mode is missing",
			},
			"suggested_actions": []string{
				fmt.Sprintf("Check the CLI runs: %s version", e.Command),
				"Set CODEQL_PATH or engine.codeql_path in config.yaml",
				"Run 'codeql-relay detect' to locate an installation",
			},
			"relevant_state": map[string]interface{}{
				"command": e.Command,
				"args":    strings.Join(e.Args, " "),
			},
			"recoverable": true,
		},
	}
}
