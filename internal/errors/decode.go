// ABOUTME: BQRS decode failures from the one-shot bqrs decode command
// ABOUTME: Carries the exit code and captured stderr

package errors

import "fmt"

type DecodeError struct {
	Path     string
	Format   string
	ExitCode int
	Stderr   string
}

func NewDecodeError(path, format string, exitCode int, stderr string) *DecodeError {
	return &DecodeError{Path: path, Format: format, ExitCode: exitCode, Stderr: stderr}
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("Failed to decode BQRS: %s", e.Stderr)
}

func (e *DecodeError) ToJSONRPCError() JSONRPCError {
	return JSONRPCError{
		Code:    ServerError,
		Message: e.Error(),
		Data: map[string]interface{}{
			"error_type":  "bqrs_decode_failed",
			"explanation": "codeql bqrs decode exited with a non-zero status.",
			"possible_causes": []string{
				"The file is not a BQRS result set",
				"The evaluation that produced it did not finish",
			},
			"suggested_actions": []string{
				"Re-run evaluate_query or test_predicate and decode the new output",
				"Try --format=text to see the raw result sets",
			},
			"relevant_state": map[string]interface{}{
				"path":      e.Path,
				"format":    e.Format,
				"exit_code": e.ExitCode,
			},
			"recoverable": true,
		},
	}
}
