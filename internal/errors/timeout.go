// ABOUTME: Timeout errors for blocking waits on query-server operations
// ABOUTME: The engine operation itself keeps running after the wait gives up

package errors

import (
	"fmt"
	"time"
)

type TimeoutError struct {
	Operation string
	ID        int64
	Timeout   time.Duration
	Cause     error
}

func NewTimeoutError(operation string, id int64, timeout time.Duration, cause error) *TimeoutError {
	return &TimeoutError{Operation: operation, ID: id, Timeout: timeout, Cause: cause}
}

func (e *TimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("timed out after %s waiting for %s (request %d)", e.Timeout, e.Operation, e.ID)
	}
	return fmt.Sprintf("gave up waiting for %s (request %d): %v", e.Operation, e.ID, e.Cause)
}

func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

func (e *TimeoutError) ToJSONRPCError() JSONRPCError {
	return JSONRPCError{
		Code:    ServerError,
		Message: e.Error(),
		Data: map[string]interface{}{
			"error_type":  "wait_timeout",
			"explanation": "The relay stopped waiting for the operation. The query server may still be computing it and there is no cancel message in the protocol.",
			"possible_causes": []string{
				"The query is expensive for this database",
				"The configured request timeout is too short",
			},
			"suggested_actions": []string{
				"Use test_predicate to evaluate a smaller part of the query",
				"Raise engine.request_timeout_seconds",
			},
			"relevant_state": map[string]interface{}{
				"operation":  e.Operation,
				"request_id": e.ID,
				"timeout":    e.Timeout.String(),
			},
			"recoverable": true,
		},
	}
}
