// ABOUTME: Framing errors raised while decoding the Content-Length stream
// ABOUTME: Recovered locally by the reader; never fatal to the connection

package errors

import "fmt"

type FramingError struct {
	Reason string
	Header string
	Cause  error
}

func NewFramingError(reason, header string, cause error) *FramingError {
	return &FramingError{Reason: reason, Header: header, Cause: cause}
}

func (e *FramingError) Error() string {
	msg := "framing error: " + e.Reason
	if e.Header != "" {
		msg += fmt.Sprintf(" (header %q)", e.Header)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

func (e *FramingError) Unwrap() error {
	return e.Cause
}

func (e *FramingError) ToJSONRPCError() JSONRPCError {
	return JSONRPCError{
		Code:    ServerError,
		Message: e.Error(),
		Data: map[string]interface{}{
			"error_type":  "framing_error",
			"explanation": "A message from the query server had a malformed header or body and was skipped.",
			"possible_causes": []string{
				"The engine wrote non-protocol output to stdout",
				"The engine process was killed mid-message",
			},
			"suggested_actions": []string{
				"Check the relay logs for engine stderr output",
				"Restart the relay if framing errors repeat",
			},
			"recoverable": true,
		},
	}
}
