// ABOUTME: Protocol errors carried by error-shaped query-server responses
// ABOUTME: Delivered to the waiting caller, never raised on the reader goroutine

package errors

import (
	"encoding/json"
	"fmt"
)

type ProtocolError struct {
	Method  string
	ID      int64
	Code    int
	Message string
	Data    json.RawMessage
}

func NewProtocolError(method string, id int64, code int, message string, data json.RawMessage) *ProtocolError {
	return &ProtocolError{Method: method, ID: id, Code: code, Message: message, Data: data}
}

func (e *ProtocolError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("query server error %d (request %d): %s", e.Code, e.ID, e.Message)
	}
	return fmt.Sprintf("query server error %d on %s (request %d): %s", e.Code, e.Method, e.ID, e.Message)
}

func (e *ProtocolError) ToJSONRPCError() JSONRPCError {
	return JSONRPCError{
		Code:    e.Code,
		Message: e.Error(),
		Data: map[string]interface{}{
			"error_type":  "query_server_error",
			"explanation": "The CodeQL query server answered the request with an error.",
			"possible_causes": []string{
				"The query does not compile against the database's language pack",
				"The database was not registered before evaluation",
				"A path in the request does not exist",
			},
			"suggested_actions": []string{
				"Read the error message for the compiler diagnostic",
				"Register the database with register_database first",
				"Use absolute paths to existing files",
			},
			"relevant_state": map[string]interface{}{
				"method":     e.Method,
				"request_id": e.ID,
			},
			"recoverable": true,
		},
	}
}
