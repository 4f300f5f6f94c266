// ABOUTME: Validation errors for query files and database directories
// ABOUTME: Raised before anything is sent to the query server

package errors

type ValidationError struct {
	Subject string
	Reason  string
}

func NewValidationError(subject, reason string) *ValidationError {
	return &ValidationError{Subject: subject, Reason: reason}
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func (e *ValidationError) ToJSONRPCError() JSONRPCError {
	return JSONRPCError{
		Code:    ServerError,
		Message: e.Error(),
		Data: map[string]interface{}{
			"error_type":  "validation_failed",
			"explanation": "The input failed a check that runs before the query server is contacted.",
			"suggested_actions": []string{
				"Query files must exist and end in .ql",
				"Databases must be directories containing src.zip",
				"Fix compile errors reported by 'codeql query compile --check-only'",
			},
			"relevant_state": map[string]interface{}{
				"subject": e.Subject,
			},
			"recoverable": true,
		},
	}
}
