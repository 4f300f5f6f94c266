// ABOUTME: Not-found errors for symbols in query files and for input paths
// ABOUTME: The message always names the missing symbol or path

package errors

import (
	"fmt"
	"os"
)

// Kinds of missing things.
const (
	KindClass     = "class"
	KindPredicate = "predicate"
	KindFile      = "file"
)

type NotFoundError struct {
	Kind string
	Name string
	Path string
}

func NewSymbolNotFoundError(kind, name, path string) *NotFoundError {
	return &NotFoundError{Kind: kind, Name: name, Path: path}
}

func NewFileNotFoundError(path string) *NotFoundError {
	return &NotFoundError{Kind: KindFile, Path: path}
}

func (e *NotFoundError) Error() string {
	var msg string
	switch e.Kind {
	case KindClass:
		msg = fmt.Sprintf("Class name '%s' not found", e.Name)
	case KindPredicate:
		msg = fmt.Sprintf("Predicate name '%s' not found", e.Name)
	default:
		return fmt.Sprintf("file not found: %s", e.Path)
	}
	if e.Path != "" {
		msg += " in " + e.Path
	}
	return msg
}

// Unwrap lets errors.Is(err, os.ErrNotExist) match missing files.
func (e *NotFoundError) Unwrap() error {
	if e.Kind == KindFile {
		return os.ErrNotExist
	}
	return nil
}

func (e *NotFoundError) ToJSONRPCError() JSONRPCError {
	if e.Kind == KindFile {
		return JSONRPCError{
			Code:    ServerError,
			Message: e.Error(),
			Data: map[string]interface{}{
				"error_type":        "file_not_found",
				"explanation":       "An input path given to the relay does not exist.",
				"suggested_actions": []string{"Check the path is absolute and spelled correctly"},
				"relevant_state":    map[string]interface{}{"path": e.Path},
				"recoverable":       true,
			},
		}
	}
	return JSONRPCError{
		Code:    ServerError,
		Message: e.Error(),
		Data: map[string]interface{}{
			"error_type":  "symbol_not_found",
			"explanation": "No class or predicate declaration with that exact name exists in the query file.",
			"possible_causes": []string{
				"The name is misspelled or differs in case",
				"The symbol is declared in an imported library, not in this file",
			},
			"suggested_actions": []string{
				"Make sure the class or predicate name is correct",
				"Quick evaluation only works on symbols declared in the given file",
			},
			"relevant_state": map[string]interface{}{
				"kind": e.Kind,
				"name": e.Name,
				"path": e.Path,
			},
			"recoverable": true,
		},
	}
}
