// ABOUTME: Error taxonomy for the query-server relay plus re-exported wrapping helpers
// ABOUTME: Typed errors carry LLM-oriented explanations and suggested actions

// Package errors holds the relay's typed failures and re-exports
// github.com/cockroachdb/errors for wrapping, so callers import one package:
//
//	if err := ch.Start(ctx); err != nil {
//	    return errors.Wrap(err, "query server unavailable")
//	}
//
//	var perr *errors.ProtocolError
//	if errors.As(err, &perr) { ... }
package errors

import (
	"encoding/json"

	crdb "github.com/cockroachdb/errors"
	"github.com/harper/codeql-relay/internal/jsonrpc"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	WithHint     = crdb.WithHint
	WithHintf    = crdb.WithHintf
)

// Error inspection
var (
	Is          = crdb.Is
	As          = crdb.As
	Unwrap      = crdb.Unwrap
	GetAllHints = crdb.GetAllHints
)

// ServerError is the implementation-defined JSON-RPC code used for relay failures.
const ServerError = jsonrpc.ServerError

// JSONRPCError is a structured error type for JSON-RPC responses.
type JSONRPCError struct {
	Code    int
	Message string
	Data    map[string]interface{}
}

// Wire converts the structured error into the envelope error object.
func (e JSONRPCError) Wire() *jsonrpc.Error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		data = []byte("{}")
	}
	return &jsonrpc.Error{Code: e.Code, Message: e.Message, Data: data}
}

// LLMError is implemented by every typed error in this package.
type LLMError interface {
	error
	ToJSONRPCError() JSONRPCError
}

// SuggestedActions collects suggested actions from the first typed error in
// the chain, followed by any hints attached with WithHint.
func SuggestedActions(err error) []string {
	if err == nil {
		return nil
	}
	var actions []string
	var typed LLMError
	if As(err, &typed) {
		if raw, ok := typed.ToJSONRPCError().Data["suggested_actions"].([]string); ok {
			actions = append(actions, raw...)
		}
	}
	return append(actions, GetAllHints(err)...)
}
