package jsonrpc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	msg, err := Parse([]byte(`{
		"jsonrpc": "2.0",
		"method": "evaluation/runQuery",
		"params": {"progressId": 1},
		"id": 1
	}`))
	require.NoError(t, err)

	assert.Equal(t, "2.0", msg.JSONRPC)
	assert.Equal(t, "evaluation/runQuery", msg.Method)
	assert.Equal(t, KindRequest, msg.Kind())

	id, ok := msg.IntID()
	require.True(t, ok)
	assert.Equal(t, int64(1), id)
}

func TestParseResponse(t *testing.T) {
	msg, err := Parse([]byte(`{"jsonrpc": "2.0", "result": {"resultType": 0}, "id": 7}`))
	require.NoError(t, err)

	assert.Equal(t, KindResponse, msg.Kind())
	assert.NotNil(t, msg.Result)
	id, ok := msg.IntID()
	require.True(t, ok)
	assert.Equal(t, int64(7), id)
}

func TestParseError(t *testing.T) {
	msg, err := Parse([]byte(`{
		"jsonrpc": "2.0",
		"error": {
			"code": -32600,
			"message": "Invalid request",
			"data": {"detail": "test"}
		},
		"id": 1
	}`))
	require.NoError(t, err)

	require.NotNil(t, msg.Error)
	assert.Equal(t, -32600, msg.Error.Code)
	assert.Equal(t, KindResponse, msg.Kind())
	assert.Contains(t, msg.Error.Error(), "Invalid request")
}

func TestKindClassification(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Kind
	}{
		{"notification", `{"jsonrpc":"2.0","method":"ql/progressUpdated","params":{"id":1}}`, KindNotification},
		{"null id notification", `{"jsonrpc":"2.0","method":"evaluation/progress","id":null}`, KindNotification},
		{"result and error", `{"jsonrpc":"2.0","id":1,"result":{},"error":{"code":1,"message":"x"}}`, KindInvalid},
		{"neither result nor error", `{"jsonrpc":"2.0","id":1}`, KindInvalid},
		{"empty", `{}`, KindInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Parse([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.Kind())
		})
	}
}

func TestStringNumericID(t *testing.T) {
	msg, err := Parse([]byte(`{"jsonrpc":"2.0","id":"42","result":null}`))
	require.NoError(t, err)

	id, ok := msg.IntID()
	require.True(t, ok)
	assert.Equal(t, int64(42), id)
}

func TestNewRequestMarshalsParams(t *testing.T) {
	req, err := NewRequest(3, "evaluation/registerDatabases", map[string]interface{}{"progressId": 9})
	require.NoError(t, err)

	raw, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"evaluation/registerDatabases","params":{"progressId":9},"id":3}`, string(raw))
}
