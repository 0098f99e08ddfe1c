package channel

import (
	"encoding/json"
	"errors"
	"fmt"
	"go/token"
	"reflect"
)

// MethodConnect is the method name of the handshake message.
const MethodConnect = "connect"

// ErrCodeInvalidParams is reported when an inbound call's params is not a list.
const ErrCodeInvalidParams = "InvalidParams"

// ErrCodePanic is reported when a handler panics.
const ErrCodePanic = "HandlerPanic"

// Call is a method invocation carried in either direction.
type Call struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
}

// inboundCall is a peer → host message before params validation.
type inboundCall struct {
	Source string          `json:"source"`
	Method string          `json:"method"`
	CallID string          `json:"callId"`
	Params json.RawMessage `json:"params"`
}

// result is a successful response. Result is always present, even when null.
type result struct {
	ID     string `json:"id"`
	Result any    `json:"result"`
}

// failure is an error response.
type failure struct {
	ID    string    `json:"id"`
	Error *RPCError `json:"error"`
}

// RPCError is the error shape sent to the peer. Handlers may return it (or
// any error implementing ErrorCode) to control the reported code.
type RPCError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorCode implements the coded-error convention used by toRPCError.
func (e *RPCError) ErrorCode() string {
	return e.Code
}

// ErrorData implements the data-carrying convention used by toRPCError.
func (e *RPCError) ErrorData() any {
	return e.Data
}

// toRPCError serializes a handler failure. The code is the error's explicit
// code when it has one, otherwise the error's exported Go type name, or
// "Error" for unexported types such as those behind errors.New.
func toRPCError(err error) *RPCError {
	out := &RPCError{Code: errorCode(err), Message: err.Error()}

	var withData interface{ ErrorData() any }
	if errors.As(err, &withData) {
		out.Data = withData.ErrorData()
	}
	return out
}

func errorCode(err error) string {
	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) {
		if code := coded.ErrorCode(); code != "" {
			return code
		}
	}
	return typeName(err)
}

func typeName(v any) string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || !token.IsExported(t.Name()) {
		return "Error"
	}
	return t.Name()
}

// decodeParams parses a call's params, which must be a JSON array.
// A missing params member is treated as an empty list.
func decodeParams(raw json.RawMessage) ([]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []any{}, nil
	}
	var params []any
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &RPCError{Code: ErrCodeInvalidParams, Message: "params must be an array"}
	}
	return params, nil
}

// encodeCall marshals a host → peer call. Nil params encode as [].
func encodeCall(c Call) ([]byte, error) {
	if c.Params == nil {
		c.Params = []any{}
	}
	return json.Marshal(c)
}

// handshakeData merges the correlation id into the caller's handshake object.
func handshakeData(id string, data any) (map[string]any, error) {
	out := map[string]any{}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode handshake data: %w", err)
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("handshake data must encode as a JSON object: %w", err)
		}
		if out == nil {
			out = map[string]any{}
		}
	}
	out["id"] = id
	return out, nil
}
