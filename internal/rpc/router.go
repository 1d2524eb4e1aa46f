package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
)

// routeFunc is the type-erased form every registered handler is reduced to.
type routeFunc[C any] func(ctx context.Context, rc C, params json.RawMessage) (any, *Error)

// Router is a method-name → handler table shared across sessions of one
// kind (agent or dashboard). C is the per-connection context type passed to
// every handler (e.g. *dashboard.Context).
type Router[C any] struct {
	table map[string]routeFunc[C]
}

// NewRouter returns an empty router.
func NewRouter[C any]() *Router[C] {
	return &Router[C]{table: make(map[string]routeFunc[C])}
}

// Handle registers a typed handler taking a decoded Args value and
// returning a Result.
func Handle[C, Args, Result any](r *Router[C], method string, fn func(ctx context.Context, rc C, args Args) (Result, error)) {
	r.table[method] = func(ctx context.Context, rc C, raw json.RawMessage) (any, *Error) {
		var args Args
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, newRawError(CodeInvalidParams, fmt.Sprintf("invalid params: %v", err))
			}
		}
		result, err := fn(ctx, rc, args)
		if err != nil {
			return nil, toRPCError(err)
		}
		return result, nil
	}
}

// HandleNoArgs registers a handler that ignores inbound params (used for
// e.g. ping, dashboard_getNetwork, log_getTargets).
func HandleNoArgs[C, Result any](r *Router[C], method string, fn func(ctx context.Context, rc C) (Result, error)) {
	r.table[method] = func(ctx context.Context, rc C, _ json.RawMessage) (any, *Error) {
		result, err := fn(ctx, rc)
		if err != nil {
			return nil, toRPCError(err)
		}
		return result, nil
	}
}

// Dispatch looks up method and invokes it, marshaling the result to JSON.
// Unknown methods yield MethodNotFound; a nil/nil result is translated to
// an InternalError("API returns no value").
func (r *Router[C]) Dispatch(ctx context.Context, rc C, method string, params json.RawMessage) (json.RawMessage, *Error) {
	fn, ok := r.table[method]
	if !ok {
		return nil, newRawError(CodeMethodNotFound, fmt.Sprintf("method not found: %s", method))
	}

	result, rpcErr := fn(ctx, rc, params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if rv := reflect.ValueOf(result); result == nil || (rv.Kind() == reflect.Pointer && rv.IsNil()) {
		return nil, newRawError(CodeInternalError, "API returns no value")
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, newRawError(CodeInternalError, fmt.Sprintf("marshal result: %v", err))
	}
	return raw, nil
}

// Bound adapts a Router[C] plus a fixed per-connection context value into
// the plain Handler interface Conn.Serve expects — each Conn gets its own
// Bound wrapping the one Context built for that session.
type Bound[C any] struct {
	Router *Router[C]
	Ctx    C
}

func (b Bound[C]) Dispatch(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, *Error) {
	return b.Router.Dispatch(ctx, b.Ctx, method, params)
}

// toRPCError converts a plain Go error into a JSON-RPC error. A typed
// *Error anywhere in the chain — returned directly (client-not-found) or
// wrapped (an agent's inner JSON-RPC failure relayed by CallRPC) — passes
// through with its code and data preserved; everything else collapses to
// InternalError with the message.
func toRPCError(err error) *Error {
	if err == nil {
		return nil
	}
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return newRawError(CodeInternalError, err.Error())
}
