// SPDX-License-Identifier: BSD-3-Clause

// Package rpc implements the daemon's TCP control surface: a command
// registry (spec §4.G) and a newline-delimited JSON-RPC 2.0 server
// (spec §4.H) built on top of it. Framing and batch/notification
// semantics are grounded on the original implementation's
// RpcTcpServer.cpp; the registry is grounded on CommandRegistry.hpp,
// adapted to the standard `{jsonrpc,id,error:{code,message,data}}`
// error envelope instead of nesting it inside "result".
package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/linuxfancontrol/lfcd/pkg/config"
	"github.com/linuxfancontrol/lfcd/pkg/curve"
	"github.com/linuxfancontrol/lfcd/pkg/detect"
	"github.com/linuxfancontrol/lfcd/pkg/engine"
	"github.com/linuxfancontrol/lfcd/pkg/hwmon"
	"github.com/linuxfancontrol/lfcd/pkg/job"
	"github.com/linuxfancontrol/lfcd/pkg/profile"
	"github.com/linuxfancontrol/lfcd/pkg/sysfs"
)

// Request is one JSON-RPC 2.0 request object.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether req carries no id, and therefore
// expects no response.
func (r Request) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// ErrorObject is the JSON-RPC 2.0 error member.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Response is one JSON-RPC 2.0 response object.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

func newResult(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Result: result}
}

func newError(id json.RawMessage, code int, message string, data any) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Error: &ErrorObject{Code: code, Message: message, Data: data}}
}

// parseErrorResponse builds the fixed response JSON-RPC 2.0 mandates
// when a request body fails to parse at all: id is always null since
// no id could be recovered.
func parseErrorResponse() *Response {
	return newError(json.RawMessage("null"), CodeParseError, "Parse error", nil)
}

func invalidRequestResponse(id json.RawMessage, detail string) *Response {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return newError(id, CodeInvalidRequest, "Invalid Request: "+detail, nil)
}

// errToRPC maps a Go error returned by a handler to the JSON-RPC error
// code and message the spec §7 propagation policy calls for: NotFound
// handlers outside the registry lookup still resolve to an app code
// since -32601 is reserved for "method not found" at the dispatch
// layer, not domain not-found.
func errToRPC(method string, err error) *ErrorObject {
	switch {
	case errors.Is(err, ErrInvalidParams):
		return &ErrorObject{Code: CodeInvalidParams, Message: err.Error()}
	case errors.Is(err, hwmon.ErrDeviceNotFound),
		errors.Is(err, hwmon.ErrSensorNotFound),
		errors.Is(err, profile.ErrNotFound),
		errors.Is(err, job.ErrNotFound),
		errors.Is(err, sysfs.ErrNotFound):
		return &ErrorObject{Code: CodeNotFound, Message: err.Error()}
	case errors.Is(err, profile.ErrInvalidSchema),
		errors.Is(err, profile.ErrDuplicateCurveName),
		errors.Is(err, profile.ErrDuplicatePwm),
		errors.Is(err, profile.ErrInvalidCurve),
		errors.Is(err, curve.ErrUnresolvedReference),
		errors.Is(err, curve.ErrCycle),
		errors.Is(err, curve.ErrInvalidTrigger),
		errors.Is(err, curve.ErrUnknownKind),
		errors.Is(err, engine.ErrUnknownPwm),
		errors.Is(err, engine.ErrUnknownCurve),
		errors.Is(err, engine.ErrDuplicatePwm),
		errors.Is(err, engine.ErrDuplicateCurveName):
		return &ErrorObject{Code: CodeInvalidParams, Message: err.Error()}
	case errors.Is(err, config.ErrUnknownKey):
		return &ErrorObject{Code: CodeNotFound, Message: err.Error()}
	case errors.Is(err, config.ErrInvalidValue), errors.Is(err, config.ErrSaveFailed):
		return &ErrorObject{Code: CodeInvalidParams, Message: err.Error()}
	case errors.Is(err, sysfs.ErrPermissionDenied):
		return &ErrorObject{Code: CodePermission, Message: err.Error()}
	case errors.Is(err, sysfs.ErrIOFailure), errors.Is(err, sysfs.ErrInvalidValue):
		return &ErrorObject{Code: CodeIO, Message: err.Error()}
	case errors.Is(err, detect.ErrAlreadyRunning), errors.Is(err, job.ErrNotCancelable):
		return &ErrorObject{Code: CodeBusy, Message: err.Error()}
	case errors.Is(err, detect.ErrNotRunning):
		return &ErrorObject{Code: CodeInvalidState, Message: err.Error()}
	case errors.Is(err, job.ErrNotDone):
		// Spec §8: committing a non-done job is an unexpected caller/state
		// mismatch (the job manager only reaches this path after a status
		// check should have prevented it), so it is Internal, not a
		// domain invalid-state code.
		return &ErrorObject{Code: CodeInternalError, Message: err.Error()}
	default:
		return &ErrorObject{Code: CodeInternalError, Message: fmt.Sprintf("%s: %v", method, err)}
	}
}
