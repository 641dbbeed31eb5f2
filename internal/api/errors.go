package api

import (
	"context"
	"errors"
	"fmt"

	"blogclient/internal/state"
)

// Transport error codes, named after the ones browser HTTP clients report.
const (
	CodeNetwork     = "ERR_NETWORK"
	CodeCanceled    = "ERR_CANCELED"
	CodeTimeout     = "ECONNABORTED"
	CodeBadRequest  = "ERR_BAD_REQUEST"
	CodeBadResponse = "ERR_BAD_RESPONSE"
)

// Error is a failed call: either the transport gave up or the backend
// answered with a non-2xx status.
type Error struct {
	Status  int
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Status != 0 {
		return fmt.Sprintf("request failed with status code %d", e.Status)
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code != "" && e.Code == t.Code
}

// E builds a local error with a code, for failures raised before or
// after the transport.
func E(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func statusError(status int, env envelopeFields) *Error {
	e := &Error{Status: status, Code: env.code, Message: env.message}
	if e.Code == "" {
		if status >= 500 {
			e.Code = CodeBadResponse
		} else {
			e.Code = CodeBadRequest
		}
	}
	if e.Message == "" {
		e.Message = fmt.Sprintf("request failed with status code %d", status)
	}
	return e
}

func transportError(ctx context.Context, err error) *Error {
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return &Error{Code: CodeCanceled, Message: "request canceled", Cause: err}
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) || isTimeout(err):
		return &Error{Code: CodeTimeout, Message: "request timed out", Cause: err}
	default:
		return &Error{Code: CodeNetwork, Message: "network error: " + err.Error(), Cause: err}
	}
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// Normalize turns any error into a state.Failure. The message falls back
// to fallback and the code to state.CodeUnknown.
func Normalize(err error, fallback string) state.Failure {
	if err == nil {
		return state.Failure{Message: fallback, Code: state.CodeUnknown}
	}
	f := state.Failure{Message: err.Error(), Code: state.CodeUnknown}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		f.Message = apiErr.Error()
		if apiErr.Code != "" {
			f.Code = apiErr.Code
		}
	}
	if f.Message == "" {
		f.Message = fallback
	}
	return f
}
