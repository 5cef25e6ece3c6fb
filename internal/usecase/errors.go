package usecase

import (
	"context"
	"errors"
	"fmt"

	"lex-bot-deploy/internal/domain"
	"lex-bot-deploy/internal/retry"
)

type ErrorCode string

const (
	ErrorInvalidInput        ErrorCode = "INVALID_INPUT"
	ErrorConflict            ErrorCode = "CONFLICT"
	ErrorNotFound            ErrorCode = "NOT_FOUND"
	ErrorRemoteFailed        ErrorCode = "REMOTE_FAILED"
	ErrorStillPending        ErrorCode = "STILL_PENDING"
	ErrorEndpointUnreachable ErrorCode = "ENDPOINT_UNREACHABLE"
	ErrorUpstream            ErrorCode = "UPSTREAM_ERROR"
	ErrorInternal            ErrorCode = "INTERNAL_ERROR"
)

// regionHint is attached to ENDPOINT_UNREACHABLE errors.
const regionHint = "Amazon Lex (V1 model building) is only offered in some regions; check that it is available in the configured region"

type Error struct {
	Code   ErrorCode
	Reason string
	Hint   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Hint != "" {
		msg += " [" + e.Hint + "]"
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// classify turns a failed step into an *Error whose code follows the kind of
// err. reason names the step.
func classify(reason string, err error) *Error {
	var (
		ue      *Error
		failed  *retry.RemoteFailedError
		pending *retry.StillPendingError
	)
	switch {
	case errors.As(err, &ue):
		return ue
	case errors.Is(err, domain.ErrEndpointUnreachable):
		e := newError(ErrorEndpointUnreachable, reason, err)
		e.Hint = regionHint
		return e
	case errors.As(err, &failed):
		return newError(ErrorRemoteFailed, reason, err)
	case errors.As(err, &pending):
		return newError(ErrorStillPending, reason, err)
	case errors.Is(err, domain.ErrConflict):
		return newError(ErrorConflict, reason, err)
	case errors.Is(err, domain.ErrNotFound):
		return newError(ErrorNotFound, reason, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newError(ErrorInternal, reason, err)
	default:
		return newError(ErrorUpstream, reason, err)
	}
}

// CodeOf returns the code of err, or ErrorInternal when err is not an *Error.
func CodeOf(err error) ErrorCode {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Code
	}
	return ErrorInternal
}
