package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Stage names a step of the pipeline.
type Stage string

// Pipeline stages, in execution order.
const (
	StageFetch    Stage = "fetch"
	StageInit     Stage = "init"
	StageSniff    Stage = "sniff"
	StageDecode   Stage = "decode"
	StageResolve  Stage = "resolve"
	StageResample Stage = "resample"
	StageEncode   Stage = "encode"
	StageHash     Stage = "hash"
)

// Error is a terminal pipeline failure. Status and Message are safe to
// return to the client; Err holds the underlying cause for logs.
type Error struct {
	Stage   Stage
	Status  int
	Message string
	// UpstreamStatus is the upstream HTTP status for fetch failures, when known.
	UpstreamStatus int
	Err            error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Internal reports whether the failure is a server-side fault that should
// be logged as an error. A request whose own context ended is not one.
func (e *Error) Internal() bool {
	if errors.Is(e.Err, context.Canceled) || errors.Is(e.Err, context.DeadlineExceeded) {
		return false
	}
	return e.Status >= http.StatusInternalServerError
}

func fail(stage Stage, status int, message string, err error) *Error {
	return &Error{Stage: stage, Status: status, Message: message, Err: err}
}
