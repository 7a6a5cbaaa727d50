package core

import (
	"errors"
	"maps"
	"net/http"
)

type ErrorCode int

const (
	ErrorCodeInternal ErrorCode = iota
	ErrorCodeValidation
	ErrorCodeConflict
	ErrorCodeNotFound
	// ErrorCodeRemoteUnavailable covers every failed call to the remote store.
	ErrorCodeRemoteUnavailable
)

var codeNames = map[ErrorCode]string{
	ErrorCodeInternal:          "internal",
	ErrorCodeValidation:        "validation",
	ErrorCodeConflict:          "conflict",
	ErrorCodeNotFound:          "not_found",
	ErrorCodeRemoteUnavailable: "remote_unavailable",
}

var codeStatus = map[ErrorCode]int{
	ErrorCodeValidation:        http.StatusBadRequest,
	ErrorCodeConflict:          http.StatusConflict,
	ErrorCodeNotFound:          http.StatusNotFound,
	ErrorCodeRemoteUnavailable: http.StatusServiceUnavailable,
}

func (c ErrorCode) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return "unknown"
}

// AppError is the error every store operation surfaces.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error

	Operation string
	Meta      map[string]string
	// RetryPolicy marks failures the user may retry, e.g. a page fetch.
	RetryPolicy bool
	// SafeToShow says Message may reach the user.
	SafeToShow bool
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && e.Code == t.Code
}

func (e *AppError) HTTPStatus() int {
	if e == nil {
		return http.StatusInternalServerError
	}
	if s, ok := codeStatus[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func (e *AppError) PublicMessage() string {
	if e == nil || !e.SafeToShow {
		return "internal error"
	}
	return e.Message
}

// Clone copies the error, Meta included.
func (e *AppError) Clone() *AppError {
	if e == nil {
		return nil
	}
	c := *e
	if e.Meta != nil {
		c.Meta = maps.Clone(e.Meta)
	}
	return &c
}

// WithOper returns a copy carrying operation o.
func (e *AppError) WithOper(o string) *AppError {
	if e == nil {
		return nil
	}
	c := e.Clone()
	c.Operation = o
	return c
}

// WithMeta returns a copy with k=v added to Meta.
func (e *AppError) WithMeta(k, v string) *AppError {
	if e == nil {
		return nil
	}
	c := e.Clone()
	if c.Meta == nil {
		c.Meta = make(map[string]string, 1)
	}
	c.Meta[k] = v
	return c
}

func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if err != nil && errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode reports whether err is an AppError with the given code.
func IsCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// Retryable reports whether err asks for a retry on user action.
func Retryable(err error) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.RetryPolicy
}

type AppErrorBuilder struct {
	e AppError
}

func NewAppErrorBuilder(code ErrorCode) *AppErrorBuilder {
	return &AppErrorBuilder{e: AppError{Code: code}}
}

func (b *AppErrorBuilder) Message(m string) *AppErrorBuilder {
	b.e.Message = m
	return b
}

func (b *AppErrorBuilder) Err(err error) *AppErrorBuilder {
	b.e.Err = err
	return b
}

func (b *AppErrorBuilder) Oper(o string) *AppErrorBuilder {
	b.e.Operation = o
	return b
}

func (b *AppErrorBuilder) Meta(k, v string) *AppErrorBuilder {
	if b.e.Meta == nil {
		b.e.Meta = make(map[string]string, 1)
	}
	b.e.Meta[k] = v
	return b
}

func (b *AppErrorBuilder) RetryPolicy(r bool) *AppErrorBuilder {
	b.e.RetryPolicy = r
	return b
}

func (b *AppErrorBuilder) SafeToShow(safe bool) *AppErrorBuilder {
	b.e.SafeToShow = safe
	return b
}

// Build returns the error. The builder can be reused; later calls do not
// share Meta with earlier results.
func (b *AppErrorBuilder) Build() *AppError {
	e := b.e
	b.e.Meta = maps.Clone(b.e.Meta)
	return &e
}

func NewTaskInternalError(message string, err error, op string) *AppError {
	return NewAppErrorBuilder(ErrorCodeInternal).
		Message(message).
		Err(err).
		Oper(op).
		Build()
}

// NewTaskValidationError rejects input before any index is touched.
func NewTaskValidationError(message string, err error, op string) *AppError {
	return NewAppErrorBuilder(ErrorCodeValidation).
		Message(message).
		Err(err).
		Oper(op).
		SafeToShow(true).
		Build()
}

// NewTaskConflictError reports an id already present in the index.
func NewTaskConflictError(taskID string, op string) *AppError {
	return NewAppErrorBuilder(ErrorCodeConflict).
		Message("task " + taskID + " already indexed").
		Meta("task_id", taskID).
		Oper(op).
		SafeToShow(true).
		Build()
}

func NewTaskNotFoundError(taskID string, op string) *AppError {
	return NewAppErrorBuilder(ErrorCodeNotFound).
		Message("task " + taskID + " not found").
		Meta("task_id", taskID).
		Oper(op).
		SafeToShow(true).
		Build()
}

// NewRemoteUnavailableError reports a failed call to the remote store.
// Local state was rolled back or left untouched, so the user may retry.
func NewRemoteUnavailableError(message string, err error, op string) *AppError {
	return NewAppErrorBuilder(ErrorCodeRemoteUnavailable).
		Message(message).
		Err(err).
		Oper(op).
		RetryPolicy(true).
		SafeToShow(true).
		Build()
}
