package errors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Code codes.Code

const (
	CodeInvalidArgument    = Code(codes.InvalidArgument)
	CodeNotFound           = Code(codes.NotFound)
	CodeAlreadyExists      = Code(codes.AlreadyExists)
	CodeFailedPrecondition = Code(codes.FailedPrecondition)
	CodeAborted            = Code(codes.Aborted)
	CodeUnavailable        = Code(codes.Unavailable)
	CodeInternal           = Code(codes.Internal)
)

var code2http = map[Code]int{
	CodeInvalidArgument:    http.StatusBadRequest,
	CodeNotFound:           http.StatusNotFound,
	CodeAlreadyExists:      http.StatusConflict,
	CodeFailedPrecondition: http.StatusUnprocessableEntity,
	CodeAborted:            http.StatusConflict,
	CodeUnavailable:        http.StatusServiceUnavailable,
	CodeInternal:           http.StatusInternalServerError,
}

// Reasons distinguish errors sharing the same code.
const (
	ReasonEmptyQuiz          = "EMPTY_QUIZ"
	ReasonAlreadyQueued      = "ALREADY_QUEUED"
	ReasonAlreadyInMatch     = "ALREADY_IN_MATCH"
	ReasonNotQueued          = "NOT_QUEUED"
	ReasonNoSession          = "NO_SESSION"
	ReasonMissingMatchState  = "MISSING_MATCH_STATE"
	ReasonStorageUnavailable = "STORAGE_UNAVAILABLE"
)

// Sentinels for errors.Is. Returned errors carry their own message and cause.
var (
	ErrEmptyQuiz          = New(CodeFailedPrecondition, WithReason(ReasonEmptyQuiz))
	ErrAlreadyQueued      = New(CodeAlreadyExists, WithReason(ReasonAlreadyQueued))
	ErrAlreadyInMatch     = New(CodeAlreadyExists, WithReason(ReasonAlreadyInMatch))
	ErrNotQueued          = New(CodeNotFound, WithReason(ReasonNotQueued))
	ErrNoSession          = New(CodeNotFound, WithReason(ReasonNoSession))
	ErrMissingMatchState  = New(CodeAborted, WithReason(ReasonMissingMatchState))
	ErrStorageUnavailable = New(CodeUnavailable, WithReason(ReasonStorageUnavailable))
)

type Error struct {
	Code    Code   `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
	err     error
}

func New(code Code, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Message: codes.Code(code).String(),
	}

	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

func (e *Error) Error() string {
	s := fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
	if e.Reason != "" {
		s += fmt.Sprintf(", reason: %s", e.Reason)
	}
	if e.err != nil {
		s += fmt.Sprintf(", err: %s", e.err)
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

// Is matches another *Error with the same code and reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return e.Code == t.Code && e.Reason == t.Reason
}

func (e *Error) GRPCStatus() *status.Status {
	return status.New(codes.Code(e.Code), e.Message)
}

func (e *Error) HTTPStatusCode() int {
	if c, ok := code2http[e.Code]; ok {
		return c
	}

	return http.StatusInternalServerError
}

func Convert(err error) *Error {
	var e *Error
	if !errors.As(err, &e) {
		return Internal(err)
	}

	return e
}

func Internal(err error) *Error {
	return New(CodeInternal, WithCause(err))
}

// Unavailable wraps a storage failure. A nil err stays nil.
func Unavailable(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return New(CodeUnavailable,
		WithReason(ReasonStorageUnavailable),
		WithMessagef(format, args...),
		WithCause(err),
	)
}

type Option interface {
	apply(*Error)
}

type optionFunc func(*Error)

func (f optionFunc) apply(e *Error) {
	f(e)
}

func WithCause(err error) Option {
	return optionFunc(func(e *Error) {
		e.err = err
	})
}

func WithMessagef(format string, args ...any) Option {
	return optionFunc(func(e *Error) {
		e.Message = fmt.Sprintf(format, args...)
	})
}

func WithReason(reason string) Option {
	return optionFunc(func(e *Error) {
		e.Reason = reason
	})
}
