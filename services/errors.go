package services

import (
	"errors"
	"fmt"
)

// Code classifies arena failures so transports can map them.
type Code string

const (
	CodeNotFound            Code = "NOT_FOUND"
	CodeInvalidParticipant  Code = "INVALID_PARTICIPANT"
	CodeInvalidState        Code = "INVALID_STATE"
	CodeCommitmentMismatch  Code = "COMMITMENT_MISMATCH"
	CodePaymentFailed       Code = "PAYMENT_FAILED"
	CodeConcurrencyConflict Code = "CONCURRENCY_CONFLICT"
	CodeInvalidArgument     Code = "INVALID_ARGUMENT"
	CodeInternal            Code = "INTERNAL"
)

// Error is a classified arena error. Two Errors match with errors.Is when
// their codes are equal.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError builds an Error without a cause.
func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a code and message to an underlying cause.
func WrapError(cause error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// With returns a copy carrying an extra metadata pair.
func (e *Error) With(key, value string) *Error {
	out := *e
	out.Metadata = make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		out.Metadata[k] = v
	}
	out.Metadata[key] = value
	return &out
}

var (
	ErrMatchNotFound      = NewError(CodeNotFound, "match not found")
	ErrFighterNotFound    = NewError(CodeNotFound, "fighter not found")
	ErrUnknownPlayer      = NewError(CodeInvalidParticipant, "address is not a participant in this match")
	ErrNoCommitment       = NewError(CodeInvalidState, "no commitment recorded for this round")
	ErrCommitmentMismatch = NewError(CodeCommitmentMismatch, "revealed move and secret do not match the commitment")
	ErrPaymentFailed      = NewError(CodePaymentFailed, "payment failed")
	ErrConflict           = NewError(CodeConcurrencyConflict, "state changed concurrently, re-read and retry")
)

// CodeOf extracts the classification of err, defaulting to INTERNAL.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

func invalidArgument(format string, args ...any) *Error {
	return NewError(CodeInvalidArgument, format, args...)
}

func invalidState(format string, args ...any) *Error {
	return NewError(CodeInvalidState, format, args...)
}
