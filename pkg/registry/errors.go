package registry

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindEmptyInput      ErrorKind = "EmptyInput"
	KindTooLong         ErrorKind = "TooLong"
	KindPaused          ErrorKind = "Paused"
	KindNotFound        ErrorKind = "NotFound"
	KindUnauthorized    ErrorKind = "Unauthorized"
	KindInvalidArgument ErrorKind = "InvalidArgument"
	KindStorage         ErrorKind = "Storage"
)

// Error is the error type returned by registry operations.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (errorValue *Error) Error() string {
	message := errorValue.Message
	if message == "" {
		message = string(errorValue.Kind)
	}
	if errorValue.Err != nil {
		return fmt.Sprintf("%s: %v", message, errorValue.Err)
	}
	return message
}

func (errorValue *Error) Unwrap() error {
	return errorValue.Err
}

// Is matches any *Error with the same kind, so the sentinels below work with errors.Is.
func (errorValue *Error) Is(target error) bool {
	targetError, ok := target.(*Error)
	if !ok {
		return false
	}
	return targetError.Kind == errorValue.Kind
}

var (
	ErrEmptyInput      = &Error{Kind: KindEmptyInput}
	ErrTooLong         = &Error{Kind: KindTooLong}
	ErrPaused          = &Error{Kind: KindPaused}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrUnauthorized    = &Error{Kind: KindUnauthorized}
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
	ErrStorage         = &Error{Kind: KindStorage}
)

// KindOf returns the registry error kind carried by err, or "" when err is not a registry error.
func KindOf(err error) ErrorKind {
	var registryError *Error
	if errors.As(err, &registryError) {
		return registryError.Kind
	}
	return ""
}

func newError(kind ErrorKind, message string) error {
	return &Error{Kind: kind, Message: message}
}

func newStorageError(message string, err error) error {
	return &Error{Kind: KindStorage, Message: message, Err: err}
}

func notFoundError(id uint64) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("poem %d does not exist", id)}
}
