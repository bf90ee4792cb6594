// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"errors"
	"fmt"
)

// ErrValidation is an error, which is returned when a request carries invalid
// or missing parameters.
var ErrValidation = errors.New("validation failed")

// ErrPrecondition is an error, which is returned when a resource referenced by
// a request does not exist.
var ErrPrecondition = errors.New("precondition failed")

// ErrGone is an error, which is returned when the state of a service instance
// has vanished.
var ErrGone = errors.New("gone")

// ErrConflict is an error, which is returned when a request conflicts with an
// existing resource.
var ErrConflict = errors.New("conflict")

// Error is an error returned by the brokers, which carries a message meant for
// the platform.
type Error struct {
	// Kind is one of [ErrValidation], [ErrPrecondition], [ErrGone] or
	// [ErrConflict].
	Kind error

	// Message is the human-readable description of the error.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the kind of the error.
func (e *Error) Unwrap() error {
	return e.Kind
}

// Errorf returns a new [Error] of the given kind with a formatted message.
func Errorf(kind error, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// Message returns the message to report to the platform for the given error.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}

	return err.Error()
}
