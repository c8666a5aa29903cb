// Auditkeep - Audit Integrity and Retention Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditkeep

package audit

import (
	"errors"
	"fmt"
)

// Sentinel errors. Match with errors.Is.
var (
	// ErrNotFound is returned when a referenced record, hash, policy, event or job is absent.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned when input violates an invariant.
	ErrValidation = errors.New("validation error")

	// ErrInvalidFormat is returned when an archive file does not contain a list of records.
	// It is a ValidationError.
	ErrInvalidFormat = fmt.Errorf("%w: invalid format", ErrValidation)

	// ErrStore is returned when the underlying persistence call failed.
	ErrStore = errors.New("store error")

	// ErrIO is returned when a filesystem or compression step failed.
	ErrIO = errors.New("io error")
)

// NotFoundf returns an error wrapping ErrNotFound.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

// Validationf returns an error wrapping ErrValidation.
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// StoreError wraps a native persistence error with the failed operation.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrStore) true for every StoreError.
func (e *StoreError) Is(target error) bool { return target == ErrStore }

// WrapStore wraps err in a StoreError unless it is nil or already a
// NotFound or StoreError.
func WrapStore(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// IOError wraps a filesystem or compression failure.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrIO) true for every IOError.
func (e *IOError) Is(target error) bool { return target == ErrIO }
