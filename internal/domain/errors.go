// Package domain contains error types and sentinels shared across the
// share index core.
package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions across the share index.
var (
	// ErrScanInProgress is returned when a scan is requested while one is
	// already running. The scan mutex is non-blocking, so this is returned
	// immediately rather than the caller waiting.
	ErrScanInProgress = errors.New("share scan already in progress")

	// ErrNotFound is returned when a masked filename cannot be resolved,
	// either because it is unknown to the index or because the underlying
	// file is missing from disk.
	ErrNotFound = errors.New("file not found")

	// ErrSchemaInvalid is returned by TryValidate-style checks when the
	// live repository schema lacks an expected table or carries a
	// different schema version.
	ErrSchemaInvalid = errors.New("repository schema invalid")

	// ErrNoShareMatches is returned when resolving a masked path fails to
	// find a share whose remote path prefixes it.
	ErrNoShareMatches = errors.New("no share matches path")

	// ErrAliasCollision is returned when two non-excluded shares normalize
	// to the same alias.
	ErrAliasCollision = errors.New("share alias collision")
)

// ScanInProgressError wraps ErrScanInProgress with operational context.
type ScanInProgressError struct {
	Op string
}

func (e *ScanInProgressError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, ErrScanInProgress)
}

func (e *ScanInProgressError) Unwrap() error { return ErrScanInProgress }

// NewScanInProgressError builds a ScanInProgressError for the given operation.
func NewScanInProgressError(op string) *ScanInProgressError {
	return &ScanInProgressError{Op: op}
}

// ShareInitializationError is returned when Initialize can locate neither a
// valid primary repository nor a valid backup to restore from.
type ShareInitializationError struct {
	Op  string
	Err error
}

func (e *ShareInitializationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("share initialization failed during %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("share initialization failed during %s", e.Op)
}

func (e *ShareInitializationError) Unwrap() error { return e.Err }

// NewShareInitializationError wraps the cause of an initialization failure.
func NewShareInitializationError(op string, err error) *ShareInitializationError {
	return &ShareInitializationError{Op: op, Err: err}
}

// NotFoundError wraps ErrNotFound with the masked name that failed to resolve.
type NotFoundError struct {
	MaskedName string
	Err        error
}

func (e *NotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolve %q: %v", e.MaskedName, e.Err)
	}
	return fmt.Sprintf("resolve %q: %v", e.MaskedName, ErrNotFound)
}

func (e *NotFoundError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrNotFound
}

// NewNotFoundError builds a NotFoundError for a masked name.
func NewNotFoundError(maskedName string) *NotFoundError {
	return &NotFoundError{MaskedName: maskedName, Err: ErrNotFound}
}

// SchemaInvalidError wraps ErrSchemaInvalid with the list of problems found.
type SchemaInvalidError struct {
	Problems []string
}

func (e *SchemaInvalidError) Error() string {
	return fmt.Sprintf("repository schema invalid: %v", e.Problems)
}

func (e *SchemaInvalidError) Unwrap() error { return ErrSchemaInvalid }

// NewSchemaInvalidError builds a SchemaInvalidError carrying the problem list.
func NewSchemaInvalidError(problems []string) *SchemaInvalidError {
	return &SchemaInvalidError{Problems: problems}
}
