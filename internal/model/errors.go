package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by storage backends when no record exists.
	ErrNotFound = errors.New("not found")
	// ErrUnknownFlag matches any *UnknownFlagError via errors.Is.
	ErrUnknownFlag = errors.New("unknown flag")
)

// UnknownFlagError is returned when toggling a flag name that does not exist.
type UnknownFlagError struct {
	Flag string
}

func (e *UnknownFlagError) Error() string {
	return fmt.Sprintf("unknown flag %q", e.Flag)
}

func (e *UnknownFlagError) Is(target error) bool {
	return target == ErrUnknownFlag
}

// ConfigurationError reports a missing or unreadable durable record.
// It is recovered locally by substituting defaults.
type ConfigurationError struct {
	UserID int64
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("settings for user %d: %v", e.UserID, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// PersistenceError reports a failed write to durable storage. The in-memory
// record stays authoritative until the next successful write.
type PersistenceError struct {
	UserID int64
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist settings for user %d: %v", e.UserID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// GenerationError reports a failed or timed out call to the language model.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// TransientNetworkError marks a failure worth retrying.
type TransientNetworkError struct {
	Op  string
	Err error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("%s: transient network error: %v", e.Op, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// IsGenerationError checks if the error is a GenerationError.
func IsGenerationError(err error) (*GenerationError, bool) {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr, true
	}
	return nil, false
}

// IsTransient checks if the error is a TransientNetworkError.
func IsTransient(err error) bool {
	var netErr *TransientNetworkError
	return errors.As(err, &netErr)
}

// IsPersistenceError checks if the error is a PersistenceError.
func IsPersistenceError(err error) bool {
	var pErr *PersistenceError
	return errors.As(err, &pErr)
}
