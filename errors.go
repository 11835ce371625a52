package chatwatch

import (
	"errors"
	"fmt"
)

var (
	// ErrContainerNotFound is returned by Observer.Start when the message
	// container did not appear within the configured number of attempts.
	ErrContainerNotFound = errors.New("message container not found")

	// ErrStorageAccess marks a failed read or write against the persisted
	// store. Callers fall back to in-memory defaults.
	ErrStorageAccess = errors.New("storage access failed")

	// ErrHandlerFailure marks a feature handler that failed while processing
	// a batch.
	ErrHandlerFailure = errors.New("feature handler failed")

	// ErrMalformedMessage is returned by an Adapter when an expected
	// positional field is missing from a message element.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrKeyNotFound is returned by a Store for keys that were never saved.
	ErrKeyNotFound = errors.New("key not found")

	// ErrPermissionDenied is returned by a Notifier that may not deliver
	// notifications.
	ErrPermissionDenied = errors.New("notification permission denied")
)

// HandlerError wraps a failure raised by one feature handler during a batch.
type HandlerError struct {
	Feature Feature
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s handler: %v", e.Feature, e.Err)
}

func (e *HandlerError) Unwrap() []error {
	return []error{ErrHandlerFailure, e.Err}
}

// StorageError describes a failed store operation on a single key.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorageAccess, e.Err}
}
