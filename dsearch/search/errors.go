package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Common error types used across the search package
var (
	ErrEmptyRoot     = errors.New("root container cannot be empty")
	ErrEmptyFragment = errors.New("search fragment cannot be empty")
	ErrCursorLoop    = errors.New("store returned a cursor it already handed out")
	ErrAborted       = errors.New("traversal aborted by error policy")
)

// TransientFetchError covers network, timeout and rate-limit failures.
// The caller may retry.
type TransientFetchError struct {
	Container ContainerRef
	Err       error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("transient fetch error in container %s: %v", e.Container, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// FatalFetchError covers permission denial, bad credentials and malformed
// predicates. It is never retried.
type FatalFetchError struct {
	Container ContainerRef
	Err       error
}

func (e *FatalFetchError) Error() string {
	return fmt.Sprintf("fatal fetch error in container %s: %v", e.Container, e.Err)
}

func (e *FatalFetchError) Unwrap() error { return e.Err }

// IncompleteTraversalWarning tells callers that results may be partial
type IncompleteTraversalWarning struct {
	Skipped []SkippedContainer
}

func (w *IncompleteTraversalWarning) Error() string {
	if len(w.Skipped) == 0 {
		return "search incomplete"
	}

	var merr *multierror.Error
	for _, s := range w.Skipped {
		merr = multierror.Append(merr, fmt.Errorf("%s: %w", s.Container, s.Cause))
	}
	merr.ErrorFormat = func(errs []error) string {
		parts := make([]string, len(errs))
		for i, err := range errs {
			parts[i] = err.Error()
		}
		return fmt.Sprintf("search incomplete, %d container(s) skipped: %s", len(errs), strings.Join(parts, "; "))
	}
	return merr.Error()
}

// Unwrap exposes the skip causes to errors.Is/As
func (w *IncompleteTraversalWarning) Unwrap() []error {
	errs := make([]error, len(w.Skipped))
	for i, s := range w.Skipped {
		errs[i] = s.Cause
	}
	return errs
}

// Transient marks err as a retryable failure for container
func Transient(container ContainerRef, err error) error {
	if err == nil {
		return nil
	}
	return &TransientFetchError{Container: container, Err: err}
}

// Fatal marks err as a non-retryable failure for container
func Fatal(container ContainerRef, err error) error {
	if err == nil {
		return nil
	}
	return &FatalFetchError{Container: container, Err: err}
}

// IsTransient reports whether err carries a TransientFetchError
func IsTransient(err error) bool {
	var te *TransientFetchError
	return errors.As(err, &te)
}

// IsFatal reports whether err carries a FatalFetchError
func IsFatal(err error) bool {
	var fe *FatalFetchError
	return errors.As(err, &fe)
}

// IsCancellation reports whether err stems from the traversal context
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Classify wraps an unclassified store error as transient, so one odd
// failure costs a container rather than the traversal. Adapters mark
// permission and credential failures fatal themselves. Already classified
// errors and context errors pass through untouched.
func Classify(container ContainerRef, err error) error {
	if err == nil || IsTransient(err) || IsFatal(err) || IsCancellation(err) {
		return err
	}
	return Transient(container, err)
}
