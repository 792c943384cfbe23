package recordcache

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions
var (
	// Schema errors
	ErrFieldMissing = errors.New("required field missing from record")

	// Key and index errors
	ErrDuplicateKey   = errors.New("duplicate primary key")
	ErrDuplicateIndex = errors.New("index already exists for field")
	ErrNotFound       = errors.New("record not found")

	// Consistency errors
	// ErrConsistency signals that an index or the canonical collection failed
	// an operation the store's invariants guarantee should succeed. It marks
	// prior corruption, not a caller mistake: the store should be rebuilt
	// from its source data.
	ErrConsistency = errors.New("store consistency violated")

	// Registry errors
	ErrAlreadyBound = errors.New("store name already bound")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ErrorWithContext adds additional context to errors for better debugging and logging
type ErrorWithContext struct {
	Err     error
	Context map[string]interface{}
}

func (e *ErrorWithContext) Error() string {
	if len(e.Context) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v (context: %+v)", e.Err, e.Context)
}

func (e *ErrorWithContext) Unwrap() error {
	return e.Err
}

// WithContext adds context to an error
func WithContext(err error, context map[string]interface{}) error {
	if err == nil {
		return nil
	}
	return &ErrorWithContext{
		Err:     err,
		Context: context,
	}
}

// Common error checking helpers

// IsNotFound checks if an error is a "not found" error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsFieldMissing checks if an error is a missing-field schema error
func IsFieldMissing(err error) bool {
	return errors.Is(err, ErrFieldMissing)
}

// IsDuplicateKey checks if an error is a primary-key uniqueness violation
func IsDuplicateKey(err error) bool {
	return errors.Is(err, ErrDuplicateKey)
}

// IsConsistency checks if an error indicates store corruption.
// Callers seeing this should discard the store and reload from source.
func IsConsistency(err error) bool {
	return errors.Is(err, ErrConsistency)
}
