package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedInput marks a record skipped for its file type; never
	// fatal to a batch.
	ErrUnsupportedInput = errors.New("unsupported input")
	// ErrInvalidInput marks a malformed boundary payload.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks a missing stored object or instance.
	ErrNotFound = errors.New("not found")
	// ErrCorrelationNotFound marks a completion event with no stored
	// resumption handle; reported per event, the batch continues.
	ErrCorrelationNotFound = errors.New("correlation record not found")
	// ErrAlreadyResolved marks a resume or abort of an instance that has
	// already reached a terminal state; duplicate notifications land here
	// and are benign.
	ErrAlreadyResolved = errors.New("instance already resolved")
	// ErrTemporary marks infrastructure failures worth a transport-level
	// redelivery.
	ErrTemporary = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
