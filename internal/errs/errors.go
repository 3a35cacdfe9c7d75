// Package errs defines the error taxonomy shared by the emulator
// packages. Callers discriminate with errors.Is against the three
// sentinels; everything else is an ordinary wrapped error.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument marks a wrong type, shape or unsupported
	// enum value detected at the call site.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFitted marks an operation that requires a prior Fit.
	ErrNotFitted = errors.New("not fitted")

	// ErrCorruptArtifact marks a persisted checkpoint missing
	// required fields.
	ErrCorruptArtifact = errors.New("corrupt artifact")
)

func InvalidArgumentf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidArgument}, args...)...)
}

func NotFittedf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFitted}, args...)...)
}

func CorruptArtifactf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrCorruptArtifact}, args...)...)
}
