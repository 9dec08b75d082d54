// Package bencherr holds the error categories shared by the benchmark
// packages. Callers wrap one of the sentinels and test with errors.Is.
package bencherr

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned for a bad mode, an unknown command token or
	// a missing parameter. It is always fatal and raised before measuring.
	ErrConfiguration = errors.New("configuration error")

	// ErrAllocation is returned when the device cannot provide a buffer.
	// Callers must not retry.
	ErrAllocation = errors.New("allocation error")

	// ErrMeasurementDegenerate marks a timing that cannot be used as a ratio
	// denominator, typically a zero duration below the clock resolution.
	ErrMeasurementDegenerate = errors.New("degenerate measurement")
)

// Configf wraps ErrConfiguration with a formatted message.
func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Allocf wraps ErrAllocation with a formatted message.
func Allocf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrAllocation, fmt.Sprintf(format, args...))
}

// Degeneratef wraps ErrMeasurementDegenerate with a formatted message.
func Degeneratef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMeasurementDegenerate, fmt.Sprintf(format, args...))
}
