package domain

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError collects every problem found in a submission.
type ValidationError struct {
	err error
}

func (v *ValidationError) Add(field, msg string) {
	v.err = multierr.Append(v.err, fmt.Errorf("%s %s", field, msg))
}

func (v *ValidationError) HasError() bool {
	return v.err != nil
}

// Errors returns the individual field errors.
func (v *ValidationError) Errors() []error {
	return multierr.Errors(v.err)
}

func (v *ValidationError) Error() string {
	if v.err == nil {
		return ""
	}
	return "validation failed: " + v.err.Error()
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
