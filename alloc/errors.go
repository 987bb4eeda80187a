package alloc

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfiguration is wrapped by every ConfigError.
var ErrConfiguration = errors.New("invalid allocation configuration")

// ConfigError reports a configuration that no allocation run can use.  It is
// returned before anything is committed.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v: %s %s", ErrConfiguration, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrConfiguration
}

// ValidationError lists everything wrong with a Result.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("allocation failed validation: %s", strings.Join(e.Problems, "; "))
}
