package registry

import (
	"errors"
	"fmt"
)

// ConfigError reports a malformed or ambiguous registration. These are
// startup configuration bugs: fatal, synchronous, never retried.
type ConfigError struct {
	Op      string
	Name    string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s %q: %s", e.Op, e.Name, e.Message)
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

func configErrorf(op, name, format string, args ...any) *ConfigError {
	return &ConfigError{Op: op, Name: name, Message: fmt.Sprintf(format, args...)}
}
