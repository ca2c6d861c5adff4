package config

import "fmt"

// ConfigError reports a problem with the settings file itself: the file is
// missing or unreadable, it cannot be parsed, the requested class section does
// not exist, or a value fails typed validation.
type ConfigError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration %s: %s", e.Path, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// MissingFieldError reports a required setting that is absent for a class even
// after merging the General section's defaults.
type MissingFieldError struct {
	Class string
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("configuration for class %q is missing required setting %q", e.Class, e.Field)
}
