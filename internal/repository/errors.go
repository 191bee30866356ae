package repository

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError reports an invalid declaration: an unknown reference,
// a duplicate name, a subgroup cycle or an item declared twice for one
// node. It is fatal for the affected node before any remote action.
type ConfigurationError struct {
	// Object names the offending declaration, e.g. `group "web"`.
	Object string
	Reason string
	// Cycle lists the groups of a subgroup cycle, first group repeated last.
	Cycle []string
}

func (e *ConfigurationError) Error() string {
	if len(e.Cycle) > 0 {
		return fmt.Sprintf("configuration error in %s: %s: %s", e.Object, e.Reason, strings.Join(e.Cycle, " -> "))
	}
	return fmt.Sprintf("configuration error in %s: %s", e.Object, e.Reason)
}

// AsConfigurationError unwraps err into a *ConfigurationError.
func AsConfigurationError(err error) (*ConfigurationError, bool) {
	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		return cfgErr, true
	}
	return nil, false
}

func configErr(kind, name, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Object: fmt.Sprintf("%s %q", kind, name), Reason: fmt.Sprintf(format, args...)}
}
