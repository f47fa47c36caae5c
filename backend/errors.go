package backend

import (
	"fmt"
)

// MalformedSettingsError is returned when a settings URI cannot be decoded,
// or when settings cannot be encoded into one that would decode again.
type MalformedSettingsError struct {
	URI    string
	Reason string
	Err    error
}

func (e *MalformedSettingsError) Error() string {
	msg := "malformed server settings"
	if e.URI != "" {
		msg += fmt.Sprintf(" %q", e.URI)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedSettingsError) Unwrap() error {
	return e.Err
}

// SchemeMismatchError means a factory or codec was handed settings of
// another protocol. It always points at a dispatch bug in the caller.
type SchemeMismatchError struct {
	Expected string
	Got      string
}

func (e *SchemeMismatchError) Error() string {
	return fmt.Sprintf("scheme mismatch: expected %q, got %q",
		e.Expected, e.Got)
}

// ConfigurationMissingError is raised by deferred providers when the account
// lacks a setting at the time it is needed.
type ConfigurationMissingError struct {
	Account string
	Setting string
}

func (e *ConfigurationMissingError) Error() string {
	return fmt.Sprintf("%s: no %s folder configured", e.Account, e.Setting)
}

// UnknownSchemeError is returned by the registry when no factory is
// registered for a scheme.
type UnknownSchemeError struct {
	Scheme string
}

func (e *UnknownSchemeError) Error() string {
	return fmt.Sprintf("unknown backend %q", e.Scheme)
}

func malformed(uri, format string, args ...any) error {
	return &MalformedSettingsError{URI: redactURI(uri), Reason: fmt.Sprintf(format, args...)}
}
