// Package domain holds the error vocabulary shared by every feedcraft layer.
package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used across all layers.
var (
	ErrConfiguration    = errors.New("configuration error")
	ErrMissingEntity    = errors.New("missing entity")
	ErrUnknownKind      = errors.New("unknown kind")
	ErrUnknownEntity    = errors.New("unknown entity name")
	ErrInvalidRecipient = errors.New("invalid recipient")
	ErrNotStored        = errors.New("activity not stored")
	ErrInvalidField     = errors.New("invalid field")
	ErrNotFound         = errors.New("not found")
	ErrDuplicate        = errors.New("duplicate record")
)

// ConfigurationError reports a declaration mistake. These are raised while
// types are being built or registered and are never recovered at runtime.
type ConfigurationError struct {
	Subject string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("configuration: %s", e.Message)
	}
	return fmt.Sprintf("configuration: %s: %s", e.Subject, e.Message)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// Configf builds a ConfigurationError for subject.
func Configf(subject, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Subject: subject, Message: fmt.Sprintf(format, args...)}
}

// MissingEntityError names the first required entity slot left unset.
type MissingEntityError struct {
	Kind   string
	Entity string
}

func (e *MissingEntityError) Error() string {
	return fmt.Sprintf("activity %s: missing required entity %q", e.Kind, e.Entity)
}

func (e *MissingEntityError) Unwrap() error { return ErrMissingEntity }

// UnknownKindError is returned when a record names no registered type.
type UnknownKindError struct {
	Family string
	Kind   string
}

func (e *UnknownKindError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("%s record has no kind", e.Family)
	}
	return fmt.Sprintf("unregistered %s kind %q", e.Family, e.Kind)
}

func (e *UnknownKindError) Unwrap() error { return ErrUnknownKind }

// NotStoredError is returned when fan-out is requested for an activity that
// has no id yet.
type NotStoredError struct {
	Kind string
}

func (e *NotStoredError) Error() string {
	return fmt.Sprintf("%s activity must be stored before routing", e.Kind)
}

func (e *NotStoredError) Unwrap() error { return ErrNotStored }

// InvalidRecipientError reports a route resolving to a value that is neither
// the timeline's recipient class nor an opaque identifier.
type InvalidRecipientError struct {
	Timeline string
	Route    string
	Value    any
}

func (e *InvalidRecipientError) Error() string {
	return fmt.Sprintf("timeline %s route %s: invalid recipient %T", e.Timeline, e.Route, e.Value)
}

func (e *InvalidRecipientError) Unwrap() error { return ErrInvalidRecipient }
