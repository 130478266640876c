// Package gaiatypes defines the error taxonomy shared by gaiachat services and transports.
package gaiatypes

import (
	"errors"
	"fmt"
)

// Sentinel errors classify failures for transport mapping.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrEmptyConversation = errors.New("no conversation found to store")
	ErrInvalidNetwork    = errors.New("invalid network")
	ErrConfiguration     = errors.New("missing configuration")
	ErrUpstream          = errors.New("upstream request failed")
)

// ValidationError reports a missing or malformed request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is makes errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError builds a ValidationError.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// ConfigurationError reports a required environment variable that is not set.
type ConfigurationError struct {
	Variable string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s environment variable is required", e.Variable)
}

// Is makes errors.Is(err, ErrConfiguration) match.
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// UpstreamError reports a failed call to the inference node or the storage backend.
// Status and Code carry whatever diagnostics the remote side returned.
type UpstreamError struct {
	Service string
	Op      string
	Status  int
	Code    string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s failed (status %d): %v", e.Service, e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Service, e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrUpstream) match.
func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// Details returns the remote message without the service/op prefix.
func (e *UpstreamError) Details() string {
	if e.Err == nil {
		return ""
	}
	var cfg *ConfigurationError
	if errors.As(e.Err, &cfg) {
		return cfg.Error()
	}
	return e.Err.Error()
}
