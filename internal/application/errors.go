package application

import (
	"errors"
	"maps"
	"slices"
	"strings"
)

var (
	// ErrUnauthorized is returned when a caller presents a missing or wrong sync secret.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyExists is returned when a record with the same identity is already stored.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrRateLimited is returned when a suggester exceeded the creation quota or cooldown.
	ErrRateLimited = errors.New("application: rate limited")
	// ErrStorageBusy is returned when concurrent writers exhausted the storage retry budget.
	ErrStorageBusy = errors.New("application: storage busy")
	// ErrExternalEvent is returned for votes on external events, which are never stored server side.
	ErrExternalEvent = errors.New("application: external events are not stored")
)

// ValidationError maps request fields (by their JSON name) to a message.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error names the failing fields in sorted order.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	return "validation failed: " + strings.Join(slices.Sorted(maps.Keys(v.FieldErrors)), ", ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add keeps the first message recorded for a field.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; exists {
		return
	}
	v.FieldErrors[field] = message
}

// RateLimitError explains why a creation was refused. It matches ErrRateLimited.
type RateLimitError struct {
	Reason     string
	Remaining  int
	RetryAfter int64
}

func (e *RateLimitError) Error() string {
	if e == nil || e.Reason == "" {
		return ErrRateLimited.Error()
	}
	return ErrRateLimited.Error() + ": " + e.Reason
}

// Is lets errors.Is match the sentinel.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}
