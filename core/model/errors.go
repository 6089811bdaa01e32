package model

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrInvalidTime is returned for clock values that are not HH:MM.
	ErrInvalidTime = errors.New("invalid time")
	// ErrInvalidDate is returned for dates that are not YYYY-MM-DD.
	ErrInvalidDate = errors.New("invalid date")
	// ErrInvalidRange is returned when an interval ends before it starts.
	ErrInvalidRange = errors.New("invalid range: end must be after start")
	// ErrUnknownMember is returned when a member is not part of the room.
	ErrUnknownMember = errors.New("unknown member")
	// ErrUnknownSlot is returned when a referenced slot does not exist.
	ErrUnknownSlot = errors.New("unknown slot")
	// ErrNotParticipant is returned when the actor may not act on a request.
	ErrNotParticipant = errors.New("actor is not a participant of the request")
	// ErrInvalidTransition is returned when a request status would move backwards.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError captures field level validation issues.
type ValidationError struct {
	FieldErrors map[string]string
}

func (v *ValidationError) Error() string {
	if v == nil || len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for f := range v.FieldErrors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+v.FieldErrors[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a field level validation error.
func (v *ValidationError) Add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// Err returns v as an error, or nil when nothing was recorded.
func (v *ValidationError) Err() error {
	if !v.HasErrors() {
		return nil
	}
	return v
}

// ErrorKind maps sentinel and validation errors to a stable label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrInvalidTime):
		return "invalid_time"
	case errors.Is(err, ErrInvalidDate):
		return "invalid_date"
	case errors.Is(err, ErrInvalidRange):
		return "invalid_range"
	case errors.Is(err, ErrUnknownMember):
		return "unknown_member"
	case errors.Is(err, ErrUnknownSlot):
		return "unknown_slot"
	case errors.Is(err, ErrNotParticipant):
		return "not_participant"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}
	return "unexpected"
}

// IsClientError reports whether err was caused by invalid caller input.
func IsClientError(err error) bool {
	switch ErrorKind(err) {
	case "", "unexpected":
		return false
	}
	return true
}
