package registrations

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicate is returned when the email is already registered.
	ErrDuplicate = errors.New("Registration already exists")
	// ErrNotFound is returned when a registration or credential does not exist.
	ErrNotFound = errors.New("registration not found")
	// ErrInsertFailed is returned when no generated id could be determined.
	ErrInsertFailed = errors.New("insert failed")
	// ErrContactOrganizer hides whether a lost-PIN email exists.
	ErrContactOrganizer = errors.New("contact organizer")
	// ErrSendPin wraps any unexpected lost-PIN failure.
	ErrSendPin = errors.New("Failed to send pin")
)

// FieldError reports missing or malformed fields.
type FieldError struct {
	Missing []string
	Invalid []string
}

func (e *FieldError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required fields: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid fields: "+strings.Join(e.Invalid, ", "))
	}
	return strings.Join(parts, "; ")
}

// Message is the user-facing summary.
func (e *FieldError) Message() string {
	if len(e.Missing) > 0 {
		return "Missing required fields"
	}
	return "Invalid fields"
}

// ForbiddenError is returned when the requester may not act on a registration.
// Fields is set when the refusal is about organizer-only attributes.
type ForbiddenError struct {
	ID     int64
	Fields []string
}

func (e *ForbiddenError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("only organizers may set %s", strings.Join(e.Fields, ", "))
	}
	return fmt.Sprintf("forbidden: registration %d", e.ID)
}
