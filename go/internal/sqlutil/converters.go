package sqlutil

import (
	"strings"
	"time"
)

// Helper functions for the nullable columns the meeting tables carry

// ToNullTime returns nil for the zero time so it is written as SQL NULL.
func ToNullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}

// FromNullTime converts a scanned nullable timestamp to a UTC pointer.
func FromNullTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}

// StringOr returns s unless it is blank, in which case it returns fallback.
func StringOr(s *string, fallback string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return fallback
	}
	return *s
}

// IntOr returns the pointed value or fallback when nil.
func IntOr(v *int32, fallback int) int {
	if v == nil {
		return fallback
	}
	return int(*v)
}
