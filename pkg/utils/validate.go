package utils

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	MaxNameLength   = 80
	MaxEmailLength  = 254
	MinPasswordSize = 1
)

// NormalizeEmail is the credential key for an email: case and surrounding
// whitespace are ignored.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks that email is a bare address.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return &ValidationError{Field: "email", Message: "Email is required"}
	}
	if len(email) > MaxEmailLength {
		return &ValidationError{Field: "email", Message: "Email is too long"}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return &ValidationError{Field: "email", Message: "Email is not valid"}
	}
	return nil
}

// ValidateName checks a display name.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &ValidationError{Field: "name", Message: "Name is required"}
	}
	if len([]rune(name)) > MaxNameLength {
		return &ValidationError{Field: "name", Message: "Name must be at most 80 characters"}
	}
	return nil
}

// ValidatePassword only checks presence; strength rules are out of scope.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordSize {
		return &ValidationError{Field: "password", Message: "Password is required"}
	}
	return nil
}

// ValidateText rejects text that is not valid UTF-8. Stored records are
// JSON, which would silently replace the bad bytes.
func ValidateText(field string, values ...string) error {
	for _, v := range values {
		if !utf8.ValidString(v) {
			return &ValidationError{Field: field, Message: "Text must be valid UTF-8"}
		}
	}
	return nil
}

// TrimTags trims tags and drops empty ones. Order and repeats are kept.
func TrimTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// CleanTags trims tags and drops empty ones and duplicates, keeping the
// first occurrence's position.
func CleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
