package services

import (
	"errors"
	"fmt"

	"github.com/AnshRaj112/karuna-backend/pkg/utils"
)

var (
	// ErrUnauthenticated: no session, or a session that no longer resolves.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrInvalidCredentials: login with an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrDuplicateIdentity: registration with an email that already has a credential.
	ErrDuplicateIdentity = errors.New("email already exists")
	// ErrNotFound: the referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden: the caller is not a participant or not an admin.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidTransition: the record's current status does not allow the change.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidInput: a required field is missing or malformed.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnavailable: an optional collaborator is not configured.
	ErrUnavailable = errors.New("unavailable")
)

// errNoChange aborts a collection update that would write identical data.
var errNoChange = errors.New("no change")

func invalid(field, message string) error {
	return fmt.Errorf("%w: %w", ErrInvalidInput, &utils.ValidationError{Field: field, Message: message})
}

// checkText fails with ErrInvalidInput when any value is not valid UTF-8.
func checkText(field string, values ...string) error {
	return invalidErr(utils.ValidateText(field, values...))
}

func invalidErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidInput, err)
}
