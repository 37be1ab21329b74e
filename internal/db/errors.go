package db

import "errors"

// Sentinel errors for type-safe error checking
// Use errors.Is() instead of string comparison
var (
	// Session errors
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionComplete = errors.New("session already completed")
	ErrUnauthorized    = errors.New("unauthorized")

	// Message errors
	ErrMessageNotFound = errors.New("message not found")

	// Note errors
	ErrNoteNotFound = errors.New("note not found")
	ErrForbidden    = errors.New("forbidden")

	// Share errors
	ErrShareNotFound        = errors.New("share not found")
	ErrShareExpired         = errors.New("share expired")
	ErrShareAccessNotFound  = errors.New("share access not found")

	// Counselor relationship errors
	ErrAssignmentExists   = errors.New("an active assignment already exists for this counselor and member")
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrGrantNotFound      = errors.New("coverage grant not found")

	// User errors
	ErrUserNotFound           = errors.New("user not found")
	ErrEmailTaken             = errors.New("email already registered")
	ErrRecipientNotRegistered = errors.New("recipient not registered")
)
