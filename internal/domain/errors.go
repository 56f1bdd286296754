package domain

import "errors"

// Validation and authorization errors returned by the ledger operations.
// They are terminal and are never wrapped by the core.
var (
	ErrUsernameEmpty   = errors.New("username cannot be empty")
	ErrUsernameTooLong = errors.New("username must be 32 bytes or less")
	ErrURITooLong      = errors.New("metadata uri too long (max 200 bytes)")
	ErrLabelTooLong    = errors.New("label too long (max 10 bytes)")
	ErrInvalidText     = errors.New("text must be valid UTF-8 without NUL bytes")
	ErrUnauthorized    = errors.New("unauthorized: identity does not own this profile")
)

// Store and transport errors
var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrProfileExists   = errors.New("profile already exists")
	ErrInvalidIdentity = errors.New("invalid identity")
	ErrInvalidMode     = errors.New("invalid game mode")
	ErrInvalidReward   = errors.New("invalid reward kind")
	ErrInvalidToken    = errors.New("invalid identity token")
	ErrPlayerNotRanked = errors.New("player not found in ladder")
	ErrLadderDisabled  = errors.New("rating ladder is not available")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrInternalError   = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrProfileNotFound) || errors.Is(err, ErrPlayerNotRanked)
}

// IsValidationError checks if an error was caused by caller input
func IsValidationError(err error) bool {
	return errors.Is(err, ErrUsernameEmpty) ||
		errors.Is(err, ErrUsernameTooLong) ||
		errors.Is(err, ErrURITooLong) ||
		errors.Is(err, ErrLabelTooLong) ||
		errors.Is(err, ErrInvalidText) ||
		errors.Is(err, ErrInvalidIdentity) ||
		errors.Is(err, ErrInvalidMode) ||
		errors.Is(err, ErrInvalidReward) ||
		errors.Is(err, ErrInvalidRequest)
}
