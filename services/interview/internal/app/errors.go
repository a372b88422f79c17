package app

import "errors"

var (
	// ErrInvalidCredentials is returned when the supplied credentials do not match.
	// The message is shown to end users and must not allow account enumeration.
	ErrInvalidCredentials = errors.New("Incorrect email address or password")

	ErrEmailAndPasswordRequired = errors.New("email and password required")
	ErrEmailAlreadyExists       = errors.New("email already exists")
	ErrInvalidEmail             = errors.New("invalid email address")
	ErrWeakPassword             = errors.New("password does not meet the policy")

	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidProfile = errors.New("invalid profile")
)
