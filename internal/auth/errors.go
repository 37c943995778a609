package auth

import "errors"

var (
	// ErrUnauthorized represents missing or invalid authentication tokens.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrMissingSubject is returned for tokens without a subject claim.
	ErrMissingSubject = errors.New("token has no subject")
)
