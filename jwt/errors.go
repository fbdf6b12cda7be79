package jwt

import "errors"

var (
	// ErrMalformedToken covers every verification failure other than expiry:
	// bad structure or signature, unexpected algorithm or kid, missing or
	// future-dated claims, an unknown role, or a non-access token type.
	ErrMalformedToken = errors.New("malformed token")
	// ErrExpiredToken is returned when the verification time is at or after exp.
	ErrExpiredToken = errors.New("expired token")
)
