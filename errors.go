package authcore

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidEmail is returned by Register for addresses that do not parse.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrWeakPassword is returned by Register when the password policy rejects the input.
	ErrWeakPassword = errors.New("weak password")
	// ErrDuplicateEmail is returned when the normalized email is already registered.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrInvalidDisplayName is returned for display names that are too long
	// or contain control characters.
	ErrInvalidDisplayName = errors.New("invalid display name")
	// ErrInvalidRole is returned for role values outside the closed role set.
	ErrInvalidRole = errors.New("invalid role")
	// ErrRegisterRateLimited is returned when a client IP exceeded its
	// registration budget.
	ErrRegisterRateLimited = errors.New("registration rate limited")

	// ErrInvalidCredentials covers unknown email, wrong password, and inactive
	// accounts alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken is returned for refresh tokens that are unknown, expired,
	// or owned by an account that can no longer sign in.
	ErrInvalidToken = errors.New("invalid token")
	// ErrRefreshReuse is returned when an already-redeemed refresh token is
	// presented again. errors.Is(ErrRefreshReuse, ErrInvalidToken) holds.
	ErrRefreshReuse = fmt.Errorf("%w: refresh token reuse detected", ErrInvalidToken)
	// ErrUnauthenticated is returned by Authenticate for any token failure.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrLoginRateLimited is returned when the login throttle denies an attempt.
	ErrLoginRateLimited = errors.New("login rate limited")

	// ErrForbidden is returned by Authorize when the role is not permitted.
	ErrForbidden = errors.New("forbidden")

	// ErrUserNotFound is returned by user lookups and administrative operations.
	ErrUserNotFound = errors.New("user not found")

	// ErrEngineNotReady is returned by a nil or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
