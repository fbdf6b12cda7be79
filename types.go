package authcore

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/permission"
)

// UserRecord is the account row the engine reads and writes through [UserStore].
type UserRecord struct {
	UserID       string
	Email        string
	PasswordHash string
	Role         permission.Role
	Active       bool
	DisplayName  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserStore persists accounts.
//
// Lookups of a missing user return [ErrUserNotFound]; CreateUser maps a
// unique-constraint violation on email to [ErrDuplicateEmail]. Mutations of a
// missing user return [ErrUserNotFound].
type UserStore interface {
	CreateUser(ctx context.Context, u UserRecord) error
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	ListUsers(ctx context.Context, offset, limit int) ([]UserRecord, error)
	UpdatePasswordHash(ctx context.Context, userID, hash string, now time.Time) error
	UpdateDisplayName(ctx context.Context, userID, name string, now time.Time) error
	SetActive(ctx context.Context, userID string, active bool, now time.Time) error
	SetRole(ctx context.Context, userID string, role permission.Role, now time.Time) error
}

// PasswordHasher is satisfied by [password.Argon2] and [password.Bcrypt].
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, encoded string) (bool, error)
	NeedsUpgrade(encoded string) (bool, error)
}

// RegisterInput is the payload accepted by [Engine.Register].
type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
}

// TokenType is the scheme clients put in front of the access token.
const TokenType = "Bearer"

// TokenPair is returned by Login and RefreshSession.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	TokenType        string
}

// AuthResult is the identity established by [Engine.Authenticate].
type AuthResult struct {
	UserID    string
	Role      permission.Role
	ExpiresAt time.Time
}
