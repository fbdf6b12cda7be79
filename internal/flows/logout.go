package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/refresh"
)

// LogoutDeps captures logout dependencies.
type LogoutDeps struct {
	Revoke           func(ctx context.Context, token string) error
	RevokeAllForUser func(ctx context.Context, userID string) (int, error)
}

// RunLogout revokes refreshToken. Unknown, malformed, and already revoked
// tokens are not errors; only backend failures are returned.
func RunLogout(ctx context.Context, refreshToken string, deps LogoutDeps) error {
	if refreshToken == "" {
		return nil
	}
	err := deps.Revoke(ctx, refreshToken)
	if err == nil || errors.Is(err, refresh.ErrNotFound) {
		return nil
	}
	return err
}

// RunLogoutAll revokes every refresh record of userID.
func RunLogoutAll(ctx context.Context, userID string, deps LogoutDeps) (int, error) {
	if userID == "" {
		return 0, nil
	}
	return deps.RevokeAllForUser(ctx, userID)
}
