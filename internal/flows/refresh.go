package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/permission"
	"github.com/MrEthical07/authcore/refresh"
)

// RefreshFailureKind classifies refresh failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	// RefreshFailureInvalid covers unknown, expired, and corrupt records.
	RefreshFailureInvalid
	RefreshFailureReuse
	// RefreshFailureOwner means the owner is missing or deactivated.
	RefreshFailureOwner
	RefreshFailureStore
	RefreshFailureIssue
)

// RefreshResult carries either the rotated pair or failure metadata.
type RefreshResult struct {
	Failure RefreshFailureKind
	Reason  string
	Err     error
	UserID  string
	Role    permission.Role
	// Revoked counts records flipped by reuse handling.
	Revoked int
	Tokens  Tokens
}

// RefreshDeps captures refresh dependencies.
type RefreshDeps struct {
	Now  func() time.Time
	Warn func(string, ...any)

	Rotate           func(ctx context.Context, token string, now time.Time) (refresh.Record, refresh.Issued, error)
	Revoke           func(ctx context.Context, token string) error
	RevokeAllForUser func(ctx context.Context, userID string) (int, error)
	RevokeAllOnReuse bool

	GetUserByID func(ctx context.Context, userID string) (User, error)
	IssueAccess func(userID string, role permission.Role, now time.Time) (string, time.Time, error)
}

// RunRefresh rotates refreshToken and issues an access token carrying the
// owner's current role.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	now := nowOrDefault(deps.Now)()
	warn := warnOrDiscard(deps.Warn)

	redeemed, next, err := deps.Rotate(ctx, refreshToken, now)
	if err != nil {
		switch {
		case errors.Is(err, refresh.ErrNotFound):
			return RefreshResult{Failure: RefreshFailureInvalid, Reason: "not_found", Err: err}
		case errors.Is(err, refresh.ErrExpired):
			return RefreshResult{Failure: RefreshFailureInvalid, Reason: "expired", Err: err, UserID: redeemed.UserID}
		case errors.Is(err, refresh.ErrCorruptRecord):
			warn("authcore: corrupt refresh record", "error", err)
			return RefreshResult{Failure: RefreshFailureInvalid, Reason: "corrupt", Err: err}
		case errors.Is(err, refresh.ErrAlreadyRevoked):
			return handleReuse(ctx, redeemed, err, deps, warn)
		default:
			return RefreshResult{Failure: RefreshFailureStore, Reason: "rotate_failed", Err: err}
		}
	}

	owner, err := deps.GetUserByID(ctx, redeemed.UserID)
	if err != nil || !owner.Active {
		reason := "owner_inactive"
		if err != nil {
			reason = "owner_missing"
		}
		if revokeErr := deps.Revoke(ctx, next.Token); revokeErr != nil {
			warn("authcore: revoke of orphaned refresh record failed", "user_id", redeemed.UserID, "error", revokeErr)
		}
		return RefreshResult{Failure: RefreshFailureOwner, Reason: reason, Err: err, UserID: redeemed.UserID}
	}

	access, accessExp, err := deps.IssueAccess(owner.UserID, owner.Role, now)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Reason: "issue_failed", Err: err, UserID: owner.UserID}
	}

	return RefreshResult{
		UserID: owner.UserID,
		Role:   owner.Role,
		Tokens: Tokens{
			AccessToken:      access,
			RefreshToken:     next.Token,
			AccessExpiresAt:  accessExp,
			RefreshExpiresAt: next.Record.ExpiresAt,
		},
	}
}

// handleReuse treats a replayed token as a possible theft: the whole family
// of the owner is revoked when the policy asks for it.
func handleReuse(ctx context.Context, replayed refresh.Record, cause error, deps RefreshDeps, warn func(string, ...any)) RefreshResult {
	res := RefreshResult{Failure: RefreshFailureReuse, Reason: "reuse", Err: cause, UserID: replayed.UserID}
	if !deps.RevokeAllOnReuse || replayed.UserID == "" || deps.RevokeAllForUser == nil {
		return res
	}

	n, err := deps.RevokeAllForUser(ctx, replayed.UserID)
	if err != nil {
		warn("authcore: revoke-all after refresh reuse failed", "user_id", replayed.UserID, "error", err)
		return res
	}
	res.Revoked = n
	return res
}
