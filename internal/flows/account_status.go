package flows

import (
	"context"
	"time"
)

// AccountStatusFailureKind classifies activation changes.
type AccountStatusFailureKind int

const (
	AccountStatusFailureNone AccountStatusFailureKind = iota
	AccountStatusFailureNotFound
	AccountStatusFailureStore
	// AccountStatusFailureRevoke means the account was deactivated but its
	// refresh records could not all be revoked.
	AccountStatusFailureRevoke
)

type AccountStatusResult struct {
	Failure AccountStatusFailureKind
	Err     error
	// Changed is false when the account already had the requested state.
	Changed bool
	Revoked int
}

type AccountStatusDeps struct {
	Now              func() time.Time
	GetUserByID      func(ctx context.Context, userID string) (User, error)
	IsUserNotFound   func(error) bool
	SetActive        func(ctx context.Context, userID string, active bool, now time.Time) error
	RevokeAllForUser func(ctx context.Context, userID string) (int, error)
}

// RunSetActive flips the account's active flag. Deactivation also revokes
// every refresh record so no session outlives the account; access tokens
// already issued expire on their own.
func RunSetActive(ctx context.Context, userID string, active bool, deps AccountStatusDeps) AccountStatusResult {
	now := nowOrDefault(deps.Now)

	if userID == "" {
		return AccountStatusResult{Failure: AccountStatusFailureNotFound}
	}
	current, err := deps.GetUserByID(ctx, userID)
	if err != nil {
		if deps.IsUserNotFound == nil || deps.IsUserNotFound(err) {
			return AccountStatusResult{Failure: AccountStatusFailureNotFound, Err: err}
		}
		return AccountStatusResult{Failure: AccountStatusFailureStore, Err: err}
	}

	res := AccountStatusResult{}
	if current.Active != active {
		if err := deps.SetActive(ctx, userID, active, now()); err != nil {
			if deps.IsUserNotFound != nil && deps.IsUserNotFound(err) {
				return AccountStatusResult{Failure: AccountStatusFailureNotFound, Err: err}
			}
			return AccountStatusResult{Failure: AccountStatusFailureStore, Err: err}
		}
		res.Changed = true
	}

	// also on a no-op deactivation, so a retry after a failed revoke completes
	if !active {
		n, err := deps.RevokeAllForUser(ctx, userID)
		if err != nil {
			res.Failure = AccountStatusFailureRevoke
			res.Err = err
			return res
		}
		res.Revoked = n
	}
	return res
}
