package flows

import (
	"context"
	"time"
)

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureRateLimited
	LoginFailureInvalidCredentials
	LoginFailureStore
	LoginFailureIssue
)

// LoginResult carries either the issued tokens or failure metadata.
type LoginResult struct {
	Failure LoginFailureKind
	// Reason distinguishes invalid-credential causes for audit only; callers
	// must not surface it.
	Reason   string
	Err      error
	User     User
	Tokens   Tokens
	Rehashed bool
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	Now                 func() time.Time
	ClientIPFromContext func(context.Context) string
	Warn                func(string, ...any)

	// Throttle hooks are optional; nil disables throttling.
	CheckLoginRate     func(ctx context.Context, email, ip string) error
	IncrementLoginRate func(ctx context.Context, email, ip string) error
	ResetLoginRate     func(ctx context.Context, email string) error

	GetUserByEmail func(ctx context.Context, email string) (User, error)
	IsUserNotFound func(error) bool

	VerifyPassword func(plaintext, encoded string) (bool, error)
	// DummyHash is verified against for unknown emails so response timing
	// does not reveal whether an account exists.
	DummyHash string

	UpgradeOnLogin       bool
	PasswordNeedsUpgrade func(encoded string) (bool, error)
	HashPassword         func(string) (string, error)
	UpdatePasswordHash   func(ctx context.Context, userID, hash string, now time.Time) error

	IssueTokens func(ctx context.Context, user User, now time.Time) (Tokens, error)
}

// RunLogin verifies credentials and issues a token pair.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) LoginResult {
	now := nowOrDefault(deps.Now)
	warn := warnOrDiscard(deps.Warn)
	ip := ""
	if deps.ClientIPFromContext != nil {
		ip = deps.ClientIPFromContext(ctx)
	}

	email = CanonicalEmail(email)

	if deps.CheckLoginRate != nil {
		if err := deps.CheckLoginRate(ctx, email, ip); err != nil {
			return LoginResult{Failure: LoginFailureRateLimited, Err: err}
		}
	}

	// fail records a failed attempt; a throttle trip takes precedence over
	// the credential failure.
	fail := func(reason string, user User) LoginResult {
		if deps.IncrementLoginRate != nil {
			if err := deps.IncrementLoginRate(ctx, email, ip); err != nil {
				return LoginResult{Failure: LoginFailureRateLimited, Reason: reason, Err: err, User: user}
			}
		}
		return LoginResult{Failure: LoginFailureInvalidCredentials, Reason: reason, User: user}
	}

	if password == "" {
		return fail("empty_password", User{})
	}

	user, err := deps.GetUserByEmail(ctx, email)
	if err != nil {
		if deps.IsUserNotFound != nil && !deps.IsUserNotFound(err) {
			return LoginResult{Failure: LoginFailureStore, Reason: "lookup_failed", Err: err}
		}
		if deps.DummyHash != "" {
			_, _ = deps.VerifyPassword(password, deps.DummyHash)
		}
		return fail("user_not_found", User{})
	}

	ok, err := deps.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		warn("authcore: stored password hash unusable", "user_id", user.UserID, "error", err)
	}
	if err != nil || !ok {
		return fail("password_mismatch", user)
	}
	if !user.Active {
		return fail("inactive", user)
	}

	if deps.ResetLoginRate != nil {
		if err := deps.ResetLoginRate(ctx, email); err != nil {
			warn("authcore: login throttle reset failed", "error", err)
		}
	}

	at := now()
	rehashed := false
	if deps.UpgradeOnLogin && deps.PasswordNeedsUpgrade != nil {
		rehashed = upgradeHash(ctx, user, password, at, deps, warn)
	}

	tokens, err := deps.IssueTokens(ctx, user, at)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Reason: "issue_failed", Err: err, User: user}
	}

	return LoginResult{User: user, Tokens: tokens, Rehashed: rehashed}
}

// upgradeHash is best-effort; a failure leaves the old hash in place.
func upgradeHash(ctx context.Context, user User, password string, now time.Time, deps LoginDeps, warn func(string, ...any)) bool {
	needs, err := deps.PasswordNeedsUpgrade(user.PasswordHash)
	if err != nil || !needs || deps.HashPassword == nil || deps.UpdatePasswordHash == nil {
		return false
	}
	hash, err := deps.HashPassword(password)
	if err != nil {
		warn("authcore: password rehash failed", "user_id", user.UserID, "error", err)
		return false
	}
	if err := deps.UpdatePasswordHash(ctx, user.UserID, hash, now); err != nil {
		warn("authcore: password rehash store failed", "user_id", user.UserID, "error", err)
		return false
	}
	return true
}
