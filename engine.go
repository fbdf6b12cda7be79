package authcore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/permission"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/google/uuid"
)

// Engine runs registration, login, refresh rotation, logout, and the access
// guard. It holds no per-session state; all refresh state lives in the
// refresh store. An Engine is safe for concurrent use.
type Engine struct {
	config     Config
	users      UserStore
	refresh    refresh.Store
	hasher     PasswordHasher
	dummyHash  string
	jwtManager *jwt.Manager
	limiter    *rate.Limiter
	audit      *auditDispatcher
	metrics    *Metrics
	logger     *slog.Logger
	now        func() time.Time
	flows      flows.Service
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports events dropped because the audit buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// ConcealForbidden reports whether guards should answer authorization
// failures as authentication failures.
func (e *Engine) ConcealForbidden() bool {
	return e != nil && e.config.Security.ConcealForbidden
}

// Ping checks the refresh store when it supports health checks.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.refresh == nil {
		return ErrEngineNotReady
	}
	if p, ok := e.refresh.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.flows.Initialized() && e.jwtManager != nil
}

/*
====================================
REGISTER
====================================
*/

// Register creates an active account with the user role.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (UserRecord, error) {
	if !e.ready() {
		return UserRecord{}, ErrEngineNotReady
	}

	res := e.flows.Register(ctx, flows.RegisterRequest{
		Email:       in.Email,
		Password:    in.Password,
		DisplayName: in.DisplayName,
	})

	var err error
	switch res.Failure {
	case flows.RegisterFailureNone:
		e.metricInc(MetricRegisterSuccess)
		e.emitAudit(ctx, auditEventRegisterSuccess, true, res.User.UserID, nil, nil)
		return userRecordFromFlow(res.User), nil
	case flows.RegisterFailureRateLimited:
		if !errors.Is(res.Err, rate.ErrRateLimited) {
			e.logger.Warn("registration throttle unavailable", "error", res.Err)
		}
		err = ErrRegisterRateLimited
	case flows.RegisterFailureInvalidEmail:
		err = ErrInvalidEmail
	case flows.RegisterFailureWeakPassword:
		err = ErrWeakPassword
	case flows.RegisterFailureInvalidDisplayName:
		err = ErrInvalidDisplayName
	case flows.RegisterFailureDuplicate:
		e.metricInc(MetricRegisterDuplicate)
		e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", ErrDuplicateEmail, nil)
		return UserRecord{}, ErrDuplicateEmail
	case flows.RegisterFailureHash:
		if errors.Is(res.Err, password.ErrInvalidPassword) {
			err = ErrWeakPassword
		} else {
			e.logger.Error("password hashing failed", "error", res.Err)
			err = fmt.Errorf("hash password: %w", res.Err)
		}
	default:
		e.logger.Error("user store failed during register", "reason", res.Reason, "error", res.Err)
		err = fmt.Errorf("register: %w", res.Err)
	}

	e.metricInc(MetricRegisterRejected)
	reason := res.Reason
	e.emitAudit(ctx, auditEventRegisterRejected, false, "", err, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return UserRecord{}, err
}

/*
====================================
LOGIN
====================================
*/

// Login verifies email and password and issues a token pair. Unknown email,
// wrong password, and inactive accounts all yield ErrInvalidCredentials.
func (e *Engine) Login(ctx context.Context, email, password string) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}

	res := e.flows.Login(ctx, email, password)
	switch res.Failure {
	case flows.LoginFailureNone:
		e.metricInc(MetricLoginSuccess)
		if res.Rehashed {
			e.metricInc(MetricPasswordRehash)
		}
		e.emitAudit(ctx, auditEventLoginSuccess, true, res.User.UserID, nil, nil)
		return tokenPairFromFlow(res.Tokens), nil

	case flows.LoginFailureRateLimited:
		if !errors.Is(res.Err, rate.ErrRateLimited) {
			// throttle backend down: fail closed
			e.logger.Warn("login throttle unavailable", "error", res.Err)
		}
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, auditEventLoginRateLimited, false, res.User.UserID, ErrLoginRateLimited, nil)
		return TokenPair{}, ErrLoginRateLimited

	case flows.LoginFailureInvalidCredentials:
		e.metricInc(MetricLoginFailure)
		reason := res.Reason
		e.emitAudit(ctx, auditEventLoginFailure, false, res.User.UserID, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return TokenPair{}, ErrInvalidCredentials

	default:
		e.metricInc(MetricLoginFailure)
		e.logger.Error("login failed", "reason", res.Reason, "error", res.Err)
		e.emitAudit(ctx, auditEventLoginFailure, false, res.User.UserID, res.Err, func() map[string]string {
			return map[string]string{"reason": res.Reason}
		})
		return TokenPair{}, fmt.Errorf("login: %w", res.Err)
	}
}

func (e *Engine) issueTokens(ctx context.Context, user flows.User, now time.Time) (flows.Tokens, error) {
	access, accessExp, err := e.jwtManager.IssueAccess(user.UserID, user.Role, now)
	if err != nil {
		return flows.Tokens{}, err
	}
	issued, err := e.refresh.Create(ctx, user.UserID, now, clientFromContext(ctx))
	if err != nil {
		return flows.Tokens{}, err
	}
	return flows.Tokens{
		AccessToken:      access,
		RefreshToken:     issued.Token,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: issued.Record.ExpiresAt,
	}, nil
}

/*
====================================
REFRESH
====================================
*/

// RefreshSession redeems refreshToken and returns a new pair. A replayed token
// yields ErrRefreshReuse and, by default, revokes every refresh token of its
// owner.
func (e *Engine) RefreshSession(ctx context.Context, refreshToken string) (TokenPair, error) {
	if !e.ready() {
		return TokenPair{}, ErrEngineNotReady
	}

	res := e.flows.Refresh(ctx, refreshToken)
	switch res.Failure {
	case flows.RefreshFailureNone:
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditEventRefreshSuccess, true, res.UserID, nil, nil)
		return tokenPairFromFlow(res.Tokens), nil

	case flows.RefreshFailureReuse:
		e.metricInc(MetricRefreshReuseDetected)
		revoked := res.Revoked
		if revoked > 0 {
			e.logger.Warn("refresh token reuse: revoked all sessions", "user_id", res.UserID, "revoked", revoked)
		}
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, res.UserID, ErrRefreshReuse, func() map[string]string {
			return map[string]string{"revoked": fmt.Sprint(revoked)}
		})
		return TokenPair{}, ErrRefreshReuse

	case flows.RefreshFailureInvalid, flows.RefreshFailureOwner:
		e.metricInc(MetricRefreshFailure)
		reason := res.Reason
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.UserID, ErrInvalidToken, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return TokenPair{}, ErrInvalidToken

	default:
		e.metricInc(MetricRefreshFailure)
		e.logger.Error("refresh failed", "reason", res.Reason, "error", res.Err)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.UserID, res.Err, func() map[string]string {
			return map[string]string{"reason": res.Reason}
		})
		return TokenPair{}, fmt.Errorf("refresh: %w", res.Err)
	}
}

/*
====================================
LOGOUT
====================================
*/

// Logout revokes refreshToken. It returns nil for unknown, malformed, and
// already revoked tokens; backend failures are logged, not returned.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if err := e.flows.Logout(ctx, refreshToken); err != nil {
		e.logger.Warn("logout revoke failed", "error", err)
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, "", nil, nil)
	return nil
}

// LogoutAll revokes every refresh token of userID.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if strings.TrimSpace(userID) == "" {
		return ErrUserNotFound
	}
	n, err := e.flows.LogoutAll(ctx, userID)
	if err != nil {
		e.logger.Error("logout-all revoke failed", "user_id", userID, "error", err)
		e.emitAudit(ctx, auditEventLogoutAll, false, userID, err, nil)
		return fmt.Errorf("logout all: %w", err)
	}
	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, nil, func() map[string]string {
		return map[string]string{"revoked": fmt.Sprint(n)}
	})
	return nil
}

/*
====================================
ACCESS GUARD
====================================
*/

// Authenticate verifies an access token without I/O. Every failure is
// ErrUnauthenticated, wrapping the codec error.
func (e *Engine) Authenticate(ctx context.Context, bearer string) (AuthResult, error) {
	if e == nil || e.jwtManager == nil {
		return AuthResult{}, ErrEngineNotReady
	}

	var start time.Time
	if e.metrics.LatencyEnabled() {
		start = time.Now()
		defer func() {
			e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
		}()
	}

	token := strings.TrimSpace(bearer)
	if token == "" {
		e.metricInc(MetricAuthenticateFailure)
		return AuthResult{}, ErrUnauthenticated
	}

	claims, err := e.jwtManager.VerifyAccess(token, e.now())
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		return AuthResult{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	e.metricInc(MetricAuthenticateSuccess)
	res := AuthResult{
		UserID: claims.UserID(),
		Role:   claims.Role,
	}
	if claims.ExpiresAt != nil {
		res.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return res, nil
}

// Authorize returns nil when role is in required, or when required is empty
// and role is valid. Unknown roles are always forbidden.
func (e *Engine) Authorize(role permission.Role, required ...permission.Role) error {
	if permission.Allowed(role, required...) {
		return nil
	}
	e.metricInc(MetricAuthorizeDenied)
	return ErrForbidden
}

/*
====================================
WIRING
====================================
*/

func (e *Engine) buildFlows() flows.Service {
	warn := func(msg string, args ...any) { e.logger.Warn(msg, args...) }
	isNotFound := func(err error) bool { return errors.Is(err, ErrUserNotFound) }
	getUser := func(ctx context.Context, userID string) (flows.User, error) {
		u, err := e.users.GetUserByID(ctx, userID)
		if err != nil {
			return flows.User{}, err
		}
		return flowUser(u), nil
	}

	deps := flows.Deps{
		Register: flows.RegisterDeps{
			Now:       e.now,
			NewUserID: uuid.NewString,
			Policy: flows.PasswordPolicy{
				MinLength: e.config.Password.MinLength,
				MaxLength: e.config.Password.MaxLength,
			},
			MaxDisplayNameLength: e.config.Security.MaxDisplayNameLength,
			EmailTaken: func(ctx context.Context, email string) (bool, error) {
				_, err := e.users.GetUserByEmail(ctx, email)
				switch {
				case err == nil:
					return true, nil
				case errors.Is(err, ErrUserNotFound):
					return false, nil
				default:
					return false, err
				}
			},
			HashPassword: e.hasher.Hash,
			CreateUser: func(ctx context.Context, u flows.User) error {
				return e.users.CreateUser(ctx, UserRecord{
					UserID:       u.UserID,
					Email:        u.Email,
					PasswordHash: u.PasswordHash,
					Role:         u.Role,
					Active:       u.Active,
					DisplayName:  u.DisplayName,
					CreatedAt:    u.CreatedAt,
					UpdatedAt:    u.CreatedAt,
				})
			},
			IsDuplicate: func(err error) bool { return errors.Is(err, ErrDuplicateEmail) },
		},
		Login: flows.LoginDeps{
			Now:                 e.now,
			ClientIPFromContext: clientIPFromContext,
			Warn:                warn,
			GetUserByEmail: func(ctx context.Context, email string) (flows.User, error) {
				u, err := e.users.GetUserByEmail(ctx, email)
				if err != nil {
					return flows.User{}, err
				}
				return flowUser(u), nil
			},
			IsUserNotFound:       isNotFound,
			VerifyPassword:       e.hasher.Verify,
			DummyHash:            e.dummyHash,
			UpgradeOnLogin:       e.config.Password.UpgradeOnLogin,
			PasswordNeedsUpgrade: e.hasher.NeedsUpgrade,
			HashPassword:         e.hasher.Hash,
			UpdatePasswordHash:   e.users.UpdatePasswordHash,
			IssueTokens:          e.issueTokens,
		},
		Refresh: flows.RefreshDeps{
			Now:  e.now,
			Warn: warn,
			Rotate: func(ctx context.Context, token string, now time.Time) (refresh.Record, refresh.Issued, error) {
				return e.refresh.Rotate(ctx, token, now, clientFromContext(ctx))
			},
			Revoke:           e.refresh.Revoke,
			RevokeAllForUser: e.refresh.RevokeAllForUser,
			RevokeAllOnReuse: e.config.Security.RevokeAllOnReuse,
			GetUserByID:      getUser,
			IssueAccess:      e.jwtManager.IssueAccess,
		},
		Logout: flows.LogoutDeps{
			Revoke:           e.refresh.Revoke,
			RevokeAllForUser: e.refresh.RevokeAllForUser,
		},
		Status: flows.AccountStatusDeps{
			Now:              e.now,
			GetUserByID:      getUser,
			IsUserNotFound:   isNotFound,
			SetActive:        e.users.SetActive,
			RevokeAllForUser: e.refresh.RevokeAllForUser,
		},
	}

	if e.limiter != nil {
		deps.Register.ClientIPFromContext = clientIPFromContext
		deps.Register.EnforceRegisterRate = e.limiter.EnforceRegister
		deps.Login.CheckLoginRate = e.limiter.CheckLogin
		deps.Login.IncrementLoginRate = e.limiter.IncrementLogin
		deps.Login.ResetLoginRate = e.limiter.ResetLogin
	}

	return flows.New(deps)
}

func flowUser(u UserRecord) flows.User {
	return flows.User{
		UserID:       u.UserID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         u.Role,
		Active:       u.Active,
		DisplayName:  u.DisplayName,
		CreatedAt:    u.CreatedAt,
	}
}

func userRecordFromFlow(u flows.User) UserRecord {
	return UserRecord{
		UserID:       u.UserID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         u.Role,
		Active:       u.Active,
		DisplayName:  u.DisplayName,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.CreatedAt,
	}
}

func tokenPairFromFlow(t flows.Tokens) TokenPair {
	return TokenPair{
		AccessToken:      t.AccessToken,
		RefreshToken:     t.RefreshToken,
		AccessExpiresAt:  t.AccessExpiresAt,
		RefreshExpiresAt: t.RefreshExpiresAt,
		TokenType:        TokenType,
	}
}
