package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/permission"
)

// Deps groups flow dependency sets. The root engine builds this once and
// delegates request methods to the matching flow.
type Deps struct {
	Register RegisterDeps
	Login    LoginDeps
	Refresh  RefreshDeps
	Logout   LogoutDeps
	Status   AccountStatusDeps
}

// User is the flow-local view of an account.
type User struct {
	UserID       string
	Email        string
	PasswordHash string
	Role         permission.Role
	Active       bool
	DisplayName  string
	CreatedAt    time.Time
}

// Tokens is a freshly issued access/refresh pair.
type Tokens struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Service is the flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired.
func (s Service) Initialized() bool {
	return s.deps.Login.GetUserByEmail != nil && s.deps.Refresh.Rotate != nil
}

func (s Service) Register(ctx context.Context, req RegisterRequest) RegisterResult {
	return RunRegister(ctx, req, s.deps.Register)
}

func (s Service) Login(ctx context.Context, email, password string) LoginResult {
	return RunLogin(ctx, email, password, s.deps.Login)
}

func (s Service) Refresh(ctx context.Context, refreshToken string) RefreshResult {
	return RunRefresh(ctx, refreshToken, s.deps.Refresh)
}

func (s Service) Logout(ctx context.Context, refreshToken string) error {
	return RunLogout(ctx, refreshToken, s.deps.Logout)
}

func (s Service) LogoutAll(ctx context.Context, userID string) (int, error) {
	return RunLogoutAll(ctx, userID, s.deps.Logout)
}

func (s Service) SetActive(ctx context.Context, userID string, active bool) AccountStatusResult {
	return RunSetActive(ctx, userID, active, s.deps.Status)
}

func nowOrDefault(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}

func warnOrDiscard(warn func(string, ...any)) func(string, ...any) {
	if warn == nil {
		return func(string, ...any) {}
	}
	return warn
}
