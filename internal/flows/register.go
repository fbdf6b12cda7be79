package flows

import (
	"context"
	"net/mail"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/MrEthical07/authcore/permission"
)

// MaxEmailLength is the longest address accepted (RFC 5321 path limit).
const MaxEmailLength = 254

type RegisterRequest struct {
	Email       string
	Password    string
	DisplayName string
}

// RegisterFailureKind classifies registration failures for root-level mapping.
type RegisterFailureKind int

const (
	RegisterFailureNone RegisterFailureKind = iota
	RegisterFailureInvalidEmail
	RegisterFailureWeakPassword
	RegisterFailureInvalidDisplayName
	RegisterFailureDuplicate
	RegisterFailureHash
	RegisterFailureStore
	RegisterFailureRateLimited
)

type RegisterResult struct {
	Failure RegisterFailureKind
	// Reason is a short machine-readable cause for audit metadata.
	Reason string
	Err    error
	User   User
}

// PasswordPolicy bounds password length in characters and requires at least
// one letter and one digit.
type PasswordPolicy struct {
	MinLength int
	MaxLength int
}

// Check returns "" when plaintext satisfies the policy, otherwise the reason.
func (p PasswordPolicy) Check(plaintext string) string {
	if !utf8.ValidString(plaintext) {
		return "invalid_utf8"
	}
	n := utf8.RuneCountInString(plaintext)
	if n < p.MinLength {
		return "too_short"
	}
	if p.MaxLength > 0 && n > p.MaxLength {
		return "too_long"
	}

	var letter, digit bool
	for _, r := range plaintext {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter {
		return "missing_letter"
	}
	if !digit {
		return "missing_digit"
	}
	return ""
}

// CanonicalEmail trims and lower-cases an address without validating it.
func CanonicalEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeEmail canonicalizes email and validates it as a bare addr-spec
// with a dotted domain. Display-name forms such as "Alice <a@b.c>" are
// rejected.
func NormalizeEmail(email string) (string, bool) {
	email = CanonicalEmail(email)
	if email == "" || len(email) > MaxEmailLength {
		return "", false
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return "", false
	}

	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return "", false
	}
	domain := email[at+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return "", false
	}
	return email, true
}

// NormalizeDisplayName trims name and reports whether it fits maxLen runes.
func NormalizeDisplayName(name string, maxLen int) (string, bool) {
	name = strings.TrimSpace(name)
	if !utf8.ValidString(name) {
		return "", false
	}
	if maxLen > 0 && utf8.RuneCountInString(name) > maxLen {
		return "", false
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", false
		}
	}
	return name, true
}

// RegisterDeps captures registration dependencies.
type RegisterDeps struct {
	Now                  func() time.Time
	NewUserID            func() string
	Policy               PasswordPolicy
	MaxDisplayNameLength int

	// EnforceRegisterRate is optional; a nil hook disables the per-IP
	// registration throttle.
	ClientIPFromContext func(context.Context) string
	EnforceRegisterRate func(ctx context.Context, ip string) error

	// EmailTaken reports whether an account already uses email.
	EmailTaken   func(ctx context.Context, email string) (bool, error)
	HashPassword func(string) (string, error)
	CreateUser   func(ctx context.Context, u User) error
	IsDuplicate  func(error) bool
}

// RunRegister validates the request and creates an active account with the
// user role.
func RunRegister(ctx context.Context, req RegisterRequest, deps RegisterDeps) RegisterResult {
	now := nowOrDefault(deps.Now)

	if deps.EnforceRegisterRate != nil {
		ip := ""
		if deps.ClientIPFromContext != nil {
			ip = deps.ClientIPFromContext(ctx)
		}
		if err := deps.EnforceRegisterRate(ctx, ip); err != nil {
			return RegisterResult{Failure: RegisterFailureRateLimited, Reason: "rate_limited", Err: err}
		}
	}

	email, ok := NormalizeEmail(req.Email)
	if !ok {
		return RegisterResult{Failure: RegisterFailureInvalidEmail, Reason: "invalid_email"}
	}
	if reason := deps.Policy.Check(req.Password); reason != "" {
		return RegisterResult{Failure: RegisterFailureWeakPassword, Reason: reason}
	}
	displayName, ok := NormalizeDisplayName(req.DisplayName, deps.MaxDisplayNameLength)
	if !ok {
		return RegisterResult{Failure: RegisterFailureInvalidDisplayName, Reason: "invalid_display_name"}
	}

	taken, err := deps.EmailTaken(ctx, email)
	if err != nil {
		return RegisterResult{Failure: RegisterFailureStore, Reason: "lookup_failed", Err: err}
	}
	if taken {
		return RegisterResult{Failure: RegisterFailureDuplicate, Reason: "duplicate"}
	}

	hash, err := deps.HashPassword(req.Password)
	if err != nil {
		return RegisterResult{Failure: RegisterFailureHash, Reason: "hash_failed", Err: err}
	}

	created := now().UTC().Truncate(time.Second)
	user := User{
		UserID:       deps.NewUserID(),
		Email:        email,
		PasswordHash: hash,
		Role:         permission.RoleUser,
		Active:       true,
		DisplayName:  displayName,
		CreatedAt:    created,
	}
	if err := deps.CreateUser(ctx, user); err != nil {
		// lost a race with a concurrent registration of the same email
		if deps.IsDuplicate != nil && deps.IsDuplicate(err) {
			return RegisterResult{Failure: RegisterFailureDuplicate, Reason: "duplicate"}
		}
		return RegisterResult{Failure: RegisterFailureStore, Reason: "create_failed", Err: err}
	}

	return RegisterResult{User: user}
}
