package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/MrEthical07/authcore/internal"
	"github.com/MrEthical07/authcore/permission"
)

// SigningMethod selects the access-token signature algorithm.
type SigningMethod string

const (
	// MethodHS256 signs with a shared secret held in Config.PrivateKey.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 key pair (raw or PEM encoded).
	MethodEd25519 SigningMethod = "ed25519"
)

const (
	// TokenTypeAccess is the typ claim of every token this package issues.
	TokenTypeAccess = "access"
	// MinSecretBytes is the shortest HS256 secret NewManager accepts.
	MinSecretBytes = 32

	maxLeeway = 2 * time.Minute
)

// Config holds the signing material and validation options of a Manager.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	// Leeway widens the exp check. Zero keeps the exp boundary exact.
	Leeway     time.Duration
	KeyID      string
	VerifyKeys map[string][]byte
}

// Manager signs and verifies access tokens. It is immutable after NewManager
// and safe for concurrent use.
type Manager struct {
	config Config
	method jwt.SigningMethod
}

// AccessClaims is the claim set of an access token.
type AccessClaims struct {
	Role permission.Role `json:"role"`
	Type string          `json:"typ"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim.
func (c *AccessClaims) UserID() string { return c.Subject }

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, errors.New("invalid leeway configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	var method jwt.SigningMethod
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < MinSecretBytes {
			return nil, fmt.Errorf("hs256 secret must be at least %d bytes", MinSecretBytes)
		}
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			if len(key) < MinSecretBytes {
				return nil, fmt.Errorf("hs256 verify key for kid %q is too short", kid)
			}
		}
		method = jwt.SigningMethodHS256
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.VerifyKeys) == 0 && len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
		method = jwt.SigningMethodEdDSA
	default:
		return nil, errors.New("unsupported signing method")
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	return &Manager{config: cfg, method: method}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (j *Manager) AccessTTL() time.Duration { return j.config.AccessTTL }

// IssueAccess signs an access token for userID with role.
//
// iat is now truncated to the second and exp is iat plus AccessTTL; the
// returned expiresAt equals the exp claim.
func (j *Manager) IssueAccess(userID string, role permission.Role, now time.Time) (string, time.Time, error) {
	if strings.TrimSpace(userID) == "" {
		return "", time.Time{}, errors.New("jwt: empty subject")
	}
	if !role.Valid() {
		return "", time.Time{}, fmt.Errorf("jwt: %w", permission.ErrUnknownRole)
	}
	if len(j.config.PrivateKey) == 0 {
		return "", time.Time{}, errors.New("jwt: manager has no signing key")
	}

	issuedAt := now.Truncate(time.Second)
	expiresAt := issuedAt.Add(j.config.AccessTTL)

	claims := AccessClaims{
		Role: role,
		Type: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    j.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	if j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}

	token := jwt.NewWithClaims(j.method, claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}

	signKey, err := j.signKey()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := token.SignedString(signKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("jwt: sign: %w", err)
	}
	return signed, expiresAt, nil
}

// IssueRefreshIdentifier returns a fresh opaque refresh token: 32 random
// bytes, base64url without padding. It is unrelated to any access claims.
func (j *Manager) IssueRefreshIdentifier() (string, error) {
	return internal.NewOpaqueToken()
}

// VerifyAccess checks token's signature and claims at time now.
//
// It returns ErrExpiredToken when now >= exp and ErrMalformedToken for any
// other defect.
func (j *Manager) VerifyAccess(tokenStr string, now time.Time) (*AccessClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.method.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		options = append(options, jwt.WithAudience(j.config.Audience))
	}

	claims := &AccessClaims{}
	token, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, claims, j.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if !token.Valid {
		return nil, ErrMalformedToken
	}

	switch {
	case claims.Type != TokenTypeAccess:
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrMalformedToken, claims.Type)
	case !claims.Role.Valid():
		return nil, fmt.Errorf("%w: missing role", ErrMalformedToken)
	case strings.TrimSpace(claims.Subject) == "":
		return nil, fmt.Errorf("%w: missing subject", ErrMalformedToken)
	case claims.IssuedAt == nil:
		return nil, fmt.Errorf("%w: missing iat", ErrMalformedToken)
	}
	return claims, nil
}

func (j *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != j.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	if len(j.config.VerifyKeys) > 0 {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := j.config.VerifyKeys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return j.verifyKeyFromBytes(key)
	}

	if j.config.KeyID != "" {
		kid, _ := t.Header["kid"].(string)
		if kid != j.config.KeyID {
			return nil, errors.New("unknown kid")
		}
	}

	switch j.config.SigningMethod {
	case MethodHS256:
		return j.config.PrivateKey, nil
	default:
		return parseEdPublicKey(j.config.PublicKey)
	}
}

func (j *Manager) signKey() (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return j.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(j.config.PrivateKey)
	}
}

func (j *Manager) verifyKeyFromBytes(key []byte) (interface{}, error) {
	switch j.config.SigningMethod {
	case MethodHS256:
		return key, nil
	default:
		return parseEdPublicKey(key)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
