package refresh

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/internal"
)

var (
	// ErrNotFound is returned when no record matches the presented token.
	ErrNotFound = errors.New("refresh token not found")
	// ErrExpired is returned when the record's expiry is at or before now.
	ErrExpired = errors.New("refresh token expired")
	// ErrAlreadyRevoked is returned when the record was already redeemed or
	// revoked. The record is returned alongside it.
	ErrAlreadyRevoked = errors.New("refresh token already revoked")
	// ErrStoreUnavailable wraps backend failures.
	ErrStoreUnavailable = errors.New("refresh store unavailable")
	// ErrCorruptRecord is returned when a stored record cannot be decoded.
	ErrCorruptRecord = errors.New("refresh record corrupt")
)

// Record is the server-side state behind one refresh token.
type Record struct {
	// ID is the storage key: the token digest, or the raw token when
	// identifiers are stored unhashed.
	ID         string
	UserID     string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Revoked    bool
	ReplacedBy string
	// IP and UserAgent describe the client the token was issued to.
	IP         string
	UserAgent  string
}

// Client is the request metadata stored with a newly issued record.
type Client struct {
	IP        string
	UserAgent string
}

// Issued pairs a freshly created record with the opaque token handed to the
// client. Token is never persisted when identifiers are hashed.
type Issued struct {
	Token  string
	Record Record
}

// Store persists refresh-token records.
//
// Implementations must make Redeem and Rotate atomic with respect to
// concurrent calls for the same token.
type Store interface {
	// Create persists an unrevoked record for userID expiring at now+TTL.
	Create(ctx context.Context, userID string, now time.Time, client Client) (Issued, error)
	// Redeem marks the record revoked and returns it. It fails with
	// ErrNotFound, ErrExpired, or ErrAlreadyRevoked, in that order of checks.
	Redeem(ctx context.Context, token string, now time.Time) (Record, error)
	// Rotate redeems token and creates its successor in one step, linking the
	// old record's ReplacedBy to the new one. The successor records client.
	Rotate(ctx context.Context, token string, now time.Time, client Client) (Record, Issued, error)
	// Revoke marks the record revoked. Unknown tokens are not an error.
	Revoke(ctx context.Context, token string) error
	// RevokeAllForUser revokes every unrevoked record of userID and returns
	// how many changed.
	RevokeAllForUser(ctx context.Context, userID string) (int, error)
}

// Options configures a Store implementation.
type Options struct {
	// TTL is the refresh-token lifetime.
	TTL time.Duration
	// Retention keeps records past expiry or revocation so that replays are
	// still recognised. Zero means TTL.
	Retention time.Duration
	// RawIdentifiers stores the opaque token itself instead of its digest.
	RawIdentifiers bool
	// NewIdentifier overrides the token generator.
	NewIdentifier func() (string, error)
}

func (o Options) withDefaults() (Options, error) {
	if o.TTL <= 0 {
		return o, errors.New("refresh TTL must be > 0")
	}
	if o.Retention < 0 {
		return o, errors.New("refresh retention must be >= 0")
	}
	if o.Retention == 0 {
		o.Retention = o.TTL
	}
	if o.NewIdentifier == nil {
		o.NewIdentifier = internal.NewOpaqueToken
	}
	return o, nil
}

// Keyer turns presented tokens into storage keys and mints new ones. Store
// implementations outside this package embed it.
type Keyer struct {
	opts Options
}

// NewKeyer validates opts and fills defaults.
func NewKeyer(opts Options) (Keyer, error) {
	o, err := opts.withDefaults()
	if err != nil {
		return Keyer{}, err
	}
	return Keyer{opts: o}, nil
}

// Options returns the effective options.
func (k Keyer) Options() Options { return k.opts }

// Key maps a presented token to its storage key. Empty tokens yield
// ErrNotFound.
func (k Keyer) Key(token string) (string, error) {
	key, err := internal.StorageKey(token, !k.opts.RawIdentifiers)
	if err != nil {
		return "", ErrNotFound
	}
	return key, nil
}

// Mint returns a new opaque token and its storage key.
func (k Keyer) Mint() (token, key string, err error) {
	token, err = k.opts.NewIdentifier()
	if err != nil {
		return "", "", err
	}
	key, err = k.Key(token)
	if err != nil {
		return "", "", errors.New("refresh identifier generator returned empty token")
	}
	return token, key, nil
}

// Issue builds the record for a freshly minted identifier.
func (k Keyer) Issue(id, userID string, now time.Time, client Client) Record {
	issuedAt, expiresAt := k.Lifetime(now)
	return Record{
		ID:        id,
		UserID:    userID,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		IP:        client.IP,
		UserAgent: client.UserAgent,
	}
}

// Lifetime returns the record window for a record issued at now.
func (k Keyer) Lifetime(now time.Time) (issuedAt, expiresAt time.Time) {
	issuedAt = now.UTC().Truncate(time.Millisecond)
	return issuedAt, issuedAt.Add(k.opts.TTL)
}
