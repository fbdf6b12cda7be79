package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/refresh"
)

// RefreshStore implements refresh.Store on the refresh_tokens table.
type RefreshStore struct {
	db    *sql.DB
	keyer refresh.Keyer
}

var _ refresh.Store = (*RefreshStore)(nil)

// NewRefreshStore returns a RefreshStore using db.
func NewRefreshStore(db *sql.DB, opts refresh.Options) (*RefreshStore, error) {
	if db == nil {
		return nil, errors.New("sqlstore: nil db")
	}
	keyer, err := refresh.NewKeyer(opts)
	if err != nil {
		return nil, err
	}
	return &RefreshStore{db: db, keyer: keyer}, nil
}

func (s *RefreshStore) Create(ctx context.Context, userID string, now time.Time, client refresh.Client) (refresh.Issued, error) {
	token, id, err := s.keyer.Mint()
	if err != nil {
		return refresh.Issued{}, err
	}
	rec := s.keyer.Issue(id, userID, now, client)
	if err := insertRefresh(ctx, s.db, rec); err != nil {
		return refresh.Issued{}, err
	}
	return refresh.Issued{Token: token, Record: rec}, nil
}

func (s *RefreshStore) Redeem(ctx context.Context, token string, now time.Time) (refresh.Record, error) {
	id, err := s.keyer.Key(token)
	if err != nil {
		return refresh.Record{}, err
	}

	query := `
		UPDATE refresh_tokens
		SET revoked = TRUE
		WHERE token_hash = $1 AND revoked = FALSE AND expires_at > $2
		RETURNING user_id, issued_at, expires_at, replaced_by, ip_address, user_agent
	`
	rec, err := scanRedeemed(s.db.QueryRowContext(ctx, query, id, now.UnixMilli()), id)
	if errors.Is(err, sql.ErrNoRows) {
		return classify(ctx, s.db, id, now)
	}
	return rec, err
}

func (s *RefreshStore) Rotate(ctx context.Context, token string, now time.Time, client refresh.Client) (refresh.Record, refresh.Issued, error) {
	id, err := s.keyer.Key(token)
	if err != nil {
		return refresh.Record{}, refresh.Issued{}, err
	}
	nextToken, nextID, err := s.keyer.Mint()
	if err != nil {
		return refresh.Record{}, refresh.Issued{}, err
	}
	next := s.keyer.Issue(nextID, "", now, client)

	var old refresh.Record
	err = WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		query := `
			UPDATE refresh_tokens
			SET revoked = TRUE, replaced_by = $1
			WHERE token_hash = $2 AND revoked = FALSE AND expires_at > $3
			RETURNING user_id, issued_at, expires_at, replaced_by, ip_address, user_agent
		`
		rec, err := scanRedeemed(tx.QueryRowContext(ctx, query, nextID, id, now.UnixMilli()), id)
		if errors.Is(err, sql.ErrNoRows) {
			rec, err = classify(ctx, tx, id, now)
			old = rec
			return err
		}
		if err != nil {
			return err
		}
		old = rec
		next.UserID = rec.UserID
		return insertRefresh(ctx, tx, next)
	})
	if err != nil {
		return old, refresh.Issued{}, err
	}

	return old, refresh.Issued{Token: nextToken, Record: next}, nil
}

// Lookup returns the record for token without changing it.
func (s *RefreshStore) Lookup(ctx context.Context, token string) (refresh.Record, error) {
	id, err := s.keyer.Key(token)
	if err != nil {
		return refresh.Record{}, err
	}
	rec, err := selectRefresh(ctx, s.db, id)
	if errors.Is(err, sql.ErrNoRows) {
		return refresh.Record{}, refresh.ErrNotFound
	}
	return rec, err
}

func (s *RefreshStore) Revoke(ctx context.Context, token string) error {
	id, err := s.keyer.Key(token)
	if err != nil {
		return nil
	}
	query := `UPDATE refresh_tokens SET revoked = TRUE WHERE token_hash = $1 AND revoked = FALSE`
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RefreshStore) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	query := `UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = $1 AND revoked = FALSE`
	res, err := s.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}
	return int(n), nil
}

// ActiveCount returns how many unrevoked, unexpired records userID holds.
func (s *RefreshStore) ActiveCount(ctx context.Context, userID string, now time.Time) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM refresh_tokens WHERE user_id = $1 AND revoked = FALSE AND expires_at > $2`
	if err := s.db.QueryRowContext(ctx, query, userID, now.UnixMilli()).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}
	return n, nil
}

// PruneExpired deletes records whose expiry plus the retention window is at
// or before now, and returns how many were removed.
func (s *RefreshStore) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-s.keyer.Options().Retention)
	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}
	return res.RowsAffected()
}

// Ping checks database availability.
func (s *RefreshStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}
	return nil
}

func insertRefresh(ctx context.Context, db DBTX, rec refresh.Record) error {
	query := `
		INSERT INTO refresh_tokens (token_hash, user_id, issued_at, expires_at, revoked, replaced_by, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, FALSE, '', $5, $6)
	`
	_, err := db.ExecContext(ctx, query,
		rec.ID, rec.UserID, rec.IssuedAt.UnixMilli(), rec.ExpiresAt.UnixMilli(), rec.IP, rec.UserAgent)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.New("refresh: identifier collision")
		}
		return fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}
	return nil
}

func scanRedeemed(row *sql.Row, id string) (refresh.Record, error) {
	var (
		rec       = refresh.Record{ID: id, Revoked: true}
		issuedAt  int64
		expiresAt int64
	)
	if err := row.Scan(&rec.UserID, &issuedAt, &expiresAt, &rec.ReplacedBy, &rec.IP, &rec.UserAgent); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return refresh.Record{}, err
		}
		return refresh.Record{}, fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}
	rec.IssuedAt = time.UnixMilli(issuedAt).UTC()
	rec.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	return rec, nil
}

func selectRefresh(ctx context.Context, db DBTX, id string) (refresh.Record, error) {
	query := `
		SELECT user_id, issued_at, expires_at, revoked, replaced_by, ip_address, user_agent
		FROM refresh_tokens
		WHERE token_hash = $1
	`
	var (
		rec       = refresh.Record{ID: id}
		issuedAt  int64
		expiresAt int64
	)
	err := db.QueryRowContext(ctx, query, id).Scan(
		&rec.UserID, &issuedAt, &expiresAt, &rec.Revoked, &rec.ReplacedBy, &rec.IP, &rec.UserAgent)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return refresh.Record{}, err
		}
		return refresh.Record{}, fmt.Errorf("%w: %v", refresh.ErrStoreUnavailable, err)
	}
	rec.IssuedAt = time.UnixMilli(issuedAt).UTC()
	rec.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	return rec, nil
}

// classify explains why a conditional redeem matched no row.
func classify(ctx context.Context, db DBTX, id string, now time.Time) (refresh.Record, error) {
	rec, err := selectRefresh(ctx, db, id)
	if errors.Is(err, sql.ErrNoRows) {
		return refresh.Record{}, refresh.ErrNotFound
	}
	if err != nil {
		return refresh.Record{}, err
	}

	switch {
	case !now.Before(rec.ExpiresAt):
		return rec, refresh.ErrExpired
	case rec.Revoked:
		return rec, refresh.ErrAlreadyRevoked
	default:
		// The row changed between the update and this read.
		return rec, refresh.ErrAlreadyRevoked
	}
}
