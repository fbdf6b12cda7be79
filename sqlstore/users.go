package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/permission"
)

// UserStore implements authcore.UserStore over DBTX.
type UserStore struct {
	db DBTX
}

var _ authcore.UserStore = (*UserStore)(nil)

// NewUserStore binds a UserStore to db, which may be a *sql.DB or *sql.Tx.
func NewUserStore(db DBTX) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `id, email, password_hash, role, active, display_name, created_at, updated_at`

func (s *UserStore) CreateUser(ctx context.Context, u authcore.UserRecord) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		u.UserID, u.Email, u.PasswordHash, u.Role.String(), u.Active, u.DisplayName,
		u.CreatedAt.Unix(), u.UpdatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return authcore.ErrDuplicateEmail
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (authcore.UserRecord, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(s.db.QueryRowContext(ctx, query, email))
}

func (s *UserStore) GetUserByID(ctx context.Context, userID string) (authcore.UserRecord, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(s.db.QueryRowContext(ctx, query, userID))
}

// ListUsers returns users ordered by creation time, then id.
func (s *UserStore) ListUsers(ctx context.Context, offset, limit int) ([]authcore.UserRecord, error) {
	if offset < 0 || limit <= 0 {
		return []authcore.UserRecord{}, nil
	}
	query := `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY created_at, id
		LIMIT $1 OFFSET $2
	`
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	users := make([]authcore.UserRecord, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return users, nil
}

func (s *UserStore) UpdatePasswordHash(ctx context.Context, userID, hash string, now time.Time) error {
	return s.update(ctx, `UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`, hash, now.Unix(), userID)
}

func (s *UserStore) UpdateDisplayName(ctx context.Context, userID, name string, now time.Time) error {
	return s.update(ctx, `UPDATE users SET display_name = $1, updated_at = $2 WHERE id = $3`, name, now.Unix(), userID)
}

func (s *UserStore) SetActive(ctx context.Context, userID string, active bool, now time.Time) error {
	return s.update(ctx, `UPDATE users SET active = $1, updated_at = $2 WHERE id = $3`, active, now.Unix(), userID)
}

func (s *UserStore) SetRole(ctx context.Context, userID string, role permission.Role, now time.Time) error {
	if !role.Valid() {
		return authcore.ErrInvalidRole
	}
	return s.update(ctx, `UPDATE users SET role = $1, updated_at = $2 WHERE id = $3`, role.String(), now.Unix(), userID)
}

func (s *UserStore) update(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return authcore.ErrUserNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (authcore.UserRecord, error) {
	var (
		u         authcore.UserRecord
		role      string
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(&u.UserID, &u.Email, &u.PasswordHash, &role, &u.Active, &u.DisplayName, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authcore.UserRecord{}, authcore.ErrUserNotFound
		}
		return authcore.UserRecord{}, fmt.Errorf("db error: %w", err)
	}
	parsed, err := permission.ParseRole(role)
	if err != nil {
		return authcore.UserRecord{}, fmt.Errorf("db error: user %s: %w", u.UserID, err)
	}
	u.Role = parsed
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	u.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return u, nil
}
