package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore/internal/flows"
)

const (
	// DefaultListLimit is used by ListUsers when limit is not positive.
	DefaultListLimit = 100
	// MaxListLimit caps a single ListUsers page.
	MaxListLimit = 100
)

// GetUser returns the account with userID.
func (e *Engine) GetUser(ctx context.Context, userID string) (UserRecord, error) {
	if !e.ready() {
		return UserRecord{}, ErrEngineNotReady
	}
	if userID == "" {
		return UserRecord{}, ErrUserNotFound
	}
	u, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return UserRecord{}, ErrUserNotFound
		}
		return UserRecord{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// ListUsers returns one page of accounts ordered by creation time. A
// non-positive limit means DefaultListLimit; negative offsets are treated
// as zero.
func (e *Engine) ListUsers(ctx context.Context, offset, limit int) ([]UserRecord, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if offset < 0 {
		offset = 0
	}
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	users, err := e.users.ListUsers(ctx, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// UpdateProfile replaces the display name of userID. Email and role are not
// editable through this path.
func (e *Engine) UpdateProfile(ctx context.Context, userID, displayName string) (UserRecord, error) {
	if !e.ready() {
		return UserRecord{}, ErrEngineNotReady
	}

	name, ok := flows.NormalizeDisplayName(displayName, e.config.Security.MaxDisplayNameLength)
	if !ok {
		return UserRecord{}, ErrInvalidDisplayName
	}
	if userID == "" {
		return UserRecord{}, ErrUserNotFound
	}

	if err := e.users.UpdateDisplayName(ctx, userID, name, e.now().UTC()); err != nil {
		e.emitAudit(ctx, auditEventProfileUpdate, false, userID, err, nil)
		if errors.Is(err, ErrUserNotFound) {
			return UserRecord{}, ErrUserNotFound
		}
		return UserRecord{}, fmt.Errorf("update profile: %w", err)
	}

	e.metricInc(MetricProfileUpdated)
	e.emitAudit(ctx, auditEventProfileUpdate, true, userID, nil, nil)
	return e.GetUser(ctx, userID)
}
