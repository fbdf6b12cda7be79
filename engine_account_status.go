package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/permission"
)

// DeactivateUser disables userID and revokes every refresh token it holds.
// Access tokens already issued stay valid until they expire.
func (e *Engine) DeactivateUser(ctx context.Context, userID string) error {
	err := e.setActive(ctx, userID, false)
	if err == nil {
		e.metricInc(MetricAccountDeactivated)
	}
	return err
}

// ActivateUser re-enables userID.
func (e *Engine) ActivateUser(ctx context.Context, userID string) error {
	err := e.setActive(ctx, userID, true)
	if err == nil {
		e.metricInc(MetricAccountActivated)
	}
	return err
}

func (e *Engine) setActive(ctx context.Context, userID string, active bool) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	action := "activate"
	if !active {
		action = "deactivate"
	}

	res := e.flows.SetActive(ctx, userID, active)
	var err error
	switch res.Failure {
	case flows.AccountStatusFailureNone:
	case flows.AccountStatusFailureNotFound:
		err = ErrUserNotFound
	case flows.AccountStatusFailureRevoke:
		e.logger.Error("deactivated account but refresh revocation failed", "user_id", userID, "error", res.Err)
		err = fmt.Errorf("revoke sessions: %w", res.Err)
	default:
		err = fmt.Errorf("set active: %w", res.Err)
	}

	revoked := res.Revoked
	changed := res.Changed
	e.emitAudit(ctx, auditEventAccountStatusChange, err == nil, userID, err, func() map[string]string {
		return map[string]string{
			"action":  action,
			"changed": fmt.Sprint(changed),
			"revoked": fmt.Sprint(revoked),
		}
	})
	return err
}

// SetRole changes the role of userID. The new role reaches access tokens at
// the next login or refresh.
func (e *Engine) SetRole(ctx context.Context, userID string, role permission.Role) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if !role.Valid() {
		return ErrInvalidRole
	}
	if userID == "" {
		return ErrUserNotFound
	}

	err := e.users.SetRole(ctx, userID, role, e.now().UTC())
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		err = fmt.Errorf("set role: %w", err)
	}
	if err == nil {
		e.metricInc(MetricRoleChanged)
	}
	e.emitAudit(ctx, auditEventRoleChange, err == nil, userID, err, func() map[string]string {
		return map[string]string{"role": role.String()}
	})
	return err
}
