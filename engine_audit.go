package authcore

import (
	"context"
	"errors"
)

const (
	auditEventRegisterSuccess      = "register_success"
	auditEventRegisterDuplicate    = "register_duplicate"
	auditEventRegisterRejected     = "register_rejected"
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventLoginRateLimited     = "login_rate_limited"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventRefreshReuseDetected = "refresh_reuse_detected"
	auditEventLogout               = "logout"
	auditEventLogoutAll            = "logout_all"
	auditEventAccountStatusChange  = "account_status_change"
	auditEventRoleChange           = "role_change"
	auditEventProfileUpdate        = "profile_update"
)

// AuditErrorCode is the stable error label written to AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrUnauthenticated    AuditErrorCode = "unauthenticated"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrRefreshReuse       AuditErrorCode = "refresh_reuse"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrForbidden          AuditErrorCode = "forbidden"
	auditErrValidation         AuditErrorCode = "validation"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	// before ErrInvalidToken, which it wraps
	case errors.Is(err, ErrRefreshReuse):
		return auditErrRefreshReuse
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrUnauthenticated):
		return auditErrUnauthenticated
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrLoginRateLimited),
		errors.Is(err, ErrRegisterRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrForbidden):
		return auditErrForbidden
	case errors.Is(err, ErrDuplicateEmail):
		return auditErrDuplicate
	case errors.Is(err, ErrInvalidEmail),
		errors.Is(err, ErrWeakPassword),
		errors.Is(err, ErrInvalidDisplayName),
		errors.Is(err, ErrInvalidRole):
		return auditErrValidation
	default:
		return auditErrInternal
	}
}
