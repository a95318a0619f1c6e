package identity

import (
	"context"

	"github.com/initstack/identity/token"
)

const (
	templateResetRequested = "users/reset_password_requested"
	templateResetDone      = "users/reset_password_done"

	pathResetConfirm = "/api/users/reset-password/confirm"
)

// RequestPasswordReset issues a reset token for the account matching
// identifier and mails the reset link. The flow is anonymous: no password
// is required to initiate it.
func (e *Engine) RequestPasswordReset(ctx context.Context, identifier string) error {
	if err := e.ready(); err != nil {
		return err
	}

	fail := func(subject string, err error) error {
		e.metrics.Inc(MetricInitiateFailure)
		e.emitAudit(ctx, auditEventResetRequest, subject, err, nil)
		return err
	}

	user, err := e.findByIdentifier(ctx, identifier)
	if err != nil {
		return fail("", err)
	}
	if !user.Active {
		return fail(user.Subject, ErrAlreadyInTargetState)
	}

	tok, err := e.issueToken(ctx, token.ResetPassword, user.Subject, nil)
	if err != nil {
		return fail(user.Subject, err)
	}

	if err := e.notify(ctx, Notification{
		To:       user.Email,
		Subject:  "Reset Your " + e.config.Project + " Password",
		Template: templateResetRequested,
		Context: map[string]string{
			"first_name": user.FirstName,
			"reset_link": e.confirmLink(pathResetConfirm, tok),
		},
	}); err != nil {
		return fail(user.Subject, err)
	}

	e.metrics.Inc(MetricInitiateSuccess)
	e.emitAudit(ctx, auditEventResetRequest, user.Subject, nil, nil)

	return nil
}

// ConfirmPasswordReset consumes a reset token and installs newPassword,
// subject to the password policy. Existing access and refresh tokens stay
// live; only the reset token is consumed.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, raw, newPassword string) (UserRecord, error) {
	return e.confirm(ctx, raw, lifecycleFlow{
		class:        token.ResetPassword,
		event:        auditEventResetConfirm,
		precondition: activePrecondition(false),
		apply: func(ctx context.Context, _ *token.Claims, user UserRecord) (UserRecord, error) {
			hash, err := e.hasher.Hash(newPassword)
			if err != nil {
				return UserRecord{}, err
			}

			now := e.now()
			rows, err := e.users.ConditionalUpdate(ctx, user.Subject, true, UserPatch{
				PasswordHash: &hash,
				UpdatedAt:    &now,
			})
			if err != nil {
				return UserRecord{}, persistenceErr(err)
			}
			if rows == 0 {
				return UserRecord{}, ErrAlreadyInTargetState
			}

			user.PasswordHash = hash
			user.UpdatedAt = now
			return user, nil
		},
		notify: func(ctx context.Context, user UserRecord) {
			e.notifyBestEffort(ctx, Notification{
				To:       user.Email,
				Subject:  e.config.Project + " Password Changed",
				Template: templateResetDone,
				Context:  map[string]string{"first_name": user.FirstName},
			})
		},
	})
}
