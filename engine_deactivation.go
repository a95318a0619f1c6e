package identity

import (
	"context"

	"github.com/initstack/identity/token"
)

const (
	templateDeactivateRequested = "users/deactivate_requested"
	templateDeactivated         = "users/deactivated"

	pathDeactivateConfirm = "/api/users/deactivate/confirm"
)

// RequestDeactivation issues a deactivation token for an active account
// and mails the confirmation link. Repeated requests within the TTL resend
// the same token.
func (e *Engine) RequestDeactivation(ctx context.Context, subject string) error {
	if err := e.ready(); err != nil {
		return err
	}

	fail := func(err error) error {
		e.metrics.Inc(MetricInitiateFailure)
		e.emitAudit(ctx, auditEventDeactivateRequest, subject, err, nil)
		return err
	}

	user, err := e.findBySubject(ctx, subject)
	if err != nil {
		return fail(err)
	}
	if !user.Active {
		return fail(ErrAlreadyInTargetState)
	}

	tok, err := e.issueToken(ctx, token.Deactivation, subject, nil)
	if err != nil {
		return fail(err)
	}

	if err := e.notify(ctx, Notification{
		To:       user.Email,
		Subject:  "Confirm " + e.config.Project + " Account Deactivation",
		Template: templateDeactivateRequested,
		Context: map[string]string{
			"first_name":        user.FirstName,
			"deactivation_link": e.confirmLink(pathDeactivateConfirm, tok),
		},
	}); err != nil {
		return fail(err)
	}

	e.metrics.Inc(MetricInitiateSuccess)
	e.emitAudit(ctx, auditEventDeactivateRequest, subject, nil, nil)

	return nil
}

// ConfirmDeactivation consumes a deactivation token and flips the account
// inactive. Login remains possible and reactivates the account.
func (e *Engine) ConfirmDeactivation(ctx context.Context, raw string) (UserRecord, error) {
	return e.confirm(ctx, raw, lifecycleFlow{
		class:        token.Deactivation,
		event:        auditEventDeactivateConfirm,
		precondition: activePrecondition(false),
		apply: func(ctx context.Context, _ *token.Claims, user UserRecord) (UserRecord, error) {
			return e.setActive(ctx, user, false)
		},
		notify: func(ctx context.Context, user UserRecord) {
			e.notifyBestEffort(ctx, Notification{
				To:       user.Email,
				Subject:  e.config.Project + " Account Deactivated",
				Template: templateDeactivated,
				Context:  map[string]string{"first_name": user.FirstName},
			})
		},
	})
}
