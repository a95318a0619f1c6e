package identity

import (
	"context"
	"errors"

	"github.com/initstack/identity/token"
)

const (
	templateEmailRequested = "users/update_email_requested"
	templateEmailDone      = "users/update_email_done"

	pathEmailConfirm = "/api/users/update-email/confirm"
)

// RequestEmailUpdate issues an email-change token carrying newEmail as a
// signed claim and mails the confirmation link to that address. Proving
// control of the new mailbox is the point of the flow.
//
// Reissue semantics apply per (class, subject): while a previous email
// change is pending, a request naming a different address returns the
// pending token with the original address still bound.
func (e *Engine) RequestEmailUpdate(ctx context.Context, subject, newEmail string) error {
	if err := e.ready(); err != nil {
		return err
	}

	fail := func(err error) error {
		e.metrics.Inc(MetricInitiateFailure)
		e.emitAudit(ctx, auditEventEmailRequest, subject, err, nil)
		return err
	}

	if newEmail == "" {
		return fail(errors.New("new email required"))
	}

	user, err := e.findBySubject(ctx, subject)
	if err != nil {
		return fail(err)
	}
	if !user.Active {
		return fail(ErrAlreadyInTargetState)
	}

	tok, err := e.issueToken(ctx, token.UpdateEmail, subject, &token.Extra{NewEmail: newEmail})
	if err != nil {
		return fail(err)
	}

	// The live token decides the destination: on reissue it may carry an
	// earlier pending address.
	pending := newEmail
	if claims, decodeErr := e.codec.Decode(token.UpdateEmail, tok); decodeErr == nil && claims.NewEmail != "" {
		pending = claims.NewEmail
	}

	if err := e.notify(ctx, Notification{
		To:       pending,
		Subject:  "Confirm " + e.config.Project + " Email Change",
		Template: templateEmailRequested,
		Context: map[string]string{
			"first_name":  user.FirstName,
			"new_email":   pending,
			"update_link": e.confirmLink(pathEmailConfirm, tok),
		},
	}); err != nil {
		return fail(err)
	}

	e.metrics.Inc(MetricInitiateSuccess)
	e.emitAudit(ctx, auditEventEmailRequest, subject, nil, map[string]string{"new_email": pending})

	return nil
}

// ConfirmEmailUpdate consumes an email-change token and installs the
// address bound into its claims. The caller supplies nothing but the
// token, so only the mailbox that received the link can complete the
// change.
func (e *Engine) ConfirmEmailUpdate(ctx context.Context, raw string) (UserRecord, error) {
	return e.confirm(ctx, raw, lifecycleFlow{
		class:        token.UpdateEmail,
		event:        auditEventEmailConfirm,
		precondition: activePrecondition(false),
		apply: func(ctx context.Context, claims *token.Claims, user UserRecord) (UserRecord, error) {
			newEmail := claims.NewEmail
			if newEmail == "" {
				return UserRecord{}, ErrInvalidToken
			}

			existing, err := e.findByIdentifier(ctx, newEmail)
			switch {
			case err == nil:
				if existing.Subject != user.Subject {
					return UserRecord{}, ErrIdentifierTaken
				}
			case errors.Is(err, ErrUserNotFound):
			default:
				return UserRecord{}, err
			}

			now := e.now()
			rows, err := e.users.ConditionalUpdate(ctx, user.Subject, true, UserPatch{
				Email:     &newEmail,
				UpdatedAt: &now,
			})
			if err != nil {
				// The address can be claimed between the pre-check and the
				// write; the store surfaces that as a taken identifier.
				if errors.Is(err, ErrIdentifierTaken) {
					return UserRecord{}, ErrIdentifierTaken
				}
				return UserRecord{}, persistenceErr(err)
			}
			if rows == 0 {
				return UserRecord{}, ErrAlreadyInTargetState
			}

			user.Email = newEmail
			user.UpdatedAt = now
			return user, nil
		},
		notify: func(ctx context.Context, user UserRecord) {
			e.notifyBestEffort(ctx, Notification{
				To:       user.Email,
				Subject:  e.config.Project + " Email Changed",
				Template: templateEmailDone,
				Context: map[string]string{
					"first_name": user.FirstName,
					"email":      user.Email,
				},
			})
		},
	})
}
