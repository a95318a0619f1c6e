package identity

import (
	"context"
	"errors"

	"github.com/initstack/identity/token"
)

const (
	templateUsernameRequested = "users/update_username_requested"
	templateUsernameDone      = "users/update_username_done"

	pathUsernameConfirm = "/api/users/update-username/confirm"
)

// RequestUsernameUpdate issues a username-change token for an active
// account and mails the confirmation link. The new username is supplied at
// confirm time, not bound into the token.
func (e *Engine) RequestUsernameUpdate(ctx context.Context, subject string) error {
	if err := e.ready(); err != nil {
		return err
	}

	fail := func(err error) error {
		e.metrics.Inc(MetricInitiateFailure)
		e.emitAudit(ctx, auditEventUsernameRequest, subject, err, nil)
		return err
	}

	user, err := e.findBySubject(ctx, subject)
	if err != nil {
		return fail(err)
	}
	if !user.Active {
		return fail(ErrAlreadyInTargetState)
	}

	tok, err := e.issueToken(ctx, token.UpdateUsername, subject, nil)
	if err != nil {
		return fail(err)
	}

	if err := e.notify(ctx, Notification{
		To:       user.Email,
		Subject:  "Confirm " + e.config.Project + " Username Change",
		Template: templateUsernameRequested,
		Context: map[string]string{
			"first_name":  user.FirstName,
			"update_link": e.confirmLink(pathUsernameConfirm, tok),
		},
	}); err != nil {
		return fail(err)
	}

	e.metrics.Inc(MetricInitiateSuccess)
	e.emitAudit(ctx, auditEventUsernameRequest, subject, nil, nil)

	return nil
}

// ConfirmUsernameUpdate consumes a username-change token and installs
// newUsername, rejecting collisions with [ErrIdentifierTaken].
func (e *Engine) ConfirmUsernameUpdate(ctx context.Context, raw, newUsername string) (UserRecord, error) {
	return e.confirm(ctx, raw, lifecycleFlow{
		class:        token.UpdateUsername,
		event:        auditEventUsernameConfirm,
		precondition: activePrecondition(false),
		apply: func(ctx context.Context, _ *token.Claims, user UserRecord) (UserRecord, error) {
			if newUsername == "" {
				return UserRecord{}, errors.New("new username required")
			}

			existing, err := e.findByIdentifier(ctx, newUsername)
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
				Username:  &newUsername,
				UpdatedAt: &now,
			})
			if err != nil {
				// The name can be claimed between the pre-check and the
				// write; the store surfaces that as a taken identifier.
				if errors.Is(err, ErrIdentifierTaken) {
					return UserRecord{}, ErrIdentifierTaken
				}
				return UserRecord{}, persistenceErr(err)
			}
			if rows == 0 {
				return UserRecord{}, ErrAlreadyInTargetState
			}

			user.Username = newUsername
			user.UpdatedAt = now
			return user, nil
		},
		notify: func(ctx context.Context, user UserRecord) {
			e.notifyBestEffort(ctx, Notification{
				To:       user.Email,
				Subject:  e.config.Project + " Username Changed",
				Template: templateUsernameDone,
				Context: map[string]string{
					"first_name": user.FirstName,
					"username":   user.Username,
				},
			})
		},
	})
}
