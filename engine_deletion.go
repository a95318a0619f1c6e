package identity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/initstack/identity/token"
)

const (
	templateDeleteRequested = "users/delete_requested"
	templateDeleted         = "users/deleted"

	pathDeleteConfirm = "/api/users/delete/confirm"
)

// TaskDeleteProfile names the background task that removes profile data
// after the account row is gone.
const TaskDeleteProfile = "profiles.delete"

// DeleteProfileTask is the payload enqueued by [Engine.ConfirmDeletion].
type DeleteProfileTask struct {
	Subject string `json:"subject"`
}

// RequestDeletion issues a deletion token for an active account and mails
// the confirmation link.
func (e *Engine) RequestDeletion(ctx context.Context, subject string) error {
	if err := e.ready(); err != nil {
		return err
	}

	fail := func(err error) error {
		e.metrics.Inc(MetricInitiateFailure)
		e.emitAudit(ctx, auditEventDeleteRequest, subject, err, nil)
		return err
	}

	user, err := e.findBySubject(ctx, subject)
	if err != nil {
		return fail(err)
	}
	if !user.Active {
		return fail(ErrAlreadyInTargetState)
	}

	tok, err := e.issueToken(ctx, token.Deletion, subject, nil)
	if err != nil {
		return fail(err)
	}

	if err := e.notify(ctx, Notification{
		To:       user.Email,
		Subject:  "Confirm " + e.config.Project + " Account Deletion",
		Template: templateDeleteRequested,
		Context: map[string]string{
			"first_name":    user.FirstName,
			"deletion_link": e.confirmLink(pathDeleteConfirm, tok),
		},
	}); err != nil {
		return fail(err)
	}

	e.metrics.Inc(MetricInitiateSuccess)
	e.emitAudit(ctx, auditEventDeleteRequest, subject, nil, nil)

	return nil
}

// ConfirmDeletion consumes a deletion token, removes the account row, and
// enqueues profile cleanup. The farewell notification goes to the address
// captured before the row was removed.
func (e *Engine) ConfirmDeletion(ctx context.Context, raw string) (UserRecord, error) {
	return e.confirm(ctx, raw, lifecycleFlow{
		class: token.Deletion,
		event: auditEventDeleteConfirm,
		apply: func(ctx context.Context, _ *token.Claims, user UserRecord) (UserRecord, error) {
			rows, err := e.users.Delete(ctx, user.Subject)
			if err != nil {
				return UserRecord{}, persistenceErr(err)
			}
			if rows == 0 {
				return UserRecord{}, ErrAlreadyInTargetState
			}

			if err := e.queue.Enqueue(ctx, TaskDeleteProfile, DeleteProfileTask{Subject: user.Subject}); err != nil {
				return UserRecord{}, persistenceErr(err)
			}
			e.metrics.Inc(MetricCleanupEnqueued)

			return user, nil
		},
		notify: func(ctx context.Context, user UserRecord) {
			e.notifyBestEffort(ctx, Notification{
				To:       user.Email,
				Subject:  e.config.Project + " Account Deleted",
				Template: templateDeleted,
				Context:  map[string]string{"first_name": user.FirstName},
			})
		},
	})
}

// ProfileCleanupHandler returns a queue handler that removes profile data
// for deleted accounts. Register it under [TaskDeleteProfile].
func ProfileCleanupHandler(profiles ProfileStore) func(ctx context.Context, payload []byte) error {
	return func(ctx context.Context, payload []byte) error {
		var task DeleteProfileTask
		if err := json.Unmarshal(payload, &task); err != nil {
			return fmt.Errorf("decode profile cleanup task: %w", err)
		}
		if task.Subject == "" {
			return fmt.Errorf("profile cleanup task missing subject")
		}
		return profiles.DeleteProfile(ctx, task.Subject)
	}
}
