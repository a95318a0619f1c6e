package identity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/initstack/identity/cache"
	"github.com/initstack/identity/password"
	"github.com/initstack/identity/token"
)

// Engine orchestrates every account lifecycle flow. Construct with
// [Builder.Build]; the zero value is unusable. All methods are safe for
// concurrent use.
type Engine struct {
	config  Config
	codec   *token.Codec
	tokens  *cache.Store
	users   UserStore
	notif   Notifier
	queue   TaskQueue
	hasher  *password.Hasher
	audit   *auditPipeline
	metrics *Metrics
	now     func() time.Time
}

func (e *Engine) ready() error {
	if e == nil || e.codec == nil || e.tokens == nil || e.users == nil {
		return ErrEngineNotReady
	}
	return nil
}

// Close flushes the audit pipeline. The Engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.close()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// AuditDropped returns the number of audit events discarded under
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.droppedCount()
}

// persistenceErr wraps infrastructure failures so callers see a single
// sentinel regardless of which backend broke.
func persistenceErr(err error) error {
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}

// findBySubject maps store errors onto engine sentinels.
func (e *Engine) findBySubject(ctx context.Context, subject string) (UserRecord, error) {
	user, err := e.users.FindBySubject(ctx, subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return UserRecord{}, ErrUserNotFound
		}
		return UserRecord{}, persistenceErr(err)
	}
	return user, nil
}

func (e *Engine) findByIdentifier(ctx context.Context, identifier string) (UserRecord, error) {
	user, err := e.users.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return UserRecord{}, ErrUserNotFound
		}
		return UserRecord{}, persistenceErr(err)
	}
	return user, nil
}

// notify delivers a token-bearing message on an initiate path. Failure is
// fatal to the operation: without the message the flow cannot proceed.
func (e *Engine) notify(ctx context.Context, n Notification) error {
	if e.notif == nil {
		return nil
	}
	if err := e.notif.Send(ctx, n); err != nil {
		e.metrics.Inc(MetricNotifyFailure)
		return fmt.Errorf("%w: %v", ErrNotification, err)
	}
	return nil
}

// notifyBestEffort delivers a courtesy message after a state change already
// committed. Failure is logged and swallowed; the transition stands.
func (e *Engine) notifyBestEffort(ctx context.Context, n Notification) {
	if e.notif == nil {
		return
	}
	if err := e.notif.Send(ctx, n); err != nil {
		e.metrics.Inc(MetricNotifyFailure)
		log.Printf("identity: post-confirm notification to %s failed: %v", n.To, err)
	}
}

func (e *Engine) confirmLink(path, tok string) string {
	return e.config.Domain + path + "?token=" + tok
}

/*
====================================
CONFIRM PIPELINE
====================================
*/

// lifecycleFlow parameterizes one confirm operation. Every flow runs the
// same pipeline: decode, cache cross-check, load, precondition, apply,
// revoke, notify.
type lifecycleFlow struct {
	class token.Class
	event string

	// precondition rejects accounts already in the target state with
	// ErrAlreadyInTargetState before any write.
	precondition func(user UserRecord) error

	// apply commits the state change and returns the updated record.
	// It must be conditional on the precondition still holding, so a
	// concurrent confirm loses with ErrAlreadyInTargetState.
	apply func(ctx context.Context, claims *token.Claims, user UserRecord) (UserRecord, error)

	// notify, when set, runs best-effort after the cache entry is gone.
	notify func(ctx context.Context, user UserRecord)
}

// confirm executes one lifecycle confirmation. The presented token must
// decode under the flow's class AND be byte-identical to the cached live
// token; the cache is the revocation oracle, so a reissued or consumed
// token fails here no matter how valid its signature is.
func (e *Engine) confirm(ctx context.Context, raw string, flow lifecycleFlow) (UserRecord, error) {
	if err := e.ready(); err != nil {
		return UserRecord{}, err
	}

	fail := func(err error) (UserRecord, error) {
		e.emitAudit(ctx, flow.event, "", err, nil)
		return UserRecord{}, err
	}

	claims, err := e.codec.Decode(flow.class, raw)
	if err != nil {
		e.metrics.Inc(MetricConfirmInvalidToken)
		return fail(ErrInvalidToken)
	}
	subject := claims.Subject

	failSubject := func(err error) (UserRecord, error) {
		e.emitAudit(ctx, flow.event, subject, err, nil)
		return UserRecord{}, err
	}

	cached, err := e.tokens.Get(ctx, flow.class, subject)
	switch {
	case errors.Is(err, cache.ErrNotFound):
		e.metrics.Inc(MetricConfirmInvalidToken)
		return failSubject(ErrInvalidToken)
	case err != nil:
		return failSubject(persistenceErr(err))
	}
	if cached != raw {
		// A different live token exists: this one was displaced by a
		// reissue. Exact byte equality, not claim equality.
		e.metrics.Inc(MetricTokenReplayRejected)
		return failSubject(ErrInvalidToken)
	}

	user, err := e.findBySubject(ctx, subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metrics.Inc(MetricConfirmNotFound)
		}
		return failSubject(err)
	}

	if flow.precondition != nil {
		if err := flow.precondition(user); err != nil {
			e.metrics.Inc(MetricConfirmConflict)
			return failSubject(err)
		}
	}

	updated, err := flow.apply(ctx, claims, user)
	if err != nil {
		if errors.Is(err, ErrAlreadyInTargetState) {
			e.metrics.Inc(MetricConfirmConflict)
		}
		return failSubject(err)
	}

	// Deleted last: the entry is what makes the token single-use, so it
	// must outlive the state change, never precede it.
	if err := e.tokens.Delete(ctx, flow.class, subject); err != nil {
		return failSubject(persistenceErr(err))
	}

	if flow.notify != nil {
		flow.notify(ctx, updated)
	}

	e.metrics.Inc(MetricConfirmSuccess)
	e.emitAudit(ctx, flow.event, subject, nil, nil)

	return updated, nil
}

// activePrecondition rejects accounts whose active flag already equals
// target.
func activePrecondition(target bool) func(UserRecord) error {
	return func(u UserRecord) error {
		if u.Active == target {
			return ErrAlreadyInTargetState
		}
		return nil
	}
}

// setActive flips the active flag with a compare-and-set on the previous
// value.
func (e *Engine) setActive(ctx context.Context, user UserRecord, target bool) (UserRecord, error) {
	now := e.now()
	active := target
	rows, err := e.users.ConditionalUpdate(ctx, user.Subject, !target, UserPatch{
		Active:    &active,
		UpdatedAt: &now,
	})
	if err != nil {
		return UserRecord{}, persistenceErr(err)
	}
	if rows == 0 {
		return UserRecord{}, ErrAlreadyInTargetState
	}

	user.Active = target
	user.UpdatedAt = now
	return user, nil
}
