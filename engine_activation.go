package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/initstack/identity/token"
)

const (
	templateRegistered = "users/registered"
	templateActivated  = "users/activated"

	pathActivate = "/api/users/activate"
)

// Register creates an inactive account, issues its activation token, and
// dispatches the activation link. The account cannot log in until the token
// is confirmed.
func (e *Engine) Register(ctx context.Context, input RegisterInput) (UserRecord, error) {
	if err := e.ready(); err != nil {
		return UserRecord{}, err
	}

	fail := func(err error) (UserRecord, error) {
		e.metrics.Inc(MetricInitiateFailure)
		e.emitAudit(ctx, auditEventRegister, "", err, map[string]string{"username": input.Username})
		return UserRecord{}, err
	}

	if input.Username == "" || input.Email == "" {
		return fail(errors.New("username and email required"))
	}

	for _, identifier := range []string{input.Username, input.Email} {
		_, err := e.findByIdentifier(ctx, identifier)
		switch {
		case err == nil:
			e.metrics.Inc(MetricRegisterConflict)
			return fail(ErrIdentifierTaken)
		case errors.Is(err, ErrUserNotFound):
		default:
			return fail(err)
		}
	}

	hash, err := e.hasher.Hash(input.Password)
	if err != nil {
		return fail(err)
	}

	now := e.now()
	user := UserRecord{
		Subject:      uuid.NewString(),
		Username:     input.Username,
		Email:        input.Email,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		PasswordHash: hash,
		Active:       false,
		DateJoined:   now,
		LastLogin:    now,
		UpdatedAt:    now,
	}

	if err := e.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrIdentifierTaken) {
			e.metrics.Inc(MetricRegisterConflict)
			return fail(ErrIdentifierTaken)
		}
		return fail(persistenceErr(err))
	}

	tok, err := e.issueToken(ctx, token.Activation, user.Subject, nil)
	if err != nil {
		return fail(err)
	}

	if err := e.notify(ctx, Notification{
		To:       user.Email,
		Subject:  "Activate Your " + e.config.Project + " Account",
		Template: templateRegistered,
		Context: map[string]string{
			"first_name":      user.FirstName,
			"activation_link": e.confirmLink(pathActivate, tok),
		},
	}); err != nil {
		return fail(err)
	}

	e.metrics.Inc(MetricRegisterSuccess)
	e.metrics.Inc(MetricInitiateSuccess)
	e.emitAudit(ctx, auditEventRegister, user.Subject, nil, nil)

	return user, nil
}

// ResendActivation reissues the activation link for a not-yet-active
// account. Within the token TTL the same token string goes out again.
func (e *Engine) ResendActivation(ctx context.Context, identifier string) error {
	if err := e.ready(); err != nil {
		return err
	}

	fail := func(subject string, err error) error {
		e.metrics.Inc(MetricInitiateFailure)
		e.emitAudit(ctx, auditEventActivationRequest, subject, err, nil)
		return err
	}

	user, err := e.findByIdentifier(ctx, identifier)
	if err != nil {
		return fail("", err)
	}
	if user.Active {
		return fail(user.Subject, ErrAlreadyInTargetState)
	}

	tok, err := e.issueToken(ctx, token.Activation, user.Subject, nil)
	if err != nil {
		return fail(user.Subject, err)
	}

	if err := e.notify(ctx, Notification{
		To:       user.Email,
		Subject:  "Activate Your " + e.config.Project + " Account",
		Template: templateRegistered,
		Context: map[string]string{
			"first_name":      user.FirstName,
			"activation_link": e.confirmLink(pathActivate, tok),
		},
	}); err != nil {
		return fail(user.Subject, err)
	}

	e.metrics.Inc(MetricInitiateSuccess)
	e.emitAudit(ctx, auditEventActivationRequest, user.Subject, nil, nil)

	return nil
}

// ConfirmActivation consumes an activation token and flips the account
// active. The token is single-use: a second confirm with the same token
// fails with [ErrInvalidToken].
func (e *Engine) ConfirmActivation(ctx context.Context, raw string) (UserRecord, error) {
	return e.confirm(ctx, raw, lifecycleFlow{
		class:        token.Activation,
		event:        auditEventActivationConfirm,
		precondition: activePrecondition(true),
		apply: func(ctx context.Context, _ *token.Claims, user UserRecord) (UserRecord, error) {
			return e.setActive(ctx, user, true)
		},
		notify: func(ctx context.Context, user UserRecord) {
			e.notifyBestEffort(ctx, Notification{
				To:       user.Email,
				Subject:  "Welcome to " + e.config.Project,
				Template: templateActivated,
				Context:  map[string]string{"first_name": user.FirstName},
			})
		},
	})
}
