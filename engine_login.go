package identity

import (
	"context"
	"errors"
	"log"

	"github.com/initstack/identity/cache"
	"github.com/initstack/identity/token"
)

// Login authenticates by username or email and returns the live access and
// refresh tokens. Tokens still usable from a previous login are returned
// unchanged; only missing or expired channels are reminted, independently
// of each other.
//
// An inactive account that deactivated itself earlier is silently
// reactivated on successful login. An account that never completed
// activation is rejected with [ErrNotActivated].
func (e *Engine) Login(ctx context.Context, identifier, pass string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	fail := func(subject string, err error) (*LoginResult, error) {
		e.metrics.Inc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLogin, subject, err, nil)
		return nil, err
	}

	user, err := e.findByIdentifier(ctx, identifier)
	if err != nil {
		return fail("", err)
	}

	ok, err := e.hasher.Verify(pass, user.PasswordHash)
	if err != nil {
		return fail(user.Subject, persistenceErr(err))
	}
	if !ok {
		return fail(user.Subject, ErrInvalidCredentials)
	}

	if !user.Active {
		// Untouched since registration means activation never happened;
		// anything later is a self-deactivation we undo on login.
		if user.UpdatedAt.Equal(user.DateJoined) {
			return fail(user.Subject, ErrNotActivated)
		}
		updated, err := e.setActive(ctx, user, true)
		switch {
		case err == nil:
			user = updated
		case errors.Is(err, ErrAlreadyInTargetState):
			// A concurrent login reactivated the account first. The login
			// still succeeds; keep the loaded record.
			user.Active = true
		default:
			return fail(user.Subject, err)
		}
	}

	if e.config.Password.RehashOnLogin {
		e.rehashIfNeeded(ctx, user, pass)
	}

	access, err := e.issueToken(ctx, token.Access, user.Subject, nil)
	if err != nil {
		return fail(user.Subject, err)
	}
	refresh, err := e.issueToken(ctx, token.Refresh, user.Subject, nil)
	if err != nil {
		return fail(user.Subject, err)
	}

	now := e.now()
	if _, err := e.users.ConditionalUpdate(ctx, user.Subject, true, UserPatch{
		LastLogin: &now,
		UpdatedAt: &now,
	}); err != nil {
		return fail(user.Subject, persistenceErr(err))
	}
	user.LastLogin = now
	user.UpdatedAt = now

	e.metrics.Inc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLogin, user.Subject, nil, nil)

	return &LoginResult{
		User:             user,
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresIn:  e.codec.TTL(token.Access),
		RefreshExpiresIn: e.codec.TTL(token.Refresh),
	}, nil
}

// rehashIfNeeded upgrades the stored hash after a successful verify when
// the cost parameters have been raised. Failures only log; login already
// succeeded.
func (e *Engine) rehashIfNeeded(ctx context.Context, user UserRecord, pass string) {
	needs, err := e.hasher.NeedsRehash(user.PasswordHash)
	if err != nil || !needs {
		return
	}

	hash, err := e.hasher.Hash(pass)
	if err != nil {
		return
	}

	now := e.now()
	if _, err := e.users.ConditionalUpdate(ctx, user.Subject, true, UserPatch{
		PasswordHash: &hash,
		UpdatedAt:    &now,
	}); err != nil {
		log.Printf("identity: password rehash for %s failed: %v", user.Subject, err)
	}
}

// Refresh exchanges a live refresh token for the live access token,
// minting a fresh one when none is usable. The refresh token itself is not
// rotated.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}

	fail := func(subject string, err error) (string, error) {
		e.metrics.Inc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefresh, subject, err, nil)
		return "", err
	}

	subject, err := e.checkLive(ctx, token.Refresh, refreshToken)
	if err != nil {
		return fail(subject, err)
	}

	user, err := e.findBySubject(ctx, subject)
	if err != nil {
		return fail(subject, err)
	}
	if !user.Active {
		return fail(subject, ErrInvalidToken)
	}

	access, err := e.issueToken(ctx, token.Access, subject, nil)
	if err != nil {
		return fail(subject, err)
	}

	e.metrics.Inc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefresh, subject, nil, nil)

	return access, nil
}

// VerifyAccess authenticates a request bearer token and returns its
// account. A token revoked by logout fails even before its expiry.
func (e *Engine) VerifyAccess(ctx context.Context, accessToken string) (UserRecord, error) {
	if err := e.ready(); err != nil {
		return UserRecord{}, err
	}

	fail := func(subject string, err error) (UserRecord, error) {
		e.metrics.Inc(MetricVerifyFailure)
		e.emitAudit(ctx, auditEventVerify, subject, err, nil)
		return UserRecord{}, err
	}

	subject, err := e.checkLive(ctx, token.Access, accessToken)
	if err != nil {
		return fail(subject, err)
	}

	user, err := e.findBySubject(ctx, subject)
	if err != nil {
		return fail(subject, err)
	}
	if !user.Active {
		return fail(subject, ErrInvalidToken)
	}

	e.metrics.Inc(MetricVerifySuccess)
	e.emitAudit(ctx, auditEventVerify, subject, nil, nil)
	return user, nil
}

// checkLive decodes raw under class and cross-checks it against the cached
// live token. Returns the subject on success. The returned subject may be
// set even on error, for audit attribution.
func (e *Engine) checkLive(ctx context.Context, class token.Class, raw string) (string, error) {
	claims, err := e.codec.Decode(class, raw)
	if err != nil {
		return "", ErrInvalidToken
	}

	cached, err := e.tokens.Get(ctx, class, claims.Subject)
	switch {
	case errors.Is(err, cache.ErrNotFound):
		return claims.Subject, ErrInvalidToken
	case err != nil:
		return claims.Subject, persistenceErr(err)
	}
	if cached != raw {
		e.metrics.Inc(MetricTokenReplayRejected)
		return claims.Subject, ErrInvalidToken
	}

	return claims.Subject, nil
}

// Logout revokes the subject's access and refresh tokens.
func (e *Engine) Logout(ctx context.Context, subject string) error {
	if err := e.ready(); err != nil {
		return err
	}

	if err := e.revokeToken(ctx, token.Access, subject); err != nil {
		return err
	}
	if err := e.revokeToken(ctx, token.Refresh, subject); err != nil {
		return err
	}

	e.metrics.Inc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, subject, nil, nil)

	return nil
}
