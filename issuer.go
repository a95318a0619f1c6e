package identity

import (
	"context"
	"errors"

	"github.com/initstack/identity/cache"
	"github.com/initstack/identity/token"
)

// issueToken returns the live token for (class, subject), minting only when
// no usable one exists. A cached token that still decodes is returned
// as-is, so repeated initiates within the TTL hand back the same string; a
// cached token that no longer decodes (expired, secret rotated) is
// displaced by a fresh mint.
//
// Reissue ignores extra claims on the cached token: the live token wins
// even if the new request carried different extras.
func (e *Engine) issueToken(ctx context.Context, class token.Class, subject string, extra *token.Extra) (string, error) {
	cached, err := e.tokens.Get(ctx, class, subject)
	switch {
	case err == nil:
		if _, decodeErr := e.codec.Decode(class, cached); decodeErr == nil {
			e.metrics.Inc(MetricTokenReissued)
			return cached, nil
		}
		// Stale entry: fall through to mint over it.
	case errors.Is(err, cache.ErrNotFound):
	default:
		return "", persistenceErr(err)
	}

	minted, err := e.codec.Encode(class, subject, extra)
	if err != nil {
		return "", persistenceErr(err)
	}

	if err := e.tokens.Put(ctx, class, subject, minted, e.codec.TTL(class)); err != nil {
		return "", persistenceErr(err)
	}

	e.metrics.Inc(MetricTokenMinted)
	return minted, nil
}

// revokeToken drops the live token for (class, subject), if any.
func (e *Engine) revokeToken(ctx context.Context, class token.Class, subject string) error {
	if err := e.tokens.Delete(ctx, class, subject); err != nil {
		return persistenceErr(err)
	}
	return nil
}
