package identity

import (
	"context"
	"testing"
	"time"

	"github.com/initstack/identity/token"
)

func TestIssueTokenIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.engine.issueToken(ctx, token.Deactivation, "s1", nil)
	if err != nil {
		t.Fatalf("issueToken error: %v", err)
	}
	second, err := env.engine.issueToken(ctx, token.Deactivation, "s1", nil)
	if err != nil {
		t.Fatalf("issueToken error: %v", err)
	}

	if first != second {
		t.Fatal("second issue within ttl must return the cached token")
	}

	if got := env.engine.metrics.Value(MetricTokenMinted); got != 1 {
		t.Fatalf("minted = %d, want 1", got)
	}
	if got := env.engine.metrics.Value(MetricTokenReissued); got != 1 {
		t.Fatalf("reissued = %d, want 1", got)
	}
}

func TestIssueTokenRemintsAfterCacheExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.engine.issueToken(ctx, token.Activation, "s1", nil)
	if err != nil {
		t.Fatalf("issueToken error: %v", err)
	}

	env.mr.FastForward(31 * time.Minute)
	shifted := env.shiftedEngine(31 * time.Minute)

	second, err := shifted.issueToken(ctx, token.Activation, "s1", nil)
	if err != nil {
		t.Fatalf("issueToken error: %v", err)
	}
	if first == second {
		t.Fatal("expired entry must be replaced by a fresh mint")
	}
}

// A cache entry that outlives its token's validity (clock shift, rotated
// secret) is displaced rather than returned.
func TestIssueTokenDisplacesUndecodableEntry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.engine.tokens.Put(ctx, token.Refresh, "s1", "not-a-jwt", time.Hour); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	minted, err := env.engine.issueToken(ctx, token.Refresh, "s1", nil)
	if err != nil {
		t.Fatalf("issueToken error: %v", err)
	}
	if minted == "not-a-jwt" {
		t.Fatal("stale entry returned as live token")
	}

	cached, _ := env.cachedToken(token.Refresh, "s1")
	if cached != minted {
		t.Fatal("fresh mint not installed in cache")
	}
}

func TestIssueTokenChannelsIndependent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.engine.issueToken(ctx, token.Access, "s1", nil); err != nil {
		t.Fatalf("issueToken error: %v", err)
	}
	refresh, err := env.engine.issueToken(ctx, token.Refresh, "s1", nil)
	if err != nil {
		t.Fatalf("issueToken error: %v", err)
	}

	if err := env.engine.revokeToken(ctx, token.Access, "s1"); err != nil {
		t.Fatalf("revokeToken error: %v", err)
	}

	// Refresh channel is untouched.
	again, err := env.engine.issueToken(ctx, token.Refresh, "s1", nil)
	if err != nil {
		t.Fatalf("issueToken error: %v", err)
	}
	if again != refresh {
		t.Fatal("refresh channel disturbed by access revocation")
	}

	fresh, err := env.engine.issueToken(ctx, token.Access, "s1", nil)
	if err != nil {
		t.Fatalf("issueToken error: %v", err)
	}
	cached, _ := env.cachedToken(token.Access, "s1")
	if cached != fresh {
		t.Fatal("reminted access token not installed in cache")
	}
}
