package identity

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/initstack/identity/token"
)

func TestDefaultTTLs(t *testing.T) {
	cfg := defaultConfig()

	want := map[token.Class]time.Duration{
		token.Activation:     30 * time.Minute,
		token.Access:         time.Hour,
		token.Refresh:        24 * time.Hour,
		token.Deactivation:   24 * time.Hour,
		token.Deletion:       24 * time.Hour,
		token.ResetPassword:  24 * time.Hour,
		token.UpdateUsername: 24 * time.Hour,
		token.UpdateEmail:    24 * time.Hour,
	}

	for class, ttl := range want {
		if got := cfg.Tokens.class(class).TTL; got != ttl {
			t.Fatalf("ttl(%s) = %v, want %v", class, got, ttl)
		}
	}
}

func TestValidateRejectsMissingSecret(t *testing.T) {
	cfg := mergeConfig(Config{Tokens: testSecrets()})
	cfg.Tokens.Deletion.Secret = nil

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected missing secret to be rejected")
	}
	if !strings.Contains(err.Error(), "deletion") {
		t.Fatalf("error does not name the class: %v", err)
	}
}

func TestValidateRejectsBadMethod(t *testing.T) {
	cfg := mergeConfig(Config{Tokens: testSecrets()})
	cfg.Tokens.SigningMethod = "rs4096"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected unknown signing method to be rejected")
	}
}

func TestMergeKeepsUserOverrides(t *testing.T) {
	user := Config{
		Project: "Acme",
		Tokens:  testSecrets(),
	}
	user.Tokens.Access.TTL = 5 * time.Minute

	cfg := mergeConfig(user)
	if cfg.Project != "Acme" {
		t.Fatalf("project = %q", cfg.Project)
	}
	if cfg.Tokens.Access.TTL != 5*time.Minute {
		t.Fatalf("access ttl = %v", cfg.Tokens.Access.TTL)
	}
	// Untouched classes keep their defaults.
	if cfg.Tokens.Refresh.TTL != 24*time.Hour {
		t.Fatalf("refresh ttl = %v", cfg.Tokens.Refresh.TTL)
	}
}

func TestCloneConfigIsolatesSecrets(t *testing.T) {
	cfg := mergeConfig(Config{Tokens: testSecrets()})
	clone := cloneConfig(cfg)

	clone.Tokens.Access.Secret[0] ^= 0xff
	if cfg.Tokens.Access.Secret[0] == clone.Tokens.Access.Secret[0] {
		t.Fatal("clone shares secret backing array")
	}
}

func TestBuilderRequiresDependencies(t *testing.T) {
	_, rdb := newTestRedis(t)

	if _, err := New().Build(); err == nil {
		t.Fatal("expected missing redis to be rejected")
	}
	if _, err := New().WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected missing user store to be rejected")
	}
	if _, err := New().WithRedis(rdb).WithUserStore(newMockUserStore()).Build(); err == nil {
		t.Fatal("expected missing task queue to be rejected")
	}
	if _, err := New().
		WithRedis(rdb).
		WithUserStore(newMockUserStore()).
		WithTaskQueue(&mockQueue{}).
		Build(); err == nil {
		t.Fatal("expected missing config to be rejected")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	_, rdb := newTestRedis(t)

	b := New().
		WithConfig(testBuildConfig()).
		WithRedis(rdb).
		WithUserStore(newMockUserStore()).
		WithTaskQueue(&mockQueue{})

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestEngineNotReady(t *testing.T) {
	var engine *Engine

	if _, err := engine.ConfirmActivation(context.Background(), "tok"); err != ErrEngineNotReady {
		t.Fatalf("nil engine = %v, want ErrEngineNotReady", err)
	}
}
