package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"
)

func withAudit(sink AuditSink) func(*Builder) {
	return func(b *Builder) {
		cfg := testBuildConfig()
		cfg.Audit = AuditConfig{Enabled: true, BufferSize: 64, DropIfFull: true}
		b.WithConfig(cfg).WithAuditSink(sink)
	}
}

func drainEvent(t *testing.T, sink *ChannelSink) AuditEvent {
	t.Helper()

	select {
	case ev := <-sink.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no audit event delivered")
		return AuditEvent{}
	}
}

func TestAuditEventsForRegister(t *testing.T) {
	sink := NewChannelSink(16)
	env := newTestEnv(t, withAudit(sink))

	user := env.register(false)

	ev := drainEvent(t, sink)
	if ev.EventType != auditEventRegister {
		t.Fatalf("event type = %q", ev.EventType)
	}
	if !ev.Success || ev.Subject != user.Subject {
		t.Fatalf("event = %+v", ev)
	}
}

func TestAuditEventForFailedLogin(t *testing.T) {
	sink := NewChannelSink(16)
	env := newTestEnv(t, withAudit(sink))

	env.register(true)
	drainEvent(t, sink) // register
	drainEvent(t, sink) // activation confirm

	if _, err := env.engine.Login(context.Background(), "ada", "Wrong-Pass1!"); err == nil {
		t.Fatal("expected login failure")
	}

	ev := drainEvent(t, sink)
	if ev.EventType != auditEventLogin {
		t.Fatalf("event type = %q", ev.EventType)
	}
	if ev.Success {
		t.Fatal("failed login recorded as success")
	}
	if ev.Error != "invalid_credentials" {
		t.Fatalf("error code = %q", ev.Error)
	}
}

func TestAuditDisabledByDefault(t *testing.T) {
	env := newTestEnv(t)

	if env.engine.audit != nil {
		t.Fatal("audit pipeline running without being enabled")
	}
	if env.engine.AuditDropped() != 0 {
		t.Fatal("dropped count on disabled pipeline")
	}

	// Flows still work with no pipeline attached.
	env.register(true)
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Now(),
		EventType: "login",
		Subject:   "s1",
		Success:   true,
	})

	var ev AuditEvent
	if err := json.Unmarshal(buf.Bytes(), &ev); err != nil {
		t.Fatalf("decode line: %v", err)
	}
	if ev.EventType != "login" || ev.Subject != "s1" || !ev.Success {
		t.Fatalf("event = %+v", ev)
	}
}

func TestMetricsCounters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.register(false)
	tok, _ := env.cachedToken("activation", user.Subject)

	if _, err := env.engine.ConfirmActivation(ctx, tok); err != nil {
		t.Fatalf("ConfirmActivation error: %v", err)
	}
	if _, err := env.engine.ConfirmActivation(ctx, tok); err == nil {
		t.Fatal("expected replay to fail")
	}

	snap := env.engine.MetricsSnapshot()
	if snap["register_success"] != 1 {
		t.Fatalf("register_success = %d", snap["register_success"])
	}
	if snap["confirm_success"] != 1 {
		t.Fatalf("confirm_success = %d", snap["confirm_success"])
	}
	if snap["confirm_invalid_token"] != 1 {
		t.Fatalf("confirm_invalid_token = %d", snap["confirm_invalid_token"])
	}
	if snap["token_minted"] == 0 {
		t.Fatal("token_minted not recorded")
	}
}

func TestMetricsDisabled(t *testing.T) {
	env := newTestEnv(t, func(b *Builder) {
		cfg := testBuildConfig()
		cfg.Metrics.Enabled = false
		b.WithConfig(cfg)
	})

	env.register(false)

	snap := env.engine.MetricsSnapshot()
	for name, v := range snap {
		if v != 0 {
			t.Fatalf("counter %s = %d with metrics disabled", name, v)
		}
	}
}

func TestAuditEventsForVerify(t *testing.T) {
	sink := NewChannelSink(16)
	env := newTestEnv(t, withAudit(sink))

	user := env.register(true)
	drainEvent(t, sink) // register
	drainEvent(t, sink) // activation confirm

	res, err := env.engine.Login(context.Background(), "ada", "S3cure-Pass!")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	drainEvent(t, sink) // login

	if _, err := env.engine.VerifyAccess(context.Background(), res.AccessToken); err != nil {
		t.Fatalf("VerifyAccess error: %v", err)
	}
	ev := drainEvent(t, sink)
	if ev.EventType != auditEventVerify {
		t.Fatalf("event type = %q", ev.EventType)
	}
	if !ev.Success || ev.Subject != user.Subject {
		t.Fatalf("event = %+v", ev)
	}

	if _, err := env.engine.VerifyAccess(context.Background(), "not-a-token"); err == nil {
		t.Fatal("expected verify failure")
	}
	ev = drainEvent(t, sink)
	if ev.EventType != auditEventVerify || ev.Success {
		t.Fatalf("event = %+v", ev)
	}
	if ev.Error != "invalid_token" {
		t.Fatalf("error code = %q", ev.Error)
	}
}
