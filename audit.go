package identity

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/initstack/identity/password"
)

// AuditEvent records one lifecycle operation outcome. Subject may be empty
// for anonymous operations that failed before resolving an account.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	Subject   string            `json:"subject,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink consumes audit events. Emit must not block indefinitely; the
// engine delivers events from a single pipeline goroutine.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink buffers events on a channel for test assertions and custom
// consumers.
type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line to w.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

/*
====================================
PIPELINE
====================================
*/

// auditPipeline decouples engine hot paths from sink latency: Emit is a
// channel send, delivery happens on one background goroutine. Close drains
// the buffer before returning.
type auditPipeline struct {
	sink       AuditSink
	dropIfFull bool

	ch   chan AuditEvent
	done chan struct{}
	wg   sync.WaitGroup

	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func newAuditPipeline(cfg AuditConfig, sink AuditSink) *auditPipeline {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	p := &auditPipeline{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		ch:         make(chan AuditEvent, cfg.BufferSize),
		done:       make(chan struct{}),
	}

	p.wg.Add(1)
	go p.run()

	return p
}

func (p *auditPipeline) run() {
	defer p.wg.Done()

	for {
		select {
		case event := <-p.ch:
			p.sink.Emit(context.Background(), event)
		case <-p.done:
			for {
				select {
				case event := <-p.ch:
					p.sink.Emit(context.Background(), event)
				default:
					return
				}
			}
		}
	}
}

func (p *auditPipeline) emit(ctx context.Context, event AuditEvent) {
	if p == nil || p.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if p.dropIfFull {
		select {
		case p.ch <- event:
		case <-p.done:
		default:
			p.dropped.Add(1)
		}
		return
	}

	select {
	case p.ch <- event:
	case <-p.done:
	case <-ctx.Done():
		p.dropped.Add(1)
	}
}

func (p *auditPipeline) droppedCount() uint64 {
	if p == nil {
		return 0
	}
	return p.dropped.Load()
}

func (p *auditPipeline) close() {
	if p == nil {
		return
	}
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.done)
		p.wg.Wait()
	})
}

/*
====================================
EVENT NAMES
====================================
*/

const (
	auditEventRegister          = "register"
	auditEventActivationRequest = "activation_request"
	auditEventActivationConfirm = "activation_confirm"
	auditEventLogin             = "login"
	auditEventRefresh           = "refresh"
	auditEventVerify            = "verify"
	auditEventLogout            = "logout"
	auditEventDeactivateRequest = "deactivation_request"
	auditEventDeactivateConfirm = "deactivation_confirm"
	auditEventDeleteRequest     = "deletion_request"
	auditEventDeleteConfirm     = "deletion_confirm"
	auditEventResetRequest      = "password_reset_request"
	auditEventResetConfirm      = "password_reset_confirm"
	auditEventUsernameRequest   = "username_update_request"
	auditEventUsernameConfirm   = "username_update_confirm"
	auditEventEmailRequest      = "email_update_request"
	auditEventEmailConfirm      = "email_update_confirm"
)

// auditErrorCode collapses engine errors into stable machine-readable codes
// so sinks never see raw error strings from infrastructure failures.
func auditErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrNotActivated):
		return "not_activated"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrAlreadyInTargetState):
		return "already_in_target_state"
	case errors.Is(err, ErrIdentifierTaken):
		return "identifier_taken"
	case errors.Is(err, password.ErrPolicy):
		return "password_policy"
	case errors.Is(err, ErrNotification):
		return "notification_failure"
	case errors.Is(err, ErrPersistence):
		return "persistence_failure"
	default:
		return "internal_error"
	}
}

func (e *Engine) emitAudit(ctx context.Context, eventType, subject string, err error, metadata map[string]string) {
	if e.audit == nil {
		return
	}

	e.audit.emit(ctx, AuditEvent{
		Timestamp: e.now(),
		EventType: eventType,
		Subject:   subject,
		Success:   err == nil,
		Error:     auditErrorCode(err),
		Metadata:  metadata,
	})
}
