package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/initstack/identity"
	"github.com/initstack/identity/cache"
	"github.com/initstack/identity/token"
)

type memoryStore struct {
	mu    sync.Mutex
	users map[string]identity.UserRecord
}

func newMemoryStore() *memoryStore {
	return &memoryStore{users: make(map[string]identity.UserRecord)}
}

func (s *memoryStore) Create(_ context.Context, user identity.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.Subject] = user
	return nil
}

func (s *memoryStore) FindBySubject(_ context.Context, subject string) (identity.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[subject]
	if !ok {
		return identity.UserRecord{}, identity.ErrUserNotFound
	}
	return user, nil
}

func (s *memoryStore) FindByIdentifier(_ context.Context, identifier string) (identity.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Username == identifier || user.Email == identifier {
			return user, nil
		}
	}
	return identity.UserRecord{}, identity.ErrUserNotFound
}

func (s *memoryStore) ConditionalUpdate(_ context.Context, subject string, expectActive bool, patch identity.UserPatch) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[subject]
	if !ok || user.Active != expectActive {
		return 0, nil
	}
	if patch.Active != nil {
		user.Active = *patch.Active
	}
	if patch.Username != nil {
		user.Username = *patch.Username
	}
	if patch.Email != nil {
		user.Email = *patch.Email
	}
	if patch.PasswordHash != nil {
		user.PasswordHash = *patch.PasswordHash
	}
	if patch.LastLogin != nil {
		user.LastLogin = *patch.LastLogin
	}
	if patch.UpdatedAt != nil {
		user.UpdatedAt = *patch.UpdatedAt
	}
	s.users[subject] = user
	return 1, nil
}

func (s *memoryStore) Delete(_ context.Context, subject string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[subject]; !ok {
		return 0, nil
	}
	delete(s.users, subject)
	return 1, nil
}

type noopQueue struct{}

func (noopQueue) Enqueue(context.Context, string, any) error { return nil }

func testSecret(class token.Class) []byte {
	return []byte("guard-secret-" + string(class) + "-0123456789abcdef")
}

func newGuardedEngine(t *testing.T) (*identity.Engine, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := identity.Config{
		Tokens: identity.TokenConfig{
			Activation:     identity.ClassOptions{Secret: testSecret(token.Activation)},
			Access:         identity.ClassOptions{Secret: testSecret(token.Access)},
			Refresh:        identity.ClassOptions{Secret: testSecret(token.Refresh)},
			Deactivation:   identity.ClassOptions{Secret: testSecret(token.Deactivation)},
			Deletion:       identity.ClassOptions{Secret: testSecret(token.Deletion)},
			ResetPassword:  identity.ClassOptions{Secret: testSecret(token.ResetPassword)},
			UpdateUsername: identity.ClassOptions{Secret: testSecret(token.UpdateUsername)},
			UpdateEmail:    identity.ClassOptions{Secret: testSecret(token.UpdateEmail)},
		},
		Password: identity.PasswordConfig{
			Memory:      8 * 1024,
			Time:        1,
			Parallelism: 1,
			SaltLength:  16,
			KeyLength:   32,
		},
	}

	engine, err := identity.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(newMemoryStore()).
		WithTaskQueue(noopQueue{}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, mr
}

func loginToken(t *testing.T, engine *identity.Engine, mr *miniredis.Miniredis) string {
	t.Helper()

	ctx := context.Background()
	user, err := engine.Register(ctx, identity.RegisterInput{
		Username: "grace",
		Email:    "grace@example.com",
		Password: "S3cure-Pass!",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	activation, err := mr.Get(cache.Key(token.Activation, user.Subject))
	if err != nil {
		t.Fatalf("activation token not cached: %v", err)
	}
	if _, err := engine.ConfirmActivation(ctx, activation); err != nil {
		t.Fatalf("ConfirmActivation: %v", err)
	}

	result, err := engine.Login(ctx, "grace", "S3cure-Pass!")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return result.AccessToken
}

func guardedHandler(engine *identity.Engine) (http.Handler, *identity.UserRecord) {
	var seen identity.UserRecord
	handler := RequireAccess(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			http.Error(w, "missing user", http.StatusInternalServerError)
			return
		}
		seen = user
		w.WriteHeader(http.StatusNoContent)
	}))
	return handler, &seen
}

func TestRequireAccessAllowsLiveToken(t *testing.T) {
	engine, mr := newGuardedEngine(t)
	access := loginToken(t, engine, mr)
	handler, seen := guardedHandler(engine)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}
	if seen.Username != "grace" {
		t.Fatalf("context user = %+v", seen)
	}
}

func TestRequireAccessRejectsMissingHeader(t *testing.T) {
	engine, _ := newGuardedEngine(t)
	handler, _ := guardedHandler(engine)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRequireAccessRejectsGarbageToken(t *testing.T) {
	engine, _ := newGuardedEngine(t)
	handler, _ := guardedHandler(engine)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRequireAccessRejectsAfterLogout(t *testing.T) {
	engine, mr := newGuardedEngine(t)
	access := loginToken(t, engine, mr)
	handler, _ := guardedHandler(engine)

	user, err := engine.VerifyAccess(context.Background(), access)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if err := engine.Logout(context.Background(), user.Subject); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}
