package identity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/initstack/identity/cache"
	"github.com/initstack/identity/token"
)

/*
====================================
MOCK USER STORE
====================================
*/

type mockUserStore struct {
	mu    sync.Mutex
	users map[string]UserRecord
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{users: make(map[string]UserRecord)}
}

func (s *mockUserStore) Create(ctx context.Context, user UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == user.Username || u.Email == user.Email {
			return ErrIdentifierTaken
		}
	}
	s.users[user.Subject] = user
	return nil
}

func (s *mockUserStore) FindBySubject(ctx context.Context, subject string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[subject]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return user, nil
}

func (s *mockUserStore) FindByIdentifier(ctx context.Context, identifier string) (UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Username == identifier || u.Email == identifier {
			return u, nil
		}
	}
	return UserRecord{}, ErrUserNotFound
}

func (s *mockUserStore) ConditionalUpdate(ctx context.Context, subject string, expectActive bool, patch UserPatch) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[subject]
	if !ok || user.Active != expectActive {
		return 0, nil
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
	if patch.Active != nil {
		user.Active = *patch.Active
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

func (s *mockUserStore) Delete(ctx context.Context, subject string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[subject]; !ok {
		return 0, nil
	}
	delete(s.users, subject)
	return 1, nil
}

// set replaces a record directly, bypassing CAS. Test setup only.
func (s *mockUserStore) set(user UserRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.Subject] = user
}

func (s *mockUserStore) get(subject string) (UserRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[subject]
	return user, ok
}

/*
====================================
MOCK NOTIFIER / QUEUE
====================================
*/

type mockNotifier struct {
	mu   sync.Mutex
	sent []Notification
	fail error
}

func (n *mockNotifier) Send(ctx context.Context, msg Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.fail != nil {
		return n.fail
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *mockNotifier) last() (Notification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.sent) == 0 {
		return Notification{}, false
	}
	return n.sent[len(n.sent)-1], true
}

func (n *mockNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func (n *mockNotifier) setFail(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fail = err
}

type queuedTask struct {
	Name    string
	Payload any
}

type mockQueue struct {
	mu    sync.Mutex
	tasks []queuedTask
	fail  error
}

func (q *mockQueue) Enqueue(ctx context.Context, name string, payload any) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.fail != nil {
		return q.fail
	}
	q.tasks = append(q.tasks, queuedTask{Name: name, Payload: payload})
	return nil
}

func (q *mockQueue) all() []queuedTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queuedTask(nil), q.tasks...)
}

/*
====================================
ENGINE FIXTURE
====================================
*/

func testSecrets() TokenConfig {
	tc := TokenConfig{}
	for _, c := range token.Classes() {
		opts := tc.class(c)
		opts.Secret = []byte("test-secret-" + string(c) + "-0123456789abcdef")
	}
	return tc
}

// testBuildConfig keeps argon2 light so the suite stays fast.
func testBuildConfig() Config {
	return Config{
		Tokens: testSecrets(),
		Password: PasswordConfig{
			Memory:        8 * 1024,
			Time:          1,
			Parallelism:   1,
			SaltLength:    16,
			KeyLength:     32,
			RehashOnLogin: true,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

type testEnv struct {
	t      *testing.T
	engine *Engine
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	users  *mockUserStore
	mail   *mockNotifier
	tasks  *mockQueue
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return mr, rdb
}

func newTestEnv(t *testing.T, opts ...func(*Builder)) *testEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	users := newMockUserStore()
	mail := &mockNotifier{}
	tasks := &mockQueue{}

	b := New().
		WithConfig(testBuildConfig()).
		WithRedis(rdb).
		WithUserStore(users).
		WithNotifier(mail).
		WithTaskQueue(tasks)

	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{
		t:      t,
		engine: engine,
		mr:     mr,
		rdb:    rdb,
		users:  users,
		mail:   mail,
		tasks:  tasks,
	}
}

// shiftedEngine builds a second engine over the same Redis and user store
// with its clock moved by offset. Used to observe token expiry without
// sleeping.
func (env *testEnv) shiftedEngine(offset time.Duration) *Engine {
	env.t.Helper()

	at := time.Now().Add(offset)
	engine, err := New().
		WithConfig(testBuildConfig()).
		WithRedis(env.rdb).
		WithUserStore(env.users).
		WithNotifier(env.mail).
		WithTaskQueue(env.tasks).
		WithClock(func() time.Time { return at }).
		Build()
	if err != nil {
		env.t.Fatalf("Build(shifted) error: %v", err)
	}
	env.t.Cleanup(engine.Close)

	return engine
}

// cachedToken reads the raw live token straight out of miniredis.
func (env *testEnv) cachedToken(class token.Class, subject string) (string, bool) {
	env.t.Helper()

	val, err := env.mr.Get(cache.Key(class, subject))
	if err != nil {
		return "", false
	}
	return val, true
}

// register creates and optionally activates one account, returning its
// record.
func (env *testEnv) register(active bool) UserRecord {
	env.t.Helper()

	ctx := context.Background()
	user, err := env.engine.Register(ctx, RegisterInput{
		Username:  "ada",
		Email:     "ada@example.com",
		FirstName: "Ada",
		LastName:  "Lovelace",
		Password:  "S3cure-Pass!",
	})
	if err != nil {
		env.t.Fatalf("Register error: %v", err)
	}

	if active {
		tok, ok := env.cachedToken(token.Activation, user.Subject)
		if !ok {
			env.t.Fatal("no activation token cached")
		}
		user, err = env.engine.ConfirmActivation(ctx, tok)
		if err != nil {
			env.t.Fatalf("ConfirmActivation error: %v", err)
		}
	}

	return user
}

// newEngineWith builds an engine over a caller-supplied user store, for
// tests that inject store behavior. The returned miniredis holds the token
// cache; read live tokens with cache.Key.
func newEngineWith(t *testing.T, users UserStore) (*Engine, *miniredis.Miniredis) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	engine, err := New().
		WithConfig(testBuildConfig()).
		WithRedis(rdb).
		WithUserStore(users).
		WithNotifier(&mockNotifier{}).
		WithTaskQueue(&mockQueue{}).
		Build()
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, mr
}

// registerActive drives registration and activation against an engine built
// with newEngineWith.
func registerActive(t *testing.T, engine *Engine, mr *miniredis.Miniredis) UserRecord {
	t.Helper()

	ctx := context.Background()
	user, err := engine.Register(ctx, RegisterInput{
		Username:  "ada",
		Email:     "ada@example.com",
		FirstName: "Ada",
		LastName:  "Lovelace",
		Password:  "S3cure-Pass!",
	})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	tok, err := mr.Get(cache.Key(token.Activation, user.Subject))
	if err != nil {
		t.Fatalf("no activation token cached: %v", err)
	}
	user, err = engine.ConfirmActivation(ctx, tok)
	if err != nil {
		t.Fatalf("ConfirmActivation error: %v", err)
	}

	return user
}
