package identity

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/initstack/identity/cache"
	"github.com/initstack/identity/password"
	"github.com/initstack/identity/token"
)

// Builder assembles an [Engine]. Chain the WithX methods and finish with
// [Builder.Build]; a Builder is single-use and not safe for concurrent use.
type Builder struct {
	config   Config
	hasCfg   bool
	redis    *redis.Client
	users    UserStore
	notifier Notifier
	queue    TaskQueue
	sink     AuditSink
	now      func() time.Time
	built    bool
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{}
}

// WithConfig overlays cfg onto the defaults. Token secrets have no default
// and must be supplied here.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	b.hasCfg = true
	return b
}

// WithRedis supplies the Redis client backing the token cache. Required.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithUserStore supplies the account persistence backend. Required.
func (b *Builder) WithUserStore(users UserStore) *Builder {
	b.users = users
	return b
}

// WithNotifier supplies the out-of-band delivery channel. Defaults to
// [NoopNotifier].
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithTaskQueue supplies the background queue used for post-deletion
// cleanup. Required.
func (b *Builder) WithTaskQueue(q TaskQueue) *Builder {
	b.queue = q
	return b
}

// WithAuditSink supplies the audit consumer. Only read when
// [AuditConfig.Enabled] is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithClock overrides the engine clock. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration, wires the sub-systems, and returns a
// ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.users == nil {
		return nil, errors.New("user store required")
	}
	if b.queue == nil {
		return nil, errors.New("task queue required")
	}
	if !b.hasCfg {
		return nil, errors.New("config required")
	}

	cfg := cloneConfig(mergeConfig(b.config))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	codec, err := token.NewCodec(token.Config{
		Issuer:        cfg.Project,
		Audience:      cfg.Project,
		SigningMethod: token.SigningMethod(cfg.Tokens.SigningMethod),
		Classes:       cfg.Tokens.classes(),
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.New(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	notifier := b.notifier
	if notifier == nil {
		notifier = NoopNotifier{}
	}

	b.built = true

	return &Engine{
		config:  cfg,
		codec:   codec,
		tokens:  cache.New(b.redis),
		users:   b.users,
		notif:   notifier,
		queue:   b.queue,
		hasher:  hasher,
		audit:   newAuditPipeline(cfg.Audit, b.sink),
		metrics: newMetrics(cfg.Metrics.Enabled),
		now:     now,
	}, nil
}
