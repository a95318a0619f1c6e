package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/initstack/identity/token"
)

// Config defines the engine-wide configuration supplied to [Builder.WithConfig].
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	// Project is the deployment name, stamped into token iss/aud and
	// notification subjects.
	Project string

	// Domain is the external base URL used to build confirmation links,
	// e.g. "https://accounts.example.com".
	Domain string

	Tokens   TokenConfig
	Password PasswordConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// ClassOptions holds the signing material and lifetime for one token class.
type ClassOptions struct {
	Secret        []byte
	PublicKey     []byte // ed25519 only
	SigningMethod string // per-class override of TokenConfig.SigningMethod
	TTL           time.Duration
}

// TokenConfig defines per-class token settings.
//
// TokenConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TokenConfig struct {
	SigningMethod string // "hs256" (default) or "ed25519"

	Activation     ClassOptions
	Access         ClassOptions
	Refresh        ClassOptions
	Deactivation   ClassOptions
	Deletion       ClassOptions
	ResetPassword  ClassOptions
	UpdateUsername ClassOptions
	UpdateEmail    ClassOptions
}

func (tc *TokenConfig) class(c token.Class) *ClassOptions {
	switch c {
	case token.Activation:
		return &tc.Activation
	case token.Access:
		return &tc.Access
	case token.Refresh:
		return &tc.Refresh
	case token.Deactivation:
		return &tc.Deactivation
	case token.Deletion:
		return &tc.Deletion
	case token.ResetPassword:
		return &tc.ResetPassword
	case token.UpdateUsername:
		return &tc.UpdateUsername
	case token.UpdateEmail:
		return &tc.UpdateEmail
	default:
		return nil
	}
}

func (tc *TokenConfig) classes() map[token.Class]token.ClassConfig {
	out := make(map[token.Class]token.ClassConfig, len(token.Classes()))
	for _, c := range token.Classes() {
		opts := tc.class(c)
		out[c] = token.ClassConfig{
			Secret:        opts.Secret,
			PublicKey:     opts.PublicKey,
			SigningMethod: token.SigningMethod(opts.SigningMethod),
			TTL:           opts.TTL,
		}
	}
	return out
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id cost parameters.
//
// PasswordConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordConfig struct {
	Memory        uint32 // in KB
	Time          uint32
	Parallelism   uint8
	SaltLength    uint32
	KeyLength     uint32
	RehashOnLogin bool
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit pipeline.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking when the buffer is
	// saturated. Leave true for latency-sensitive deployments.
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled bool
}

/*
====================================
DEFAULTS
====================================
*/

func defaultConfig() Config {
	return Config{
		Project: "InitStack",
		Domain:  "http://localhost:8000",
		Tokens: TokenConfig{
			SigningMethod:  "hs256",
			Activation:     ClassOptions{TTL: 30 * time.Minute},
			Access:         ClassOptions{TTL: time.Hour},
			Refresh:        ClassOptions{TTL: 24 * time.Hour},
			Deactivation:   ClassOptions{TTL: 24 * time.Hour},
			Deletion:       ClassOptions{TTL: 24 * time.Hour},
			ResetPassword:  ClassOptions{TTL: 24 * time.Hour},
			UpdateUsername: ClassOptions{TTL: 24 * time.Hour},
			UpdateEmail:    ClassOptions{TTL: 24 * time.Hour},
		},
		Password: PasswordConfig{
			Memory:        64 * 1024,
			Time:          3,
			Parallelism:   2,
			SaltLength:    16,
			KeyLength:     32,
			RehashOnLogin: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{Enabled: false},
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func cloneConfig(cfg Config) Config {
	out := cfg
	for _, c := range token.Classes() {
		opts := out.Tokens.class(c)
		opts.Secret = cloneBytes(opts.Secret)
		opts.PublicKey = cloneBytes(opts.PublicKey)
	}
	return out
}

// mergeConfig overlays user-supplied values onto defaults. Zero values keep
// the default; secrets have no default and must come from the caller.
func mergeConfig(user Config) Config {
	cfg := defaultConfig()

	if user.Project != "" {
		cfg.Project = user.Project
	}
	if user.Domain != "" {
		cfg.Domain = user.Domain
	}
	if user.Tokens.SigningMethod != "" {
		cfg.Tokens.SigningMethod = user.Tokens.SigningMethod
	}
	for _, c := range token.Classes() {
		dst := cfg.Tokens.class(c)
		src := user.Tokens.class(c)
		if len(src.Secret) > 0 {
			dst.Secret = src.Secret
		}
		if len(src.PublicKey) > 0 {
			dst.PublicKey = src.PublicKey
		}
		if src.SigningMethod != "" {
			dst.SigningMethod = src.SigningMethod
		}
		if src.TTL > 0 {
			dst.TTL = src.TTL
		}
	}
	if user.Password != (PasswordConfig{}) {
		cfg.Password = user.Password
	}
	if user.Audit != (AuditConfig{}) {
		cfg.Audit = user.Audit
	}
	cfg.Metrics = user.Metrics

	return cfg
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration for structural errors. Builder calls
// this during Build; it is exported for pre-flight checks in callers.
func (c *Config) Validate() error {
	if c.Project == "" {
		return errors.New("project name required")
	}
	if c.Domain == "" {
		return errors.New("domain required")
	}

	switch c.Tokens.SigningMethod {
	case "hs256", "ed25519":
	default:
		return fmt.Errorf("unsupported signing method %q", c.Tokens.SigningMethod)
	}

	for _, class := range token.Classes() {
		opts := c.Tokens.class(class)
		if len(opts.Secret) == 0 {
			return fmt.Errorf("token class %q requires a secret", class)
		}
		if opts.TTL <= 0 {
			return fmt.Errorf("token class %q requires a positive ttl", class)
		}
		switch opts.SigningMethod {
		case "", "hs256", "ed25519":
		default:
			return fmt.Errorf("token class %q: unsupported signing method %q", class, opts.SigningMethod)
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("audit buffer size must be positive when audit is enabled")
	}

	return nil
}
