package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Class identifies one lifecycle token channel. Every class signs and
// verifies independently; a token minted for one class never verifies
// under another.
type Class string

const (
	Activation     Class = "activation"
	Access         Class = "access"
	Refresh        Class = "refresh"
	Deactivation   Class = "deactivation"
	Deletion       Class = "deletion"
	ResetPassword  Class = "reset_password"
	UpdateUsername Class = "update_username"
	UpdateEmail    Class = "update_email"
)

// Classes returns every known class in a stable order.
func Classes() []Class {
	return []Class{
		Activation,
		Access,
		Refresh,
		Deactivation,
		Deletion,
		ResetPassword,
		UpdateUsername,
		UpdateEmail,
	}
}

// SigningMethod selects the JWT signing algorithm for a class.
type SigningMethod string

const (
	MethodHS256   SigningMethod = "hs256"
	MethodEd25519 SigningMethod = "ed25519"
)

// ErrInvalid is the single verification failure returned by [Codec.Decode].
// Expired, tampered, wrong-class, wrong-audience, and malformed tokens all
// decode to this error so callers cannot be used as a validity oracle.
var ErrInvalid = errors.New("invalid token")

const minHSSecretLen = 32

// ClassConfig holds the signing material and lifetime for one token class.
type ClassConfig struct {
	// Secret is the HMAC key for hs256, or the ed25519 private key
	// (raw 64-byte or PEM) for ed25519.
	Secret []byte

	// PublicKey is the ed25519 verify key (raw 32-byte or PEM). Ignored
	// for hs256. When empty the public half of Secret is used.
	PublicKey []byte

	// SigningMethod overrides [Config.SigningMethod] for this class.
	SigningMethod SigningMethod

	// TTL is the token lifetime. Must be positive.
	TTL time.Duration
}

// Config configures a [Codec].
type Config struct {
	// Issuer is stamped into iss and required on decode.
	Issuer string

	// Audience is stamped into aud and matched exactly on decode.
	Audience string

	// SigningMethod is the default method for classes that do not set
	// their own. Defaults to [MethodHS256].
	SigningMethod SigningMethod

	// Classes must contain an entry for every class in [Classes].
	Classes map[Class]ClassConfig

	// Now supplies the clock for iat/exp stamping and validation.
	// Defaults to [time.Now].
	Now func() time.Time
}

// Claims is the decoded payload of a lifecycle token.
type Claims struct {
	// NewEmail is the pending address carried by update_email tokens.
	NewEmail string `json:"new_email,omitempty"`

	jwt.RegisteredClaims
}

// Extra holds the optional class-specific claims stamped at mint time.
type Extra struct {
	NewEmail string
}

// Codec mints and verifies lifecycle tokens. Construct with [NewCodec];
// a Codec is immutable after construction and safe for concurrent use.
type Codec struct {
	config Config
}

// NewCodec validates cfg and returns a ready codec. Every class listed by
// [Classes] must have signing material and a positive TTL.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("issuer required")
	}
	if cfg.Audience == "" {
		return nil, errors.New("audience required")
	}
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodHS256
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	for _, class := range Classes() {
		cc, ok := cfg.Classes[class]
		if !ok {
			return nil, fmt.Errorf("class %q not configured", class)
		}
		if cc.TTL <= 0 {
			return nil, fmt.Errorf("class %q requires a positive ttl", class)
		}

		switch methodFor(cfg, cc) {
		case MethodHS256:
			if len(cc.Secret) < minHSSecretLen {
				return nil, fmt.Errorf("class %q hs256 secret must be at least %d bytes", class, minHSSecretLen)
			}
		case MethodEd25519:
			if _, err := parseEdPrivateKey(cc.Secret); err != nil {
				return nil, fmt.Errorf("class %q: %w", class, err)
			}
			if len(cc.PublicKey) > 0 {
				if _, err := parseEdPublicKey(cc.PublicKey); err != nil {
					return nil, fmt.Errorf("class %q: %w", class, err)
				}
			}
		default:
			return nil, fmt.Errorf("class %q: unsupported signing method", class)
		}
	}

	return &Codec{config: cfg}, nil
}

// TTL returns the configured lifetime for class. Unknown classes return zero.
func (c *Codec) TTL(class Class) time.Duration {
	return c.config.Classes[class].TTL
}

// Encode mints a fresh token for (class, subject). The extra claims, when
// present, are bound into the signed payload and survive reissue checks.
func (c *Codec) Encode(class Class, subject string, extra *Extra) (string, error) {
	cc, ok := c.config.Classes[class]
	if !ok {
		return "", fmt.Errorf("class %q not configured", class)
	}
	if subject == "" {
		return "", errors.New("subject required")
	}

	now := c.config.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    c.config.Issuer,
			Audience:  jwt.ClaimStrings{c.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cc.TTL)),
		},
	}
	if extra != nil {
		claims.NewEmail = extra.NewEmail
	}

	method := methodFor(c.config, cc)
	tok := jwt.NewWithClaims(jwtMethod(method), claims)

	signKey, err := signKeyFor(method, cc)
	if err != nil {
		return "", err
	}

	return tok.SignedString(signKey)
}

// Decode verifies raw against the class channel and returns its claims.
// Any failure (bad signature, wrong class secret, expiry, issuer or
// audience mismatch, missing subject) returns [ErrInvalid].
func (c *Codec) Decode(class Class, raw string) (*Claims, error) {
	cc, ok := c.config.Classes[class]
	if !ok {
		return nil, ErrInvalid
	}
	method := methodFor(c.config, cc)

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwtMethod(method).Alg()}),
		jwt.WithIssuer(c.config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.config.Now),
	)

	tok, err := parser.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return verifyKeyFor(method, cc)
	})
	if err != nil {
		return nil, ErrInvalid
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrInvalid
	}
	if claims.Subject == "" {
		return nil, ErrInvalid
	}
	// Exact audience match: jwt.WithAudience accepts any list containing the
	// value, which would let a token minted for another deployment through.
	if len(claims.Audience) != 1 || claims.Audience[0] != c.config.Audience {
		return nil, ErrInvalid
	}

	return claims, nil
}

func methodFor(cfg Config, cc ClassConfig) SigningMethod {
	if cc.SigningMethod != "" {
		return cc.SigningMethod
	}
	return cfg.SigningMethod
}

func jwtMethod(m SigningMethod) jwt.SigningMethod {
	if m == MethodEd25519 {
		return jwt.SigningMethodEdDSA
	}
	return jwt.SigningMethodHS256
}

func signKeyFor(m SigningMethod, cc ClassConfig) (interface{}, error) {
	if m == MethodEd25519 {
		return parseEdPrivateKey(cc.Secret)
	}
	return cc.Secret, nil
}

func verifyKeyFor(m SigningMethod, cc ClassConfig) (interface{}, error) {
	if m != MethodEd25519 {
		return cc.Secret, nil
	}
	if len(cc.PublicKey) > 0 {
		return parseEdPublicKey(cc.PublicKey)
	}
	priv, err := parseEdPrivateKey(cc.Secret)
	if err != nil {
		return nil, err
	}
	return priv.Public(), nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
