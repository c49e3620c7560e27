// Package session issues and verifies the signed session tokens carried in
// the session cookie. Tokens are HS256 JWTs; the codec keeps no server-side
// state, so verification only needs the shared secret and the clock.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/awnumar/memguard"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// CookieName is the name of the cookie carrying the session token.
	CookieName = "session"
	// DefaultTTL is the lifetime of a freshly issued token.
	DefaultTTL = 8 * time.Hour
	// MinSecretLength is the minimum secret length accepted in production.
	MinSecretLength = 32
)

// Roles carried in the token.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

var (
	ErrSecretMissing     = errors.New("AUTH_SECRET is not set")
	ErrSecretTooShort    = fmt.Errorf("AUTH_SECRET must be at least %d characters in production", MinSecretLength)
	ErrSecretPlaceholder = errors.New("AUTH_SECRET looks like a placeholder value")
)

var placeholderPatterns = []string{"dev-secret", "change-me", "test"}

// Claims is the verified content of a session token.
type Claims struct {
	Subject   string
	Username  string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IsAdmin reports whether the claims carry the admin role.
func (c Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

type tokenClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Codec signs and verifies session tokens. It is safe for concurrent use.
type Codec struct {
	secret *memguard.Enclave
	now    func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock overrides the time source used for issuing and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// ValidateSecret checks the signing secret. Outside production any
// non-empty secret is accepted.
func ValidateSecret(secret string, production bool) error {
	if secret == "" {
		return ErrSecretMissing
	}
	if !production {
		return nil
	}
	if len(secret) < MinSecretLength {
		return ErrSecretTooShort
	}
	lower := strings.ToLower(secret)
	for _, p := range placeholderPatterns {
		if strings.Contains(lower, p) {
			return ErrSecretPlaceholder
		}
	}
	return nil
}

// NewCodec validates secret and returns a Codec that keeps it in a
// memguard enclave.
func NewCodec(secret string, production bool, opts ...Option) (*Codec, error) {
	if err := ValidateSecret(secret, production); err != nil {
		return nil, err
	}
	c := &Codec{
		secret: memguard.NewEnclave([]byte(secret)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Sign issues a token for claims.Subject, claims.Username and claims.Role.
// A ttl of zero or less means DefaultTTL.
func (c *Codec) Sign(claims Claims, ttl time.Duration) (string, error) {
	if claims.Subject == "" {
		return "", errors.New("session subject is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := c.now()
	tc := tokenClaims{
		Username: claims.Username,
		Role:     claims.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	key, err := c.secret.Open()
	if err != nil {
		return "", fmt.Errorf("opening session secret: %w", err)
	}
	defer key.Destroy()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tc).SignedString(key.Bytes())
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return signed, nil
}

// Verify parses token and returns its claims. ok is false for malformed,
// tampered, expired or subject-less tokens; the reason is not exposed.
func (c *Codec) Verify(token string) (Claims, bool) {
	if token == "" {
		return Claims{}, false
	}
	key, err := c.secret.Open()
	if err != nil {
		return Claims{}, false
	}
	defer key.Destroy()

	var tc tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &tc,
		func(*jwt.Token) (any, error) { return key.Bytes(), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !parsed.Valid || tc.Subject == "" {
		return Claims{}, false
	}

	claims := Claims{
		Subject:  tc.Subject,
		Username: tc.Username,
		Role:     tc.Role,
	}
	if tc.IssuedAt != nil {
		claims.IssuedAt = tc.IssuedAt.Time
	}
	if tc.ExpiresAt != nil {
		claims.ExpiresAt = tc.ExpiresAt.Time
	}
	return claims, true
}
