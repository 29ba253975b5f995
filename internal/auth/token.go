package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("access denied")
	ErrInvalidToken    = errors.New("invalid token")
)

// MinSecretBytes is the shortest accepted HMAC key (HS256 needs 256 bits).
const MinSecretBytes = 32

// Config holds token settings read from the environment.
type Config struct {
	Secret string        `env:"JWT_SECRET"`
	Issuer string        `env:"JWT_ISSUER" envDefault:"user-service"`
	TTL    time.Duration `env:"JWT_TTL" envDefault:"15m"`
}

// DecodeSecret decodes a base64 (standard or URL alphabet) HMAC key.
func DecodeSecret(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("jwt secret is empty")
	}
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		if key, err = base64.URLEncoding.DecodeString(s); err != nil {
			return nil, fmt.Errorf("decode jwt secret: %w", err)
		}
	}
	if len(key) < MinSecretBytes {
		return nil, fmt.Errorf("jwt secret is %d bytes, need at least %d", len(key), MinSecretBytes)
	}
	return key, nil
}

// Claims is the token payload. UserID wins over the registered subject.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

var hmacMethods = []string{
	jwt.SigningMethodHS256.Alg(),
	jwt.SigningMethodHS384.Alg(),
	jwt.SigningMethodHS512.Alg(),
}

// Verifier checks HMAC-signed tokens.
type Verifier struct {
	key    []byte
	parser *jwt.Parser
}

func NewVerifier(key []byte) *Verifier {
	return &Verifier{
		key:    key,
		parser: jwt.NewParser(jwt.WithValidMethods(hmacMethods), jwt.WithLeeway(5*time.Second)),
	}
}

// Verify validates signature and time claims and returns the principal.
// Every failure wraps ErrInvalidToken.
func (v *Verifier) Verify(token string) (*Principal, error) {
	var c Claims
	if _, err := v.parser.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return v.key, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	id := c.UserID
	if id == "" {
		id = c.Subject
	}
	if id == "" {
		return nil, fmt.Errorf("%w: no user_id or sub claim", ErrInvalidToken)
	}
	return &Principal{ID: id, Role: c.Role}, nil
}

// Issuer mints HS256 tokens. It backs the developer token tool and tests.
type Issuer struct {
	key    []byte
	issuer string
	ttl    time.Duration
	ids    *snowflake.Node
	now    func() time.Time
}

func NewIssuer(key []byte, issuer string, ttl time.Duration, ids *snowflake.Node) *Issuer {
	return &Issuer{key: key, issuer: issuer, ttl: ttl, ids: ids, now: time.Now}
}

// Issue signs a token for p and returns it with its expiry. A non-positive
// ttl falls back to the issuer default.
func (i *Issuer) Issue(p Principal, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = i.ttl
	}
	now := i.now()
	exp := now.Add(ttl)
	claims := Claims{
		UserID: p.ID,
		Role:   p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        i.ids.Generate().String(),
			Issuer:    i.issuer,
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}
