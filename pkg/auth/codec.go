package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// MinSecretLength is the minimum signing secret size in bytes.
	// Anything shorter aborts startup: a short HMAC key is a
	// brute-forceable token forge.
	MinSecretLength = 32

	// DefaultLeeway absorbs clock drift between issuer and verifier
	// on expiry and not-before checks.
	DefaultLeeway = 30 * time.Second

	// tokenIssuer is the iss claim stamped on every token.
	tokenIssuer = "pragati-identity"
)

// Claims is the signed token payload. Subject carries the user id; the
// remaining registered claims follow RFC 7519.
type Claims struct {
	Role      string `json:"role"`
	CollegeID string `json:"college_id,omitempty"`
	SessionID string `json:"sid,omitempty"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies identity tokens (HMAC-SHA256). The
// secret is injected at construction so tests can run with per-test
// keys; there is no ambient global.
type TokenCodec struct {
	secret []byte
	leeway time.Duration
	now    func() time.Time
}

// NewTokenCodec builds a codec. It fails fast on a missing or short
// secret rather than degrading to a weak key at runtime.
func NewTokenCodec(secret string, leeway time.Duration) (*TokenCodec, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("signing secret must be at least %d bytes, got %d", MinSecretLength, len(secret))
	}
	if leeway <= 0 {
		leeway = DefaultLeeway
	}
	return &TokenCodec{
		secret: []byte(secret),
		leeway: leeway,
		now:    time.Now,
	}, nil
}

// WithClock overrides the codec's time source. Test hook.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	c.now = now
	return c
}

// Issue produces a signed token of the given kind encoding the
// identity. Expiry is now + ttl; a fresh jti is stamped so refresh
// tokens are individually identifiable for rotation tracking.
func (c *TokenCodec) Issue(id Identity, ttl time.Duration, kind TokenKind) (string, *Claims, error) {
	if ttl <= 0 {
		return "", nil, fmt.Errorf("token ttl must be positive, got %v", ttl)
	}
	if !id.Role.Valid() {
		return "", nil, fmt.Errorf("cannot issue token for invalid role %q", id.Role)
	}

	now := c.now()
	claims := &Claims{
		Role:      string(id.Role),
		CollegeID: id.CollegeID,
		SessionID: id.SessionID,
		TokenType: string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   id.Subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, claims, nil
}

// Verify parses and validates a token of the expected kind, returning
// its claims. Only HS256 is accepted; unsigned or alg-swapped tokens
// fail before the key is ever consulted. Signature comparison inside
// the JWT library is constant-time HMAC verification.
func (c *TokenCodec) Verify(raw string, kind TokenKind) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (interface{}, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(c.leeway),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, mapJWTError(err)
	}

	if claims.TokenType != string(kind) {
		// A refresh token on an access path (or vice versa) is a
		// structural failure, not an authorization decision.
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrTokenMalformed, claims.TokenType)
	}
	if _, err := ParseRole(claims.Role); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenMalformed)
	}
	return claims, nil
}

// Identity reconstructs the token-embedded identity. The resolver
// replaces the role and scope with the stored record's values; this
// form exists for logging and for the refresh path, where the session
// store is authoritative instead.
func (cl *Claims) Identity() Identity {
	id := Identity{
		Subject:   cl.Subject,
		Role:      Role(cl.Role),
		CollegeID: cl.CollegeID,
		SessionID: cl.SessionID,
	}
	if cl.IssuedAt != nil {
		id.IssuedAt = cl.IssuedAt.Time
	}
	if cl.ExpiresAt != nil {
		id.ExpiresAt = cl.ExpiresAt.Time
	}
	return id
}

// mapJWTError collapses library errors into the package taxonomy.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return fmt.Errorf("%w: %v", ErrTokenNotYetValid, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrTokenBadSignature, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}
