package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	refreshSecretBytes      = 32
	verificationTokenBytes  = 40
	minAccessTokenKeyLength = 32
)

// ParseAccessTokenKey decodes the signing key from config. Base64 first,
// raw UTF-8 bytes as fallback. Anything under 256 bits is a fatal
// configuration error; the process must not start with a weak key.
func ParseAccessTokenKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("missing access token key")
	}

	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		key = []byte(raw)
	}

	if len(key) < minAccessTokenKeyLength {
		return nil, fmt.Errorf("access token key is too short: need at least %d bytes, got %d", minAccessTokenKeyLength, len(key))
	}

	return key, nil
}

type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

// UserID parses the subject claim back into the numeric user id.
func (c *Claims) UserID() (int64, bool) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// TokenCodec signs short-lived HS256 access tokens and generates the
// opaque secrets used as refresh / verification tokens.
type TokenCodec struct {
	key       []byte
	issuer    string
	audience  string
	accessTTL time.Duration

	now func() time.Time
}

func NewTokenCodec(key []byte, issuer, audience string, accessTTL time.Duration) *TokenCodec {
	return &TokenCodec{
		key:       key,
		issuer:    issuer,
		audience:  audience,
		accessTTL: accessTTL,
		now:       time.Now,
	}
}

// IssueAccessToken signs a token for the user: subject id, email, joined
// name, role, unique jti, fixed issuer/audience, expiry now+TTL.
func (c *TokenCodec) IssueAccessToken(user User) (string, error) {
	now := c.now().UTC()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			ID:        uuid.NewString(),
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.accessTTL)),
		},
		Email: user.Email,
		Name:  user.FullName(),
		Role:  string(user.Role),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}

	return signed, nil
}

// ValidateAccessToken verifies signature, signing method, issuer,
// audience and expiry. Malformed or expired tokens are not errors worth
// propagating; callers degrade to unauthenticated when ok is false.
func (c *TokenCodec) ValidateAccessToken(tokenStr string) (*Claims, bool) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		return c.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, false
	}

	return claims, true
}

// NewOpaqueSecret returns base64 of byteLen crypto-random bytes; used
// for raw refresh tokens (32 bytes) and verification / password-reset
// tokens (40 bytes).
func NewOpaqueSecret(byteLen int) (string, error) {
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate opaque secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
