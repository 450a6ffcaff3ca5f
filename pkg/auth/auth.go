// Package auth answers whether the caller of a privileged operation (batch
// lint, publish, force override, content edits) holds a privileged role.
package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrForbidden is returned when the caller is not privileged.
	ErrForbidden = errors.New("auth: forbidden")
	// ErrInvalidToken is returned for missing, malformed or expired tokens.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Authorizer checks the caller carried by ctx.
type Authorizer interface {
	// Authorize returns nil for privileged callers and an error wrapping
	// ErrForbidden otherwise.
	Authorize(ctx context.Context) error
}

// Require runs a check and names op in the rejection.
func Require(ctx context.Context, a Authorizer, op string) error {
	if a == nil {
		return fmt.Errorf("%w: %s requires a privileged caller", ErrForbidden, op)
	}
	if err := a.Authorize(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Static grants or denies every caller. It backs the local CLI.
type Static bool

func (s Static) Authorize(context.Context) error {
	if s {
		return nil
	}
	return ErrForbidden
}

type tokenKey struct{}

// WithToken stores a bearer token on ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext returns the bearer token stored on ctx.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey{}).(string)
	return token, ok && token != ""
}

// Claims carries the caller's role.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// JWT validates HS256 tokens and grants callers whose role claim is listed.
type JWT struct {
	secret []byte
	roles  []string
}

// NewJWT creates a JWT authorizer.
func NewJWT(secret []byte, privilegedRoles ...string) *JWT {
	return &JWT{secret: secret, roles: privilegedRoles}
}

// Authorize parses the token on ctx and checks its role.
func (j *JWT) Authorize(ctx context.Context) error {
	raw, ok := TokenFromContext(ctx)
	if !ok {
		return fmt.Errorf("%w: %w: missing bearer token", ErrForbidden, ErrInvalidToken)
	}
	claims, err := j.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrForbidden, err)
	}
	if !slices.Contains(j.roles, claims.Role) {
		return fmt.Errorf("%w: role %q is not privileged", ErrForbidden, claims.Role)
	}
	return nil
}

// Parse validates raw and returns its claims.
func (j *JWT) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(t *jwt.Token) (any, error) {
		return j.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Issue signs a token for subject with role, valid for ttl.
func (j *JWT) Issue(subject, role string, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
		Role: role,
	})
	return token.SignedString(j.secret)
}
