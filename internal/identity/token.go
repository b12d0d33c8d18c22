package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/servicenow/marketplace-be/internal/job"
)

type ctxKey struct{}

// WithToken binds the raw bearer token to the context for a TokenProvider to
// resolve.
func WithToken(ctx context.Context, raw string) context.Context {
	return context.WithValue(ctx, ctxKey{}, raw)
}

func tokenFromContext(ctx context.Context) string {
	raw, _ := ctx.Value(ctxKey{}).(string)
	return raw
}

// TokenProvider resolves users from HMAC-signed JWT bearer tokens whose
// subject claim is the user id.
type TokenProvider struct {
	secret []byte
}

// NewTokenProvider creates a TokenProvider verifying tokens with secret.
func NewTokenProvider(secret []byte) *TokenProvider {
	return &TokenProvider{secret: secret}
}

// CurrentUser parses and verifies the bearer token bound to ctx. Any parse
// or signature failure surfaces as job.ErrUnauthenticated.
func (p *TokenProvider) CurrentUser(ctx context.Context) (UserID, error) {
	raw := tokenFromContext(ctx)
	if raw == "" {
		return "", job.ErrUnauthenticated
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", job.ErrUnauthenticated, err)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", job.ErrUnauthenticated
	}

	return UserID(sub), nil
}

// IssueToken signs a token for user, valid for ttl. The production issuer is
// the external auth provider; this is for tooling and tests.
func (p *TokenProvider) IssueToken(user UserID, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   string(user),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})

	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
