package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicenow/marketplace-be/internal/job"
)

func TestTokenProvider_RoundTrip(t *testing.T) {
	provider := NewTokenProvider([]byte("test-secret"))

	raw, err := provider.IssueToken("user-1", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	uid, err := provider.CurrentUser(WithToken(context.Background(), raw))
	require.NoError(t, err)
	assert.Equal(t, UserID("user-1"), uid)
}

func TestTokenProvider_NoToken(t *testing.T) {
	provider := NewTokenProvider([]byte("test-secret"))

	_, err := provider.CurrentUser(context.Background())
	assert.ErrorIs(t, err, job.ErrUnauthenticated)
}

func TestTokenProvider_WrongSecret(t *testing.T) {
	issuer := NewTokenProvider([]byte("issuer-secret"))
	verifier := NewTokenProvider([]byte("other-secret"))

	raw, err := issuer.IssueToken("user-1", time.Hour)
	require.NoError(t, err)

	_, err = verifier.CurrentUser(WithToken(context.Background(), raw))
	assert.ErrorIs(t, err, job.ErrUnauthenticated)
}

func TestTokenProvider_Expired(t *testing.T) {
	provider := NewTokenProvider([]byte("test-secret"))

	raw, err := provider.IssueToken("user-1", -time.Minute)
	require.NoError(t, err)

	_, err = provider.CurrentUser(WithToken(context.Background(), raw))
	assert.ErrorIs(t, err, job.ErrUnauthenticated)
}

func TestTokenProvider_Garbage(t *testing.T) {
	provider := NewTokenProvider([]byte("test-secret"))

	_, err := provider.CurrentUser(WithToken(context.Background(), "not.a.token"))
	assert.ErrorIs(t, err, job.ErrUnauthenticated)
}

func TestTokenProvider_MissingSubject(t *testing.T) {
	provider := NewTokenProvider([]byte("test-secret"))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	raw, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = provider.CurrentUser(WithToken(context.Background(), raw))
	assert.ErrorIs(t, err, job.ErrUnauthenticated)
}

func TestTokenProvider_RejectsUnsignedToken(t *testing.T) {
	provider := NewTokenProvider([]byte("test-secret"))

	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject: "user-1",
	})
	raw, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = provider.CurrentUser(WithToken(context.Background(), raw))
	assert.ErrorIs(t, err, job.ErrUnauthenticated)
}

func TestStatic(t *testing.T) {
	uid, err := Static{User: "user-1"}.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, UserID("user-1"), uid)

	_, err = Static{}.CurrentUser(context.Background())
	assert.ErrorIs(t, err, job.ErrUnauthenticated)
}
