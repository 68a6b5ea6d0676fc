package token_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lexling/lexling-auth/internal/token"
)

func newIssuer(t *testing.T) *token.Issuer {
	t.Helper()
	return token.NewIssuer(
		[]byte("access-secret-for-tests-0123456789abcdef"),
		[]byte("refresh-secret-for-tests-0123456789abcdef"),
		15*time.Minute,
		30*24*time.Hour,
	)
}

func TestAccessRoundTrip(t *testing.T) {
	issuer := newIssuer(t)

	signed, err := issuer.IssueAccess(token.AccessClaims{UserID: 42, Email: "alice@example.com"})
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	claims, err := issuer.VerifyAccess(signed)
	require.NoError(t, err)
	require.Equal(t, int64(42), claims.UserID)
	require.Equal(t, "alice@example.com", claims.Email)
}

func TestRefreshRoundTrip(t *testing.T) {
	issuer := newIssuer(t)

	signed, err := issuer.IssueRefresh(token.RefreshClaims{UserID: 42, Email: "alice@example.com", SessionID: 7})
	require.NoError(t, err)

	claims, err := issuer.VerifyRefresh(signed)
	require.NoError(t, err)
	require.Equal(t, int64(42), claims.UserID)
	require.Equal(t, int64(7), claims.SessionID)
	require.Equal(t, "alice@example.com", claims.Email)
}

func TestIssuancesAreUnique(t *testing.T) {
	issuer := newIssuer(t)

	// Rotation swaps the stored refresh token for a freshly issued one, so
	// two issuances for the same session must never collide even within
	// the same second.
	claims := token.RefreshClaims{UserID: 42, Email: "alice@example.com", SessionID: 7}
	first, err := issuer.IssueRefresh(claims)
	require.NoError(t, err)
	second, err := issuer.IssueRefresh(claims)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	a1, err := issuer.IssueAccess(token.AccessClaims{UserID: 42, Email: "alice@example.com"})
	require.NoError(t, err)
	a2, err := issuer.IssueAccess(token.AccessClaims{UserID: 42, Email: "alice@example.com"})
	require.NoError(t, err)
	require.NotEqual(t, a1, a2)
}

func TestSecretsAreIsolated(t *testing.T) {
	issuer := newIssuer(t)

	access, err := issuer.IssueAccess(token.AccessClaims{UserID: 1, Email: "a@b.c"})
	require.NoError(t, err)
	refresh, err := issuer.IssueRefresh(token.RefreshClaims{UserID: 1, Email: "a@b.c", SessionID: 2})
	require.NoError(t, err)

	_, err = issuer.VerifyRefresh(access)
	require.ErrorIs(t, err, token.ErrInvalid)
	_, err = issuer.VerifyAccess(refresh)
	require.ErrorIs(t, err, token.ErrInvalid)
}

func TestVerifyFailuresAreUniform(t *testing.T) {
	issuer := newIssuer(t)

	expired := token.NewIssuer(
		[]byte("access-secret-for-tests-0123456789abcdef"),
		[]byte("refresh-secret-for-tests-0123456789abcdef"),
		-time.Minute,
		-time.Minute,
	)
	expiredAccess, err := expired.IssueAccess(token.AccessClaims{UserID: 9, Email: "x@y.z"})
	require.NoError(t, err)

	for _, tok := range []string{"", "not-a-jwt", "a.b.c", expiredAccess} {
		_, verr := issuer.VerifyAccess(tok)
		require.ErrorIs(t, verr, token.ErrInvalid)
	}
}

func TestRefreshRequiresSessionClaim(t *testing.T) {
	issuer := newIssuer(t)

	// A token signed with the refresh secret but missing the session id
	// claim must not verify as a refresh token.
	signed, err := issuer.IssueRefresh(token.RefreshClaims{UserID: 5, Email: "a@b.c"})
	require.NoError(t, err)
	_, err = issuer.VerifyRefresh(signed)
	require.ErrorIs(t, err, token.ErrInvalid)
}

func TestRefreshExpiryMatchesLifetime(t *testing.T) {
	issuer := newIssuer(t)
	now := time.Now()
	require.Equal(t, now.Add(30*24*time.Hour), issuer.RefreshExpiry(now))
}
