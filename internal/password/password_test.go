package password_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lexling/lexling-auth/internal/password"
)

func TestHashVerifyRoundTrip(t *testing.T) {
	hash, err := password.Hash("Passw0rd!")
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	ok, err := password.Verify("Passw0rd!", hash)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = password.Verify("wrong-password", hash)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHashIsSalted(t *testing.T) {
	first, err := password.Hash("Passw0rd!")
	require.NoError(t, err)
	second, err := password.Hash("Passw0rd!")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	for _, hash := range []string{"", "plaintext", "$argon2id$v=19$garbage", "$bcrypt$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA"} {
		ok, err := password.Verify("Passw0rd!", hash)
		require.Error(t, err)
		require.False(t, ok)
	}
}

func TestValidateStrengthReportsAllViolations(t *testing.T) {
	result := password.ValidateStrength("short")
	require.False(t, result.IsValid)
	// Too short, no uppercase, no digit.
	require.Len(t, result.Errors, 3)

	result = password.ValidateStrength("Passw0rd")
	require.True(t, result.IsValid)
	require.Empty(t, result.Errors)
}
