package crypto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAuthTokenWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	hash := HashPassword("Vrepol")
	token, err := GenerateAuthToken("Vrepol", now)
	require.NoError(t, err)

	for _, delta := range []time.Duration{-AuthPeriod, 0, AuthPeriod} {
		require.True(t, VerifyAuthToken(token, hash, now.Add(delta)),
			"token must verify at skew %v", delta)
	}
	require.False(t, VerifyAuthToken(token, hash, now.Add(-2*AuthPeriod)),
		"token must expire beyond one period")
	require.False(t, VerifyAuthToken(token, hash, now.Add(2*AuthPeriod)))
}

func TestAuthTokenWrongPassword(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	token, err := GenerateAuthToken("correct", now)
	require.NoError(t, err)
	require.False(t, VerifyAuthToken(token, HashPassword("incorrect"), now))
}

func TestAuthTokenFromHash(t *testing.T) {
	// The invitation path only knows the hash, never the password.
	now := time.Unix(1_700_000_000, 0)
	hash := HashPassword("Vrepol")
	token, err := GenerateAuthTokenFromHash(hash, now)
	require.NoError(t, err)
	require.True(t, VerifyAuthToken(token, hash, now))
}

func TestAuthTokenNonDeterministic(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	a, err := GenerateAuthToken("pw", now)
	require.NoError(t, err)
	b, err := GenerateAuthToken("pw", now)
	require.NoError(t, err)
	// Each layer mixes in a random salt, so identical inputs never produce
	// identical ciphertext.
	require.NotEqual(t, a, b)
}

func TestVerifyAuthTokenGarbage(t *testing.T) {
	hash := HashPassword("pw")
	now := time.Now()
	require.False(t, VerifyAuthToken("", hash, now))
	require.False(t, VerifyAuthToken("!!not base64!!", hash, now))
	require.False(t, VerifyAuthToken("AAAA", hash, now))
}

func TestPeriodKeyTiling(t *testing.T) {
	t1 := time.Unix(3000, 0)
	key := PeriodKey(t1, AuthPeriod)
	// 3000/30 = 100 → big-endian 8-byte pattern tiled four times.
	for i := 0; i < KeySize; i++ {
		want := byte(0)
		if i%8 == 7 {
			want = 100
		}
		require.Equal(t, want, key[i], "byte %d", i)
	}
	// Same period, same key; next period, different key.
	require.Equal(t, key, PeriodKey(t1.Add(29*time.Second), AuthPeriod))
	require.NotEqual(t, key, PeriodKey(t1.Add(30*time.Second), AuthPeriod))
}
