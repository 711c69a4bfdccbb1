package auth

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := NewHasher(1<<10, 8, 1, 32)
	require.NoError(t, err)
	return h
}

func TestHashVerifyRoundTrip(t *testing.T) {
	h := testHasher(t)
	salt, hash, params, err := h.Hash("correct horse battery staple")
	require.NoError(t, err)

	ok, err := h.Verify("correct horse battery staple", salt, hash, params)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("wrong password", salt, hash, params)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashProducesFreshSalt(t *testing.T) {
	h := testHasher(t)
	salt1, hash1, _, err := h.Hash("same password")
	require.NoError(t, err)
	salt2, hash2, _, err := h.Hash("same password")
	require.NoError(t, err)
	assert.NotEqual(t, salt1, salt2)
	assert.NotEqual(t, hash1, hash2)
}

func TestVerifyUsesStoredParams(t *testing.T) {
	old, err := NewHasher(1<<10, 8, 1, 32)
	require.NoError(t, err)
	salt, hash, params, err := old.Hash("pw1234")
	require.NoError(t, err)

	// Deployment bumps the work factor; old records must still verify.
	current, err := NewHasher(1<<12, 8, 2, 32)
	require.NoError(t, err)
	ok, err := current.Verify("pw1234", salt, hash, params)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyMalformedStoredMaterial(t *testing.T) {
	h := testHasher(t)
	salt, hash, params, err := h.Hash("pw1234")
	require.NoError(t, err)

	cases := []struct {
		name                string
		salt, hash, paramsJSON string
	}{
		{"bad params json", salt, hash, "{not json"},
		{"out of bounds N", salt, hash, `{"N":3,"r":8,"p":1,"keylen":32}`},
		{"bad salt b64", "!!!", hash, params},
		{"bad hash b64", salt, "!!!", params},
		{"hash wrong length", salt, base64.StdEncoding.EncodeToString([]byte("short")), params},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := h.Verify("pw1234", tc.salt, tc.hash, tc.paramsJSON)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestPasswordLengthCap(t *testing.T) {
	h := testHasher(t)
	long := strings.Repeat("a", maxPasswordLength+1)
	_, _, _, err := h.Hash(long)
	assert.Error(t, err)

	salt, hash, params, err := h.Hash("pw1234")
	require.NoError(t, err)
	ok, err := h.Verify(long, salt, hash, params)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewHasherRejectsBadParams(t *testing.T) {
	cases := []struct {
		name             string
		n, r, p, keyLen int
	}{
		{"n not power of two", 1000, 8, 1, 32},
		{"n too small", 512, 8, 1, 32},
		{"r zero", 1 << 10, 0, 1, 32},
		{"p zero", 1 << 10, 8, 0, 32},
		{"keylen too small", 1 << 10, 8, 1, 8},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewHasher(tc.n, tc.r, tc.p, tc.keyLen)
			assert.Error(t, err)
		})
	}
}
