package crypto

import (
	"bytes"
	"strings"
	"testing"

	"github.com/noteforge/core/internal/common"
	"github.com/stretchr/testify/require"
)

func testAuthParams(version string) AuthParams {
	return AuthParams{Identifier: "user@example.com", Version: version, PwCost: 110000, PwNonce: "nonce"}
}

func TestDeriveKeys_Deterministic(t *testing.T) {
	p := testAuthParams("003")
	k1, err := DeriveKeys("correct horse battery staple", p)
	require.NoError(t, err)
	k2, err := DeriveKeys("correct horse battery staple", p)
	require.NoError(t, err)

	require.Equal(t, k1.Pw, k2.Pw)
	require.Equal(t, k1.Mk, k2.Mk)
	require.Equal(t, k1.Ak, k2.Ak)
	require.Len(t, k1.Pw, 32)
	require.Len(t, k1.Mk, 32)
	require.Len(t, k1.Ak, 32)
}

func TestDeriveKeys_RefusesLowCost(t *testing.T) {
	p := testAuthParams("003")
	p.PwCost = 1000
	_, err := DeriveKeys("password", p)
	require.ErrorIs(t, err, common.ErrKeyCostTooLow)
}

func TestDeriveKeys_001And002RequireServerSalt(t *testing.T) {
	p := testAuthParams("002")
	_, err := DeriveKeys("password", p)
	require.ErrorIs(t, err, common.ErrMalformedEnvelope)

	p.PwCost = 3000
	p.PwSalt = "deadbeef"
	_, err = DeriveKeys("password", p)
	require.NoError(t, err)
}

func TestEnvelope_RoundTrip(t *testing.T) {
	for _, version := range []Version{V002, V003} {
		t.Run(string(version), func(t *testing.T) {
			ik, err := GenerateItemKey(nil)
			require.NoError(t, err)

			plaintext := []byte(`{"title":"hello","references":[]}`)
			params := testAuthParams(string(version))

			envelope, err := Encrypt(version, "item-uuid-1", plaintext, ik.Ek, ik.Ak, params, nil)
			require.NoError(t, err)
			require.True(t, strings.HasPrefix(envelope, string(version)+":"))

			decrypted, err := Decrypt(envelope, "item-uuid-1", ik.Ek, ik.Ak, "")
			require.NoError(t, err)
			require.True(t, bytes.Equal(plaintext, decrypted))
		})
	}
}

func TestEnvelope_PlaintextSentinel(t *testing.T) {
	plaintext := []byte(`{"unencrypted":true}`)
	envelope, err := Encrypt(V000, "u1", plaintext, nil, nil, AuthParams{}, nil)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(envelope, "000"))

	decrypted, err := Decrypt(envelope, "u1", nil, nil, "")
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestEnvelope_001IsReadOnly(t *testing.T) {
	_, err := Encrypt(V001, "u1", []byte("x"), nil, nil, AuthParams{}, nil)
	require.ErrorIs(t, err, common.ErrProtocolTooOld)
}

func TestEnvelope_AuthenticityBitFlip(t *testing.T) {
	ik, err := GenerateItemKey(nil)
	require.NoError(t, err)
	envelope, err := Encrypt(V003, "u1", []byte("payload"), ik.Ek, ik.Ak, testAuthParams("003"), nil)
	require.NoError(t, err)

	parts := strings.Split(envelope, ":")
	require.Len(t, parts, 6)

	t.Run("flip uuid", func(t *testing.T) {
		bad := strings.Join(append(append([]string{}, parts[:2]...), "not-u1", parts[3], parts[4], parts[5]), ":")
		_, err := Decrypt(bad, "u1", ik.Ek, ik.Ak, "")
		require.ErrorIs(t, err, common.ErrAuthenticationFailed)
	})

	t.Run("flip iv", func(t *testing.T) {
		mutated := append([]string{}, parts...)
		mutated[3] = flipHexNibble(mutated[3])
		_, err := Decrypt(strings.Join(mutated, ":"), "u1", ik.Ek, ik.Ak, "")
		require.ErrorIs(t, err, common.ErrAuthenticationFailed)
	})

	t.Run("flip ciphertext", func(t *testing.T) {
		mutated := append([]string{}, parts...)
		mutated[4] = flipB64Char(mutated[4])
		_, err := Decrypt(strings.Join(mutated, ":"), "u1", ik.Ek, ik.Ak, "")
		require.ErrorIs(t, err, common.ErrAuthenticationFailed)
	})
}

func flipHexNibble(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] == '0' {
		b[0] = '1'
	} else {
		b[0] = '0'
	}
	return string(b)
}

func flipB64Char(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] == 'A' {
		b[0] = 'B'
	} else {
		b[0] = 'A'
	}
	return string(b)
}

func TestItemKeyWrapUnwrap(t *testing.T) {
	ik, err := GenerateItemKey(nil)
	require.NoError(t, err)

	mk := bytes.Repeat([]byte{0x42}, 32)
	mak := bytes.Repeat([]byte{0x24}, 32)

	wrapped, err := WrapItemKey(V003, "u1", ik, mk, mak, testAuthParams("003"), nil)
	require.NoError(t, err)

	unwrapped, err := UnwrapItemKey(wrapped, "u1", mk, mak)
	require.NoError(t, err)
	require.Equal(t, ik.Ek, unwrapped.Ek)
	require.Equal(t, ik.Ak, unwrapped.Ak)
}

func TestEnvelope_MalformedVersion(t *testing.T) {
	_, err := Decrypt("999:x:x:x:x:x", "u1", nil, nil, "")
	require.ErrorIs(t, err, common.ErrMalformedEnvelope)
}
