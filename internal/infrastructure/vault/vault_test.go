package vault

import (
	"encoding/hex"
	"strings"
	"testing"

	domainErrors "github.com/cassiomorais/orders/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMasterKey = "0123456789abcdef0123456789abcdef"

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	v, err := New(testMasterKey)
	require.NoError(t, err)
	return v
}

func TestVault_RoundTrip(t *testing.T) {
	v := newTestVault(t)

	secrets := []string{
		"sk_test_51H8abcdefghijklmnop",
		"whsec_abc123",
		"",
		"value:with:colons",
		strings.Repeat("x", 4096),
		"ünïcödé",
	}

	for _, s := range secrets {
		enc, err := v.Encrypt(s)
		require.NoError(t, err)
		assert.True(t, IsEncrypted(enc))

		dec, err := v.Decrypt(enc)
		require.NoError(t, err)
		assert.Equal(t, s, dec)
	}
}

func TestVault_Format(t *testing.T) {
	v := newTestVault(t)

	enc, err := v.Encrypt("sk_test_123")
	require.NoError(t, err)

	parts := strings.Split(enc, ":")
	require.Len(t, parts, 3)

	iv, err := hex.DecodeString(parts[0])
	require.NoError(t, err)
	assert.Len(t, iv, ivSize)

	tag, err := hex.DecodeString(parts[1])
	require.NoError(t, err)
	assert.Len(t, tag, tagSize)

	ct, err := hex.DecodeString(parts[2])
	require.NoError(t, err)
	assert.Len(t, ct, len("sk_test_123"))
}

func TestVault_FreshIVPerEncryption(t *testing.T) {
	v := newTestVault(t)

	a, err := v.Encrypt("same")
	require.NoError(t, err)
	b, err := v.Encrypt("same")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestVault_TamperedCiphertextFails(t *testing.T) {
	v := newTestVault(t)

	enc, err := v.Encrypt("sk_live_secret")
	require.NoError(t, err)

	parts := strings.Split(enc, ":")
	for i := range parts {
		raw, err := hex.DecodeString(parts[i])
		require.NoError(t, err)
		raw[0] ^= 0x01

		tampered := make([]string, 3)
		copy(tampered, parts)
		tampered[i] = hex.EncodeToString(raw)

		_, err = v.Decrypt(strings.Join(tampered, ":"))
		assert.ErrorIs(t, err, domainErrors.ErrDecryptionFailed, "part %d", i)
	}
}

func TestVault_WrongKeyFails(t *testing.T) {
	v := newTestVault(t)
	other, err := New("another-master-key-that-is-long-enough")
	require.NoError(t, err)

	enc, err := v.Encrypt("sk_test_123")
	require.NoError(t, err)

	_, err = other.Decrypt(enc)
	assert.ErrorIs(t, err, domainErrors.ErrDecryptionFailed)
}

func TestVault_MalformedValues(t *testing.T) {
	v := newTestVault(t)

	tests := []string{
		"abc:def",
		"zz:zz:zz",
		"00:00:00",
		"a:b:c:d",
	}

	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			_, err := v.Decrypt(in)
			assert.ErrorIs(t, err, domainErrors.ErrDecryptionFailed)
		})
	}
}

func TestVault_LegacyPlaintext(t *testing.T) {
	v := newTestVault(t)

	dec, err := v.Decrypt("sk_test_legacy_plaintext")
	require.NoError(t, err)
	assert.Equal(t, "sk_test_legacy_plaintext", dec)
	assert.False(t, IsEncrypted("sk_test_legacy_plaintext"))
}

func TestNew_EmptyMasterKey(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}
