package kms

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMasterKey(t *testing.T) []byte {
	t.Helper()
	key, err := hex.DecodeString(strings.Repeat("ab", KeySize))
	require.NoError(t, err)
	return key
}

func TestFieldCodec_RoundTrip(t *testing.T) {
	codec, err := NewFieldCodec(testMasterKey(t))
	require.NoError(t, err)

	tests := []struct {
		name      string
		plaintext string
	}{
		{"email", "anna.lindqvist@example.com"},
		{"name with umlaut", "Jürgen Groß"},
		{"booking reference", "X9ZK2L"},
		{"long address", strings.Repeat("Lindenstraße 42, ", 40)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envelope, err := codec.Encrypt(tt.plaintext)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(envelope, "v1:"), "envelope must be versioned")
			assert.NotContains(t, envelope, tt.plaintext)

			decrypted, err := codec.Decrypt(envelope)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, decrypted)
		})
	}
}

func TestFieldCodec_EmptyPlaintext(t *testing.T) {
	codec, err := NewFieldCodec(testMasterKey(t))
	require.NoError(t, err)

	envelope, err := codec.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, envelope)

	decrypted, err := codec.Decrypt("")
	require.NoError(t, err)
	assert.Empty(t, decrypted)
}

func TestFieldCodec_EncryptIsNonDeterministic(t *testing.T) {
	codec, err := NewFieldCodec(testMasterKey(t))
	require.NoError(t, err)

	a, err := codec.Encrypt("same plaintext")
	require.NoError(t, err)
	b, err := codec.Encrypt("same plaintext")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "random nonce must produce distinct envelopes")
}

func TestFieldCodec_DecryptRejectsTampering(t *testing.T) {
	codec, err := NewFieldCodec(testMasterKey(t))
	require.NoError(t, err)

	envelope, err := codec.Encrypt("sensitive@example.com")
	require.NoError(t, err)

	payload, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(envelope, "v1:"))
	require.NoError(t, err)
	payload[len(payload)-1] ^= 0x01
	tampered := "v1:" + base64.StdEncoding.EncodeToString(payload)

	_, err = codec.Decrypt(tampered)
	assert.Error(t, err)
}

func TestFieldCodec_DecryptRejectsMalformed(t *testing.T) {
	codec, err := NewFieldCodec(testMasterKey(t))
	require.NoError(t, err)

	tests := []struct {
		name     string
		envelope string
		wantErr  error
	}{
		{"missing version", "bm9wZQ==", ErrUnsupportedVersion},
		{"unknown version", "v9:bm9wZQ==", ErrUnsupportedVersion},
		{"bad base64", "v1:!!!", ErrMalformedCiphertext},
		{"too short", "v1:" + base64.StdEncoding.EncodeToString([]byte("tiny")), ErrMalformedCiphertext},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decrypt(tt.envelope)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFieldCodec_WrongKeyFailsDecrypt(t *testing.T) {
	codecA, err := NewFieldCodec(testMasterKey(t))
	require.NoError(t, err)

	otherKey := make([]byte, KeySize)
	otherKey[0] = 0x7f
	codecB, err := NewFieldCodec(otherKey)
	require.NoError(t, err)

	envelope, err := codecA.Encrypt("cross-key")
	require.NoError(t, err)
	_, err = codecB.Decrypt(envelope)
	assert.Error(t, err)
}

func TestBlindIndex_NormalizesInput(t *testing.T) {
	codec, err := NewFieldCodec(testMasterKey(t))
	require.NoError(t, err)

	base := codec.BlindIndex("customer@example.com")
	assert.Equal(t, base, codec.BlindIndex("  Customer@Example.COM  "))
	assert.NotEqual(t, base, codec.BlindIndex("other@example.com"))
	assert.Len(t, base, 64, "hex sha256")
}

func TestBlindIndex_DiffersPerKey(t *testing.T) {
	codecA, err := NewFieldCodec(testMasterKey(t))
	require.NoError(t, err)
	otherKey := make([]byte, KeySize)
	otherKey[31] = 0x01
	codecB, err := NewFieldCodec(otherKey)
	require.NoError(t, err)

	assert.NotEqual(t,
		codecA.BlindIndex("customer@example.com"),
		codecB.BlindIndex("customer@example.com"),
		"blind index must be keyed, not a bare hash")
}

func TestNewFieldCodec_RejectsShortKey(t *testing.T) {
	_, err := NewFieldCodec([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidKeySize)
}

func TestNewToken(t *testing.T) {
	token, digest, err := NewToken()
	require.NoError(t, err)

	assert.NotEmpty(t, token)
	assert.Equal(t, DigestToken(token), digest)
	assert.NotEqual(t, token, digest)

	token2, _, err := NewToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, token2)
}

func TestParseKey(t *testing.T) {
	raw := testMasterKey(t)

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"hex", hex.EncodeToString(raw), false},
		{"hex with spaces", "  " + hex.EncodeToString(raw) + "\n", false},
		{"base64 std", base64.StdEncoding.EncodeToString(raw), false},
		{"base64 url", base64.RawURLEncoding.EncodeToString(raw), false},
		{"too short", "abcd", true},
		{"not a key", "definitely not a key material here", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := ParseKey(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, raw, key)
		})
	}
}

func TestRandomKeyHex(t *testing.T) {
	keyHex, err := RandomKeyHex()
	require.NoError(t, err)

	key, err := ParseKey(keyHex)
	require.NoError(t, err)
	assert.Len(t, key, KeySize)
}
