// Package kms implements the encrypted-field codec and file encryption
// primitives (ADR-0004, ADR-0005).
//
// PII columns are stored as versioned AES-256-GCM envelopes with a
// companion blind-index column (HMAC-SHA256 of the normalized plaintext)
// for equality lookup without decryption. Both keys derive from one
// master key via HKDF, so rotating the master rotates everything.
//
// Import Path (ADR-0016): aeroclaim.io/aeroclaim/internal/pkg/kms
package kms

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the required key length for AES-256.
	KeySize = 32

	nonceSize = 12

	// fieldVersionPrefix tags envelope format v1: base64(nonce || ciphertext).
	fieldVersionPrefix = "v1:"
)

var (
	ErrInvalidKeySize      = errors.New("kms: key must be 32 bytes")
	ErrMalformedCiphertext = errors.New("kms: malformed ciphertext")
	ErrUnsupportedVersion  = errors.New("kms: unsupported envelope version")
)

// hkdf info strings. Fixed forever; changing one orphans existing data.
const (
	infoFieldKey  = "aeroclaim/field-encryption/v1"
	infoBlindKey  = "aeroclaim/blind-index/v1"
	infoFileWrap  = "aeroclaim/file-key-wrapping/v1"
	hkdfSaltLabel = "aeroclaim-hkdf-salt"
)

// FieldCodec encrypts and decrypts PII column values and computes their
// blind indexes. Safe for concurrent use after construction.
type FieldCodec struct {
	aead     cipher.AEAD
	blindKey []byte
}

// NewFieldCodec derives the field-encryption and blind-index keys from the
// database master key and returns a ready codec.
func NewFieldCodec(masterKey []byte) (*FieldCodec, error) {
	if len(masterKey) != KeySize {
		return nil, ErrInvalidKeySize
	}

	fieldKey, err := deriveKey(masterKey, infoFieldKey)
	if err != nil {
		return nil, err
	}
	blindKey, err := deriveKey(masterKey, infoBlindKey)
	if err != nil {
		return nil, err
	}

	aead, err := newAEAD(fieldKey)
	if err != nil {
		return nil, err
	}
	return &FieldCodec{aead: aead, blindKey: blindKey}, nil
}

// Encrypt seals a plaintext into a versioned envelope: "v1:" + base64(nonce || ct).
// Empty plaintext encrypts to the empty string so nullable columns stay null-ish.
func (c *FieldCodec) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("kms: generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	payload := make([]byte, 0, nonceSize+len(sealed))
	payload = append(payload, nonce...)
	payload = append(payload, sealed...)

	return fieldVersionPrefix + base64.StdEncoding.EncodeToString(payload), nil
}

// Decrypt opens a versioned envelope produced by Encrypt.
func (c *FieldCodec) Decrypt(envelope string) (string, error) {
	if envelope == "" {
		return "", nil
	}
	rest, ok := strings.CutPrefix(envelope, fieldVersionPrefix)
	if !ok {
		return "", ErrUnsupportedVersion
	}

	payload, err := base64.StdEncoding.DecodeString(rest)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	if len(payload) < nonceSize+c.aead.Overhead() {
		return "", ErrMalformedCiphertext
	}

	plaintext, err := c.aead.Open(nil, payload[:nonceSize], payload[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("kms: open field envelope: %w", err)
	}
	return string(plaintext), nil
}

// BlindIndex returns the deterministic equality-lookup value for a plaintext.
// The input is normalized first, so "  User@Example.COM " and
// "user@example.com" index identically.
func (c *FieldCodec) BlindIndex(plaintext string) string {
	mac := hmac.New(sha256.New, c.blindKey)
	mac.Write([]byte(Normalize(plaintext)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Normalize is the canonical form used for blind indexes and duplicate
// checks: trimmed and lowercased.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// DigestToken returns the hex SHA-256 digest under which opaque tokens
// (refresh, magic-link, password-reset) are stored. The plaintext token
// never touches the database.
func DigestToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// NewToken returns a fresh 32-byte random token, URL-safe encoded, and its
// storage digest.
func NewToken() (token, digest string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("kms: generate token: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(raw)
	return token, DigestToken(token), nil
}

// ParseKey accepts a 32-byte key as 64-char hex or as base64 (std or
// raw-url). Configuration supplies keys as strings.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if len(s) == hex.EncodedLen(KeySize) {
		if key, err := hex.DecodeString(s); err == nil {
			return key, nil
		}
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawURLEncoding} {
		if key, err := enc.DecodeString(s); err == nil && len(key) == KeySize {
			return key, nil
		}
	}
	return nil, ErrInvalidKeySize
}

// RandomKeyHex generates a fresh random key in hex form. Used by the
// development secret bootstrap (ADR-0007) only.
func RandomKeyHex() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("kms: generate key: %w", err)
	}
	return hex.EncodeToString(key), nil
}

func deriveKey(master []byte, info string) ([]byte, error) {
	r := hkdf.New(sha256.New, master, []byte(hkdfSaltLabel), []byte(info))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("kms: derive %s: %w", info, err)
	}
	return key, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("kms: new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("kms: new gcm: %w", err)
	}
	return aead, nil
}
