package kms

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFileCipher(t *testing.T) *FileCipher {
	t.Helper()
	key := make([]byte, KeySize)
	key[0] = 0x42
	fc, err := NewFileCipher(key)
	require.NoError(t, err)
	return fc
}

func randomPlaintext(t *testing.T, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	_, err := rand.Read(buf)
	require.NoError(t, err)
	return buf
}

func encryptStream(t *testing.T, fc *FileCipher, plain []byte, chunkSize int, aad []byte) []byte {
	t.Helper()
	var ct bytes.Buffer
	w, err := fc.NewEncryptWriter(&ct, chunkSize, aad)
	require.NoError(t, err)
	_, err = w.Write(plain)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return ct.Bytes()
}

func TestSingleShot_RoundTrip(t *testing.T) {
	fc := testFileCipher(t)
	aad := []byte("files/cust/claim/file-1")
	plain := randomPlaintext(t, 4096)

	blob, err := fc.EncryptBytes(plain, aad)
	require.NoError(t, err)
	assert.NotContains(t, string(blob), string(plain[:64]))

	out, err := fc.DecryptBytes(blob, aad)
	require.NoError(t, err)
	assert.Equal(t, plain, out)
}

func TestSingleShot_WrongAADFails(t *testing.T) {
	fc := testFileCipher(t)
	blob, err := fc.EncryptBytes([]byte("receipt body"), []byte("file-a"))
	require.NoError(t, err)

	_, err = fc.DecryptBytes(blob, []byte("file-b"))
	assert.Error(t, err, "envelope must be bound to its storage context")
}

func TestSingleShot_CorruptByteFails(t *testing.T) {
	fc := testFileCipher(t)
	aad := []byte("file-x")
	blob, err := fc.EncryptBytes(randomPlaintext(t, 1024), aad)
	require.NoError(t, err)

	for _, offset := range []int{singleHeaderSize + 3, len(blob) - 1, 7} {
		corrupted := append([]byte(nil), blob...)
		corrupted[offset] ^= 0x01
		_, err = fc.DecryptBytes(corrupted, aad)
		assert.Error(t, err, "flipping byte %d must fail decryption", offset)
	}
}

func TestStream_RoundTrip(t *testing.T) {
	fc := testFileCipher(t)
	aad := []byte("files/owner/claim/file-2")

	tests := []struct {
		name      string
		plainSize int
		chunkSize int
	}{
		{"empty", 0, 64},
		{"below one chunk", 33, 64},
		{"exactly one chunk", 64, 64},
		{"several chunks", 64*5 + 17, 64},
		{"exact multiple of chunk", 64 * 4, 64},
		{"large-ish", 1<<20 + 3, 64 << 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plain := randomPlaintext(t, tt.plainSize)
			ct := encryptStream(t, fc, plain, tt.chunkSize, aad)

			assert.Equal(t,
				StreamCiphertextSize(int64(tt.plainSize), tt.chunkSize),
				int64(len(ct)),
				"predicted ciphertext size must match emitted size")

			r, err := fc.NewDecryptReader(bytes.NewReader(ct), aad)
			require.NoError(t, err)
			out, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, plain, out)
		})
	}
}

func TestStream_WriterAccounting(t *testing.T) {
	fc := testFileCipher(t)
	plain := randomPlaintext(t, 777)

	var ct bytes.Buffer
	w, err := fc.NewEncryptWriter(&ct, 128, []byte("acct"))
	require.NoError(t, err)
	// Write in awkward pieces to exercise buffering.
	for _, n := range []int{1, 127, 128, 300, 221} {
		_, err = w.Write(plain[:n])
		require.NoError(t, err)
		plain = plain[n:]
	}
	require.NoError(t, w.Close())

	assert.Equal(t, int64(777), w.PlaintextSize())
	assert.Equal(t, int64(ct.Len()), w.CiphertextSize())
}

func TestStream_SingleByteCorruptionFails(t *testing.T) {
	fc := testFileCipher(t)
	aad := []byte("files/o/c/f")
	plain := randomPlaintext(t, 64*3+10)
	ct := encryptStream(t, fc, plain, 64, aad)

	// Corrupt one ciphertext byte in the middle frame.
	offset, _ := StreamFrameRange(int64(len(plain)), 64, 1)
	corrupted := append([]byte(nil), ct...)
	corrupted[offset+10] ^= 0x01

	r, err := fc.NewDecryptReader(bytes.NewReader(corrupted), aad)
	require.NoError(t, err)
	_, err = io.ReadAll(r)
	assert.Error(t, err)
}

func TestStream_TruncationDetected(t *testing.T) {
	fc := testFileCipher(t)
	aad := []byte("trunc")
	plain := randomPlaintext(t, 64*4)
	ct := encryptStream(t, fc, plain, 64, aad)

	// Cut the stream exactly at a frame boundary: frames 0..2 intact,
	// final frame missing. Without the final-flag AAD this would pass.
	offset, _ := StreamFrameRange(int64(len(plain)), 64, 3)
	truncated := ct[:offset]

	r, err := fc.NewDecryptReader(bytes.NewReader(truncated), aad)
	require.NoError(t, err)
	_, err = io.ReadAll(r)
	assert.ErrorIs(t, err, ErrTruncatedStream)
}

func TestStream_FrameReorderDetected(t *testing.T) {
	fc := testFileCipher(t)
	aad := []byte("reorder")
	plain := randomPlaintext(t, 64*3)
	ct := encryptStream(t, fc, plain, 64, aad)

	off0, len0 := StreamFrameRange(int64(len(plain)), 64, 0)
	off1, len1 := StreamFrameRange(int64(len(plain)), 64, 1)
	require.Equal(t, len0, len1)

	swapped := append([]byte(nil), ct...)
	copy(swapped[off0:off0+len0], ct[off1:off1+len1])
	copy(swapped[off1:off1+len1], ct[off0:off0+len0])

	r, err := fc.NewDecryptReader(bytes.NewReader(swapped), aad)
	require.NoError(t, err)
	_, err = io.ReadAll(r)
	assert.Error(t, err, "frame indexes are authenticated; swaps must fail")
}

func TestStream_TrailingDataDetected(t *testing.T) {
	fc := testFileCipher(t)
	aad := []byte("trailing")
	plain := randomPlaintext(t, 100)
	ct := encryptStream(t, fc, plain, 64, aad)

	r, err := fc.NewDecryptReader(bytes.NewReader(append(ct, 0xAA)), aad)
	require.NoError(t, err)
	_, err = io.ReadAll(r)
	assert.ErrorIs(t, err, ErrTrailingData)
}

func TestStream_WrongAADFails(t *testing.T) {
	fc := testFileCipher(t)
	ct := encryptStream(t, fc, randomPlaintext(t, 200), 64, []byte("path-a"))

	_, err := fc.NewDecryptReader(bytes.NewReader(ct), []byte("path-b"))
	assert.Error(t, err, "DEK unwrap is bound to the storage context")
}

func TestStream_RangedFrameVerification(t *testing.T) {
	fc := testFileCipher(t)
	aad := []byte("files/owner/claim/file-9")
	plainSize := 64*6 + 21
	plain := randomPlaintext(t, plainSize)
	ct := encryptStream(t, fc, plain, 64, aad)

	header, err := ParseStreamHeader(ct[:StreamHeaderSize])
	require.NoError(t, err)
	key, err := fc.OpenStreamKey(header, aad)
	require.NoError(t, err)

	frames := StreamFrameCount(int64(plainSize), 64)
	require.Equal(t, int64(7), frames)

	// First frame round-trips.
	off, length := StreamFrameRange(int64(plainSize), 64, 0)
	got, err := key.OpenFrame(ct[off:off+length], 0, false)
	require.NoError(t, err)
	assert.Equal(t, plain[:64], got)

	// Last frame round-trips and carries the final flag.
	off, length = StreamFrameRange(int64(plainSize), 64, frames-1)
	got, err = key.OpenFrame(ct[off:off+length], uint64(frames-1), true)
	require.NoError(t, err)
	assert.Equal(t, plain[64*6:], got)

	// Claiming the wrong finality must fail.
	_, err = key.OpenFrame(ct[off:off+length], uint64(frames-1), false)
	assert.Error(t, err)
}

func TestStream_EncryptWriterAfterClose(t *testing.T) {
	fc := testFileCipher(t)
	var ct bytes.Buffer
	w, err := fc.NewEncryptWriter(&ct, 64, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "Close is idempotent")

	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, ErrWriterClosed)
}

func TestStream_ChunkSizeValidation(t *testing.T) {
	fc := testFileCipher(t)
	var ct bytes.Buffer
	_, err := fc.NewEncryptWriter(&ct, 4, []byte("x"))
	assert.Error(t, err)
}

func TestStream_HeaderParsing(t *testing.T) {
	fc := testFileCipher(t)
	ct := encryptStream(t, fc, []byte("abc"), 64, []byte("hdr"))

	t.Run("valid", func(t *testing.T) {
		header, err := ParseStreamHeader(ct[:StreamHeaderSize])
		require.NoError(t, err)
		assert.Equal(t, 64, header.ChunkSize)
		assert.Len(t, header.WrappedDEK, wrappedDEKSize)
	})

	t.Run("short", func(t *testing.T) {
		_, err := ParseStreamHeader(ct[:10])
		assert.ErrorIs(t, err, ErrMalformedCiphertext)
	})

	t.Run("wrong magic", func(t *testing.T) {
		mangled := append([]byte(nil), ct[:StreamHeaderSize]...)
		mangled[0] = 'Z'
		_, err := ParseStreamHeader(mangled)
		assert.ErrorIs(t, err, ErrUnsupportedVersion)
	})
}
