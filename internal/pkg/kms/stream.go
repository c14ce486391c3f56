package kms

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// File encryption (ADR-0005).
//
// Every stored object is encrypted under a random per-file DEK wrapped by
// the file master key. Small files use a single-shot envelope; large files
// use a framed stream where each frame is an AES-GCM seal with
// nonce = prefix || frame index and AAD binding the storage context, the
// frame index, and a final-frame flag. Concatenating independent one-shot
// envelopes is NOT a valid stream: frames must share the DEK and carry
// ordered indexes or truncation and reordering go undetected.

// Scheme tags recorded on the ClaimFile row.
const (
	SchemeSingleShot = "aes256gcm-v1"
	SchemeStream     = "aes256gcm-stream-v1"
)

const (
	// DefaultChunkSize is the stream frame plaintext size.
	DefaultChunkSize = 4 << 20

	// MinChunkSize guards against degenerate frame layouts.
	MinChunkSize = 16

	gcmOverhead = 16

	// wrappedDEKSize = nonce(12) + key(32) + tag(16).
	wrappedDEKSize = 60

	// StreamHeaderSize = magic(4) + chunkSize(4) + wrappedLen(2) +
	// wrappedDEK(60) + noncePrefix(4).
	StreamHeaderSize = 4 + 4 + 2 + wrappedDEKSize + 4

	singleHeaderSize = 4 + 2 + wrappedDEKSize

	framePrefixSize = 4

	// frameFinalBit marks the last frame in the length prefix. The flag is
	// additionally authenticated through the frame AAD.
	frameFinalBit = uint32(1) << 31
)

var (
	magicStream = [4]byte{'A', 'C', 'S', '1'}
	magicSingle = [4]byte{'A', 'C', 'E', '1'}
)

var (
	ErrTruncatedStream = errors.New("kms: ciphertext stream truncated")
	ErrTrailingData    = errors.New("kms: trailing data after final frame")
	ErrWriterClosed    = errors.New("kms: encrypt writer is closed")
)

// FileCipher wraps and unwraps per-file DEKs and drives both envelope
// formats. Safe for concurrent use.
type FileCipher struct {
	wrap cipher.AEAD
}

// NewFileCipher derives the key-wrapping key from the file master key.
func NewFileCipher(masterKey []byte) (*FileCipher, error) {
	if len(masterKey) != KeySize {
		return nil, ErrInvalidKeySize
	}
	wrapKey, err := deriveKey(masterKey, infoFileWrap)
	if err != nil {
		return nil, err
	}
	aead, err := newAEAD(wrapKey)
	if err != nil {
		return nil, err
	}
	return &FileCipher{wrap: aead}, nil
}

// EncryptBytes seals a whole plaintext as a single-shot envelope. aad binds
// the ciphertext to its storage context (file id + path).
func (f *FileCipher) EncryptBytes(plaintext, aad []byte) ([]byte, error) {
	dek, wrapped, err := f.newWrappedDEK(aad)
	if err != nil {
		return nil, err
	}
	aead, err := newAEAD(dek)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("kms: generate nonce: %w", err)
	}

	out := make([]byte, 0, singleHeaderSize+nonceSize+len(plaintext)+gcmOverhead)
	out = append(out, magicSingle[:]...)
	out = binary.BigEndian.AppendUint16(out, uint16(len(wrapped)))
	out = append(out, wrapped...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, aad)
	return out, nil
}

// DecryptBytes opens a single-shot envelope produced by EncryptBytes.
func (f *FileCipher) DecryptBytes(blob, aad []byte) ([]byte, error) {
	if len(blob) < singleHeaderSize+nonceSize+gcmOverhead {
		return nil, ErrMalformedCiphertext
	}
	if !bytes.Equal(blob[:4], magicSingle[:]) {
		return nil, ErrUnsupportedVersion
	}
	wrappedLen := int(binary.BigEndian.Uint16(blob[4:6]))
	if wrappedLen != wrappedDEKSize || len(blob) < singleHeaderSize+nonceSize {
		return nil, ErrMalformedCiphertext
	}

	dek, err := f.unwrapDEK(blob[6:6+wrappedLen], aad)
	if err != nil {
		return nil, err
	}
	aead, err := newAEAD(dek)
	if err != nil {
		return nil, err
	}

	body := blob[singleHeaderSize:]
	plaintext, err := aead.Open(nil, body[:nonceSize], body[nonceSize:], aad)
	if err != nil {
		return nil, fmt.Errorf("kms: open envelope: %w", err)
	}
	return plaintext, nil
}

// EncryptWriter frames plaintext into an authenticated stream. Not safe for
// concurrent use. Close MUST be called: the final frame is emitted there.
type EncryptWriter struct {
	dst         io.Writer
	aead        cipher.AEAD
	aadContext  []byte
	noncePrefix [4]byte
	chunkSize   int

	buf        bytes.Buffer
	index      uint64
	closed     bool
	plainSize  int64
	cipherSize int64
}

// NewEncryptWriter writes the stream header to dst and returns a writer
// that frames subsequent plaintext. chunkSize 0 selects DefaultChunkSize.
func (f *FileCipher) NewEncryptWriter(dst io.Writer, chunkSize int, aad []byte) (*EncryptWriter, error) {
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkSize < MinChunkSize {
		return nil, fmt.Errorf("kms: chunk size %d below minimum %d", chunkSize, MinChunkSize)
	}

	dek, wrapped, err := f.newWrappedDEK(aad)
	if err != nil {
		return nil, err
	}
	aead, err := newAEAD(dek)
	if err != nil {
		return nil, err
	}

	var prefix [4]byte
	if _, err := rand.Read(prefix[:]); err != nil {
		return nil, fmt.Errorf("kms: generate nonce prefix: %w", err)
	}

	header := make([]byte, 0, StreamHeaderSize)
	header = append(header, magicStream[:]...)
	header = binary.BigEndian.AppendUint32(header, uint32(chunkSize))
	header = binary.BigEndian.AppendUint16(header, uint16(len(wrapped)))
	header = append(header, wrapped...)
	header = append(header, prefix[:]...)
	if _, err := dst.Write(header); err != nil {
		return nil, fmt.Errorf("kms: write stream header: %w", err)
	}

	return &EncryptWriter{
		dst:         dst,
		aead:        aead,
		aadContext:  append([]byte(nil), aad...),
		noncePrefix: prefix,
		chunkSize:   chunkSize,
		cipherSize:  StreamHeaderSize,
	}, nil
}

// Write buffers plaintext, emitting full frames. A full buffer is held back
// until more data or Close arrives, so the final frame is always the one
// flagged final.
func (w *EncryptWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrWriterClosed
	}
	total := 0
	for len(p) > 0 {
		if w.buf.Len() == w.chunkSize {
			if err := w.flushFrame(false); err != nil {
				return total, err
			}
		}
		n := w.chunkSize - w.buf.Len()
		if n > len(p) {
			n = len(p)
		}
		w.buf.Write(p[:n])
		p = p[n:]
		total += n
	}
	w.plainSize += int64(total)
	return total, nil
}

// Close emits the final frame (empty for a zero-byte plaintext) and seals
// the stream. Idempotent.
func (w *EncryptWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.flushFrame(true)
}

// PlaintextSize reports bytes written so far.
func (w *EncryptWriter) PlaintextSize() int64 { return w.plainSize }

// CiphertextSize reports stream bytes emitted so far, header included.
func (w *EncryptWriter) CiphertextSize() int64 { return w.cipherSize }

func (w *EncryptWriter) flushFrame(final bool) error {
	nonce := frameNonce(w.noncePrefix, w.index)
	aad := frameAAD(w.aadContext, w.index, final)
	sealed := w.aead.Seal(nil, nonce, w.buf.Bytes(), aad)

	prefix := uint32(len(sealed))
	if final {
		prefix |= frameFinalBit
	}
	var hdr [framePrefixSize]byte
	binary.BigEndian.PutUint32(hdr[:], prefix)

	if _, err := w.dst.Write(hdr[:]); err != nil {
		return fmt.Errorf("kms: write frame prefix: %w", err)
	}
	if _, err := w.dst.Write(sealed); err != nil {
		return fmt.Errorf("kms: write frame: %w", err)
	}

	w.cipherSize += int64(framePrefixSize + len(sealed))
	w.index++
	w.buf.Reset()
	return nil
}

// DecryptReader streams plaintext out of a framed ciphertext, failing on
// any tamper, truncation, or trailing data.
type DecryptReader struct {
	src        io.Reader
	aead       cipher.AEAD
	aadContext []byte
	header     *StreamHeader

	out   bytes.Buffer
	index uint64
	done  bool
}

// NewDecryptReader consumes the stream header from src and prepares
// frame-wise decryption. aad must match the value used at encryption.
func (f *FileCipher) NewDecryptReader(src io.Reader, aad []byte) (*DecryptReader, error) {
	hdrBytes := make([]byte, StreamHeaderSize)
	if _, err := io.ReadFull(src, hdrBytes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncatedStream, err)
	}
	header, err := ParseStreamHeader(hdrBytes)
	if err != nil {
		return nil, err
	}

	dek, err := f.unwrapDEK(header.WrappedDEK, aad)
	if err != nil {
		return nil, err
	}
	aead, err := newAEAD(dek)
	if err != nil {
		return nil, err
	}

	return &DecryptReader{
		src:        src,
		aead:       aead,
		aadContext: append([]byte(nil), aad...),
		header:     header,
	}, nil
}

// Read implements io.Reader.
func (r *DecryptReader) Read(p []byte) (int, error) {
	for r.out.Len() == 0 {
		if r.done {
			return 0, io.EOF
		}
		if err := r.readFrame(); err != nil {
			return 0, err
		}
	}
	return r.out.Read(p)
}

func (r *DecryptReader) readFrame() error {
	var hdr [framePrefixSize]byte
	if _, err := io.ReadFull(r.src, hdr[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return ErrTruncatedStream
		}
		return fmt.Errorf("kms: read frame prefix: %w", err)
	}

	prefix := binary.BigEndian.Uint32(hdr[:])
	final := prefix&frameFinalBit != 0
	ctLen := int(prefix &^ frameFinalBit)
	if ctLen < gcmOverhead || ctLen > r.header.ChunkSize+gcmOverhead {
		return ErrMalformedCiphertext
	}

	sealed := make([]byte, ctLen)
	if _, err := io.ReadFull(r.src, sealed); err != nil {
		return ErrTruncatedStream
	}

	nonce := frameNonce(r.header.NoncePrefix, r.index)
	aad := frameAAD(r.aadContext, r.index, final)
	plain, err := r.aead.Open(nil, nonce, sealed, aad)
	if err != nil {
		return fmt.Errorf("kms: open frame %d: %w", r.index, err)
	}

	r.out.Write(plain)
	r.index++
	if final {
		r.done = true
		// Anything after the final frame is tampering.
		var one [1]byte
		if n, _ := r.src.Read(one[:]); n != 0 {
			return ErrTrailingData
		}
	}
	return nil
}

// StreamHeader is the parsed fixed-size stream preamble.
type StreamHeader struct {
	ChunkSize   int
	WrappedDEK  []byte
	NoncePrefix [4]byte
}

// ParseStreamHeader validates and decodes a stream header.
func ParseStreamHeader(b []byte) (*StreamHeader, error) {
	if len(b) < StreamHeaderSize {
		return nil, ErrMalformedCiphertext
	}
	if !bytes.Equal(b[:4], magicStream[:]) {
		return nil, ErrUnsupportedVersion
	}
	chunkSize := int(binary.BigEndian.Uint32(b[4:8]))
	if chunkSize < MinChunkSize {
		return nil, ErrMalformedCiphertext
	}
	wrappedLen := int(binary.BigEndian.Uint16(b[8:10]))
	if wrappedLen != wrappedDEKSize {
		return nil, ErrMalformedCiphertext
	}

	h := &StreamHeader{
		ChunkSize:  chunkSize,
		WrappedDEK: append([]byte(nil), b[10:10+wrappedLen]...),
	}
	copy(h.NoncePrefix[:], b[10+wrappedLen:10+wrappedLen+4])
	return h, nil
}

// StreamKey is an unwrapped DEK bound to one stream, used for ranged frame
// verification without reading the whole object.
type StreamKey struct {
	aead       cipher.AEAD
	header     *StreamHeader
	aadContext []byte
}

// OpenStreamKey unwraps a stream header's DEK for ranged access.
func (f *FileCipher) OpenStreamKey(header *StreamHeader, aad []byte) (*StreamKey, error) {
	dek, err := f.unwrapDEK(header.WrappedDEK, aad)
	if err != nil {
		return nil, err
	}
	aead, err := newAEAD(dek)
	if err != nil {
		return nil, err
	}
	return &StreamKey{aead: aead, header: header, aadContext: append([]byte(nil), aad...)}, nil
}

// OpenFrame decrypts one raw frame (length prefix included) fetched at the
// offset given by FrameRange. final must state whether index is the last
// frame; a mismatch fails authentication.
func (k *StreamKey) OpenFrame(frame []byte, index uint64, final bool) ([]byte, error) {
	if len(frame) < framePrefixSize+gcmOverhead {
		return nil, ErrMalformedCiphertext
	}
	prefix := binary.BigEndian.Uint32(frame[:framePrefixSize])
	if (prefix&frameFinalBit != 0) != final {
		return nil, ErrMalformedCiphertext
	}
	ctLen := int(prefix &^ frameFinalBit)
	if framePrefixSize+ctLen != len(frame) {
		return nil, ErrMalformedCiphertext
	}

	nonce := frameNonce(k.header.NoncePrefix, index)
	aad := frameAAD(k.aadContext, index, final)
	plain, err := k.aead.Open(nil, nonce, frame[framePrefixSize:], aad)
	if err != nil {
		return nil, fmt.Errorf("kms: open frame %d: %w", index, err)
	}
	return plain, nil
}

// StreamFrameCount returns the number of frames for a plaintext size. A
// zero-byte plaintext still carries one (empty, final) frame.
func StreamFrameCount(plainSize int64, chunkSize int) int64 {
	if plainSize <= 0 {
		return 1
	}
	return (plainSize + int64(chunkSize) - 1) / int64(chunkSize)
}

// StreamCiphertextSize predicts the exact stored object size for a
// plaintext, used by post-write size verification.
func StreamCiphertextSize(plainSize int64, chunkSize int) int64 {
	frames := StreamFrameCount(plainSize, chunkSize)
	lastPlain := plainSize - (frames-1)*int64(chunkSize)
	full := int64(framePrefixSize + chunkSize + gcmOverhead)
	last := int64(framePrefixSize) + lastPlain + gcmOverhead
	return StreamHeaderSize + (frames-1)*full + last
}

// StreamFrameRange returns the byte range [offset, offset+length) of frame
// index within the stored object.
func StreamFrameRange(plainSize int64, chunkSize int, index int64) (offset, length int64) {
	frames := StreamFrameCount(plainSize, chunkSize)
	full := int64(framePrefixSize + chunkSize + gcmOverhead)
	offset = StreamHeaderSize + index*full
	if index == frames-1 {
		lastPlain := plainSize - (frames-1)*int64(chunkSize)
		length = int64(framePrefixSize) + lastPlain + gcmOverhead
	} else {
		length = full
	}
	return offset, length
}

func (f *FileCipher) newWrappedDEK(aad []byte) (dek, wrapped []byte, err error) {
	dek = make([]byte, KeySize)
	if _, err := rand.Read(dek); err != nil {
		return nil, nil, fmt.Errorf("kms: generate dek: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("kms: generate wrap nonce: %w", err)
	}
	wrapped = make([]byte, 0, wrappedDEKSize)
	wrapped = append(wrapped, nonce...)
	wrapped = f.wrap.Seal(wrapped, nonce, dek, aad)
	return dek, wrapped, nil
}

func (f *FileCipher) unwrapDEK(wrapped, aad []byte) ([]byte, error) {
	if len(wrapped) != wrappedDEKSize {
		return nil, ErrMalformedCiphertext
	}
	dek, err := f.wrap.Open(nil, wrapped[:nonceSize], wrapped[nonceSize:], aad)
	if err != nil {
		return nil, fmt.Errorf("kms: unwrap dek: %w", err)
	}
	return dek, nil
}

func frameNonce(prefix [4]byte, index uint64) []byte {
	nonce := make([]byte, nonceSize)
	copy(nonce, prefix[:])
	binary.BigEndian.PutUint64(nonce[4:], index)
	return nonce
}

func frameAAD(context []byte, index uint64, final bool) []byte {
	aad := make([]byte, 0, len(context)+9)
	aad = append(aad, context...)
	aad = binary.BigEndian.AppendUint64(aad, index)
	if final {
		aad = append(aad, 1)
	} else {
		aad = append(aad, 0)
	}
	return aad
}
