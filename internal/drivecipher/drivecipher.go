// Package drivecipher is C3: per-drive master key, per-file key derivation,
// and the streaming/one-shot AEAD framings used to encrypt file content and
// metadata. Grounded on original_source/src-tauri/src/crypto/encryption.rs.
package drivecipher

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/foldsync/core/internal/apperr"
	"github.com/foldsync/core/internal/kdf"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	version byte = 1

	labelFileKey     = "drive:file-key:"
	labelMetadataKey = "drive:metadata-key"
	labelNonce       = "drive:nonce:"

	// MaxChunkSize is the maximum plaintext size of one streaming chunk.
	MaxChunkSize = 64 * 1024

	nonceSize   = chacha20poly1305.NonceSize
	reservedLen = 8

	// HeaderLen is the fixed size of the stream header returned by
	// StreamEncrypter.Header: [version=1 | reserved[8]].
	HeaderLen = 1 + reservedLen
)

// MasterKey is a 32-byte per-drive secret. It never leaves process memory
// unwrapped and is zeroized when no longer needed.
type MasterKey [32]byte

// Zero overwrites the key's bytes; call when a MasterKey is no longer
// needed (cache eviction, app lock).
func (m *MasterKey) Zero() {
	for i := range m {
		m[i] = 0
	}
}

// Cipher derives and applies per-drive keys for one drive's master key.
type Cipher struct {
	master MasterKey
}

// New wraps a master key for use by the cipher operations below.
func New(master MasterKey) *Cipher {
	return &Cipher{master: master}
}

// FileKey derives the per-file content-encryption key for path.
func (c *Cipher) FileKey(path string) []byte {
	return kdf.DeriveKey(labelFileKey+path, c.master[:], chacha20poly1305.KeySize)
}

// MetadataKey derives the drive's metadata-encryption key.
func (c *Cipher) MetadataKey() []byte {
	return kdf.DeriveKey(labelMetadataKey, c.master[:], chacha20poly1305.KeySize)
}

func chunkNonce(fileKey []byte, path string, idx uint64) []byte {
	label := fmt.Sprintf("%s%s:%d", labelNonce, path, idx)
	return kdf.DeriveKey(label, fileKey, nonceSize)
}

// EncryptOneShot encrypts a small payload (metadata, small files) as
// [version=1 | nonce_random[12] | AEAD_ciphertext_and_tag].
func (c *Cipher) EncryptOneShot(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, apperr.Crypto("constructing AEAD: %v", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, apperr.Crypto("generating nonce: %v", err)
	}
	ct := aead.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, 1+nonceSize+len(ct))
	out = append(out, version)
	out = append(out, nonce...)
	out = append(out, ct...)
	return out, nil
}

// DecryptOneShot reverses EncryptOneShot.
func (c *Cipher) DecryptOneShot(key, payload []byte) ([]byte, error) {
	if len(payload) < 1+nonceSize {
		return nil, apperr.Crypto("payload too short")
	}
	if payload[0] != version {
		return nil, apperr.Crypto("unsupported version %d", payload[0])
	}
	nonce := payload[1 : 1+nonceSize]
	ct := payload[1+nonceSize:]

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, apperr.Crypto("constructing AEAD: %v", err)
	}
	pt, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, apperr.Crypto("decryption failed")
	}
	return pt, nil
}

// EncryptPath encrypts a relative path using the metadata key and a random
// nonce, returning a hex string suitable for storage/wire transmission.
func (c *Cipher) EncryptPath(path string) (string, error) {
	ct, err := c.EncryptOneShot(c.MetadataKey(), []byte(path))
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(ct), nil
}

// DecryptPath reverses EncryptPath.
func (c *Cipher) DecryptPath(h string) (string, error) {
	ct, err := hex.DecodeString(h)
	if err != nil {
		return "", apperr.Crypto("invalid hex encoding")
	}
	pt, err := c.DecryptOneShot(c.MetadataKey(), ct)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// StreamEncrypter encrypts a file's content chunk by chunk using
// deterministic nonces keyed by path+index, so chunks cannot be silently
// reordered or truncated.
type StreamEncrypter struct {
	fileKey []byte
	path    string
	idx     uint64
}

// NewStreamEncrypter begins a streaming encryption session for path. Call
// Header once, then WriteChunk per ≤64KiB plaintext chunk, in order.
func (c *Cipher) NewStreamEncrypter(path string) *StreamEncrypter {
	return &StreamEncrypter{fileKey: c.FileKey(path), path: path}
}

// Header returns the stream's fixed [version=1 | reserved[8]] prefix. The
// reserved field is never populated and must be preserved as zeros.
func (*StreamEncrypter) Header() []byte {
	out := make([]byte, 1+reservedLen)
	out[0] = version
	return out
}

// WriteChunk encrypts one plaintext chunk (≤ MaxChunkSize) and returns the
// wire-form [nonce_derived[12] | AEAD_ciphertext_and_tag].
func (e *StreamEncrypter) WriteChunk(plaintext []byte) ([]byte, error) {
	if len(plaintext) > MaxChunkSize {
		return nil, apperr.Crypto("chunk exceeds max size")
	}
	nonce := chunkNonce(e.fileKey, e.path, e.idx)
	aead, err := chacha20poly1305.New(e.fileKey)
	if err != nil {
		return nil, apperr.Crypto("constructing AEAD: %v", err)
	}
	ct := aead.Seal(nil, nonce, plaintext, nil)
	e.idx++

	out := make([]byte, 0, nonceSize+len(ct))
	out = append(out, nonce...)
	out = append(out, ct...)
	return out, nil
}

// StreamDecrypter decrypts chunks produced by StreamEncrypter, verifying the
// expected per-index nonce to detect tampering or reordering.
type StreamDecrypter struct {
	fileKey []byte
	path    string
	idx     uint64
}

// NewStreamDecrypter begins a streaming decryption session. header must be
// the bytes returned by StreamEncrypter.Header.
func (c *Cipher) NewStreamDecrypter(path string, header []byte) (*StreamDecrypter, error) {
	if len(header) != 1+reservedLen {
		return nil, apperr.Crypto("invalid stream header length")
	}
	if header[0] != version {
		return nil, apperr.Crypto("unsupported version %d", header[0])
	}
	return &StreamDecrypter{fileKey: c.FileKey(path), path: path}, nil
}

// ReadChunk decrypts the next chunk in sequence. Returns a crypto error if
// the chunk's nonce does not match the expected index-derived nonce
// ("tampering or reordering") or if AEAD verification fails.
func (d *StreamDecrypter) ReadChunk(wire []byte) ([]byte, error) {
	if len(wire) < nonceSize {
		return nil, apperr.Crypto("chunk too short")
	}
	gotNonce := wire[:nonceSize]
	ct := wire[nonceSize:]

	expected := chunkNonce(d.fileKey, d.path, d.idx)
	if !bytesEqual(gotNonce, expected) {
		return nil, apperr.Crypto("nonce mismatch — possible data corruption or tampering")
	}

	aead, err := chacha20poly1305.New(d.fileKey)
	if err != nil {
		return nil, apperr.Crypto("constructing AEAD: %v", err)
	}
	pt, err := aead.Open(nil, gotNonce, ct, nil)
	if err != nil {
		return nil, apperr.Crypto("decryption failed")
	}
	d.idx++
	return pt, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
