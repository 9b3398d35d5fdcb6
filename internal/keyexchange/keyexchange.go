// Package keyexchange is C2: the long-lived X25519 keypair used to wrap and
// unwrap drive master keys for specific recipients via ephemeral ECDH, per
// the design's §4.1.
package keyexchange

import (
	"crypto/rand"

	"github.com/foldsync/core/internal/apperr"
	"github.com/foldsync/core/internal/kdf"
	"github.com/foldsync/core/internal/store"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
)

const wrapKDFLabel = "drive:key-wrap"

// WrappedKey is a self-contained capability to recover a 32-byte secret
// exactly once, for the holder of the matching recipient private key.
type WrappedKey struct {
	EphemeralPublic [32]byte
	Nonce           [12]byte
	Ciphertext      []byte // includes the 16-byte Poly1305 tag
}

// KeyExchange holds the process's long-term X25519 keypair.
type KeyExchange struct {
	public  [32]byte
	private [32]byte
}

// Load reads the persisted X25519 private key, generating and persisting a
// fresh one on first boot.
func Load(s *store.Store) (*KeyExchange, error) {
	raw, err := s.Get(store.BucketKeyExchange, []byte("secret_key"))
	if err != nil {
		return nil, apperr.Internal(err, "reading key-exchange key")
	}
	if raw != nil {
		if len(raw) != 32 {
			return nil, apperr.Crypto("persisted key-exchange key has unexpected length")
		}
		var priv [32]byte
		copy(priv[:], raw)
		pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
		if err != nil {
			return nil, apperr.Crypto("deriving public key: %v", err)
		}
		kx := &KeyExchange{}
		copy(kx.private[:], priv[:])
		copy(kx.public[:], pub)
		return kx, nil
	}

	var priv [32]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return nil, apperr.Crypto("generating key-exchange key: %v", err)
	}
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, apperr.Crypto("deriving public key: %v", err)
	}
	if err := s.Put(store.BucketKeyExchange, []byte("secret_key"), priv[:]); err != nil {
		return nil, apperr.Internal(err, "persisting key-exchange key")
	}
	kx := &KeyExchange{}
	copy(kx.private[:], priv[:])
	copy(kx.public[:], pub)
	return kx, nil
}

// PublicKey returns this node's long-term X25519 public key.
func (kx *KeyExchange) PublicKey() [32]byte { return kx.public }

// WrapKeyFor wraps secret (exactly 32 bytes) for recipientPK using a fresh
// ephemeral X25519 keypair and ChaCha20-Poly1305.
func WrapKeyFor(recipientPK [32]byte, secret []byte) (*WrappedKey, error) {
	if len(secret) != 32 {
		return nil, apperr.Crypto("secret must be 32 bytes")
	}
	var ephPriv [32]byte
	if _, err := rand.Read(ephPriv[:]); err != nil {
		return nil, apperr.Crypto("generating ephemeral key: %v", err)
	}
	ephPub, err := curve25519.X25519(ephPriv[:], curve25519.Basepoint)
	if err != nil {
		return nil, apperr.Crypto("deriving ephemeral public key: %v", err)
	}
	shared, err := curve25519.X25519(ephPriv[:], recipientPK[:])
	if err != nil {
		return nil, apperr.Crypto("performing ECDH: %v", err)
	}
	wrapKey := kdf.DeriveKey(wrapKDFLabel, shared, chacha20poly1305.KeySize)

	aead, err := chacha20poly1305.New(wrapKey)
	if err != nil {
		return nil, apperr.Crypto("constructing AEAD: %v", err)
	}
	var nonce [12]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, apperr.Crypto("generating nonce: %v", err)
	}
	ct := aead.Seal(nil, nonce[:], secret, nil)

	wk := &WrappedKey{Ciphertext: ct}
	copy(wk.EphemeralPublic[:], ephPub)
	copy(wk.Nonce[:], nonce[:])
	return wk, nil
}

// UnwrapKey recovers the wrapped secret using this node's private key.
// Fails if the recovered plaintext is not exactly 32 bytes.
func (kx *KeyExchange) UnwrapKey(wk *WrappedKey) ([]byte, error) {
	shared, err := curve25519.X25519(kx.private[:], wk.EphemeralPublic[:])
	if err != nil {
		return nil, apperr.Crypto("performing ECDH: %v", err)
	}
	wrapKey := kdf.DeriveKey(wrapKDFLabel, shared, chacha20poly1305.KeySize)

	aead, err := chacha20poly1305.New(wrapKey)
	if err != nil {
		return nil, apperr.Crypto("constructing AEAD: %v", err)
	}
	secret, err := aead.Open(nil, wk.Nonce[:], wk.Ciphertext, nil)
	if err != nil {
		return nil, apperr.Crypto("unwrap failed: wrong key or corrupted data")
	}
	if len(secret) != 32 {
		return nil, apperr.Crypto("unwrapped secret has unexpected length")
	}
	return secret, nil
}

// Serialize encodes a WrappedKey as [ephemeral_pk_32][nonce_12][ciphertext+tag],
// the wire format from the design's external interfaces section.
func (wk *WrappedKey) Serialize() []byte {
	out := make([]byte, 0, 32+12+len(wk.Ciphertext))
	out = append(out, wk.EphemeralPublic[:]...)
	out = append(out, wk.Nonce[:]...)
	out = append(out, wk.Ciphertext...)
	return out
}

// DeserializeWrappedKey parses the wire format produced by Serialize.
func DeserializeWrappedKey(b []byte) (*WrappedKey, error) {
	if len(b) < 32+12 {
		return nil, apperr.Crypto("wrapped key too short")
	}
	wk := &WrappedKey{}
	copy(wk.EphemeralPublic[:], b[:32])
	copy(wk.Nonce[:], b[32:44])
	wk.Ciphertext = append([]byte(nil), b[44:]...)
	return wk, nil
}
