// Package identity is C1: the long-term Ed25519 signing identity every node
// uses to sign gossip events, invites, and locks. Loaded-or-generated on
// first boot and persisted, the way fs.NewCache loads-or-fetches the root
// item and caches it for the process lifetime.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"

	"github.com/foldsync/core/internal/apperr"
	"github.com/foldsync/core/internal/logging"
	"github.com/foldsync/core/internal/model"
	"github.com/foldsync/core/internal/store"
)

var log = logging.For("identity")

// Identity holds the process's long-term signing keypair.
type Identity struct {
	public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// Load reads the persisted signing key from s, generating and persisting a
// fresh one on first boot.
func Load(s *store.Store) (*Identity, error) {
	raw, err := s.Get(store.BucketIdentity, []byte("secret_key"))
	if err != nil {
		return nil, apperr.Internal(err, "reading identity key")
	}
	if raw != nil {
		if len(raw) != ed25519.SeedSize {
			return nil, apperr.Crypto("persisted identity key has unexpected length")
		}
		priv := ed25519.NewKeyFromSeed(raw)
		return &Identity{public: priv.Public().(ed25519.PublicKey), private: priv}, nil
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, apperr.Crypto("generating identity key: %v", err)
	}
	seed := priv.Seed()
	if err := s.Put(store.BucketIdentity, []byte("secret_key"), seed); err != nil {
		return nil, apperr.Internal(err, "persisting identity key")
	}
	log.Info().Msg("generated new node identity")
	return &Identity{public: pub, private: priv}, nil
}

// NodeID returns this identity's 32-byte node id.
func (id *Identity) NodeID() model.NodeID {
	var n model.NodeID
	copy(n[:], id.public)
	return n
}

// VerifyingKey returns the raw Ed25519 public key.
func (id *Identity) VerifyingKey() ed25519.PublicKey { return id.public }

// SigningKey returns the raw Ed25519 private key, for callers (like the
// invite builder) that need to sign with the standard library's API
// directly rather than through Sign.
func (id *Identity) SigningKey() ed25519.PrivateKey { return id.private }

// Sign produces a 64-byte Ed25519 signature over bytes.
func (id *Identity) Sign(b []byte) []byte {
	return ed25519.Sign(id.private, b)
}

// Verify checks a signature made by the node identified by signer.
func Verify(signer model.NodeID, message, sig []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(signer[:]), message, sig)
}
