// Package keyvault is C4: persists per-drive wrapped keys and caches
// unwrapped master keys in memory. Grounded on fs.Cache's metadata sync.Map
// + bbolt-fallback pattern (fs/cache.go's GetID), transplanted from inode
// metadata to wrapped drive keys.
package keyvault

import (
	"crypto/rand"
	"sync"

	"github.com/foldsync/core/internal/apperr"
	"github.com/foldsync/core/internal/drivecipher"
	"github.com/foldsync/core/internal/keyexchange"
	"github.com/foldsync/core/internal/logging"
	"github.com/foldsync/core/internal/model"
	"github.com/foldsync/core/internal/store"
)

var log = logging.For("keyvault")

// KeyVault persists wrapped drive keys and caches unwrapped master keys.
type KeyVault struct {
	store *store.Store
	kx    *keyexchange.KeyExchange

	mu    sync.RWMutex
	cache map[model.DriveID]drivecipher.MasterKey
}

func New(s *store.Store, kx *keyexchange.KeyExchange) *KeyVault {
	return &KeyVault{store: s, kx: kx, cache: make(map[model.DriveID]drivecipher.MasterKey)}
}

func keyOf(drive model.DriveID) []byte { return []byte(drive.Hex()) }

// HasKey reports whether a wrapped key is persisted for drive.
func (v *KeyVault) HasKey(drive model.DriveID) (bool, error) {
	raw, err := v.store.Get(store.BucketDriveKeys, keyOf(drive))
	if err != nil {
		return false, apperr.Internal(err, "reading drive key")
	}
	return raw != nil, nil
}

// GenerateForOwner creates a fresh random master key for drive, wraps it for
// the owner's own public key (so the owner can always re-derive it from
// storage), persists the wrapped key, and caches the unwrapped key.
func (v *KeyVault) GenerateForOwner(drive model.DriveID, ownerPK [32]byte) (drivecipher.MasterKey, error) {
	var master drivecipher.MasterKey
	if _, err := rand.Read(master[:]); err != nil {
		return master, apperr.Crypto("generating master key: %v", err)
	}
	wk, err := keyexchange.WrapKeyFor(ownerPK, master[:])
	if err != nil {
		return master, err
	}
	if err := v.store.Put(store.BucketDriveKeys, keyOf(drive), wk.Serialize()); err != nil {
		return master, apperr.Internal(err, "persisting drive key")
	}
	v.mu.Lock()
	v.cache[drive] = master
	v.mu.Unlock()
	return master, nil
}

// Import persists a WrappedKey received from another member (e.g. via
// invite acceptance) without unwrapping it yet.
func (v *KeyVault) Import(drive model.DriveID, wk *keyexchange.WrappedKey) error {
	if err := v.store.Put(store.BucketDriveKeys, keyOf(drive), wk.Serialize()); err != nil {
		return apperr.Internal(err, "persisting imported drive key")
	}
	return nil
}

// Unwrap returns the drive's master key, unwrapping and caching it on first
// access.
func (v *KeyVault) Unwrap(drive model.DriveID) (drivecipher.MasterKey, error) {
	v.mu.RLock()
	if m, ok := v.cache[drive]; ok {
		v.mu.RUnlock()
		return m, nil
	}
	v.mu.RUnlock()

	raw, err := v.store.Get(store.BucketDriveKeys, keyOf(drive))
	if err != nil {
		return drivecipher.MasterKey{}, apperr.Internal(err, "reading drive key")
	}
	if raw == nil {
		return drivecipher.MasterKey{}, apperr.NotFound("no key for drive %s", drive.Hex())
	}
	wk, err := keyexchange.DeserializeWrappedKey(raw)
	if err != nil {
		return drivecipher.MasterKey{}, err
	}
	secret, err := v.kx.UnwrapKey(wk)
	if err != nil {
		return drivecipher.MasterKey{}, err
	}
	var master drivecipher.MasterKey
	copy(master[:], secret)

	v.mu.Lock()
	v.cache[drive] = master
	v.mu.Unlock()
	return master, nil
}

// RewrapFor re-wraps the drive's (already-unwrapped) master key for a new
// member's public key, returning the new WrappedKey for distribution (e.g.
// embedded in an accepted invite response). Does not persist it under the
// local vault's own key — the recipient persists it on their side.
func (v *KeyVault) RewrapFor(drive model.DriveID, memberPK [32]byte) (*keyexchange.WrappedKey, error) {
	master, err := v.Unwrap(drive)
	if err != nil {
		return nil, err
	}
	return keyexchange.WrapKeyFor(memberPK, master[:])
}

// ClearCache drops every unwrapped master key from memory — a security
// fence used on app lock; subsequent access re-unwraps from storage.
func (v *KeyVault) ClearCache() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for id, m := range v.cache {
		m.Zero()
		v.cache[id] = m
		delete(v.cache, id)
	}
	log.Info().Msg("cleared key vault cache")
}
