package drivecipher

import (
	"sync"

	"github.com/foldsync/core/internal/model"
)

// Manager fronts per-drive Cipher instances with a bounded cache of derived
// file keys, avoiding a fresh BLAKE3 derivation on every chunk of a large
// file. Grounded on original_source's crypto/encryption_manager.rs, which
// wraps the same encryption primitives with a derived-key cache; the pack
// has no LRU library to ground a fancier eviction policy on (see DESIGN.md),
// so eviction here is simple: once maxEntries keys are cached, the whole
// cache is dropped before the next key is inserted.
type Manager struct {
	mu         sync.Mutex
	ciphers    map[model.DriveID]*Cipher
	fileKeys   map[fileKeyCacheKey][]byte
	maxEntries int
}

type fileKeyCacheKey struct {
	drive model.DriveID
	path  string
}

// NewManager creates a cache holding at most maxEntries derived file keys.
func NewManager(maxEntries int) *Manager {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	return &Manager{
		ciphers:    make(map[model.DriveID]*Cipher),
		fileKeys:   make(map[fileKeyCacheKey][]byte),
		maxEntries: maxEntries,
	}
}

// Register associates a drive with its unwrapped master key. Call once the
// KeyVault has unwrapped the drive's key.
func (m *Manager) Register(drive model.DriveID, master MasterKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ciphers[drive] = New(master)
}

// Forget drops a drive's cipher and any cached file keys for it, used on
// membership revocation or KeyVault.clear_cache.
func (m *Manager) Forget(drive model.DriveID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ciphers, drive)
	for k := range m.fileKeys {
		if k.drive == drive {
			delete(m.fileKeys, k)
		}
	}
}

// FileKey returns the cached (or freshly derived and cached) file key for
// (drive, path).
func (m *Manager) FileKey(drive model.DriveID, path string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.ciphers[drive]
	if !ok {
		return nil, false
	}
	key := fileKeyCacheKey{drive: drive, path: path}
	if fk, ok := m.fileKeys[key]; ok {
		return fk, true
	}
	if len(m.fileKeys) >= m.maxEntries {
		m.fileKeys = make(map[fileKeyCacheKey][]byte)
	}
	fk := c.FileKey(path)
	m.fileKeys[key] = fk
	return fk, true
}

// Cipher returns the registered Cipher for a drive, if any.
func (m *Manager) Cipher(drive model.DriveID) (*Cipher, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.ciphers[drive]
	return c, ok
}

// Clear drops every registered cipher and cached file key, used on app lock
// alongside KeyVault.ClearCache.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.ciphers {
		c.master.Zero()
		delete(m.ciphers, id)
	}
	m.fileKeys = make(map[fileKeyCacheKey][]byte)
}
