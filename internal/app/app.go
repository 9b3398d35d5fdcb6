// Package app wires every component into one running process and owns the
// startup/shutdown order from the design's process-lifecycle section:
// stop the Janitor, stop per-drive watchers and gossip subscriptions, shut
// the event bus down, clear the key vault's in-memory cache, then close
// the transport and the store. Grounded on fs.NewFilesystem's constructor
// (load identity/config, build caches, wire goroutines) and main.go's
// teardown ordering.
package app

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"

	"github.com/foldsync/core/internal/access"
	"github.com/foldsync/core/internal/audit"
	"github.com/foldsync/core/internal/config"
	"github.com/foldsync/core/internal/conflict"
	"github.com/foldsync/core/internal/drive"
	"github.com/foldsync/core/internal/drivecipher"
	"github.com/foldsync/core/internal/eventbus"
	"github.com/foldsync/core/internal/identity"
	"github.com/foldsync/core/internal/invite"
	"github.com/foldsync/core/internal/janitor"
	"github.com/foldsync/core/internal/keyexchange"
	"github.com/foldsync/core/internal/keyvault"
	"github.com/foldsync/core/internal/lock"
	"github.com/foldsync/core/internal/logging"
	"github.com/foldsync/core/internal/metadatadoc"
	"github.com/foldsync/core/internal/model"
	"github.com/foldsync/core/internal/presence"
	"github.com/foldsync/core/internal/ratelimit"
	"github.com/foldsync/core/internal/store"
	"github.com/foldsync/core/internal/syncengine"
	"github.com/foldsync/core/internal/transfer"
	"github.com/foldsync/core/internal/transport"
)

var log = logging.For("app")

// ACLRegistry owns one ACL per drive and is what the event bus consults
// before delivering a gossip message.
type ACLRegistry struct {
	mu   sync.RWMutex
	acls map[model.DriveID]*access.ACL
}

func NewACLRegistry() *ACLRegistry {
	return &ACLRegistry{acls: make(map[model.DriveID]*access.ACL)}
}

// For returns (creating if absent, owned by owner) the ACL for drive.
func (r *ACLRegistry) For(drive model.DriveID, owner model.NodeID) *access.ACL {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.acls[drive]
	if !ok {
		a = access.New(owner)
		r.acls[drive] = a
	}
	return a
}

// Get returns the ACL for drive if one already exists.
func (r *ACLRegistry) Get(drive model.DriveID) (*access.ACL, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.acls[drive]
	return a, ok
}

// CleanupExpired sweeps every drive's ACL, satisfying janitor.ACLProvider.
func (r *ACLRegistry) CleanupExpired() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, a := range r.acls {
		total += a.CleanupExpired()
	}
	return total
}

// checkRead implements transport.AclChecker: sender must hold at least Read
// on the drive. Drives with no registered ACL (not yet joined/created
// locally) reject everyone, fail closed.
func (r *ACLRegistry) checkRead(driveHex, senderHex string) bool {
	drive, err := model.DriveIDFromHex(driveHex)
	if err != nil {
		return false
	}
	sender, err := model.NodeIDFromHex(senderHex)
	if err != nil {
		return false
	}
	acl, ok := r.Get(drive)
	if !ok {
		return false
	}
	return acl.Check(sender, "", model.PermissionRead)
}

// App is one running foldsyncd process.
type App struct {
	Config config.Config

	Store       *store.Store
	Identity    *identity.Identity
	KeyExchange *keyexchange.KeyExchange
	KeyVault    *keyvault.KeyVault
	Ciphers     *drivecipher.Manager

	Drives    *drive.Registry
	ACLs      *ACLRegistry
	Docs      *metadatadoc.Registry
	Locks     *lock.Registry
	Conflicts *conflict.Registry
	Presence  *presence.Registry
	Limiter   *ratelimit.Limiter
	Audit     *audit.Log

	Transport transport.Transport
	Bus       *eventbus.Bus

	Blobs     *transfer.Store
	Transfers *transfer.Registry

	Sync         *syncengine.Engine
	Janitor      *janitor.Janitor
	InviteTracker *invite.Tracker
}

var tokenTrackerKey = []byte("used_token_ids")

func loadInviteTracker(s *store.Store) (*invite.Tracker, error) {
	raw, err := s.Get(store.BucketTokenTracker, tokenTrackerKey)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return invite.NewTracker(), nil
	}
	var ids [][16]byte
	if err := json.Unmarshal(raw, &ids); err != nil {
		return invite.NewTracker(), nil
	}
	return invite.LoadTracker(ids), nil
}

// RegisterDriveCipher unwraps drive's master key from the key vault and
// registers it with the cipher manager, so TransferService can encrypt and
// decrypt that drive's content. Call after a drive key becomes available
// locally (owner creation, or once a joined drive's wrapped key has been
// imported).
func (a *App) RegisterDriveCipher(driveID model.DriveID) error {
	master, err := a.KeyVault.Unwrap(driveID)
	if err != nil {
		return err
	}
	a.Ciphers.Register(driveID, master)
	return nil
}

// PersistInviteTracker saves the set of consumed single-use token ids.
// Call after any successful invite.Accept of a single-use token.
func (a *App) PersistInviteTracker() error {
	raw, err := json.Marshal(a.InviteTracker.UsedIDs())
	if err != nil {
		return err
	}
	return a.Store.Put(store.BucketTokenTracker, tokenTrackerKey, raw)
}

// New opens the store and wires every component, ready for Start.
func New(cfg config.Config) (*App, error) {
	s, err := store.Open(filepath.Join(cfg.DataDir, "foldsync.db"))
	if err != nil {
		return nil, err
	}

	id, err := identity.Load(s)
	if err != nil {
		s.Close()
		return nil, err
	}
	kx, err := keyexchange.Load(s)
	if err != nil {
		s.Close()
		return nil, err
	}
	drives, err := drive.New(s)
	if err != nil {
		s.Close()
		return nil, err
	}
	kv := keyvault.New(s, kx)
	ciphers := drivecipher.NewManager(0)
	blobs, err := transfer.NewStore(filepath.Join(cfg.DataDir, "blobs"), ciphers)
	if err != nil {
		s.Close()
		return nil, err
	}
	tracker, err := loadInviteTracker(s)
	if err != nil {
		s.Close()
		return nil, err
	}

	for _, d := range drives.All() {
		has, err := kv.HasKey(d.ID)
		if err != nil {
			s.Close()
			return nil, err
		}
		if !has {
			continue
		}
		master, err := kv.Unwrap(d.ID)
		if err != nil {
			s.Close()
			return nil, err
		}
		ciphers.Register(d.ID, master)
	}

	acls := NewACLRegistry()
	tp := transport.NewInMemory()
	bus := eventbus.New(id, tp, acls.checkRead)
	docs := metadatadoc.NewRegistry()
	locks := lock.NewRegistry()
	conflicts := conflict.NewRegistry()
	pres := presence.NewRegistry()
	limiter := ratelimit.New()
	auditLog := audit.New(s)
	transfers := transfer.NewRegistry(blobs)

	eng := syncengine.New(id, bus, docs, locks, conflicts, pres)
	jan := janitor.New(locks, pres, conflicts, []janitor.ACLProvider{acls}).
		WithInterval(cfg.JanitorInterval)

	log.Info().Str("node", id.NodeID().Short()).Msg("foldsyncd wired")

	return &App{
		Config: cfg, Store: s, Identity: id, KeyExchange: kx, KeyVault: kv, Ciphers: ciphers,
		Drives: drives, ACLs: acls, Docs: docs, Locks: locks, Conflicts: conflicts,
		Presence: pres, Limiter: limiter, Audit: auditLog,
		Transport: tp, Bus: bus, Blobs: blobs, Transfers: transfers,
		Sync: eng, Janitor: jan, InviteTracker: tracker,
	}, nil
}

// Start begins background processing (currently just the Janitor; each
// drive's watcher/gossip subscription starts individually via Sync).
func (a *App) Start(ctx context.Context) {
	a.Janitor.Start(ctx)
}

// Shutdown tears everything down in the order the design requires.
func (a *App) Shutdown(ctx context.Context) error {
	a.Janitor.Stop()

	for _, d := range a.Drives.All() {
		a.Sync.StopDrive(d.ID)
	}

	if err := a.Bus.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("event bus shutdown reported an error")
	}

	a.KeyVault.ClearCache()
	a.Ciphers.Clear()

	if err := a.Transport.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("transport shutdown reported an error")
	}

	return a.Store.Close()
}
