// Package syncengine is C15: the orchestrator that wires the local file
// watcher, the metadata document, the gossip event bus, and the lock,
// conflict and presence managers together. Grounded on
// original_source/src-tauri/src/network/sync.rs's SyncEngine (init_drive,
// join_drive, on_local_change, on_remote_event, get_status) and on the
// teacher's DeltaLoop (fs/delta.go) as the model for a long-running
// "watch, translate, apply" goroutine pair.
package syncengine

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/foldsync/core/internal/conflict"
	"github.com/foldsync/core/internal/eventbus"
	"github.com/foldsync/core/internal/identity"
	"github.com/foldsync/core/internal/lock"
	"github.com/foldsync/core/internal/logging"
	"github.com/foldsync/core/internal/metadatadoc"
	"github.com/foldsync/core/internal/model"
	"github.com/foldsync/core/internal/presence"
	"github.com/foldsync/core/internal/watcher"
)

var log = logging.For("syncengine")

// Status reports whether a drive is actively syncing.
type Status struct {
	IsSyncing bool
	LastSync  *time.Time
}

type driveState struct {
	watcher    *watcher.Watcher
	unsubscribe func()
	cancel     context.CancelFunc
	lastSync   *time.Time
}

// Engine coordinates everything a running drive needs: a local watcher
// feeding the event bus, and an event-bus subscription feeding the local
// metadata doc, lock table, conflict registry and presence feed.
type Engine struct {
	self      *identity.Identity
	bus       *eventbus.Bus
	docs      *metadatadoc.Registry
	locks     *lock.Registry
	conflicts *conflict.Registry
	presence  *presence.Registry

	mu     sync.Mutex
	drives map[model.DriveID]*driveState
}

func New(self *identity.Identity, bus *eventbus.Bus, docs *metadatadoc.Registry, locks *lock.Registry, conflicts *conflict.Registry, presence *presence.Registry) *Engine {
	return &Engine{
		self: self, bus: bus, docs: docs, locks: locks, conflicts: conflicts, presence: presence,
		drives: make(map[model.DriveID]*driveState),
	}
}

// InitDrive starts syncing a newly created, owned drive: watch its local
// root for changes and subscribe to its gossip topic.
func (e *Engine) InitDrive(ctx context.Context, drive model.SharedDrive) error {
	return e.startDrive(ctx, drive.ID, drive.LocalRoot)
}

// JoinDrive starts syncing a drive this node has been invited into.
func (e *Engine) JoinDrive(ctx context.Context, driveID model.DriveID, localRoot string) error {
	return e.startDrive(ctx, driveID, localRoot)
}

func (e *Engine) startDrive(ctx context.Context, driveID model.DriveID, localRoot string) error {
	w, err := watcher.New(localRoot)
	if err != nil {
		return err
	}

	deliveries, unsubscribe, err := e.bus.Subscribe(ctx, driveID)
	if err != nil {
		w.Close()
		return err
	}

	driveCtx, cancel := context.WithCancel(ctx)
	ds := &driveState{watcher: w, unsubscribe: unsubscribe, cancel: cancel}

	e.mu.Lock()
	e.drives[driveID] = ds
	e.mu.Unlock()

	go e.pumpLocal(driveCtx, driveID, w.Events())
	go e.pumpRemote(driveCtx, driveID, deliveries)

	log.Info().Str("drive", driveID.Hex()).Str("root", localRoot).Msg("sync started for drive")
	return nil
}

// StopDrive halts watching and gossip for a drive.
func (e *Engine) StopDrive(driveID model.DriveID) {
	e.mu.Lock()
	ds, ok := e.drives[driveID]
	if ok {
		delete(e.drives, driveID)
	}
	e.mu.Unlock()
	if !ok {
		return
	}
	ds.cancel()
	ds.unsubscribe()
	ds.watcher.Close()
	log.Info().Str("drive", driveID.Hex()).Msg("sync stopped for drive")
}

// Status reports whether a drive is actively syncing and, if so, when it
// last applied a local or remote change.
func (e *Engine) Status(driveID model.DriveID) Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	ds, ok := e.drives[driveID]
	if !ok {
		return Status{}
	}
	return Status{IsSyncing: true, LastSync: ds.lastSync}
}

func (e *Engine) touch(driveID model.DriveID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ds, ok := e.drives[driveID]; ok {
		now := time.Now()
		ds.lastSync = &now
	}
}

func (e *Engine) pumpLocal(ctx context.Context, drive model.DriveID, events <-chan watcher.ChangeEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			e.onLocalChange(ctx, drive, ev)
		}
	}
}

func (e *Engine) pumpRemote(ctx context.Context, drive model.DriveID, deliveries <-chan eventbus.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			e.onRemoteEvent(drive, d)
		}
	}
}

// onLocalChange applies a watcher event to the drive's metadata doc and
// broadcasts it over gossip.
func (e *Engine) onLocalChange(ctx context.Context, drive model.DriveID, ev watcher.ChangeEvent) {
	doc := e.docs.For(drive)

	switch ev.Kind {
	case watcher.EventFileChanged:
		now := time.Now()
		existing, _ := doc.Get(ev.Path)
		meta := doc.Set(model.FileMetadata{
			Name:         baseName(ev.Path),
			RelativePath: ev.Path,
			Size:         ev.Size,
			ModifiedAt:   now,
			ContentHash:  ev.Hash,
		})
		payload := model.FileChangedPayload{
			Path: ev.Path, ContentHash: ev.Hash, Size: ev.Size,
			BaseHash: existing.ContentHash, ModifiedBy: e.self.NodeID(),
			ModifiedAtMs: now.UnixMilli(),
		}
		if err := e.bus.Publish(ctx, drive, model.EventFileChanged, payload); err != nil {
			log.Warn().Err(err).Str("path", ev.Path).Msg("failed to broadcast local change")
			return
		}
		_ = meta
	case watcher.EventFileDeleted:
		doc.Delete(ev.Path)
		payload := model.FileDeletedPayload{Path: ev.Path}
		if err := e.bus.Publish(ctx, drive, model.EventFileDeleted, payload); err != nil {
			log.Warn().Err(err).Str("path", ev.Path).Msg("failed to broadcast local deletion")
			return
		}
	}

	e.touch(drive)
	e.presence.For(drive).RecordActivity(presence.ActivityFileModified, e.self.NodeID(), ev.Path, "")
}

// onRemoteEvent applies an event received from another peer: updates the
// metadata doc (detecting conflicts against the local entry), the lock
// table, or presence, depending on kind.
func (e *Engine) onRemoteEvent(drive model.DriveID, d eventbus.Delivery) {
	doc := e.docs.For(drive)

	switch d.Kind {
	case model.EventFileChanged:
		var payload model.FileChangedPayload
		if err := json.Unmarshal(d.Data, &payload); err != nil {
			log.Warn().Err(err).Msg("malformed FileChanged event")
			return
		}
		remoteModifiedAt := time.UnixMilli(payload.ModifiedAtMs)
		existing, hadLocal := doc.Get(payload.Path)
		if hadLocal && existing.ContentHash != "" && existing.ContentHash != payload.ContentHash {
			local := conflict.Version{Hash: existing.ContentHash, Size: existing.Size, ModifiedAt: existing.ModifiedAt}
			remote := conflict.Version{Hash: payload.ContentHash, Size: payload.Size, ModifiedAt: remoteModifiedAt, ModifiedBy: payload.ModifiedBy}
			if fc := e.conflicts.For(drive).Detect(payload.Path, local, remote, payload.BaseHash); fc != nil {
				e.presence.For(drive).RecordActivity(presence.ActivityConflict, payload.ModifiedBy, payload.Path, "")
				log.Info().Str("path", payload.Path).Msg("conflict detected applying remote change")
				return
			}
		}
		doc.Set(model.FileMetadata{
			Name: baseName(payload.Path), RelativePath: payload.Path,
			Size: payload.Size, ModifiedAt: remoteModifiedAt, ContentHash: payload.ContentHash,
		})
		e.presence.For(drive).RecordActivity(presence.ActivityFileModified, payload.ModifiedBy, payload.Path, "")

	case model.EventFileDeleted:
		var payload model.FileDeletedPayload
		if err := json.Unmarshal(d.Data, &payload); err != nil {
			log.Warn().Err(err).Msg("malformed FileDeleted event")
			return
		}
		doc.Delete(payload.Path)
		e.presence.For(drive).RecordActivity(presence.ActivityFileDeleted, d.Sender, payload.Path, "")

	case model.EventLockState:
		var payload model.LockStatePayload
		if err := json.Unmarshal(d.Data, &payload); err != nil {
			log.Warn().Err(err).Msg("malformed LockState event")
			return
		}
		mgr := e.locks.For(drive)
		if payload.Released {
			mgr.RemoteRelease(payload.Path, payload.Holder)
		} else {
			mgr.RemoteApply(lock.FileLock{
				Path: payload.Path, Holder: payload.Holder, Type: payload.LockType,
				AcquiredAt: time.UnixMilli(payload.AcquiredAt), ExpiresAt: time.UnixMilli(payload.ExpiresAt),
				Reason: payload.Reason,
			})
			e.presence.For(drive).RecordActivity(presence.ActivityLockAcquired, payload.Holder, payload.Path, "")
		}

	case model.EventPresence:
		var payload model.PresencePayload
		if err := json.Unmarshal(d.Data, &payload); err != nil {
			log.Warn().Err(err).Msg("malformed Presence event")
			return
		}
		pm := e.presence.For(drive)
		switch payload.Status {
		case model.StatusOffline:
			pm.SetOffline(payload.User)
		default:
			pm.Heartbeat(payload.User)
			if payload.CurrentActivity != "" {
				pm.SetActivity(payload.User, payload.CurrentActivity)
			}
		}
	}

	e.touch(drive)
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
