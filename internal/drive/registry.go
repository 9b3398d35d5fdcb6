// Package drive owns the process-wide SharedDrive registry: the top-level
// {DriveId -> SharedDrive} record described in spec.md §3, persisted via the
// "drives" table. Grounded on fs.Cache's cache-of-items-behind-an-RWMutex
// shape (fs/cache.go), applied at per-drive rather than per-inode
// granularity.
package drive

import (
	"encoding/json"
	"sync"

	"github.com/foldsync/core/internal/apperr"
	"github.com/foldsync/core/internal/model"
	"github.com/foldsync/core/internal/store"
)

// Registry is the process-wide drive registry.
type Registry struct {
	store *store.Store

	mu     sync.RWMutex
	drives map[model.DriveID]*model.SharedDrive
}

// New loads every persisted drive record from s.
func New(s *store.Store) (*Registry, error) {
	r := &Registry{store: s, drives: make(map[model.DriveID]*model.SharedDrive)}
	err := s.ForEach(store.BucketDrives, func(key, value []byte) error {
		var d model.SharedDrive
		if err := json.Unmarshal(value, &d); err != nil {
			return nil // skip corrupt record rather than fail startup
		}
		drive := d
		r.drives[d.ID] = &drive
		return nil
	})
	if err != nil {
		return nil, apperr.Internal(err, "loading drive registry")
	}
	return r, nil
}

// Create registers and persists a new drive.
func (r *Registry) Create(d model.SharedDrive) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return apperr.Internal(err, "encoding drive record")
	}
	if err := r.store.Put(store.BucketDrives, d.ID[:], raw); err != nil {
		return apperr.Internal(err, "persisting drive record")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	drive := d
	r.drives[d.ID] = &drive
	return nil
}

// Get returns a drive's record.
func (r *Registry) Get(id model.DriveID) (model.SharedDrive, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drives[id]
	if !ok {
		return model.SharedDrive{}, false
	}
	return *d, true
}

// All returns every registered drive.
func (r *Registry) All() []model.SharedDrive {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.SharedDrive, 0, len(r.drives))
	for _, d := range r.drives {
		out = append(out, *d)
	}
	return out
}

// UpdateStats updates a drive's total_size/file_count after (re)indexing.
func (r *Registry) UpdateStats(id model.DriveID, totalSize, fileCount int64) error {
	r.mu.Lock()
	d, ok := r.drives[id]
	if !ok {
		r.mu.Unlock()
		return apperr.NotFound("drive %s not found", id.Hex())
	}
	d.TotalSize = totalSize
	d.FileCount = fileCount
	updated := *d
	r.mu.Unlock()

	raw, err := json.Marshal(updated)
	if err != nil {
		return apperr.Internal(err, "encoding drive record")
	}
	if err := r.store.Put(store.BucketDrives, id[:], raw); err != nil {
		return apperr.Internal(err, "persisting drive record")
	}
	return nil
}

// Delete removes a drive from the registry and persistent store.
func (r *Registry) Delete(id model.DriveID) error {
	r.mu.Lock()
	delete(r.drives, id)
	r.mu.Unlock()
	if err := r.store.Delete(store.BucketDrives, id[:]); err != nil {
		return apperr.Internal(err, "deleting drive record")
	}
	return nil
}
