// Package metadatadoc is C10: a per-drive path→FileMetadata map with a
// monotonically increasing version counter. This is the CRDT substrate the
// design calls for (spec.md §4.9); the real merge/transport internals are
// out of scope (spec.md §1), so this package implements exactly what the
// core demands of it: last-writer-wins sets/deletes and a version-stamped
// read surface. Grounded on fs.Cache's map-of-items-behind-a-mutex shape
// (fs/cache.go), generalized from an inode tree to a flat versioned map.
package metadatadoc

import (
	"sync"

	"github.com/foldsync/core/internal/model"
)

// Doc is one drive's metadata map.
type Doc struct {
	mu      sync.RWMutex
	entries map[string]model.FileMetadata
	version uint64
}

func New() *Doc {
	return &Doc{entries: make(map[string]model.FileMetadata)}
}

// Set inserts or overwrites the entry at meta.RelativePath, stamping it with
// the document's next version.
func (d *Doc) Set(meta model.FileMetadata) model.FileMetadata {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.version++
	meta.Version = d.version
	d.entries[meta.RelativePath] = meta
	return meta
}

// Delete removes the entry at path, if present.
func (d *Doc) Delete(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entries, path)
	d.version++
}

// Get returns the entry at path.
func (d *Doc) Get(path string) (model.FileMetadata, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.entries[path]
	return m, ok
}

// All returns every entry currently in the document.
func (d *Doc) All() []model.FileMetadata {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.FileMetadata, 0, len(d.entries))
	for _, m := range d.entries {
		out = append(out, m)
	}
	return out
}

// Version returns the document's current monotonic version counter.
func (d *Doc) Version() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

// Registry owns one Doc per drive, addressed by DriveID, the way the
// design's per-drive sub-managers are addressed through a parent registry.
type Registry struct {
	mu    sync.RWMutex
	docs  map[model.DriveID]*Doc
}

func NewRegistry() *Registry {
	return &Registry{docs: make(map[model.DriveID]*Doc)}
}

// For returns (creating if absent) the Doc for drive.
func (r *Registry) For(drive model.DriveID) *Doc {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[drive]
	if !ok {
		d = New()
		r.docs[drive] = d
	}
	return d
}

// Drop removes a drive's document entirely (e.g. on drive deletion).
func (r *Registry) Drop(drive model.DriveID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, drive)
}
