// Package conflict is C13: base-aware conflict detection with
// resolved/unresolved registries. Grounded on
// original_source/src-tauri/src/core/conflict.rs.
package conflict

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/foldsync/core/internal/kdf"
	"github.com/foldsync/core/internal/model"
)

const resolvedHistoryLimit = 100

// textExtensions gates ManualMerge eligibility, per spec.md §4.12.
var textExtensions = map[string]bool{}

func init() {
	for _, ext := range []string{
		"txt", "md", "json", "yaml", "yml", "toml", "xml", "html", "css",
		"js", "ts", "jsx", "tsx", "rs", "py", "go", "java", "c", "cpp", "h",
		"hpp", "sh", "bash", "zsh", "ps1", "bat", "cmd", "sql", "csv",
	} {
		textExtensions[ext] = true
	}
}

// IsTextFile reports whether path's extension is on the ManualMerge
// allowlist.
func IsTextFile(path string) bool {
	ext := ""
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			ext = path[i+1:]
			break
		}
		if path[i] == '/' {
			break
		}
	}
	return textExtensions[lower(ext)]
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}

// Version describes one side of a conflict.
type Version struct {
	Hash       string
	Size       int64
	ModifiedAt time.Time
	ModifiedBy model.NodeID
	Preview    string
}

// FileConflict is one detected conflict.
type FileConflict struct {
	ID                 [16]byte
	Path               string
	DetectedAt         time.Time
	Local              Version
	Remote             Version
	BaseHash           string
	Resolved           bool
	Resolution         model.ResolutionStrategy
	SuggestedResolution model.ResolutionStrategy
}

// ID computes the deterministic 16-byte conflict id: the first 16 bytes of
// BLAKE3(path ‖ local_hash ‖ remote_hash).
func ID(path, localHash, remoteHash string) [16]byte {
	sum := kdf.Sum256([]byte(fmt.Sprintf("%s%s%s", path, localHash, remoteHash)))
	var id [16]byte
	copy(id[:], sum[:16])
	return id
}

// Manager is one drive's conflict registries.
type Manager struct {
	mu         sync.Mutex
	unresolved map[[16]byte]*FileConflict
	resolved   []*FileConflict // ring buffer, newest first, bounded
}

func NewManager() *Manager {
	return &Manager{unresolved: make(map[[16]byte]*FileConflict)}
}

// Detect implements the base-aware detection procedure from spec.md §4.12.
// Returns nil if there is no conflict.
func (m *Manager) Detect(path string, local, remote Version, baseHash string) *FileConflict {
	if local.Hash == remote.Hash {
		return nil
	}
	if baseHash != "" {
		if local.Hash == baseHash {
			return nil // remote wins, no conflict to record
		}
		if remote.Hash == baseHash {
			return nil // local wins, no conflict to record
		}
	}

	suggested := model.ResolutionKeepLocal
	switch {
	case remote.ModifiedAt.After(local.ModifiedAt):
		suggested = model.ResolutionKeepRemote
	case local.ModifiedAt.After(remote.ModifiedAt):
		suggested = model.ResolutionKeepLocal
	default:
		suggested = model.ResolutionKeepBoth
	}

	fc := &FileConflict{
		ID:                  ID(path, local.Hash, remote.Hash),
		Path:                path,
		DetectedAt:          time.Now(),
		Local:               local,
		Remote:              remote,
		BaseHash:            baseHash,
		SuggestedResolution: suggested,
	}

	m.mu.Lock()
	m.unresolved[fc.ID] = fc
	m.mu.Unlock()
	return fc
}

// Resolve applies a resolution strategy to an unresolved conflict, moving it
// to the resolved-history ring buffer.
func (m *Manager) Resolve(id [16]byte, strategy model.ResolutionStrategy) (*FileConflict, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fc, ok := m.unresolved[id]
	if !ok {
		return nil, false
	}
	delete(m.unresolved, id)

	fc.Resolved = true
	fc.Resolution = strategy
	m.resolved = append([]*FileConflict{fc}, m.resolved...)
	if len(m.resolved) > resolvedHistoryLimit {
		m.resolved = m.resolved[:resolvedHistoryLimit]
	}
	return fc, true
}

// Unresolved returns every currently-unresolved conflict, sorted by
// detection time, newest first.
func (m *Manager) Unresolved() []*FileConflict {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*FileConflict, 0, len(m.unresolved))
	for _, fc := range m.unresolved {
		out = append(out, fc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.After(out[j].DetectedAt) })
	return out
}

// Resolved returns the resolved-history ring buffer, newest first.
func (m *Manager) Resolved() []*FileConflict {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*FileConflict, len(m.resolved))
	copy(out, m.resolved)
	return out
}

// CleanupResolved drops resolved-history entries detected before cutoff,
// returning the count removed. Invoked by the Janitor (C17).
func (m *Manager) CleanupResolved(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.resolved[:0:0]
	removed := 0
	for _, fc := range m.resolved {
		if fc.DetectedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, fc)
	}
	m.resolved = kept
	return removed
}

// Registry owns one Manager per drive.
type Registry struct {
	mu       sync.RWMutex
	managers map[model.DriveID]*Manager
}

func NewRegistry() *Registry { return &Registry{managers: make(map[model.DriveID]*Manager)} }

func (r *Registry) For(drive model.DriveID) *Manager {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.managers[drive]
	if !ok {
		m = NewManager()
		r.managers[drive] = m
	}
	return m
}

// CleanupResolved sweeps every drive's resolved history, returning the
// total count removed across all drives.
func (r *Registry) CleanupResolved(cutoff time.Time) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, m := range r.managers {
		total += m.CleanupResolved(cutoff)
	}
	return total
}
