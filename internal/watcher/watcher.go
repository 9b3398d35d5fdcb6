// Package watcher is C11: local filesystem change detection, turning raw OS
// notifications into the canonical change events the SyncEngine consumes.
// Grounded on fs/delta.go's long-lived "fetch, diff, emit" goroutine shape
// (DeltaLoop), adapted here from polling a remote delta API to consuming
// fsnotify's recursive local events.
package watcher

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/foldsync/core/internal/kdf"
	"github.com/foldsync/core/internal/logging"
)

var log = logging.For("watcher")

// smallFileLimit is the size at or below which the full content is hashed;
// larger files use the fast fingerprint from spec.md §4.10.
const smallFileLimit = 10 * 1024 * 1024
const fingerprintPrefix = 1024 * 1024

// deliveryCapacity is the bounded broadcast channel size for watcher events;
// slow consumers are logged and may miss events, per the design.
const deliveryCapacity = 1024

var ignoredNames = map[string]bool{
	".git": true, ".svn": true, ".hg": true, "node_modules": true,
	"__pycache__": true, ".DS_Store": true, "Thumbs.db": true,
	".idea": true, ".vscode": true, "target": true,
}

var ignoredSuffixes = []string{".tmp", ".swp", ".swo"}

func ignored(name string) bool {
	if ignoredNames[name] {
		return true
	}
	if strings.HasPrefix(name, "~$") {
		return true
	}
	for _, suf := range ignoredSuffixes {
		if strings.HasSuffix(name, suf) {
			return true
		}
	}
	return false
}

// EventKind distinguishes the two canonical change events.
type EventKind int

const (
	EventFileChanged EventKind = iota
	EventFileDeleted
)

// ChangeEvent is the canonical output of the watcher, consumed by the
// SyncEngine (C15).
type ChangeEvent struct {
	Kind EventKind
	Path string // relative to the drive root, forward-slash separated
	Hash string // hex BLAKE3, only set for EventFileChanged
	Size int64
}

// Watcher watches one drive's local root recursively and emits canonical
// change events.
type Watcher struct {
	root    string
	fsw     *fsnotify.Watcher
	events  chan ChangeEvent
	done    chan struct{}
	closeWg sync.WaitGroup
}

// New starts watching root recursively. Call Close to stop.
func New(root string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:   filepath.Clean(root),
		fsw:    fsw,
		events: make(chan ChangeEvent, deliveryCapacity),
		done:   make(chan struct{}),
	}
	if err := w.addRecursive(w.root); err != nil {
		fsw.Close()
		return nil, err
	}
	w.closeWg.Add(1)
	go w.loop()
	return w, nil
}

// Events returns the channel of canonical change events.
func (w *Watcher) Events() <-chan ChangeEvent { return w.events }

// Close stops the watcher and releases its OS resources.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.fsw.Close()
	w.closeWg.Wait()
	return err
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // best-effort: skip unreadable entries
		}
		if info.IsDir() {
			if path != dir && ignored(info.Name()) {
				return filepath.SkipDir
			}
			return w.fsw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) relative(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func (w *Watcher) loop() {
	defer w.closeWg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	base := filepath.Base(ev.Name)
	if ignored(base) {
		return
	}

	switch {
	case ev.Op&fsnotify.Remove != 0 || ev.Op&fsnotify.Rename != 0:
		// A rename's "old path" side surfaces here as a Remove/Rename with
		// no new content to hash. Per the design, a bare rename with only
		// one endpoint visible emits only this deletion; the create side
		// (if the watcher also observes it) will emit its own FileChanged.
		w.emit(ChangeEvent{Kind: EventFileDeleted, Path: w.relative(ev.Name)})

	case ev.Op&fsnotify.Create != 0:
		info, err := os.Stat(ev.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if !ignored(info.Name()) {
				w.addRecursive(ev.Name)
			}
			return
		}
		w.hashAndEmit(ev.Name, info)

	case ev.Op&fsnotify.Write != 0:
		info, err := os.Stat(ev.Name)
		if err != nil || info.IsDir() {
			return
		}
		w.hashAndEmit(ev.Name, info)
	}
}

func (w *Watcher) hashAndEmit(path string, info os.FileInfo) {
	hash, err := HashFile(path, info.Size())
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("failed to hash changed file")
		return
	}
	w.emit(ChangeEvent{
		Kind: EventFileChanged,
		Path: w.relative(path),
		Hash: hash,
		Size: info.Size(),
	})
}

func (w *Watcher) emit(ev ChangeEvent) {
	select {
	case w.events <- ev:
	default:
		log.Warn().Str("path", ev.Path).Msg("dropping watcher event: slow consumer")
	}
}

// HashFile computes the content fingerprint from spec.md §4.10: the full
// BLAKE3 hash for files ≤10MiB, or BLAKE3 over (first 1MiB ‖ size_le) for
// larger files (a fast fingerprint, not an integrity hash).
func HashFile(path string, size int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if size <= smallFileLimit {
		data, err := io.ReadAll(f)
		if err != nil {
			return "", err
		}
		sum := kdf.Sum256(data)
		return kdf.Hex(sum), nil
	}

	prefix := make([]byte, fingerprintPrefix)
	n, err := io.ReadFull(f, prefix)
	if err != nil && err != io.ErrUnexpectedEOF {
		return "", err
	}
	buf := make([]byte, 0, n+8)
	buf = append(buf, prefix[:n]...)
	u := uint64(size)
	buf = append(buf, byte(u), byte(u>>8), byte(u>>16), byte(u>>24), byte(u>>32), byte(u>>40), byte(u>>48), byte(u>>56))
	sum := kdf.Sum256(buf)
	return kdf.Hex(sum), nil
}
