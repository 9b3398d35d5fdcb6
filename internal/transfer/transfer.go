// Package transfer is C16: a content-addressed blob store rooted at
// data/blobs plus the transfer registry tracking upload/download progress.
// Grounded on original_source/src-tauri/src/network/transfer.rs for the
// registry shape and fs/cache.go's CONTENT bucket
// (GetContent/InsertContent/MoveContent) for the on-disk blob pattern,
// generalized here to content-hash addressing with an atomic rename.
package transfer

import (
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/foldsync/core/internal/apperr"
	"github.com/foldsync/core/internal/drivecipher"
	"github.com/foldsync/core/internal/kdf"
	"github.com/foldsync/core/internal/logging"
	"github.com/foldsync/core/internal/model"
)

var log = logging.For("transfer")

const chunkSize = drivecipher.MaxChunkSize

// Progress is an upload/download progress snapshot. ImportFile and
// ExportFile do not report progress; nothing in this package sends Progress
// values.
type Progress struct {
	BytesTransferred int64
	TotalBytes       int64
	BytesPerSecond   float64
}

// Record is the transfer registry's entry for one upload or download.
type Record struct {
	ID               string
	Drive            model.DriveID
	Path             string
	Direction        model.TransferDirection
	Status           model.TransferStatus
	BytesTransferred int64
	TotalBytes       int64
	Hash             string
	Err              string
}

// Store is a content-addressed blob store rooted at root (typically
// "data/blobs"), implementing transport.BlobStore. Every blob is encrypted
// at rest with the owning drive's per-file key, resolved through ciphers at
// import/export time; content is never written to disk as plaintext.
type Store struct {
	root    string
	ciphers *drivecipher.Manager

	mu      sync.RWMutex
	records map[string]*Record
	cancels map[string]chan struct{}
}

// NewStore opens a blob store rooted at root. ciphers resolves each drive's
// Cipher for encrypting/decrypting content as it crosses the store boundary;
// register a drive's master key with it (see app.New) before importing or
// exporting any of its files.
func NewStore(root string, ciphers *drivecipher.Manager) (*Store, error) {
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, apperr.TransferFailed(err, "creating blob store root")
	}
	return &Store{root: root, ciphers: ciphers, records: make(map[string]*Record), cancels: make(map[string]chan struct{})}, nil
}

func (s *Store) blobPath(hash string) string {
	if len(hash) < 4 {
		return filepath.Join(s.root, hash)
	}
	return filepath.Join(s.root, hash[:2], hash[2:4], hash)
}

func (s *Store) Has(hash string) bool {
	_, err := os.Stat(s.blobPath(hash))
	return err == nil
}

// ImportFile streams localPath into the store, encrypting it chunk by chunk
// with the drive's per-file key before any ciphertext touches disk. The
// returned hash is the BLAKE3 digest of the plaintext — the same content_hash
// every peer computes from the decrypted bytes — so the blob's on-disk
// location is plaintext-addressed even though its contents are not
// plaintext.
func (s *Store) ImportFile(ctx context.Context, drive model.DriveID, relPath, localPath string) (string, error) {
	cipher, ok := s.ciphers.Cipher(drive)
	if !ok {
		return "", apperr.Crypto("no cipher registered for drive %s", drive.Hex())
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", apperr.TransferFailed(err, "opening local file")
	}
	defer f.Close()

	tmpPath := filepath.Join(s.root, "import-"+uuid.NewString()+".tmp")
	pf, err := renameio.NewPendingFile(tmpPath, renameio.WithPermissions(0600))
	if err != nil {
		return "", apperr.TransferFailed(err, "creating pending blob file")
	}
	defer pf.Cleanup()

	enc := cipher.NewStreamEncrypter(relPath)
	if _, err := pf.Write(enc.Header()); err != nil {
		return "", apperr.TransferFailed(err, "writing stream header")
	}

	hasher := kdf.NewHasher()
	buf := make([]byte, chunkSize)
	for {
		select {
		case <-ctx.Done():
			return "", apperr.TransferFailed(ctx.Err(), "import cancelled")
		default:
		}
		n, rerr := f.Read(buf)
		if n > 0 {
			hasher.Write(buf[:n])
			wire, eerr := enc.WriteChunk(buf[:n])
			if eerr != nil {
				return "", eerr
			}
			if err := writeFramedChunk(pf, wire); err != nil {
				return "", apperr.TransferFailed(err, "writing encrypted chunk")
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return "", apperr.TransferFailed(rerr, "reading local file")
		}
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return "", apperr.TransferFailed(err, "finalizing blob file")
	}

	var sum [32]byte
	copy(sum[:], hasher.Sum(nil))
	hash := kdf.Hex(sum)

	dest := s.blobPath(hash)
	if err := os.MkdirAll(filepath.Dir(dest), 0700); err != nil {
		os.Remove(tmpPath)
		return "", apperr.TransferFailed(err, "creating blob directory")
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return "", apperr.TransferFailed(err, "moving blob into place")
	}
	return hash, nil
}

// ExportFile streams the blob identified by hash to localPath + a temp
// suffix, decrypting it chunk by chunk with the drive's per-file key, then
// renames atomically to localPath. On any failure the temp file is removed.
func (s *Store) ExportFile(ctx context.Context, drive model.DriveID, relPath, hash, localPath string) error {
	cipher, ok := s.ciphers.Cipher(drive)
	if !ok {
		return apperr.Crypto("no cipher registered for drive %s", drive.Hex())
	}

	src, err := os.Open(s.blobPath(hash))
	if err != nil {
		return apperr.TransferFailed(err, "opening blob")
	}
	defer src.Close()

	header := make([]byte, drivecipher.HeaderLen)
	if _, err := io.ReadFull(src, header); err != nil {
		return apperr.TransferFailed(err, "reading stream header")
	}
	dec, err := cipher.NewStreamDecrypter(relPath, header)
	if err != nil {
		return err
	}

	tmpPath := localPath + ".tmp.download"
	dst, err := os.Create(tmpPath)
	if err != nil {
		return apperr.TransferFailed(err, "creating temp download file")
	}

	for {
		select {
		case <-ctx.Done():
			dst.Close()
			os.Remove(tmpPath)
			return apperr.TransferFailed(ctx.Err(), "download cancelled")
		default:
		}
		wire, rerr := readFramedChunk(src)
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			dst.Close()
			os.Remove(tmpPath)
			return apperr.TransferFailed(rerr, "reading blob")
		}
		pt, derr := dec.ReadChunk(wire)
		if derr != nil {
			dst.Close()
			os.Remove(tmpPath)
			return derr
		}
		if _, werr := dst.Write(pt); werr != nil {
			dst.Close()
			os.Remove(tmpPath)
			return apperr.TransferFailed(werr, "writing temp download file")
		}
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return apperr.TransferFailed(err, "closing temp download file")
	}
	if err := os.Rename(tmpPath, localPath); err != nil {
		os.Remove(tmpPath)
		return apperr.TransferFailed(err, "renaming temp download file into place")
	}
	return nil
}

// writeFramedChunk writes a length-prefixed encrypted chunk so ExportFile
// can tell where one StreamEncrypter.WriteChunk output ends and the next
// begins; chunk sizes vary (the final chunk is usually short).
func writeFramedChunk(w io.Writer, chunk []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(chunk)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(chunk)
	return err
}

func readFramedChunk(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	chunk := make([]byte, binary.BigEndian.Uint32(lenBuf[:]))
	if _, err := io.ReadFull(r, chunk); err != nil {
		return nil, err
	}
	return chunk, nil
}

// Registry tracks in-flight and completed transfers.
type Registry struct {
	store *Store
	mu    sync.Mutex
	recs  map[string]*Record
}

func NewRegistry(store *Store) *Registry {
	return &Registry{store: store, recs: make(map[string]*Record)}
}

// BeginUpload registers a new upload transfer and returns its id.
func (r *Registry) BeginUpload(drive model.DriveID, path string, total int64) string {
	return r.begin(drive, path, model.TransferUpload, total)
}

// BeginDownload registers a new download transfer and returns its id.
func (r *Registry) BeginDownload(drive model.DriveID, path string, total int64) string {
	return r.begin(drive, path, model.TransferDownload, total)
}

func (r *Registry) begin(drive model.DriveID, path string, dir model.TransferDirection, total int64) string {
	id := uuid.NewString()
	rec := &Record{ID: id, Drive: drive, Path: path, Direction: dir, Status: model.TransferPending, TotalBytes: total}
	r.mu.Lock()
	r.recs[id] = rec
	r.mu.Unlock()
	return id
}

// Update records progress for an in-flight transfer.
func (r *Registry) Update(id string, bytesTransferred int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.recs[id]; ok {
		rec.Status = model.TransferInProgress
		rec.BytesTransferred = bytesTransferred
	}
}

// Complete marks a transfer finished, recording its content hash.
func (r *Registry) Complete(id, hash string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.recs[id]; ok {
		rec.Status = model.TransferCompleted
		rec.Hash = hash
		rec.BytesTransferred = rec.TotalBytes
	}
}

// Fail marks a transfer failed with the given error.
func (r *Registry) Fail(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.recs[id]; ok {
		rec.Status = model.TransferFailed
		rec.Err = err.Error()
	}
	log.Warn().Err(err).Str("transfer_id", id).Msg("transfer failed")
}

// Cancel marks a transfer Cancelled in the registry. It does not interrupt
// ImportFile or ExportFile, which stop early only when their context is
// cancelled.
func (r *Registry) Cancel(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.recs[id]; ok {
		rec.Status = model.TransferCancelled
	}
}

// Get returns a transfer's current record.
func (r *Registry) Get(id string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// elapsedRate computes a bytes-per-second estimate suitable for
// Progress.BytesPerSecond (supplemented feature from transfer.rs). Nothing in
// this package calls it.
func elapsedRate(bytes int64, since time.Time) float64 {
	secs := time.Since(since).Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(bytes) / secs
}
