// Package transport defines the pluggable capability interfaces the core
// depends on but does not implement: the P2P transport, the ACL-checking
// callback injected into the EventBus, and the content-addressed blob
// store's peer-facing contract. Per the design's §9 "dynamic dispatch"
// note, these are expressed as small capability interfaces rather than
// owned concrete types, so a real NAT-traversing endpoint (or, for tests
// and single-process demos, the in-memory implementation below) can be
// substituted without the core depending on its internals.
package transport

import (
	"context"

	"github.com/foldsync/core/internal/model"
)

// Topic identifies one drive's gossip topic: its 32-byte drive id.
type Topic [32]byte

// Transport is the minimal pub/sub contract the EventBus needs from the
// underlying P2P network. Real implementations are out of scope for this
// core (see spec.md §1); this interface is the contract they must satisfy.
type Transport interface {
	// Publish sends bytes to every current subscriber of topic. Fire and
	// forget: it does not wait for acknowledgements.
	Publish(ctx context.Context, topic Topic, data []byte) error
	// Subscribe returns a channel of raw message bytes delivered on topic.
	// The returned cancel function stops the subscription.
	Subscribe(ctx context.Context, topic Topic) (msgs <-chan []byte, cancel func(), err error)
	// Shutdown tears down the transport; must be called before the host
	// process drops its last reference, per the graceful-shutdown order.
	Shutdown(ctx context.Context) error
}

// AclChecker is the callback the EventBus consults before delivering a
// gossip message, keeping the bus decoupled from how the ACL store is
// owned. Implementations answer "does sender have at least Read on drive?"
type AclChecker func(driveHex, senderHex string) bool

// BlobStore is the content-addressed backing store the TransferService
// uses to import and export file content by hash. Content crosses this
// boundary encrypted with the owning drive's per-file key; relPath binds
// the encryption to that specific drive-relative path.
type BlobStore interface {
	// ImportFile encrypts localPath's content under drive's cipher and
	// copies it into the store, returning the plaintext's content hash
	// (hex-encoded BLAKE3).
	ImportFile(ctx context.Context, drive model.DriveID, relPath, localPath string) (hash string, err error)
	// ExportFile streams the blob identified by hash to localPath,
	// decrypting it under drive's cipher and replacing localPath
	// atomically on success.
	ExportFile(ctx context.Context, drive model.DriveID, relPath, hash, localPath string) error
	// Has reports whether the blob is present locally.
	Has(hash string) bool
}
