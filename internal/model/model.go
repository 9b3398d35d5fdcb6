// Package model holds the shared data-model types from the design's data
// model section. They are plain structs with JSON tags for gossip/storage
// serialization; behavior lives in the owning component packages.
package model

import (
	"encoding/hex"
	"time"
)

// NodeID is a 32-byte Ed25519 verifying key. The hex form is the canonical
// textual id used on the wire and in storage keys.
type NodeID [32]byte

func (n NodeID) Hex() string { return hex.EncodeToString(n[:]) }

func (n NodeID) Short() string {
	h := n.Hex()
	if len(h) > 8 {
		return h[:8]
	}
	return h
}

func NodeIDFromHex(s string) (NodeID, error) {
	var n NodeID
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(n) {
		return n, errInvalidNodeID
	}
	copy(n[:], b)
	return n, nil
}

// DriveID is a 32-byte content-unique drive identifier.
type DriveID [32]byte

func (d DriveID) Hex() string { return hex.EncodeToString(d[:]) }

func DriveIDFromHex(s string) (DriveID, error) {
	var d DriveID
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(d) {
		return d, errInvalidDriveID
	}
	copy(d[:], b)
	return d, nil
}

// SharedDrive is the drive registry's record for one drive.
type SharedDrive struct {
	ID         DriveID   `json:"id"`
	Name       string    `json:"name"`
	LocalRoot  string    `json:"local_root"`
	OwnerNode  NodeID    `json:"owner_node_id"`
	CreatedAt  time.Time `json:"created_at"`
	TotalSize  int64     `json:"total_size"`
	FileCount  int64     `json:"file_count"`
}

// FileMetadata is one entry of a drive's MetadataDoc.
type FileMetadata struct {
	Name         string    `json:"name"`
	RelativePath string    `json:"relative_path"`
	IsDirectory  bool      `json:"is_directory"`
	Size         int64     `json:"size"`
	ModifiedAt   time.Time `json:"modified_at"`
	ContentHash  string    `json:"content_hash,omitempty"`
	Version      uint64    `json:"version"`
}

// Permission is the access-control lattice: Read < Write < Manage < Admin.
type Permission int

const (
	PermissionRead Permission = iota
	PermissionWrite
	PermissionManage
	PermissionAdmin
)

func (p Permission) String() string {
	switch p {
	case PermissionRead:
		return "Read"
	case PermissionWrite:
		return "Write"
	case PermissionManage:
		return "Manage"
	case PermissionAdmin:
		return "Admin"
	default:
		return "Unknown"
	}
}

// Satisfies reports whether a held permission covers a required one.
func (p Permission) Satisfies(required Permission) bool { return p >= required }

// ParsePermission converts a string (as found in invite payloads/config) into
// a Permission; ok is false for unrecognized input.
func ParsePermission(s string) (Permission, bool) {
	switch s {
	case "Read":
		return PermissionRead, true
	case "Write":
		return PermissionWrite, true
	case "Manage":
		return PermissionManage, true
	case "Admin":
		return PermissionAdmin, true
	default:
		return 0, false
	}
}

// LockType distinguishes advisory (soft) from exclusive (hard) locks.
type LockType int

const (
	LockAdvisory LockType = iota
	LockExclusive
)

// PresenceStatus is a user's online/away/offline state.
type PresenceStatus int

const (
	StatusOnline PresenceStatus = iota
	StatusAway
	StatusOffline
)

// ResolutionStrategy names a conflict resolution.
type ResolutionStrategy int

const (
	ResolutionNone ResolutionStrategy = iota
	ResolutionKeepLocal
	ResolutionKeepRemote
	ResolutionKeepBoth
	ResolutionManualMerge
)

// TransferDirection distinguishes upload from download for the transfer
// registry.
type TransferDirection int

const (
	TransferUpload TransferDirection = iota
	TransferDownload
)

// TransferStatus is the lifecycle state of one transfer.
type TransferStatus int

const (
	TransferPending TransferStatus = iota
	TransferInProgress
	TransferCompleted
	TransferFailed
	TransferCancelled
)
