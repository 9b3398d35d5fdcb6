package model

// EventKind tags the payload carried by a gossip message so receivers can
// dispatch without a type switch over concrete Go types.
type EventKind string

const (
	EventFileChanged EventKind = "FileChanged"
	EventFileDeleted EventKind = "FileDeleted"
	EventLockState   EventKind = "LockState"
	EventPresence    EventKind = "Presence"
)

// FileChangedPayload is published on local create/modify and mirrored by
// peers into their own MetadataDoc.
type FileChangedPayload struct {
	Path        string `json:"path"`
	ContentHash string `json:"content_hash"`
	Size        int64  `json:"size"`
	BaseHash    string `json:"base_hash,omitempty"`
	ModifiedBy  NodeID `json:"modified_by"`
	// ModifiedAtMs is the sender's wall-clock edit time (Unix milliseconds),
	// used by the receiver's conflict detection instead of its own receipt
	// time so "newer modified_at wins" reflects who actually edited last.
	ModifiedAtMs int64 `json:"modified_at_ms"`
}

// FileDeletedPayload is published on local removal.
type FileDeletedPayload struct {
	Path string `json:"path"`
}

// LockStatePayload carries one lock's current state for gossip propagation
// and remote-apply (C12's "remote apply" operation).
type LockStatePayload struct {
	Path       string   `json:"path"`
	Holder     NodeID   `json:"holder_node_id"`
	LockType   LockType `json:"lock_type"`
	AcquiredAt int64    `json:"acquired_at_ms"`
	ExpiresAt  int64    `json:"expires_at_ms"`
	Reason     string   `json:"reason,omitempty"`
	Released   bool     `json:"released,omitempty"`
}

// PresencePayload carries a heartbeat or activity update.
type PresencePayload struct {
	User            NodeID         `json:"user"`
	Status          PresenceStatus `json:"status"`
	CurrentActivity string         `json:"current_activity,omitempty"`
}
