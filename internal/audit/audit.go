// Package audit is C18: the append-only audit log. Every entry is a typed
// event recorded under a monotonically increasing sequence key so that
// bucket iteration order is chronological, grounded on store.NextSequence
// and fs/delta.go's "append each page of deltas, cursor keeps moving
// forward" discipline applied to a single growing log instead of a
// polling cursor.
package audit

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/foldsync/core/internal/apperr"
	"github.com/foldsync/core/internal/model"
	"github.com/foldsync/core/internal/store"
)

// EventKind names one kind of audited event.
type EventKind string

const (
	EventIdentityCreated    EventKind = "IdentityCreated"
	EventDriveAccessed      EventKind = "DriveAccessed"
	EventAccessDenied       EventKind = "AccessDenied"
	EventPermissionGranted  EventKind = "PermissionGranted"
	EventPermissionRevoked  EventKind = "PermissionRevoked"
	EventInviteCreated      EventKind = "InviteCreated"
	EventInviteAccepted     EventKind = "InviteAccepted"
	EventInviteRevoked      EventKind = "InviteRevoked"
	EventFileRead           EventKind = "FileRead"
	EventFileWritten        EventKind = "FileWritten"
	EventFileDeleted        EventKind = "FileDeleted"
	EventFileRenamed        EventKind = "FileRenamed"
	EventLockForceReleased  EventKind = "LockForceReleased"
)

// Entry is one audit log record. Payload holds the typed, kind-specific
// body as raw JSON; decode it with the matching Payload struct below.
type Entry struct {
	Sequence  uint64          `json:"sequence"`
	Kind      EventKind       `json:"kind"`
	Drive     model.DriveID   `json:"drive"`
	Actor     model.NodeID    `json:"actor"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Typed payloads, one per EventKind that carries extra detail beyond
// actor/drive/timestamp.
type (
	DriveAccessedPayload struct {
		Path string `json:"path"`
	}
	AccessDeniedPayload struct {
		Path      string            `json:"path"`
		Required  model.Permission  `json:"required"`
	}
	PermissionChangedPayload struct {
		Subject    model.NodeID     `json:"subject"`
		Permission model.Permission `json:"permission"`
	}
	InvitePayload struct {
		TokenID   [16]byte         `json:"token_id"`
		Permission model.Permission `json:"permission,omitempty"`
	}
	FileEventPayload struct {
		Path        string `json:"path"`
		ContentHash string `json:"content_hash,omitempty"`
		NewPath     string `json:"new_path,omitempty"`
	}
	LockForceReleasedPayload struct {
		Path          string       `json:"path"`
		PreviousHolder model.NodeID `json:"previous_holder"`
	}
)

// Filter narrows a Query: zero-valued fields are ignored.
type Filter struct {
	Drive     *model.DriveID
	Actor     *model.NodeID
	Kind      EventKind
	Since     time.Time
	Until     time.Time
	Limit     int
	Offset    int
}

// Log is the append-only audit log, backed by store.BucketAuditLog.
type Log struct {
	store *store.Store
}

func New(s *store.Store) *Log { return &Log{store: s} }

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

// Record appends a new entry, assigning it the next sequence number.
func (l *Log) Record(kind EventKind, drive model.DriveID, actor model.NodeID, payload interface{}) (Entry, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Entry{}, apperr.Internal(err, "encoding audit payload")
	}
	seq, err := l.store.NextSequence(store.BucketAuditLog)
	if err != nil {
		return Entry{}, apperr.Internal(err, "allocating audit sequence")
	}
	entry := Entry{
		Sequence:  seq,
		Kind:      kind,
		Drive:     drive,
		Actor:     actor,
		Timestamp: time.Now(),
		Payload:   raw,
	}
	enc, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, apperr.Internal(err, "encoding audit entry")
	}
	if err := l.store.Put(store.BucketAuditLog, seqKey(seq), enc); err != nil {
		return Entry{}, apperr.Internal(err, "persisting audit entry")
	}
	return entry, nil
}

// Query scans the log in chronological order, applying f.
func (l *Log) Query(f Filter) ([]Entry, error) {
	var matched []Entry
	err := l.store.ForEach(store.BucketAuditLog, func(key, value []byte) error {
		var e Entry
		if err := json.Unmarshal(value, &e); err != nil {
			return nil // skip corrupt record
		}
		if f.Drive != nil && e.Drive != *f.Drive {
			return nil
		}
		if f.Actor != nil && e.Actor != *f.Actor {
			return nil
		}
		if f.Kind != "" && e.Kind != f.Kind {
			return nil
		}
		if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
			return nil
		}
		if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
			return nil
		}
		matched = append(matched, e)
		return nil
	})
	if err != nil {
		return nil, apperr.Internal(err, "querying audit log")
	}

	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return []Entry{}, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched, nil
}
