// Package invite is C6: signed, single-use-capable, expiring capability
// tokens with a replay tracker. Grounded on
// original_source/src-tauri/src/crypto/invite.rs.
package invite

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/foldsync/core/internal/apperr"
	"github.com/foldsync/core/internal/model"
)

// Payload is the signed content of an invite token.
type Payload struct {
	Version       int            `json:"version"`
	DriveID       model.DriveID  `json:"drive_id"`
	DriveName     string         `json:"drive_name"`
	InviterNodeID model.NodeID   `json:"inviter_node_id"`
	Permission    model.Permission `json:"permission"`
	CreatedAt     time.Time      `json:"created_at"`
	ExpiresAt     time.Time      `json:"expires_at"`
	Note          string         `json:"note,omitempty"`
	SingleUse     bool           `json:"single_use"`
	TokenID       [16]byte       `json:"token_id"`
	DocJoinHint   string         `json:"doc_join_hint,omitempty"`
}

// Token is the signed, serializable invite.
type Token struct {
	Payload   Payload `json:"payload"`
	Signature string  `json:"signature"` // hex-encoded
}

// canonicalBytes is the exact byte encoding the signature covers: the JSON
// encoding of Payload. Re-serializing the decoded payload the same way is
// what verification re-derives.
func canonicalBytes(p Payload) ([]byte, error) {
	return json.Marshal(p)
}

// Build assembles and signs a fresh invite token.
func Build(signerPriv ed25519.PrivateKey, drive model.DriveID, driveName string, inviter model.NodeID,
	permission model.Permission, validity time.Duration, note string, singleUse bool, docJoinHint string) (*Token, error) {

	var tokenID [16]byte
	if _, err := rand.Read(tokenID[:]); err != nil {
		return nil, apperr.Crypto("generating token id: %v", err)
	}
	now := time.Now()
	p := Payload{
		Version:       1,
		DriveID:       drive,
		DriveName:     driveName,
		InviterNodeID: inviter,
		Permission:    permission,
		CreatedAt:     now,
		ExpiresAt:     now.Add(validity),
		Note:          note,
		SingleUse:     singleUse,
		TokenID:       tokenID,
		DocJoinHint:   docJoinHint,
	}
	canon, err := canonicalBytes(p)
	if err != nil {
		return nil, apperr.Internal(err, "encoding invite payload")
	}
	sig := ed25519.Sign(signerPriv, canon)
	return &Token{Payload: p, Signature: hex.EncodeToString(sig)}, nil
}

// Serialize encodes the token as URL-safe base64(no-pad) of its UTF-8 JSON
// form, per the design's wire-format section.
func (t *Token) Serialize() (string, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return "", apperr.Internal(err, "encoding invite token")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Deserialize parses the wire format produced by Serialize.
func Deserialize(s string) (*Token, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, apperr.Validation("invalid invite token encoding")
	}
	var t Token
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, apperr.Validation("invalid invite token contents")
	}
	return &t, nil
}

// Expired reports whether the token's validity window has passed.
func (t *Token) Expired() bool { return time.Now().After(t.Payload.ExpiresAt) }

// VerifySignature checks the token's signature against the claimed issuer's
// public key, without consulting the replay tracker.
func (t *Token) VerifySignature(issuerPK ed25519.PublicKey) bool {
	canon, err := canonicalBytes(t.Payload)
	if err != nil {
		return false
	}
	sig, err := hex.DecodeString(t.Signature)
	if err != nil {
		return false
	}
	return ed25519.Verify(issuerPK, canon, sig)
}

// Tracker records which single-use token ids have already been consumed.
// Backed in-memory here; callers persist it via the token_trackers table.
// Guarded by a mutex since Accept may run concurrently for different
// incoming join requests.
type Tracker struct {
	mu   sync.Mutex
	used map[[16]byte]bool
}

func NewTracker() *Tracker { return &Tracker{used: make(map[[16]byte]bool)} }

// LoadTracker rebuilds a Tracker from a persisted set of used token ids.
func LoadTracker(usedIDs [][16]byte) *Tracker {
	t := NewTracker()
	for _, id := range usedIDs {
		t.used[id] = true
	}
	return t
}

// Used reports whether tokenID has already been consumed.
func (tr *Tracker) Used(tokenID [16]byte) bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.used[tokenID]
}

// MarkUsed records tokenID as consumed.
func (tr *Tracker) MarkUsed(tokenID [16]byte) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.used[tokenID] = true
}

// consumeIfUnused atomically checks and marks tokenID used in one critical
// section, closing the check-then-act race a separate Used+MarkUsed call
// pair would leave open between two concurrent Accept calls for the same
// token.
func (tr *Tracker) consumeIfUnused(tokenID [16]byte) bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.used[tokenID] {
		return false
	}
	tr.used[tokenID] = true
	return true
}

// UsedIDs returns every consumed token id, for persistence.
func (tr *Tracker) UsedIDs() [][16]byte {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([][16]byte, 0, len(tr.used))
	for id := range tr.used {
		out = append(out, id)
	}
	return out
}

// Accept verifies and, for single-use tokens, consumes t against tracker.
// Accept iff: signature valid AND not expired AND (not single-use OR not
// previously used). On acceptance of a single-use token, the token id is
// marked used before returning.
func Accept(t *Token, issuerPK ed25519.PublicKey, tracker *Tracker) error {
	if !t.VerifySignature(issuerPK) {
		return apperr.InvalidSignature("invite signature verification failed")
	}
	if t.Expired() {
		return apperr.TokenExpired("invite token has expired")
	}
	if t.Payload.SingleUse {
		if !tracker.consumeIfUnused(t.Payload.TokenID) {
			return apperr.TokenUsed("invite token has already been used")
		}
	}
	return nil
}
