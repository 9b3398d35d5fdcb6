// Package ratelimit is C7: per-identity token buckets for sensitive
// operations plus a per-peer sliding window for gossip. Grounded on
// original_source/src-tauri/src/core/rate_limit.rs for the preset table and
// the lazy-refill bucket semantics.
package ratelimit

import (
	"sync"
	"time"

	"github.com/foldsync/core/internal/apperr"
	"github.com/foldsync/core/internal/model"
)

// Operation names a rate-limited sensitive operation.
type Operation string

const (
	OpInviteGeneration Operation = "InviteGeneration"
	OpFileUpload       Operation = "FileUpload"
	OpFileDownload     Operation = "FileDownload"
	OpDriveCreation    Operation = "DriveCreation"
	OpGeneral          Operation = "General"
)

// BucketConfig describes one token bucket's capacity and refill rate.
type BucketConfig struct {
	MaxTokens      float64
	RefillPerSecond float64
}

// Presets holds the named per-operation bucket configurations from the
// design's §4.6, exported as a first-class value (not inlined magic
// numbers) so callers and the audit trail can name the preset involved.
var Presets = map[Operation]BucketConfig{
	OpInviteGeneration: {MaxTokens: 10, RefillPerSecond: 10.0 / 60.0},
	OpFileUpload:       {MaxTokens: 100, RefillPerSecond: 100.0 / 60.0},
	OpFileDownload:     {MaxTokens: 200, RefillPerSecond: 200.0 / 60.0},
	OpDriveCreation:    {MaxTokens: 5, RefillPerSecond: 5.0 / 60.0},
	OpGeneral:          {MaxTokens: 1000, RefillPerSecond: 1000.0 / 60.0},
}

type bucket struct {
	mu         sync.Mutex
	tokens     float64
	max        float64
	refillRate float64
	lastRefill time.Time
}

func newBucket(cfg BucketConfig, now time.Time) *bucket {
	return &bucket{tokens: cfg.MaxTokens, max: cfg.MaxTokens, refillRate: cfg.RefillPerSecond, lastRefill: now}
}

// take refills lazily based on elapsed time, then attempts to consume one
// token. Returns (allowed, remaining, retryAfterSecs).
func (b *bucket) take(now time.Time) (bool, float64, float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.max {
			b.tokens = b.max
		}
		b.lastRefill = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true, b.tokens, 0
	}
	missing := 1 - b.tokens
	retryAfter := missing / b.refillRate
	return false, b.tokens, retryAfter
}

type identityOp struct {
	identity model.NodeID
	op       Operation
}

// Limiter is the per-identity token-bucket limiter for sensitive operations.
type Limiter struct {
	mu      sync.Mutex
	buckets map[identityOp]*bucket
}

func New() *Limiter {
	return &Limiter{buckets: make(map[identityOp]*bucket)}
}

// Check consumes one token for (identity, op), creating a fresh bucket at
// the operation's preset capacity on first use. Returns a RATE_LIMITED
// *apperr.Error carrying retry_after when denied.
func (l *Limiter) Check(identity model.NodeID, op Operation) error {
	return l.CheckAt(identity, op, time.Now())
}

// CheckAt is Check with an explicit clock, used by tests to exercise refill.
func (l *Limiter) CheckAt(identity model.NodeID, op Operation, now time.Time) error {
	cfg, ok := Presets[op]
	if !ok {
		cfg = Presets[OpGeneral]
	}

	l.mu.Lock()
	key := identityOp{identity: identity, op: op}
	b, ok := l.buckets[key]
	if !ok {
		b = newBucket(cfg, now)
		l.buckets[key] = b
	}
	l.mu.Unlock()

	allowed, _, retryAfter := b.take(now)
	if !allowed {
		return apperr.RateLimited(retryAfter)
	}
	return nil
}

// peerWindow implements the per-peer sliding window used inside the
// EventBus: at most maxMessages per windowDuration, counter reset on the
// first message after the window has elapsed.
type peerWindow struct {
	mu        sync.Mutex
	count     int
	windowEnd time.Time
	lastSeen  time.Time
}

// PeerWindowLimiter enforces a per-peer sliding window, with periodic sweep
// of peers that have gone quiet.
type PeerWindowLimiter struct {
	maxMessages int
	window      time.Duration
	staleAfter  time.Duration

	mu    sync.Mutex
	peers map[model.NodeID]*peerWindow
}

// NewPeerWindowLimiter builds the default gossip-plane limiter: ≤100
// messages per peer per 1s window, entries unseen for 60s are swept.
func NewPeerWindowLimiter() *PeerWindowLimiter {
	return &PeerWindowLimiter{
		maxMessages: 100,
		window:      time.Second,
		staleAfter:  60 * time.Second,
		peers:       make(map[model.NodeID]*peerWindow),
	}
}

// Allow reports whether the peer may send another message at time now.
func (p *PeerWindowLimiter) Allow(peer model.NodeID, now time.Time) bool {
	p.mu.Lock()
	w, ok := p.peers[peer]
	if !ok {
		w = &peerWindow{}
		p.peers[peer] = w
	}
	p.mu.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()
	if now.After(w.windowEnd) {
		w.count = 0
		w.windowEnd = now.Add(p.window)
	}
	w.lastSeen = now
	if w.count >= p.maxMessages {
		return false
	}
	w.count++
	return true
}

// Sweep discards peer entries unseen for staleAfter, returning the count
// removed. Nothing in this module calls it on a schedule, and the Janitor
// does not call it; entries are only discarded when a caller invokes Sweep.
func (p *PeerWindowLimiter) Sweep(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for peer, w := range p.peers {
		w.mu.Lock()
		stale := now.Sub(w.lastSeen) > p.staleAfter
		w.mu.Unlock()
		if stale {
			delete(p.peers, peer)
			n++
		}
	}
	return n
}
