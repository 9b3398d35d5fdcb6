// Package eventbus is C9: signed, authorized, rate-limited pub/sub per
// drive topic. Grounded on original_source/src-tauri/src/network/gossip.rs
// for the envelope shape and the receive-loop's verify/replay/ACL pipeline.
package eventbus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/foldsync/core/internal/apperr"
	"github.com/foldsync/core/internal/identity"
	"github.com/foldsync/core/internal/logging"
	"github.com/foldsync/core/internal/model"
	"github.com/foldsync/core/internal/ratelimit"
	"github.com/foldsync/core/internal/transport"
)

var log = logging.For("eventbus")

// ReplayWindow is the maximum age of a gossip message before it is rejected.
const ReplayWindow = 5 * time.Minute

// broadcastCapacity is the bounded fan-out channel size per subscription;
// at ≥75% full a warning is logged, and a full channel drops to that slow
// subscriber.
const broadcastCapacity = 256

// Envelope is the wire form of a SignedGossipMessage.
type Envelope struct {
	Event       json.RawMessage `json:"event"`
	EventKind   model.EventKind `json:"event_kind"`
	Sender      model.NodeID    `json:"sender"`
	TimestampMs int64           `json:"timestamp_ms"`
	Signature   [64]byte        `json:"signature"`
}

// canonicalBytes is event_kind ‖ event_bytes ‖ sender_bytes ‖
// timestamp_ms_le, the exact bytes the signature covers.
func canonicalBytes(kind model.EventKind, eventJSON []byte, sender model.NodeID, ts int64) []byte {
	out := make([]byte, 0, len(eventJSON)+len(kind)+len(sender)+8)
	out = append(out, []byte(kind)...)
	out = append(out, eventJSON...)
	out = append(out, sender[:]...)
	out = appendLE64(out, ts)
	return out
}

func appendLE64(b []byte, v int64) []byte {
	u := uint64(v)
	return append(b, byte(u), byte(u>>8), byte(u>>16), byte(u>>24), byte(u>>32), byte(u>>40), byte(u>>48), byte(u>>56))
}

// Delivery is what the bus hands to in-process subscribers after a message
// clears signature, replay, and ACL checks.
type Delivery struct {
	Drive  model.DriveID
	Kind   model.EventKind
	Data   json.RawMessage
	Sender model.NodeID
}

// Bus is C9's per-process state: one subscription per joined drive topic,
// fanning out verified deliveries to in-process listeners.
type Bus struct {
	id        *identity.Identity
	transport transport.Transport
	acl       transport.AclChecker
	peerLimit *ratelimit.PeerWindowLimiter

	mu     sync.Mutex
	topics map[model.DriveID]*topicState
}

type topicState struct {
	cancel    func()
	listeners []chan Delivery
	mu        sync.Mutex
}

// New constructs a Bus. aclChecker is the injected capability from §9 that
// keeps the bus decoupled from how the ACL store is owned.
func New(id *identity.Identity, tp transport.Transport, aclChecker transport.AclChecker) *Bus {
	return &Bus{
		id: id, transport: tp, acl: aclChecker,
		peerLimit: ratelimit.NewPeerWindowLimiter(),
		topics:    make(map[model.DriveID]*topicState),
	}
}

func topicOf(drive model.DriveID) transport.Topic { return transport.Topic(drive) }

// Publish signs event and sends it on drive's topic.
func (b *Bus) Publish(ctx context.Context, drive model.DriveID, kind model.EventKind, event any) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return apperr.Internal(err, "encoding event")
	}
	ts := time.Now().UnixMilli()
	sender := b.id.NodeID()
	sig := b.id.Sign(canonicalBytes(kind, eventJSON, sender, ts))

	env := Envelope{Event: eventJSON, EventKind: kind, Sender: sender, TimestampMs: ts}
	copy(env.Signature[:], sig)

	wire, err := json.Marshal(env)
	if err != nil {
		return apperr.Internal(err, "encoding envelope")
	}
	return b.transport.Publish(ctx, topicOf(drive), wire)
}

// Subscribe registers an in-process listener for verified deliveries on
// drive, joining the underlying transport topic if this is the first
// listener. Returns a channel and an unsubscribe function.
func (b *Bus) Subscribe(ctx context.Context, drive model.DriveID) (<-chan Delivery, func(), error) {
	b.mu.Lock()
	ts, ok := b.topics[drive]
	if !ok {
		msgs, cancelTransport, err := b.transport.Subscribe(ctx, topicOf(drive))
		if err != nil {
			b.mu.Unlock()
			return nil, nil, apperr.SyncFailed(err, "subscribing to transport topic")
		}
		ts = &topicState{cancel: cancelTransport}
		b.topics[drive] = ts
		go b.receiveLoop(drive, msgs)
	}
	b.mu.Unlock()

	ch := make(chan Delivery, broadcastCapacity)
	ts.mu.Lock()
	ts.listeners = append(ts.listeners, ch)
	ts.mu.Unlock()

	cancel := func() {
		ts.mu.Lock()
		defer ts.mu.Unlock()
		for i, c := range ts.listeners {
			if c == ch {
				ts.listeners = append(ts.listeners[:i], ts.listeners[i+1:]...)
				close(ch)
				break
			}
		}
	}
	return ch, cancel, nil
}

func (b *Bus) receiveLoop(drive model.DriveID, msgs <-chan []byte) {
	for raw := range msgs {
		b.handleRaw(drive, raw)
	}
}

func (b *Bus) handleRaw(drive model.DriveID, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Warn().Err(err).Msg("dropping malformed gossip envelope")
		return
	}

	// Rate limit before verifying the signature, per the design's ordering.
	if !b.peerLimit.Allow(env.Sender, time.Now()) {
		log.Warn().Str("peer", env.Sender.Short()).Msg("dropping gossip message: peer rate limited")
		return
	}

	canon := canonicalBytes(env.EventKind, env.Event, env.Sender, env.TimestampMs)
	if !identity.Verify(env.Sender, canon, env.Signature[:]) {
		log.Warn().Str("peer", env.Sender.Short()).Msg("dropping gossip message: invalid signature")
		return
	}

	age := time.Since(time.UnixMilli(env.TimestampMs))
	if age > ReplayWindow || age < -ReplayWindow {
		log.Warn().Str("peer", env.Sender.Short()).Dur("age", age).Msg("dropping gossip message: outside replay window")
		return
	}

	if b.acl != nil && !b.acl(drive.Hex(), env.Sender.Hex()) {
		log.Warn().Str("peer", env.Sender.Short()).Str("drive", drive.Hex()).
			Msg("dropping gossip message: sender lacks read access")
		return
	}

	b.deliver(drive, Delivery{Drive: drive, Kind: env.EventKind, Data: env.Event, Sender: env.Sender})
}

func (b *Bus) deliver(drive model.DriveID, d Delivery) {
	b.mu.Lock()
	ts, ok := b.topics[drive]
	b.mu.Unlock()
	if !ok {
		return
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, ch := range ts.listeners {
		if len(ch) >= (broadcastCapacity*3)/4 {
			log.Warn().Str("drive", drive.Hex()).Msg("broadcast channel nearing capacity")
		}
		select {
		case ch <- d:
		default:
			log.Warn().Str("drive", drive.Hex()).Msg("dropping delivery to slow subscriber")
		}
	}
}

// Shutdown aborts every topic's receive loop and releases the transport
// handle. Must be awaited before the runtime tears down, per the
// graceful-shutdown contract.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	topics := b.topics
	b.topics = make(map[model.DriveID]*topicState)
	b.mu.Unlock()

	for _, ts := range topics {
		ts.cancel()
		ts.mu.Lock()
		for _, ch := range ts.listeners {
			close(ch)
		}
		ts.listeners = nil
		ts.mu.Unlock()
	}
	return b.transport.Shutdown(ctx)
}
