// Package transport names the lower network layer the replicator core
// consumes: a Peer that can address one or many clients over two channel
// kinds, per spec section 6. It is deliberately thin — framing, connection
// setup, and retransmission live in the concrete implementations under
// quicpeer and wspeer.
package transport

import "github.com/vireo-net/replicator/internal/idgen"

// ChannelKind selects the delivery guarantee a message is sent under.
type ChannelKind uint8

const (
	// ReliableOrdered carries lifecycle and ownership messages: spawn,
	// despawn, role. Messages to the same peer arrive in send order.
	ReliableOrdered ChannelKind = iota
	// Unreliable carries the periodic state broadcast. May reorder or
	// drop; the replicator gates acceptance on the owner_frame counter.
	Unreliable
)

func (c ChannelKind) String() string {
	if c == Unreliable {
		return "unreliable"
	}
	return "reliable-ordered"
}

// ClientState tracks a peer's connection lifecycle as observed by the
// transport layer.
type ClientState uint8

const (
	ClientConnecting ClientState = iota
	ClientConnected
	ClientDisconnected
)

// Client is a connected peer as the replicator's public API sees it: state
// plus an addressable identity. The connection handle is opaque to the
// replicator core.
type Client struct {
	State    ClientState
	ClientID idgen.ClientID
}

// OutgoingMessage is the unit of work a Peer accepts: raw wire bytes (see
// internal/wire), a channel kind, and an optional recipient allow-list.
// A nil or empty Targets slice means "broadcast to every connected
// client"; the replicator passes nil for broadcasts and leaves the fan-out
// to the Peer. A non-empty Targets slice is authoritative.
type OutgoingMessage struct {
	Channel ChannelKind
	Payload []byte
	Targets []idgen.ClientID
}

// IncomingMessage is what a Peer hands back to the replicator's message
// dispatcher: which client sent it, on which channel, and the raw payload.
type IncomingMessage struct {
	From    idgen.ClientID
	Channel ChannelKind
	Payload []byte
}

// Peer is the transport contract the replicator depends on. It is
// intentionally non-blocking on the send path (spec section 5: "the
// transport peer is assumed non-blocking, fire-and-queue").
type Peer interface {
	// BeginSend reserves a reusable send buffer for the calling goroutine.
	// Concrete peers may pool buffers here. The replicator does not call
	// it; it builds each payload itself and hands it to EndSend.
	BeginSend() []byte

	// EndSend enqueues msg for delivery and returns immediately.
	EndSend(msg OutgoingMessage) error

	// Incoming returns the channel the replicator's tick/handler loop
	// drains inbound messages from.
	Incoming() <-chan IncomingMessage

	// Clients returns the current connected-peer set (server side) or the
	// single upstream peer (client side).
	Clients() []Client

	// Close releases the peer's resources.
	Close() error
}
