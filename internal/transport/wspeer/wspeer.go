// Package wspeer implements transport.Peer over github.com/gorilla/websocket
// for deployments without UDP/QUIC available. A WebSocket connection has no
// unreliable delivery mode, so both transport.ReliableOrdered and
// transport.Unreliable messages travel the same ordered connection here —
// a deliberate fidelity gap against the two-channel contract, not a hidden
// one; callers that need real unreliable-channel semantics (frame-gated
// state broadcast tolerating loss) should prefer quicpeer.
package wspeer

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/vireo-net/replicator/internal/idgen"
	"github.com/vireo-net/replicator/internal/observability/log"
	"github.com/vireo-net/replicator/internal/transport"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// channelTag is the length of the one-byte prefix carrying the originating
// channel kind on every frame, so the receiver can still report it
// accurately even though both channels share one socket.
const channelTag = 1

type conn struct {
	clientID idgen.ClientID
	ws       *websocket.Conn
	writeMu  sync.Mutex
}

// Peer is a WebSocket-backed transport.Peer.
type Peer struct {
	log log.Log

	mu      sync.Mutex
	clients map[idgen.ClientID]*conn
	nextID  idgen.ClientID

	incoming chan transport.IncomingMessage
}

func New(logger log.Log) *Peer {
	return &Peer{
		log:      logger,
		clients:  make(map[idgen.ClientID]*conn),
		incoming: make(chan transport.IncomingMessage, 256),
	}
}

// Upgrade adopts an inbound HTTP request as a new server-side client
// connection, matching the teacher's Upgrader-based handler pattern.
func (p *Peer) Upgrade(w http.ResponseWriter, r *http.Request) error {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return errors.Wrap(err, "wspeer: upgrade")
	}
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.mu.Unlock()
	p.adopt(id, ws)
	return nil
}

// Dial connects to a server as the client role, addressed as ServerClientID.
func (p *Peer) Dial(url string) error {
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return errors.Wrapf(err, "wspeer: dial %s", url)
	}
	p.adopt(idgen.ServerClientID, ws)
	return nil
}

func (p *Peer) adopt(id idgen.ClientID, ws *websocket.Conn) {
	c := &conn{clientID: id, ws: ws}
	p.mu.Lock()
	p.clients[id] = c
	p.mu.Unlock()
	go p.readLoop(c)
}

func (p *Peer) readLoop(c *conn) {
	defer p.drop(c.clientID)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if len(data) < channelTag {
			continue
		}
		ch := transport.ReliableOrdered
		if data[0] == byte(transport.Unreliable) {
			ch = transport.Unreliable
		}
		p.incoming <- transport.IncomingMessage{From: c.clientID, Channel: ch, Payload: append([]byte(nil), data[channelTag:]...)}
	}
}

func (p *Peer) drop(id idgen.ClientID) {
	p.mu.Lock()
	delete(p.clients, id)
	p.mu.Unlock()
}

func (p *Peer) BeginSend() []byte { return nil }

// EndSend writes msg to each target's socket before returning; it does not
// queue, so a slow socket blocks the caller.
func (p *Peer) EndSend(msg transport.OutgoingMessage) error {
	p.mu.Lock()
	targets := msg.Targets
	if len(targets) == 0 {
		targets = make([]idgen.ClientID, 0, len(p.clients))
		for id := range p.clients {
			targets = append(targets, id)
		}
	}
	conns := make([]*conn, 0, len(targets))
	for _, id := range targets {
		if c, ok := p.clients[id]; ok {
			conns = append(conns, c)
		}
	}
	p.mu.Unlock()

	framed := make([]byte, channelTag+len(msg.Payload))
	framed[0] = byte(msg.Channel)
	copy(framed[channelTag:], msg.Payload)

	var firstErr error
	for _, c := range conns {
		c.writeMu.Lock()
		err := c.ws.WriteMessage(websocket.BinaryMessage, framed)
		c.writeMu.Unlock()
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("wspeer: write to client %d: %w", c.clientID, err)
		}
	}
	return firstErr
}

func (p *Peer) Incoming() <-chan transport.IncomingMessage { return p.incoming }

func (p *Peer) Clients() []transport.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]transport.Client, 0, len(p.clients))
	for id := range p.clients {
		out = append(out, transport.Client{State: transport.ClientConnected, ClientID: id})
	}
	return out
}

func (p *Peer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for _, c := range p.clients {
		if err := c.ws.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
