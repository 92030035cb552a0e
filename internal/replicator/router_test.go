package replicator

import (
	"sync"

	"github.com/vireo-net/replicator/internal/idgen"
	"github.com/vireo-net/replicator/internal/transport"
)

// testRouter wires a fixed set of routerPeers into a loopback network so
// scenario tests can exercise the wire-message round trip without a real
// transport.Peer implementation.
type testRouter struct {
	mu    sync.Mutex
	peers map[idgen.ClientID]*routerPeer
}

func newTestRouter() *testRouter {
	return &testRouter{peers: make(map[idgen.ClientID]*routerPeer)}
}

// routerPeer is a transport.Peer whose EndSend delivers straight into the
// addressed peer's Incoming channel via the shared router.
type routerPeer struct {
	selfID   idgen.ClientID
	router   *testRouter
	incoming chan transport.IncomingMessage

	mu      sync.Mutex
	clients []transport.Client
}

func (r *testRouter) newPeer(selfID idgen.ClientID) *routerPeer {
	p := &routerPeer{
		selfID:   selfID,
		router:   r,
		incoming: make(chan transport.IncomingMessage, 256),
	}
	r.mu.Lock()
	r.peers[selfID] = p
	r.mu.Unlock()
	return p
}

// setClients declares which peer ids this peer currently sees as
// connected (a server's clients, or a client's single upstream server).
func (p *routerPeer) setClients(ids ...idgen.ClientID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clients = p.clients[:0]
	for _, id := range ids {
		p.clients = append(p.clients, transport.Client{State: transport.ClientConnected, ClientID: id})
	}
}

func (p *routerPeer) BeginSend() []byte { return nil }

func (p *routerPeer) EndSend(msg transport.OutgoingMessage) error {
	targets := msg.Targets
	if len(targets) == 0 {
		p.mu.Lock()
		for _, c := range p.clients {
			targets = append(targets, c.ClientID)
		}
		p.mu.Unlock()
	}
	p.router.mu.Lock()
	defer p.router.mu.Unlock()
	for _, t := range targets {
		if t == p.selfID {
			continue
		}
		dest, ok := p.router.peers[t]
		if !ok {
			continue
		}
		payload := append([]byte(nil), msg.Payload...)
		dest.incoming <- transport.IncomingMessage{From: p.selfID, Channel: msg.Channel, Payload: payload}
	}
	return nil
}

func (p *routerPeer) Incoming() <-chan transport.IncomingMessage { return p.incoming }

func (p *routerPeer) Clients() []transport.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]transport.Client(nil), p.clients...)
}

func (p *routerPeer) Close() error { return nil }

// drain feeds every currently queued message on p into repl.HandleMessage,
// synchronously, until the channel is empty.
func drain(p *routerPeer, repl *Replicator) {
	for {
		select {
		case msg := <-p.incoming:
			repl.HandleMessage(msg)
		default:
			return
		}
	}
}
