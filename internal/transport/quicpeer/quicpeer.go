// Package quicpeer implements transport.Peer over github.com/quic-go/quic-go,
// mapping the replicator's two channel kinds onto QUIC's own delivery
// guarantees instead of emulating one atop the other: a ReliableOrdered
// send opens (or reuses) a unidirectional stream per destination, since a
// QUIC stream is itself reliable and ordered; an Unreliable send rides the
// QUIC datagram extension, which drops and reorders exactly like the
// spec's unreliable channel.
package quicpeer

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/quic-go/quic-go"

	"github.com/vireo-net/replicator/internal/idgen"
	"github.com/vireo-net/replicator/internal/observability/log"
	"github.com/vireo-net/replicator/internal/transport"
)

// lengthPrefix is the framing quicpeer puts ahead of every stream message,
// matching the teacher's stream framing convention.
const lengthPrefix = 4

// Config controls the underlying QUIC transport.
type Config struct {
	TLSConfig            *tls.Config
	MaxDatagramFrameSize uint64
}

// DefaultConfig mirrors the teacher's DefaultQUICConfig. It records a
// MaxDatagramFrameSize of 1200, but quicConfig does not pass that value to
// quic-go; datagrams are enabled by quicConfig itself.
func DefaultConfig() Config {
	return Config{MaxDatagramFrameSize: 1200}
}

func (c Config) quicConfig() *quic.Config {
	return &quic.Config{
		EnableDatagrams:      true,
		MaxIncomingStreams:   256,
		MaxIncomingUniStreams: 256,
	}
}

type remoteConn struct {
	clientID idgen.ClientID
	conn     *quic.Conn
	sendMu   sync.Mutex
	stream   *quic.SendStream
	log      log.Log
}

// Peer is a QUIC-backed transport.Peer. One instance serves either the
// server role (Listen) or the client role (Dial); both roles share the
// same read/write plumbing since QUIC connections are symmetric once
// established.
type Peer struct {
	cfg      Config
	log      log.Log
	listener *quic.Listener

	mu      sync.Mutex
	clients map[idgen.ClientID]*remoteConn

	incoming chan transport.IncomingMessage
	nextID   idgen.ClientID
}

// New builds a Peer with no connections; Listen or Dial below populate it.
func New(cfg Config, logger log.Log) *Peer {
	return &Peer{
		cfg:      cfg,
		log:      logger,
		clients:  make(map[idgen.ClientID]*remoteConn),
		incoming: make(chan transport.IncomingMessage, 256),
	}
}

// Listen runs the server accept loop in the background until ctx is
// cancelled or the listener errors.
func (p *Peer) Listen(ctx context.Context, addr string) error {
	ln, err := quic.ListenAddr(addr, p.cfg.TLSConfig, p.cfg.quicConfig())
	if err != nil {
		return fmt.Errorf("quicpeer: listen %s: %w", addr, err)
	}
	p.listener = ln

	go func() {
		for {
			conn, err := ln.Accept(ctx)
			if err != nil {
				if ctx.Err() == nil {
					p.log.Warn("quicpeer: accept failed", log.Error(err))
				}
				return
			}
			p.adopt(ctx, conn)
		}
	}()
	return nil
}

// Dial connects to a server as a client peer; the resulting single
// remoteConn is addressed by idgen.ServerClientID from this peer's
// perspective.
func (p *Peer) Dial(ctx context.Context, addr string, tlsConf *tls.Config) error {
	conn, err := quic.DialAddr(ctx, addr, tlsConf, p.cfg.quicConfig())
	if err != nil {
		return fmt.Errorf("quicpeer: dial %s: %w", addr, err)
	}
	p.adoptAs(ctx, conn, idgen.ServerClientID)
	return nil
}

func (p *Peer) adopt(ctx context.Context, conn *quic.Conn) {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.mu.Unlock()
	p.adoptAs(ctx, conn, id)
}

func (p *Peer) adoptAs(ctx context.Context, conn *quic.Conn, id idgen.ClientID) {
	rc := &remoteConn{
		clientID: id,
		conn:     conn,
		log:      p.log.With(log.Uint32("client_id", uint32(id))),
	}
	p.mu.Lock()
	p.clients[id] = rc
	p.mu.Unlock()

	go p.readStreams(ctx, rc)
	go p.readDatagrams(ctx, rc)
}

func (p *Peer) readStreams(ctx context.Context, rc *remoteConn) {
	for {
		stream, err := rc.conn.AcceptUniStream(ctx)
		if err != nil {
			if ctx.Err() == nil {
				rc.log.Debug("quicpeer: stream accept ended", log.Error(err))
			}
			p.dropClient(rc.clientID)
			return
		}
		go p.readFramedStream(rc.clientID, stream)
	}
}

func (p *Peer) readFramedStream(from idgen.ClientID, stream *quic.ReceiveStream) {
	header := make([]byte, lengthPrefix)
	for {
		if _, err := io.ReadFull(stream, header); err != nil {
			return
		}
		size := binary.LittleEndian.Uint32(header)
		payload := make([]byte, size)
		if _, err := io.ReadFull(stream, payload); err != nil {
			return
		}
		p.incoming <- transport.IncomingMessage{From: from, Channel: transport.ReliableOrdered, Payload: payload}
	}
}

func (p *Peer) readDatagrams(ctx context.Context, rc *remoteConn) {
	for {
		payload, err := rc.conn.ReceiveDatagram(ctx)
		if err != nil {
			return
		}
		p.incoming <- transport.IncomingMessage{From: rc.clientID, Channel: transport.Unreliable, Payload: payload}
	}
}

func (p *Peer) dropClient(id idgen.ClientID) {
	p.mu.Lock()
	delete(p.clients, id)
	p.mu.Unlock()
}

// BeginSend returns nil; quicpeer does not pool send buffers since
// datagrams and stream frames are typically small and short-lived.
func (p *Peer) BeginSend() []byte { return nil }

// EndSend enqueues msg for delivery to every target (or every connected
// client when Targets is empty) and returns without waiting on the wire.
func (p *Peer) EndSend(msg transport.OutgoingMessage) error {
	p.mu.Lock()
	targets := msg.Targets
	if len(targets) == 0 {
		targets = make([]idgen.ClientID, 0, len(p.clients))
		for id := range p.clients {
			targets = append(targets, id)
		}
	}
	conns := make([]*remoteConn, 0, len(targets))
	for _, id := range targets {
		if rc, ok := p.clients[id]; ok {
			conns = append(conns, rc)
		}
	}
	p.mu.Unlock()

	for _, rc := range conns {
		rc := rc
		go func() {
			if err := p.send(rc, msg); err != nil {
				rc.log.Debug("quicpeer: send failed", log.Error(err))
			}
		}()
	}
	return nil
}

func (p *Peer) send(rc *remoteConn, msg transport.OutgoingMessage) error {
	if msg.Channel == transport.Unreliable {
		return rc.conn.SendDatagram(msg.Payload)
	}

	rc.sendMu.Lock()
	defer rc.sendMu.Unlock()
	if rc.stream == nil {
		s, err := rc.conn.OpenUniStream()
		if err != nil {
			return err
		}
		rc.stream = s
	}
	header := make([]byte, lengthPrefix)
	binary.LittleEndian.PutUint32(header, uint32(len(msg.Payload)))
	if _, err := rc.stream.Write(header); err != nil {
		rc.stream = nil
		return err
	}
	_, err := rc.stream.Write(msg.Payload)
	return err
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
	for _, rc := range p.clients {
		_ = rc.conn.CloseWithError(0, "shutdown")
	}
	if p.listener != nil {
		return p.listener.Close()
	}
	return nil
}
