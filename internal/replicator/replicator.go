// Package replicator implements the network object replicator: the
// registry, remap table, serializer dispatch table, spawn/despawn queues
// and the per-tick control loop that keep engine objects in sync across an
// authoritative server and its connected clients.
package replicator

import (
	"sync"
	"sync/atomic"

	"github.com/vireo-net/replicator/internal/idgen"
	"github.com/vireo-net/replicator/internal/observability/log"
	"github.com/vireo-net/replicator/internal/scripting"
	"github.com/vireo-net/replicator/internal/transport"
	"github.com/vireo-net/replicator/pkg/generic"
)

// Replicator owns every piece of state named in the concurrency model: the
// object registry, both intent queues, the remap table, the new-clients
// list, and the two pooled stream buffers, all behind one mutex. Every
// exported method runs to completion while holding it.
type Replicator struct {
	mu sync.Mutex

	online   bool
	isServer bool
	localID  idgen.ClientID

	engine scripting.Engine
	peer   transport.Peer
	log    log.Log

	serializers *serializerRegistry
	remap       *remapTable

	objects map[idgen.ObjectID]*ReplicatedObject

	spawnQueue   []spawnIntent
	despawnQueue []despawnIntent
	newClients   []idgen.ClientID

	writeStreams *generic.Pool[*scripting.Stream]
	readStreams  *generic.Pool[*scripting.Stream]

	activeMapping bool

	frame atomic.Uint32
}

// Option configures a Replicator at construction.
type Option func(*Replicator)

// WithClientID overrides the local client id. A server defaults to
// idgen.ServerClientID; nothing else assigns a client's id, so a client
// built without this option keeps the zero value, which equals
// idgen.ServerClientID.
func WithClientID(id idgen.ClientID) Option {
	return func(r *Replicator) { r.localID = id }
}

// New builds an offline Replicator. Call Open to bring it online once the
// transport peer and engine collaborator are ready; per invariant 7, every
// control-API call before Open (or after Clear) is a no-op.
func New(isServer bool, engine scripting.Engine, peer transport.Peer, logger log.Log, opts ...Option) *Replicator {
	r := &Replicator{
		isServer: isServer,
		engine:   engine,
		peer:     peer,
		log:      logger,
		remap:    newRemapTable(),
		objects:  make(map[idgen.ObjectID]*ReplicatedObject),
		writeStreams: generic.NewPool(func() *scripting.Stream {
			return &scripting.Stream{Buf: make([]byte, 0, 512)}
		}),
		readStreams: generic.NewPool(func() *scripting.Stream {
			return &scripting.Stream{}
		}),
	}
	r.serializers = newSerializerRegistry(engine)
	if isServer {
		r.localID = idgen.ServerClientID
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open marks the replicator online; control-API calls are no-ops until
// this has been called.
func (r *Replicator) Open() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.online = true
}

// Clear is the shutdown path: drains both queues, despawns every spawned
// object locally, clears the remap table, and marks the replicator
// offline. The pooled stream buffers are not released here; they stay in
// their pools.
func (r *Replicator) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, obj := range r.objects {
		if obj.Spawned && obj.NetworkObject != nil {
			obj.NetworkObject.OnNetworkDespawn()
		}
		obj.Object.Destroy()
	}
	r.objects = make(map[idgen.ObjectID]*ReplicatedObject)
	r.spawnQueue = nil
	r.despawnQueue = nil
	r.newClients = nil
	r.remap.clear()
	r.online = false
}

func (r *Replicator) acquireWriteStream() *scripting.Stream {
	s := r.writeStreams.Get()
	s.Buf = s.Buf[:0]
	s.Pos = 0
	return s
}

func (r *Replicator) releaseWriteStream(s *scripting.Stream) { r.writeStreams.Put(s) }

func (r *Replicator) acquireReadStream(data []byte) *scripting.Stream {
	s := r.readStreams.Get()
	s.Buf = data
	s.Pos = 0
	return s
}

func (r *Replicator) releaseReadStream(s *scripting.Stream) { r.readStreams.Put(s) }
