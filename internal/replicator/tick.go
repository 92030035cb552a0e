package replicator

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/vireo-net/replicator/internal/idgen"
	"github.com/vireo-net/replicator/internal/observability/log"
	"github.com/vireo-net/replicator/internal/scripting"
	"github.com/vireo-net/replicator/internal/transport"
	"github.com/vireo-net/replicator/internal/wire"
	"github.com/vireo-net/replicator/pkg/concurrent"
	"github.com/vireo-net/replicator/pkg/sequence"
)

// Tick drives one replication frame through the seven ordered phases from
// spec section 4.E. Gameplay threads calling the public API concurrently
// with Tick block on the same mutex Tick holds for its entire duration.
func (r *Replicator) Tick() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.online {
		return
	}

	frame := r.frame.Add(1)

	// Phase 1: pre-update — set the activeMapping flag. Nothing in this
	// package or in the scripting collaborator reads it, so deserializers
	// get no foreign-id translation from it; ids are translated only where
	// the handlers and senders call the remap table themselves.
	r.activeMapping = true

	// Phase 2: late-joiner backfill (server only).
	if r.isServer && len(r.newClients) > 0 {
		newClients := append([]idgen.ClientID(nil), r.newClients...)
		r.newClients = r.newClients[:0]
		r.backfillNewClients(newClients)
	}

	// Phase 3: dispatch targets.
	allClients := r.connectedClientIDs()
	if r.isServer && len(allClients) == 0 {
		r.activeMapping = false
		return
	}

	// Phase 4: despawn drain, reliable-ordered.
	if len(r.despawnQueue) > 0 {
		despawns := r.despawnQueue
		r.despawnQueue = nil
		for _, intent := range despawns {
			id := intent.objectID
			wireID := id
			if !r.isServer {
				wireID = r.remap.toForeign(id)
			}
			r.emitDespawn(wireID, nil, idgen.ClientID(0))
		}
	}

	// Phase 5: spawn drain — two-phase: propagate hierarchical ownership,
	// then emit.
	if len(r.spawnQueue) > 0 {
		spawns := r.spawnQueue
		r.spawnQueue = nil
		r.propagateHierarchicalOwnership(spawns)
		for _, intent := range spawns {
			r.dispatchSpawn(intent)
		}
	}

	// Phase 6: state broadcast, unreliable, frame-gated.
	if err := r.broadcastState(uint32(frame)); err != nil {
		r.log.Warn("replicator: tick had serialize errors", log.Error(err))
	}

	// Phase 7: post-update.
	r.activeMapping = false
}

func (r *Replicator) connectedClientIDs() []idgen.ClientID {
	clients := r.peer.Clients()
	ids := make([]idgen.ClientID, 0, len(clients))
	for _, c := range clients {
		if c.State == transport.ClientConnected {
			ids = append(ids, c.ClientID)
		}
	}
	return ids
}

// backfillNewClients fans the per-new-client spawn backfill out
// concurrently: each newly connected client independently receives every
// currently spawned object it is allowed to see (per that object's target
// allow-list), so one slow or large client's backfill never blocks another
// client's from being sent.
func (r *Replicator) backfillNewClients(newClients []idgen.ClientID) {
	var spawned []*ReplicatedObject
	for _, e := range r.objects {
		if e.Spawned {
			spawned = append(spawned, e)
		}
	}
	if len(spawned) == 0 {
		return
	}

	err := concurrent.Concurrent(sequence.From(newClients), func(clientID idgen.ClientID) error {
		for _, e := range spawned {
			recipients := intersectOrAll([]idgen.ClientID{clientID}, e.TargetClientIDs)
			if len(recipients) == 0 {
				continue
			}
			r.emitSpawn(e, recipients)
		}
		return nil
	})
	if err != nil {
		r.log.Warn("replicator: late-joiner backfill error", log.Error(err))
	}
}

func intersectOrAll(candidates, allowList []idgen.ClientID) []idgen.ClientID {
	if len(allowList) == 0 {
		return candidates
	}
	allowed := make(map[idgen.ClientID]struct{}, len(allowList))
	for _, id := range allowList {
		allowed[id] = struct{}{}
	}
	out := make([]idgen.ClientID, 0, len(candidates))
	for _, id := range candidates {
		if _, ok := allowed[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// propagateHierarchicalOwnership is pass-order-independent: every intent
// flagged hierarchical propagates its (owner, role) to any other intent in
// the same batch whose object is a scene-descendant, regardless of queue
// order.
func (r *Replicator) propagateHierarchicalOwnership(spawns []spawnIntent) {
	for i := range spawns {
		if !spawns[i].override.set || !spawns[i].override.hierarchical {
			continue
		}
		for j := range spawns {
			if j == i {
				continue
			}
			if r.isParentOf(spawns[i].object, spawns[j].object) {
				spawns[j].override = ownershipOverride{
					set:           true,
					ownerClientID: spawns[i].override.ownerClientID,
					role:          spawns[i].override.role,
					hierarchical:  spawns[i].override.hierarchical,
				}
			}
		}
	}
}

// isParentOf walks obj's scene-parent chain looking for ancestor, mirroring
// the original source's recursive IsParentOf check. Both objects may still
// be unregistered (queued in the same spawn batch), so ancestor is matched
// by pointer identity against each resolved link rather than by registry id.
func (r *Replicator) isParentOf(ancestor, obj scripting.Object) bool {
	so, ok := obj.(scripting.SceneObject)
	if !ok {
		return false
	}
	pid, ok := so.Parent()
	seen := map[idgen.ObjectID]struct{}{}
	for ok {
		if _, loop := seen[pid]; loop {
			return false
		}
		seen[pid] = struct{}{}

		parentObj, found := r.engine.TryFindObject(pid)
		if !found {
			return false
		}
		if scripting.Object(parentObj) == ancestor {
			return true
		}
		pid, ok = parentObj.Parent()
	}
	return false
}

func (r *Replicator) dispatchSpawn(intent spawnIntent) {
	id, tracked := r.idOf(intent.object)
	var entry *ReplicatedObject
	if tracked {
		entry = r.objects[id]
	} else {
		newID := idgen.New()
		entry = r.addObject(intent.object, newID, inferParentID(intent.object))
	}

	if entry.Role != RoleOwnedAuthoritative {
		return
	}

	if intent.override.set {
		entry.OwnerClientID = intent.override.ownerClientID
		if intent.override.role != RoleNone {
			entry.Role = intent.override.role
		}
		if intent.override.hierarchical {
			for _, child := range r.findObjectsByParent(entry.ObjectID) {
				child.OwnerClientID = intent.override.ownerClientID
				if child.Role == RoleOwnedAuthoritative {
					child.Role = RoleReplicated
				}
			}
		}
	}

	entry.TargetClientIDs = intent.targets
	entry.Spawned = true
	r.emitSpawn(entry, r.dispatchTargetsFor(entry))
}

func (r *Replicator) dispatchTargetsFor(e *ReplicatedObject) []idgen.ClientID {
	if len(e.TargetClientIDs) > 0 {
		return e.TargetClientIDs
	}
	return nil // nil => broadcast, resolved by the transport peer
}

// broadcastState visits every eligible entry in priority order: locally
// owned-and-authoritative state goes out ahead of server-relayed state, so
// a peer implementation with a bounded per-tick send budget drops the
// least time-sensitive updates first.
func (r *Replicator) broadcastState(frame uint32) error {
	pq := sequence.NewPriorityQueue[*ReplicatedObject]()
	var reaped []idgen.ObjectID
	for id, e := range r.objects {
		if e.Object.Destroyed() {
			reaped = append(reaped, id)
			continue
		}
		ownedHere := e.Role == RoleOwnedAuthoritative
		relayedByServer := r.isServer && e.Role == RoleReplicated && e.OwnerClientID != idgen.ServerClientID
		if !ownedHere && !relayedByServer {
			continue
		}
		priority := 0
		if ownedHere {
			priority = 1
		}
		pq.Enqueue(e, priority)
	}
	for _, id := range reaped {
		r.removeObject(id)
	}

	var errs error
	for {
		e, ok := pq.Dequeue()
		if !ok {
			break
		}
		if err := r.replicateOne(e, frame); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (r *Replicator) replicateOne(e *ReplicatedObject, frame uint32) error {
	stream := r.acquireWriteStream()
	defer r.releaseWriteStream(stream)

	var err error
	if e.NetworkObject != nil {
		err = e.NetworkObject.OnNetworkSerialize(stream)
	} else {
		err = r.serializers.Serialize(e.Object, stream)
	}
	if err != nil {
		if !e.invalidTypeWarned {
			e.invalidTypeWarned = true
			return fmt.Errorf("%s (%s): %w", e.ObjectID, e.Object.TypeName(), err)
		}
		return nil
	}

	wireID := e.ObjectID
	wireParent := e.ParentID
	if !r.isServer {
		wireID = r.remap.toForeign(e.ObjectID)
		wireParent = r.remap.toForeign(e.ParentID)
	}

	msg := &wire.ObjectReplicate{
		OwnerFrame: frame,
		ObjectID:   wireID,
		ParentID:   wireParent,
		TypeName:   e.Object.TypeName(),
		Data:       append([]byte(nil), stream.Buf...),
	}
	buf, err := msg.Serialize()
	if err != nil {
		return fmt.Errorf("%s: wire encode: %w", e.ObjectID, err)
	}
	targets := e.TargetClientIDs
	if len(targets) == 0 && e.OwnerClientID != r.localID {
		// Relayed state goes to every connected peer except its owner.
		targets = excludeFromAll(r.connectedClientIDs(), e.OwnerClientID)
		if len(targets) == 0 {
			return nil
		}
	}
	_ = r.peer.EndSend(transport.OutgoingMessage{Channel: transport.Unreliable, Payload: buf, Targets: targets})
	return nil
}

func (r *Replicator) emitSpawn(e *ReplicatedObject, targets []idgen.ClientID) {
	msg := &wire.ObjectSpawn{
		ObjectID:      e.ObjectID,
		ParentID:      e.ParentID,
		OwnerClientID: uint32(e.OwnerClientID),
		TypeName:      e.Object.TypeName(),
	}
	if so, ok := e.Object.(scripting.SceneObject); ok {
		if pid, ok := so.PrefabID(); ok {
			msg.PrefabID = pid
		}
		if poid, ok := so.PrefabObjectID(); ok {
			msg.PrefabObjectID = poid
		}
	}
	buf, err := msg.Serialize()
	if err != nil {
		r.log.Warn("replicator: spawn encode failed", log.Error(err))
		return
	}
	_ = r.peer.EndSend(transport.OutgoingMessage{Channel: transport.ReliableOrdered, Payload: buf, Targets: targets})
}

func (r *Replicator) emitDespawn(id idgen.ObjectID, targets []idgen.ClientID, exclude idgen.ClientID) {
	msg := &wire.ObjectDespawn{ObjectID: id}
	buf, err := msg.Serialize()
	if err != nil {
		r.log.Warn("replicator: despawn encode failed", log.Error(err))
		return
	}
	if targets == nil && exclude != 0 {
		targets = excludeFromAll(r.connectedClientIDs(), exclude)
	}
	_ = r.peer.EndSend(transport.OutgoingMessage{Channel: transport.ReliableOrdered, Payload: buf, Targets: targets})
}

func (r *Replicator) emitRole(e *ReplicatedObject, excludeOriginator idgen.ClientID) {
	msg := &wire.ObjectRole{ObjectID: e.ObjectID, OwnerClientID: uint32(e.OwnerClientID)}
	buf, err := msg.Serialize()
	if err != nil {
		r.log.Warn("replicator: role encode failed", log.Error(err))
		return
	}
	// A client's only connected peer is its upstream server, so excluding it
	// would leave no target and the role change would never reach the server
	// for relay; only a server rebroadcasting to its other clients excludes
	// the originator.
	targets := r.connectedClientIDs()
	if r.isServer {
		targets = excludeFromAll(targets, excludeOriginator)
	}
	_ = r.peer.EndSend(transport.OutgoingMessage{Channel: transport.ReliableOrdered, Payload: buf, Targets: targets})
}

func excludeFromAll(all []idgen.ClientID, exclude idgen.ClientID) []idgen.ClientID {
	out := make([]idgen.ClientID, 0, len(all))
	for _, id := range all {
		if id != exclude {
			out = append(out, id)
		}
	}
	return out
}
