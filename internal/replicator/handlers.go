package replicator

import (
	"github.com/vireo-net/replicator/internal/idgen"
	"github.com/vireo-net/replicator/internal/observability/log"
	"github.com/vireo-net/replicator/internal/scripting"
	"github.com/vireo-net/replicator/internal/transport"
	"github.com/vireo-net/replicator/internal/wire"
)

// HandleMessage dispatches one inbound transport message to the matching
// handler (component F). Called from the caller's message-pump loop, once
// per received transport.IncomingMessage.
func (r *Replicator) HandleMessage(msg transport.IncomingMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.online {
		return
	}

	id, err := wire.PeekMessageID(msg.Payload)
	if err != nil {
		return
	}
	switch id {
	case wire.MessageObjectReplicate:
		r.onReplicate(msg)
	case wire.MessageObjectSpawn:
		r.onSpawn(msg)
	case wire.MessageObjectDespawn:
		r.onDespawn(msg)
	case wire.MessageObjectRole:
		r.onRole(msg)
	}
}

// onReplicate implements the five-step OnReplicate handler from spec 4.F.
func (r *Replicator) onReplicate(inbound transport.IncomingMessage) {
	var wireMsg wire.ObjectReplicate
	if err := wireMsg.Deserialize(inbound.Payload); err != nil {
		return
	}

	entry, ok := r.resolveByParentType(wireMsg.ObjectID, wireMsg.ParentID, wireMsg.TypeName)
	if !ok {
		r.log.Debug("replicator: replicate for unresolved object dropped", log.String("type", wireMsg.TypeName))
		return
	}

	if entry.OwnerClientID != inbound.From {
		return // sender is not the recorded owner
	}
	if entry.Role == RoleOwnedAuthoritative {
		return // stale cross-over: we think we own this
	}
	if wireMsg.OwnerFrame <= entry.LastOwnerFrame {
		return // replay / out-of-order
	}

	entry.LastOwnerFrame = wireMsg.OwnerFrame

	stream := r.acquireReadStream(wireMsg.Data)
	defer r.releaseReadStream(stream)

	var err error
	if entry.NetworkObject != nil {
		err = entry.NetworkObject.OnNetworkDeserialize(stream)
	} else {
		err = r.serializers.Deserialize(entry.Object, stream)
	}
	if err != nil {
		if !entry.invalidTypeWarned {
			r.log.Warn("replicator: deserialize failed", log.String("type", wireMsg.TypeName), log.Error(err))
			entry.invalidTypeWarned = true
		}
	}
}

// onSpawn implements the OnSpawn handler: resolve-or-reconstruct, with
// prefab-aware spawn when the message carries a prefab id.
func (r *Replicator) onSpawn(inbound transport.IncomingMessage) {
	var wireMsg wire.ObjectSpawn
	if err := wireMsg.Deserialize(inbound.Payload); err != nil {
		return
	}

	localParent := r.remap.toLocal(wireMsg.ParentID)

	if entry, ok := r.resolveByParentType(wireMsg.ObjectID, wireMsg.ParentID, wireMsg.TypeName); ok {
		// Already exists — matched by heuristic pairing. Duplicate spawn
		// via both remote pairing and a subsequent real spawn message is
		// explicitly a no-op the second time (spec section 9).
		if entry.Spawned {
			return
		}
		entry.Spawned = true
		if !r.isServer {
			entry.OwnerClientID = idgen.ClientID(wireMsg.OwnerClientID)
			if entry.Role == RoleOwnedAuthoritative {
				entry.Role = RoleReplicated
			}
		}
		if entry.NetworkObject != nil {
			entry.NetworkObject.OnNetworkSpawn()
		}
		return
	}

	obj, err := r.reconstructSpawnedObject(wireMsg, localParent)
	if err != nil {
		r.log.Warn("replicator: spawn reconstruction failed", log.String("type", wireMsg.TypeName), log.Error(err))
		return
	}

	entry := r.addObject(obj, wireMsg.ObjectID, localParent)
	entry.OwnerClientID = idgen.ClientID(wireMsg.OwnerClientID)
	entry.Role = RoleReplicated
	if entry.OwnerClientID == r.localID {
		entry.Role = RoleOwnedAuthoritative
	}
	entry.Spawned = true

	r.remap.insert(wireMsg.ObjectID, entry.ObjectID)

	// For scene objects, set the engine scene parent: the resolved local
	// parent id (already remapped above) if it names anything, TryFindObject
	// is how the scripting collaborator turns that id into the live node.
	if so, ok := obj.(scripting.SceneObject); ok && !localParent.IsEmpty() {
		so.SetParent(localParent)
	}

	if entry.NetworkObject != nil {
		entry.NetworkObject.OnNetworkSpawn()
	}
}

// reconstructSpawnedObject instantiates the object named by an inbound
// ObjectSpawn: through the prefab manager when prefab_id is set (reusing
// an unbound instance under the resolved parent when one exists, only
// instantiating fresh as a last resort), otherwise by fully-qualified type
// name through the scripting type registry.
func (r *Replicator) reconstructSpawnedObject(msg wire.ObjectSpawn, localParent idgen.ObjectID) (scripting.Object, error) {
	if !msg.PrefabID.IsEmpty() {
		return r.reconstructFromPrefab(msg, localParent)
	}
	return r.engine.New(msg.TypeName)
}

func (r *Replicator) reconstructFromPrefab(msg wire.ObjectSpawn, localParent idgen.ObjectID) (scripting.Object, error) {
	var root scripting.SceneObject
	if parentObj, found := r.engine.TryFindObject(localParent); found {
		if pid, ok := parentObj.PrefabID(); ok && pid == msg.PrefabID {
			root = parentObj
		}
	}
	if root == nil {
		if parentObj, found := r.engine.TryFindObject(localParent); found {
			for _, childID := range parentObj.Children() {
				if child, found := r.engine.TryFindObject(childID); found {
					if pid, ok := child.PrefabID(); ok && pid == msg.PrefabID {
						if _, bound := r.resolveByID(childID); !bound {
							root = child
							break
						}
					}
				}
			}
		}
	}
	loadedFresh := false
	if root == nil {
		loaded, err := r.engine.Load(msg.PrefabID)
		if err != nil {
			return nil, ErrPrefabNotFound
		}
		root = loaded
		loadedFresh = true
	}
	if found, ok := r.engine.FindPrefabObject(root, msg.PrefabObjectID); ok {
		return found, nil
	}
	// The specific sub-object the spawn message named isn't in the prefab
	// instance. Drop a freshly loaded instance rather than binding the wrong
	// node — the spawn is aborted, never partially wired up. A reused
	// existing instance is left as it was.
	if loadedFresh {
		root.Destroy()
	}
	return nil, ErrPrefabNotFound
}

// onDespawn implements the OnDespawn handler: remap-aware resolve,
// owner-only, remove and invoke locally.
func (r *Replicator) onDespawn(inbound transport.IncomingMessage) {
	var wireMsg wire.ObjectDespawn
	if err := wireMsg.Deserialize(inbound.Payload); err != nil {
		return
	}
	entry, ok := r.resolveByID(wireMsg.ObjectID)
	if !ok {
		return
	}
	if entry.OwnerClientID != inbound.From && inbound.From != idgen.ServerClientID {
		return // sender is neither the recorded owner nor the relaying server
	}
	if entry.NetworkObject != nil {
		entry.NetworkObject.OnNetworkDespawn()
	}
	entry.Object.Destroy()
	r.removeObject(entry.ObjectID)
}

// onRole implements the OnRole handler and the server-side rebroadcast
// (excluding the originator).
func (r *Replicator) onRole(inbound transport.IncomingMessage) {
	var wireMsg wire.ObjectRole
	if err := wireMsg.Deserialize(inbound.Payload); err != nil {
		return
	}
	entry, ok := r.resolveByID(wireMsg.ObjectID)
	if !ok {
		return
	}
	if entry.OwnerClientID != inbound.From && inbound.From != idgen.ServerClientID {
		return
	}

	newOwner := idgen.ClientID(wireMsg.OwnerClientID)
	wasOwner := entry.Role == RoleOwnedAuthoritative
	entry.OwnerClientID = newOwner

	if newOwner == r.localID {
		entry.LastOwnerFrame = 0
		entry.Role = RoleOwnedAuthoritative
	} else {
		entry.LastOwnerFrame = 1
		if wasOwner {
			entry.Role = RoleReplicated
		}
	}

	if r.isServer {
		r.emitRole(entry, inbound.From)
	}
}
