package replicator

import (
	"github.com/vireo-net/replicator/internal/idgen"
	"github.com/vireo-net/replicator/internal/scripting"
)

// SpawnObject queues obj for the next tick's spawn dispatch. A no-op if
// the object is already spawned. targets is an optional explicit
// recipient allow-list; nil means the spawn goes to every connected peer
// and later state updates go to every connected peer except the owner.
func (r *Replicator) SpawnObject(obj scripting.Object, targets ...idgen.ClientID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.online {
		return ErrOffline
	}
	return r.enqueueSpawn(obj, targets, ownershipOverride{})
}

// SpawnObjectWithOwnership queues obj for the next tick's spawn dispatch
// with an explicit ownership override, applied hierarchically if
// requested — the mechanism behind end-to-end scenario 4 (hierarchical
// ownership at spawn).
func (r *Replicator) SpawnObjectWithOwnership(obj scripting.Object, owner idgen.ClientID, role Role, hierarchical bool, targets ...idgen.ClientID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.online {
		return ErrOffline
	}
	return r.enqueueSpawn(obj, targets, ownershipOverride{set: true, ownerClientID: owner, role: role, hierarchical: hierarchical})
}

func (r *Replicator) enqueueSpawn(obj scripting.Object, targets []idgen.ClientID, override ownershipOverride) error {
	id, ok := r.idOf(obj)
	if ok {
		if e, tracked := r.objects[id]; tracked && e.Spawned {
			return ErrAlreadySpawned
		}
	}
	r.spawnQueue = append(r.spawnQueue, spawnIntent{object: obj, targets: targets, override: override})
	return nil
}

// DespawnObject only proceeds if the object is locally owned and spawned;
// it removes any pending spawn intent for the same object, appends a
// despawn intent, and immediately invokes the local OnNetworkDespawn hook
// — the network message itself is emitted on the next tick.
func (r *Replicator) DespawnObject(obj scripting.Object) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.online {
		return ErrOffline
	}

	id, ok := r.idOf(obj)
	if !ok {
		return ErrObjectNotFound
	}
	entry, tracked := r.objects[id]
	if !tracked {
		return ErrObjectNotFound
	}
	if entry.Role != RoleOwnedAuthoritative {
		return ErrNotOwner
	}
	if !entry.Spawned {
		return ErrNotSpawned
	}

	filtered := r.spawnQueue[:0]
	for _, intent := range r.spawnQueue {
		if intentID, ok := r.idOf(intent.object); ok && intentID == id {
			continue
		}
		filtered = append(filtered, intent)
	}
	r.spawnQueue = filtered

	r.despawnQueue = append(r.despawnQueue, despawnIntent{objectID: id})

	if entry.NetworkObject != nil {
		entry.NetworkObject.OnNetworkDespawn()
	}
	entry.Object.Destroy()
	r.removeObject(id)
	return nil
}

// idOf returns the local id already assigned to obj, if it has been added
// to the registry. Objects are matched by pointer identity via a reverse
// scan; sessions with very large registries would want an object->id side
// map, but registries here are bounded by scene population, not by wire
// traffic volume.
func (r *Replicator) idOf(obj scripting.Object) (idgen.ObjectID, bool) {
	for id, e := range r.objects {
		if e.Object == obj {
			return id, true
		}
	}
	return idgen.Empty, false
}
