package replicator

import (
	"github.com/vireo-net/replicator/internal/idgen"
	"github.com/vireo-net/replicator/internal/observability/log"
	"github.com/vireo-net/replicator/internal/scripting"
)

// AddObject records obj in the registry under a freshly minted local id,
// inferring parent_id from the object's scene parent when parentID is not
// supplied. A no-op if obj is already tracked (returns its existing id).
func (r *Replicator) AddObject(obj scripting.Object, parentID ...idgen.ObjectID) (idgen.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.online {
		return idgen.Empty, ErrOffline
	}

	if id, ok := r.idOf(obj); ok {
		return id, nil
	}

	parent := inferParentID(obj)
	if len(parentID) > 0 {
		parent = parentID[0]
	}

	id := idgen.New()
	r.addObject(obj, id, parent)
	return id, nil
}

// RemoveObject removes obj from the registry if present. Fixes the
// original source's reversed early-return; the intended and implemented
// behavior is "remove if present, silent no-op otherwise".
func (r *Replicator) RemoveObject(obj scripting.Object) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.online {
		return
	}
	id, ok := r.idOf(obj)
	if !ok {
		return
	}
	r.removeObject(id)
}

// GetObjectOwnerClientId returns the recorded owner for obj, or false if
// untracked.
func (r *Replicator) GetObjectOwnerClientId(obj scripting.Object) (idgen.ClientID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.idOf(obj)
	if !ok {
		return 0, false
	}
	return r.objects[id].OwnerClientID, true
}

// GetObjectRole returns obj's local role, or RoleNone if untracked.
func (r *Replicator) GetObjectRole(obj scripting.Object) Role {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.idOf(obj)
	if !ok {
		return RoleNone
	}
	return r.objects[id].Role
}

// SetObjectOwnership implements the ownership-transfer half of the role
// state machine. A non-owner may only change its own local role and may
// never elevate itself to OwnedAuthoritative directly (it must wait for an
// OnRole message). The current owner changing ownership downgrades itself
// atomically and emits a reliable-ordered role message; hierarchical mode
// recurses over every registry entry whose parent_id equals obj's id.
//
// If obj has not yet been added — only queued via a pending SpawnObject —
// the override is written onto that pending intent instead, per the
// original source's "special case if we're just spawning this object".
func (r *Replicator) SetObjectOwnership(obj scripting.Object, owner idgen.ClientID, localRole Role, hierarchical bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.online {
		return ErrOffline
	}

	id, tracked := r.idOf(obj)
	if !tracked {
		for i := range r.spawnQueue {
			if r.spawnQueue[i].object == obj {
				r.spawnQueue[i].override = ownershipOverride{set: true, ownerClientID: owner, role: localRole, hierarchical: hierarchical}
				return nil
			}
		}
		return ErrObjectNotFound
	}

	entry := r.objects[id]
	isOwner := entry.Role == RoleOwnedAuthoritative
	if !isOwner && localRole == RoleOwnedAuthoritative {
		return ErrCannotSelfElevate
	}

	if !isOwner {
		// Not the owner: only the local role may change, never who owns it,
		// and no role message goes out (original source: "Allow to change
		// local role of the object (except ownership)").
		entry.Role = localRole
		return nil
	}

	entry.Role = RoleReplicated
	entry.OwnerClientID = owner

	if hierarchical {
		visited := map[idgen.ObjectID]struct{}{id: {}}
		pending := r.findObjectsByParent(id)
		for len(pending) > 0 {
			child := pending[0]
			pending = pending[1:]
			if _, seen := visited[child.ObjectID]; seen {
				continue
			}
			visited[child.ObjectID] = struct{}{}
			child.OwnerClientID = owner
			if child.Role == RoleOwnedAuthoritative {
				child.Role = RoleReplicated
			}
			pending = append(pending, r.findObjectsByParent(child.ObjectID)...)
		}
	}

	r.emitRole(entry, idgen.ServerClientID)
	return nil
}

// DirtyObject is a recognized hook reserved for a future per-object
// dirty-tracking system; today it only validates that the caller is the
// owner, so misuse is observable in logs even though the call itself does
// nothing.
func (r *Replicator) DirtyObject(obj scripting.Object) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.online {
		return
	}
	id, ok := r.idOf(obj)
	if !ok {
		return
	}
	if r.objects[id].Role != RoleOwnedAuthoritative {
		r.log.Debug("replicator: DirtyObject called by non-owner", log.String("object_id", id.String()))
	}
}

// ClientConnected registers a newly connected peer for late-joiner
// backfill on the next tick (server side only has meaningful effect).
func (r *Replicator) ClientConnected(id idgen.ClientID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.online || !r.isServer {
		return
	}
	r.newClients = append(r.newClients, id)
}

// ClientDisconnected removes every registry entry owned by id, invokes
// OnNetworkDespawn locally, and emits a reliable-ordered despawn to the
// remaining clients for each — the disconnect-cleanup scenario.
func (r *Replicator) ClientDisconnected(id idgen.ClientID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.online || !r.isServer {
		return
	}

	var owned []idgen.ObjectID
	for oid, e := range r.objects {
		if e.OwnerClientID == id {
			owned = append(owned, oid)
		}
	}
	for _, oid := range owned {
		e := r.objects[oid]
		if e.NetworkObject != nil {
			e.NetworkObject.OnNetworkDespawn()
		}
		e.Object.Destroy()
		r.removeObject(oid)
		r.emitDespawn(oid, nil, id)
	}
}
