package replicator

import (
	"github.com/vireo-net/replicator/internal/idgen"
	"github.com/vireo-net/replicator/internal/scripting"
)

// addObject implements component C's add(obj, parent?). Caller must hold
// r.mu. Returns the existing entry unchanged if id is already in the
// registry; it does not check whether obj is tracked under another id.
func (r *Replicator) addObject(obj scripting.Object, id, parentID idgen.ObjectID) *ReplicatedObject {
	if existing, ok := r.objects[id]; ok {
		return existing
	}

	role := RoleReplicated
	if r.isServer {
		role = RoleOwnedAuthoritative
	}

	entry := &ReplicatedObject{
		Object:        obj,
		ObjectID:      id,
		ParentID:      parentID,
		OwnerClientID: idgen.ServerClientID,
		Role:          role,
	}
	if no, ok := obj.(scripting.NetworkObject); ok {
		entry.NetworkObject = no
	}
	r.objects[id] = entry
	return entry
}

// inferParentID auto-infers parent_id from the object's scene parent when
// the caller does not supply one explicitly.
func inferParentID(obj scripting.Object) idgen.ObjectID {
	if so, ok := obj.(scripting.SceneObject); ok {
		if parent, ok := so.Parent(); ok {
			return parent
		}
	}
	return idgen.Empty
}

// removeObject implements the spec-directed fix for the source's reversed
// condition: remove if present, silent no-op otherwise.
func (r *Replicator) removeObject(id idgen.ObjectID) {
	if _, ok := r.objects[id]; ok {
		delete(r.objects, id)
	}
}

// resolveByID is the direct-lookup half of component C's resolve(id): a
// registry hit, or one remap-and-retry.
func (r *Replicator) resolveByID(id idgen.ObjectID) (*ReplicatedObject, bool) {
	if e, ok := r.objects[id]; ok {
		return e, true
	}
	if local, ok := r.remap.lookup(id); ok {
		if e, ok := r.objects[local]; ok {
			return e, true
		}
	}
	return nil, false
}

// resolveByParentType is the heuristic fallback used when both ends
// independently instantiated the same scene object: an entry that has
// never accepted an authoritative frame, whose parent matches (after
// remap), and whose type matches exactly. On a match it installs the
// foreign->local remap so future lookups are O(1).
func (r *Replicator) resolveByParentType(foreignID, foreignParentID idgen.ObjectID, typeName string) (*ReplicatedObject, bool) {
	if e, ok := r.resolveByID(foreignID); ok {
		return e, true
	}
	localParent := r.remap.toLocal(foreignParentID)
	for _, e := range r.objects {
		if e.LastOwnerFrame != 0 {
			continue
		}
		if e.ParentID != localParent {
			continue
		}
		if e.Object.TypeName() != typeName {
			continue
		}
		r.remap.insert(foreignID, e.ObjectID)
		return e, true
	}
	return nil, false
}

// findObjectsByParent returns every registry entry whose ParentID equals
// id — used by hierarchical ownership propagation and SetObjectOwnership.
func (r *Replicator) findObjectsByParent(id idgen.ObjectID) []*ReplicatedObject {
	var out []*ReplicatedObject
	for _, e := range r.objects {
		if e.ParentID == id {
			out = append(out, e)
		}
	}
	return out
}
