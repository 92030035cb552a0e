package replicator

import (
	"github.com/vireo-net/replicator/internal/idgen"
	"github.com/vireo-net/replicator/internal/scripting"
)

// Role is an object's local relationship to its authoritative state.
type Role uint8

const (
	RoleNone Role = iota
	RoleReplicated
	RoleOwnedAuthoritative
)

func (r Role) String() string {
	switch r {
	case RoleOwnedAuthoritative:
		return "owned-authoritative"
	case RoleReplicated:
		return "replicated"
	default:
		return "none"
	}
}

// ReplicatedObject is the registry's record for one tracked engine object.
type ReplicatedObject struct {
	Object          scripting.Object
	NetworkObject   scripting.NetworkObject // nil if the object has no lifecycle capability
	ObjectID        idgen.ObjectID
	ParentID        idgen.ObjectID
	OwnerClientID   idgen.ClientID
	LastOwnerFrame  uint32
	Role            Role
	Spawned         bool
	TargetClientIDs []idgen.ClientID

	invalidTypeWarned bool
}

// ownershipOverride mirrors the optional { owner_client_id, role,
// hierarchical } tuple a SpawnObject caller may attach.
type ownershipOverride struct {
	set           bool
	ownerClientID idgen.ClientID
	role          Role
	hierarchical  bool
}

// spawnIntent is a queued SpawnObject call awaiting the next tick.
type spawnIntent struct {
	object   scripting.Object
	targets  []idgen.ClientID
	override ownershipOverride
}

// despawnIntent is a queued DespawnObject call awaiting the next tick.
type despawnIntent struct {
	objectID idgen.ObjectID
}
