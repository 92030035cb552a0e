// Package scripting names the engine collaborator the replicator consumes:
// type lookup, object construction, scene-graph queries and prefab
// instantiation. It is not an engine — it is the seam the replicator core
// binds against, with a small in-memory implementation good enough to run
// the replicator end to end in tests and the demo binaries.
package scripting

import "github.com/vireo-net/replicator/internal/idgen"

// Object is anything the replicator can track: an opaque handle plus the
// fully-qualified type name used for wire type_name fields and serializer
// lookup.
type Object interface {
	TypeName() string
	Destroyed() bool
	// Destroy marks the object destroyed and releases any engine-level
	// resources it holds. Called by the replicator on explicit despawn,
	// on an owner-initiated despawn message, and on Clear.
	Destroy()
}

// NetworkObject is the optional lifecycle capability a scripted Object may
// implement. Its absence is encoded by a failed type assertion, never a
// sentinel value.
type NetworkObject interface {
	OnNetworkSpawn()
	OnNetworkDespawn()
	OnNetworkSerialize(w *Stream) error
	OnNetworkDeserialize(r *Stream) error
}

// SceneObject is the optional scene-graph capability: parent/children
// relationships and prefab provenance, consulted by hierarchical ownership
// propagation and prefab-aware spawn.
type SceneObject interface {
	Object
	Parent() (idgen.ObjectID, bool)
	SetParent(id idgen.ObjectID)
	Children() []idgen.ObjectID
	PrefabID() (idgen.ObjectID, bool)
	PrefabObjectID() (idgen.ObjectID, bool)
}

// Stream is the minimal byte-cursor the serializer registry and network
// capability hooks read and write through: writes append to Buf, reads
// consume Buf from Pos.
type Stream struct {
	Buf []byte
	Pos int
}

func (s *Stream) WriteBytes(b []byte) { s.Buf = append(s.Buf, b...) }

func (s *Stream) ReadBytes(n int) []byte {
	if s.Pos+n > len(s.Buf) {
		n = len(s.Buf) - s.Pos
	}
	b := s.Buf[s.Pos : s.Pos+n]
	s.Pos += n
	return b
}

// TypeRegistry resolves fully-qualified type names to constructors and
// tells the serializer registry about base types for the recursive
// interface-discovery fallback (spec component B).
type TypeRegistry interface {
	// New constructs a fresh, unparented instance of the named type.
	New(typeName string) (Object, error)
	// BaseType returns the immediate base type name of typeName, if any.
	BaseType(typeName string) (string, bool)
}

// PrefabManager loads prefabs and walks their object trees, consulted by
// prefab-aware spawn reconstruction (component F, OnSpawn).
type PrefabManager interface {
	// Load returns the root object of the prefab, instantiating it fresh.
	Load(prefabID idgen.ObjectID) (SceneObject, error)
	// FindPrefabObject walks the subtree rooted at root for the node whose
	// PrefabObjectID equals target.
	FindPrefabObject(root SceneObject, target idgen.ObjectID) (SceneObject, bool)
}

// Finder locates a live scene object by its replicator-assigned id, the
// spec's TryFindObject.
type Finder interface {
	TryFindObject(id idgen.ObjectID) (SceneObject, bool)
}

// Engine bundles the three scripting collaborators the replicator needs.
type Engine interface {
	TypeRegistry
	PrefabManager
	Finder
}
