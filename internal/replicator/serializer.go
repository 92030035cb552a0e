package replicator

import (
	"github.com/vireo-net/replicator/internal/scripting"
)

// SerializeFunc writes obj's replicated fields into w.
type SerializeFunc func(obj scripting.Object, w *scripting.Stream) error

// DeserializeFunc reads obj's replicated fields from r.
type DeserializeFunc func(obj scripting.Object, r *scripting.Stream) error

type serializerEntry struct {
	serialize   SerializeFunc
	deserialize DeserializeFunc
	// synthesized marks an entry produced by the capability-discovery
	// fallback rather than an explicit Register call. Nothing reads it:
	// Register replaces any existing entry for the type name.
	synthesized bool
}

// serializerRegistry is component B: a type-handle to (serialize,
// deserialize) dispatch table, lazily populated by interface-discovery
// fallback so a single base-type registration serves every descendant.
type serializerRegistry struct {
	types   scripting.TypeRegistry
	entries map[string]serializerEntry
}

func newSerializerRegistry(types scripting.TypeRegistry) *serializerRegistry {
	return &serializerRegistry{
		types:   types,
		entries: make(map[string]serializerEntry),
	}
}

// Register adds a direct entry for typeName, replacing any existing entry,
// including one synthesized by a previous capability probe.
func (r *serializerRegistry) Register(typeName string, ser SerializeFunc, deser DeserializeFunc) {
	r.entries[typeName] = serializerEntry{serialize: ser, deserialize: deser}
}

// networkCapabilityFuncs adapts scripting.NetworkObject's hooks into the
// registry's SerializeFunc/DeserializeFunc shape.
func networkCapabilityFuncs() (SerializeFunc, DeserializeFunc) {
	ser := func(obj scripting.Object, w *scripting.Stream) error {
		no, ok := obj.(scripting.NetworkObject)
		if !ok {
			return ErrNoSerializer
		}
		return no.OnNetworkSerialize(w)
	}
	deser := func(obj scripting.Object, r *scripting.Stream) error {
		no, ok := obj.(scripting.NetworkObject)
		if !ok {
			return ErrNoSerializer
		}
		return no.OnNetworkDeserialize(r)
	}
	return ser, deser
}

// resolve implements the four-step lookup from the spec:
//  1. exact type has a direct entry -> use it.
//  2. probe the capability interface -> synthesize and cache an entry.
//  3. recurse into the base type name.
//  4. fail.
func (r *serializerRegistry) resolve(typeName string, obj scripting.Object) (serializerEntry, bool) {
	if e, ok := r.entries[typeName]; ok {
		return e, true
	}
	if _, ok := obj.(scripting.NetworkObject); ok {
		ser, deser := networkCapabilityFuncs()
		e := serializerEntry{serialize: ser, deserialize: deser, synthesized: true}
		r.entries[typeName] = e
		return e, true
	}
	if base, ok := r.types.BaseType(typeName); ok && base != "" && base != typeName {
		if e, ok := r.resolve(base, obj); ok {
			r.entries[typeName] = e
			return e, true
		}
	}
	return serializerEntry{}, false
}

// Serialize writes obj's state into w, or returns ErrNoSerializer.
func (r *serializerRegistry) Serialize(obj scripting.Object, w *scripting.Stream) error {
	e, ok := r.resolve(obj.TypeName(), obj)
	if !ok {
		return ErrNoSerializer
	}
	return e.serialize(obj, w)
}

// Deserialize reads obj's state from r, or returns ErrNoSerializer.
func (r *serializerRegistry) Deserialize(obj scripting.Object, r2 *scripting.Stream) error {
	e, ok := r.resolve(obj.TypeName(), obj)
	if !ok {
		return ErrNoSerializer
	}
	return e.deserialize(obj, r2)
}
