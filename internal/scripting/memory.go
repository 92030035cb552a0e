package scripting

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/vireo-net/replicator/internal/idgen"
)

// BasicObject is a minimal Object/SceneObject/NetworkObject implementation
// good enough to exercise the replicator core end to end without a real
// engine: a float64 payload, parent/children bookkeeping, and
// lifecycle hook counters tests can assert on.
type BasicObject struct {
	mu sync.Mutex

	typeName       string
	destroyed      bool
	parentID       idgen.ObjectID
	hasParent      bool
	children       []idgen.ObjectID
	prefabID       idgen.ObjectID
	prefabObjectID idgen.ObjectID
	hasPrefab      bool

	// Fields64 is the replicated payload, written on the wire as a flat
	// little-endian float64 array in slice order.
	Fields64 []float64

	SpawnCount   int
	DespawnCount int
}

func NewBasicObject(typeName string) *BasicObject {
	return &BasicObject{typeName: typeName}
}

func (o *BasicObject) TypeName() string { return o.typeName }
func (o *BasicObject) Destroyed() bool  { o.mu.Lock(); defer o.mu.Unlock(); return o.destroyed }
func (o *BasicObject) Destroy()         { o.mu.Lock(); defer o.mu.Unlock(); o.destroyed = true }

func (o *BasicObject) Parent() (idgen.ObjectID, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.parentID, o.hasParent
}

func (o *BasicObject) SetParent(id idgen.ObjectID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.parentID = id
	o.hasParent = true
}

func (o *BasicObject) Children() []idgen.ObjectID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]idgen.ObjectID(nil), o.children...)
}

func (o *BasicObject) AddChild(id idgen.ObjectID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.children = append(o.children, id)
}

func (o *BasicObject) SetPrefab(prefabID, prefabObjectID idgen.ObjectID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prefabID = prefabID
	o.prefabObjectID = prefabObjectID
	o.hasPrefab = true
}

func (o *BasicObject) PrefabID() (idgen.ObjectID, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.prefabID, o.hasPrefab
}

func (o *BasicObject) PrefabObjectID() (idgen.ObjectID, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.prefabObjectID, o.hasPrefab
}

func (o *BasicObject) OnNetworkSpawn()   { o.mu.Lock(); o.SpawnCount++; o.mu.Unlock() }
func (o *BasicObject) OnNetworkDespawn() { o.mu.Lock(); o.DespawnCount++; o.mu.Unlock() }

func (o *BasicObject) OnNetworkSerialize(w *Stream) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, f := range o.Fields64 {
		var buf [8]byte
		putFloat64(buf[:], f)
		w.WriteBytes(buf[:])
	}
	return nil
}

// OnNetworkDeserialize resizes Fields64 to match the incoming payload
// rather than the receiver's current length, since a freshly reconstructed
// spawn target starts with no fields at all.
func (o *BasicObject) OnNetworkDeserialize(r *Stream) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := (len(r.Buf) - r.Pos) / 8
	o.Fields64 = make([]float64, n)
	for i := 0; i < n; i++ {
		b := r.ReadBytes(8)
		if len(b) < 8 {
			return fmt.Errorf("scripting: short field %d", i)
		}
		o.Fields64[i] = getFloat64(b)
	}
	return nil
}

func putFloat64(b []byte, f float64) {
	binary.LittleEndian.PutUint64(b, math.Float64bits(f))
}

func getFloat64(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

// MemoryEngine is an in-memory scripting.Engine: a type registry keyed by
// constructor function plus a live object index for TryFindObject and
// prefab tree walks.
type MemoryEngine struct {
	mu sync.Mutex

	constructors map[string]func() Object
	baseTypes    map[string]string

	prefabs map[idgen.ObjectID]func() SceneObject
	objects map[idgen.ObjectID]SceneObject
}

func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		constructors: make(map[string]func() Object),
		baseTypes:    make(map[string]string),
		prefabs:      make(map[idgen.ObjectID]func() SceneObject),
		objects:      make(map[idgen.ObjectID]SceneObject),
	}
}

// RegisterType installs a constructor for typeName and, optionally, its
// base type name for the serializer registry's recursive fallback.
func (e *MemoryEngine) RegisterType(typeName string, baseType string, ctor func() Object) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.constructors[typeName] = ctor
	if baseType != "" {
		e.baseTypes[typeName] = baseType
	}
}

func (e *MemoryEngine) New(typeName string) (Object, error) {
	e.mu.Lock()
	ctor, ok := e.constructors[typeName]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("scripting: unknown type %q", typeName)
	}
	return ctor(), nil
}

func (e *MemoryEngine) BaseType(typeName string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	base, ok := e.baseTypes[typeName]
	return base, ok
}

// RegisterPrefab installs a factory for a prefab root under prefabID.
func (e *MemoryEngine) RegisterPrefab(prefabID idgen.ObjectID, factory func() SceneObject) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prefabs[prefabID] = factory
}

func (e *MemoryEngine) Load(prefabID idgen.ObjectID) (SceneObject, error) {
	e.mu.Lock()
	factory, ok := e.prefabs[prefabID]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("scripting: unknown prefab %s", prefabID)
	}
	root := factory()
	e.Track(idgen.New(), root)
	return root, nil
}

func (e *MemoryEngine) FindPrefabObject(root SceneObject, target idgen.ObjectID) (SceneObject, bool) {
	if poid, ok := root.PrefabObjectID(); ok && poid == target {
		return root, true
	}
	for _, childID := range root.Children() {
		if child, found := e.TryFindObject(childID); found {
			if found, ok := e.FindPrefabObject(child, target); ok {
				return found, true
			}
		}
	}
	return nil, false
}

// Track registers a live scene object under id so TryFindObject can find
// it. Load tracks each prefab root it instantiates; the replicator never
// calls Track and only reads this index through TryFindObject.
func (e *MemoryEngine) Track(id idgen.ObjectID, obj SceneObject) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.objects[id] = obj
}

func (e *MemoryEngine) TryFindObject(id idgen.ObjectID) (SceneObject, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	obj, ok := e.objects[id]
	return obj, ok
}
