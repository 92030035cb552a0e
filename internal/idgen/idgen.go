// Package idgen mints the 128-bit object and client identifiers the
// replicator core keys its registry and remap table by.
package idgen

import (
	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// ObjectID is the replicator's opaque 128-bit identifier for an engine
// object, a client, or a prefab. Zero value is the well-known empty id.
type ObjectID [16]byte

// Empty is the zero id: "no parent", "no prefab".
var Empty ObjectID

func (id ObjectID) IsEmpty() bool { return id == Empty }

func (id ObjectID) String() string { return uuid.UUID(id).String() }

// New mints a fresh random object id.
func New() ObjectID {
	return ObjectID(uuid.New())
}

// FromUUID adapts a github.com/google/uuid value already held by the
// scripting collaborator (e.g. a prefab asset guid).
func FromUUID(u uuid.UUID) ObjectID { return ObjectID(u) }

// Hash returns a fast, well-distributed hash of the id for use as a bimap
// bucket key; the remap table's two hash tables (foreign->local,
// local->foreign) are keyed by this rather than the raw 16 bytes so large
// remap tables stay cache-friendly under xxhash's avalanche.
func Hash(id ObjectID) uint64 {
	return xxhash.Sum64(id[:])
}

// ClientID identifies a connected peer; the server is always ClientID(0).
type ClientID uint32

// ServerClientID is the well-known constant denoting the authoritative
// server, used as the default owner for server-created objects.
const ServerClientID ClientID = 0
