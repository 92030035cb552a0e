package replicator

import "github.com/vireo-net/replicator/internal/idgen"

// remapEntry is one foreign<->local pairing kept in both hash buckets of a
// remapTable.
type remapEntry struct {
	foreign idgen.ObjectID
	local   idgen.ObjectID
}

// remapTable is component A: a one-way mapping from foreign (sender)
// object id to local object id, with the reverse lookup a client needs
// when rewriting outbound messages back to server-issued ids. Both
// directions are backed by an xxhash-bucketed bimap rather than a linear
// scan, since a session's remap table only grows (append-mostly, cleared
// on shutdown) and can hold every scene object a long session ever paired.
type remapTable struct {
	byForeign map[uint64][]remapEntry
	byLocal   map[uint64][]remapEntry
}

func newRemapTable() *remapTable {
	return &remapTable{
		byForeign: make(map[uint64][]remapEntry),
		byLocal:   make(map[uint64][]remapEntry),
	}
}

// insert records foreign -> local. Never shadows a local id: callers must
// not insert an id already present as a local key (invariant 6); insert
// does not itself re-validate this since the registry is the source of
// truth for which ids are local.
func (t *remapTable) insert(foreign, local idgen.ObjectID) {
	if _, ok := t.lookup(foreign); ok {
		return
	}
	fh := idgen.Hash(foreign)
	lh := idgen.Hash(local)
	entry := remapEntry{foreign: foreign, local: local}
	t.byForeign[fh] = append(t.byForeign[fh], entry)
	t.byLocal[lh] = append(t.byLocal[lh], entry)
}

func (t *remapTable) lookup(foreign idgen.ObjectID) (idgen.ObjectID, bool) {
	for _, e := range t.byForeign[idgen.Hash(foreign)] {
		if e.foreign == foreign {
			return e.local, true
		}
	}
	return idgen.Empty, false
}

func (t *remapTable) reverse(local idgen.ObjectID) (idgen.ObjectID, bool) {
	for _, e := range t.byLocal[idgen.Hash(local)] {
		if e.local == local {
			return e.foreign, true
		}
	}
	return idgen.Empty, false
}

func (t *remapTable) clear() {
	t.byForeign = make(map[uint64][]remapEntry)
	t.byLocal = make(map[uint64][]remapEntry)
}

// toLocal resolves an id that might already be local (server never remaps
// its own ids into itself, so a miss just means "already local").
func (t *remapTable) toLocal(id idgen.ObjectID) idgen.ObjectID {
	if local, ok := t.lookup(id); ok {
		return local
	}
	return id
}

// toForeign is the send-side counterpart: a client rewrites local ids back
// to server-issued ids before putting them on the wire.
func (t *remapTable) toForeign(id idgen.ObjectID) idgen.ObjectID {
	if foreign, ok := t.reverse(id); ok {
		return foreign
	}
	return id
}
