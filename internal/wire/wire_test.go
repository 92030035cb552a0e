package wire_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vireo-net/replicator/internal/idgen"
	"github.com/vireo-net/replicator/internal/wire"
)

func TestObjectReplicateRoundTrip(t *testing.T) {
	want := &wire.ObjectReplicate{
		OwnerFrame: 42,
		ObjectID:   idgen.New(),
		ParentID:   idgen.New(),
		TypeName:   "Game.Actors.Tank",
		Data:       []byte{1, 2, 3, 4, 5},
	}
	buf, err := want.Serialize()
	require.NoError(t, err)

	got := &wire.ObjectReplicate{}
	require.NoError(t, got.Deserialize(buf))
	require.Equal(t, want, got)
}

func TestObjectReplicateRejectsOversizePayload(t *testing.T) {
	msg := &wire.ObjectReplicate{Data: make([]byte, 1<<17)}
	_, err := msg.Serialize()
	require.Error(t, err)
}

func TestObjectSpawnRoundTrip(t *testing.T) {
	want := &wire.ObjectSpawn{
		ObjectID:       idgen.New(),
		ParentID:       idgen.New(),
		PrefabID:       idgen.New(),
		PrefabObjectID: idgen.New(),
		OwnerClientID:  7,
		TypeName:       "Game.Actors.Player",
	}
	buf, err := want.Serialize()
	require.NoError(t, err)

	got := &wire.ObjectSpawn{}
	require.NoError(t, got.Deserialize(buf))
	require.Equal(t, want, got)
}

func TestObjectDespawnRoundTrip(t *testing.T) {
	want := &wire.ObjectDespawn{ObjectID: idgen.New()}
	buf, err := want.Serialize()
	require.NoError(t, err)

	got := &wire.ObjectDespawn{}
	require.NoError(t, got.Deserialize(buf))
	require.Equal(t, want, got)
}

func TestObjectRoleRoundTrip(t *testing.T) {
	want := &wire.ObjectRole{ObjectID: idgen.New(), OwnerClientID: 3}
	buf, err := want.Serialize()
	require.NoError(t, err)

	got := &wire.ObjectRole{}
	require.NoError(t, got.Deserialize(buf))
	require.Equal(t, want, got)
}

func TestTypeNameTruncationRejected(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}
	msg := &wire.ObjectSpawn{TypeName: string(long)}
	_, err := msg.Serialize()
	require.Error(t, err)
}

func TestPeekMessageID(t *testing.T) {
	msg := &wire.ObjectRole{ObjectID: idgen.New()}
	buf, err := msg.Serialize()
	require.NoError(t, err)

	id, err := wire.PeekMessageID(buf)
	require.NoError(t, err)
	require.Equal(t, wire.MessageObjectRole, id)
}
