package replicator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vireo-net/replicator/internal/idgen"
	"github.com/vireo-net/replicator/internal/scripting"
)

const clientB idgen.ClientID = 2

// threePeerSetup wires a server plus two independently addressable clients
// over a shared testRouter.
func threePeerSetup(t *testing.T) (server *Replicator, sp *routerPeer, a *Replicator, ap *routerPeer, b *Replicator, bp *routerPeer) {
	t.Helper()
	router := newTestRouter()
	sp = router.newPeer(idgen.ServerClientID)
	ap = router.newPeer(clientA)
	bp = router.newPeer(clientB)
	sp.setClients(clientA, clientB)
	ap.setClients(idgen.ServerClientID)
	bp.setClients(idgen.ServerClientID)

	server = New(true, newTestEngine(), sp, testLogger())
	server.Open()
	a = New(false, newTestEngine(), ap, testLogger())
	a.Open()
	a.localID = clientA
	b = New(false, newTestEngine(), bp, testLogger())
	b.Open()
	b.localID = clientB

	return
}

// Scenario 3: ownership handoff. Server hands a server-owned object to
// clientA; clientA upgrades to OwnedAuthoritative locally, and clientB
// receives a relayed role message naming clientA as the new owner.
func TestOwnershipHandoffRelaysToOtherClients(t *testing.T) {
	server, _, a, ap, b, bp := threePeerSetup(t)

	obj := scripting.NewBasicObject("Game.Actors.Actor")
	_, err := server.AddObject(obj)
	require.NoError(t, err)
	require.NoError(t, server.SpawnObject(obj))
	server.Tick()

	drain(ap, a)
	drain(bp, b)
	require.Len(t, a.objects, 1)
	require.Len(t, b.objects, 1)

	require.NoError(t, server.SetObjectOwnership(obj, clientA, RoleReplicated, false))

	drain(ap, a)
	drain(bp, b)

	var aEntry, bEntry *ReplicatedObject
	for _, e := range a.objects {
		aEntry = e
	}
	for _, e := range b.objects {
		bEntry = e
	}
	require.Equal(t, RoleOwnedAuthoritative, aEntry.Role)
	require.Equal(t, clientA, bEntry.OwnerClientID)
	require.Equal(t, RoleReplicated, bEntry.Role)
}

// Scenario 4: hierarchical ownership at spawn. A parent and child queued in
// the same spawn batch both transfer to the new owner even though the
// child is not yet registered when the batch is queued.
func TestHierarchicalOwnershipAppliesWithinSpawnBatch(t *testing.T) {
	server, _, _, _, _, _ := threePeerSetup(t)
	engine := server.engine.(*scripting.MemoryEngine)

	parent := scripting.NewBasicObject("Game.Actors.Actor")
	parentID, err := server.AddObject(parent)
	require.NoError(t, err)
	engine.Track(parentID, parent)

	child := scripting.NewBasicObject("Game.Actors.Actor")
	child.SetParent(parentID)

	require.NoError(t, server.SpawnObjectWithOwnership(parent, clientA, RoleReplicated, true))
	require.NoError(t, server.SpawnObject(child))
	server.Tick()

	parentEntry, ok := server.objects[parentID]
	require.True(t, ok)
	require.Equal(t, clientA, parentEntry.OwnerClientID)
	require.Equal(t, RoleReplicated, parentEntry.Role)

	childID, ok := server.idOf(child)
	require.True(t, ok)
	childEntry := server.objects[childID]
	require.Equal(t, clientA, childEntry.OwnerClientID)
	require.Equal(t, RoleReplicated, childEntry.Role)
}
