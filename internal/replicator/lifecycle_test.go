package replicator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vireo-net/replicator/internal/idgen"
	"github.com/vireo-net/replicator/internal/scripting"
)

// Scenario 5: late joiner backfill. A client that connects after an object
// has already been spawned gets that object's spawn message (and current
// state) on the next tick, addressed only to it.
func TestLateJoinerReceivesBackfillSpawn(t *testing.T) {
	router := newTestRouter()
	sp := router.newPeer(idgen.ServerClientID)
	ap := router.newPeer(clientA)
	bp := router.newPeer(clientB)
	sp.setClients(clientA) // clientB is not yet known to the transport.
	ap.setClients(idgen.ServerClientID)
	bp.setClients(idgen.ServerClientID)

	server := New(true, newTestEngine(), sp, testLogger())
	server.Open()
	a := New(false, newTestEngine(), ap, testLogger())
	a.Open()
	a.localID = clientA
	b := New(false, newTestEngine(), bp, testLogger())
	b.Open()
	b.localID = clientB

	obj := scripting.NewBasicObject("Game.Actors.Actor")
	_, err := server.AddObject(obj)
	require.NoError(t, err)
	require.NoError(t, server.SpawnObject(obj))
	server.ClientConnected(clientA)
	server.Tick()
	drain(ap, a)
	require.Len(t, a.objects, 1)
	require.Empty(t, b.objects)

	// clientB now connects at the transport level and to the replicator.
	sp.setClients(clientA, clientB)
	server.ClientConnected(clientB)
	server.Tick()
	drain(bp, b)

	require.Len(t, b.objects, 1)
}

// Scenario 6: disconnect cleanup. When the owning client disconnects, the
// server removes its owned objects and emits a despawn to every remaining
// client (but not back to the departed one).
func TestDisconnectCleanupDespawnsToRemainingClients(t *testing.T) {
	server, _, a, ap, b, bp := threePeerSetup(t)

	obj := scripting.NewBasicObject("Game.Actors.Actor")
	_, err := server.AddObject(obj)
	require.NoError(t, err)
	require.NoError(t, server.SpawnObjectWithOwnership(obj, clientA, RoleReplicated, false))
	server.Tick()
	drain(ap, a)
	drain(bp, b)
	require.Len(t, a.objects, 1)
	require.Len(t, b.objects, 1)

	server.ClientDisconnected(clientA)
	require.Empty(t, server.objects)

	drain(bp, b)
	require.Empty(t, b.objects)
}
