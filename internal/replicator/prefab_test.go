package replicator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vireo-net/replicator/internal/idgen"
	"github.com/vireo-net/replicator/internal/scripting"
)

// TestPrefabSpawnResolvesNamedSubObject drives a spawn whose PrefabObjectID
// names a real node inside the loaded prefab tree, and expects the client
// to bind exactly that node rather than the prefab root.
func TestPrefabSpawnResolvesNamedSubObject(t *testing.T) {
	server, _, client, clientPeer := newServerClientPair(t)

	prefabID := idgen.New()
	childPrefabObjectID := idgen.New()

	var loadedChild *scripting.BasicObject
	clientEngine, ok := client.engine.(*scripting.MemoryEngine)
	require.True(t, ok)
	clientEngine.RegisterPrefab(prefabID, func() scripting.SceneObject {
		root := scripting.NewBasicObject("Game.Prefabs.Root")
		child := scripting.NewBasicObject("Game.Prefabs.Child")
		child.SetPrefab(prefabID, childPrefabObjectID)
		loadedChild = child
		root.AddChild(idgen.New())
		clientEngine.Track(root.Children()[0], child)
		return root
	})

	obj := scripting.NewBasicObject("Game.Prefabs.Child")
	obj.SetPrefab(prefabID, childPrefabObjectID)
	_, err := server.AddObject(obj)
	require.NoError(t, err)
	require.NoError(t, server.SpawnObject(obj))

	server.ClientConnected(clientA)
	server.Tick()
	drain(clientPeer, client)

	require.Len(t, client.objects, 1)
	require.NotNil(t, loadedChild)
	for _, e := range client.objects {
		require.Same(t, loadedChild, e.Object)
	}
}

// TestPrefabSpawnDropsWhenSubObjectMissing covers the edge case a review
// pass flagged as untested: a spawn naming a PrefabObjectID that isn't
// anywhere in the loaded prefab tree must be dropped entirely, not
// silently bound to the prefab root.
func TestPrefabSpawnDropsWhenSubObjectMissing(t *testing.T) {
	server, _, client, clientPeer := newServerClientPair(t)

	prefabID := idgen.New()
	rootPrefabObjectID := idgen.New()
	missingPrefabObjectID := idgen.New()

	var loadedRoot *scripting.BasicObject
	clientEngine, ok := client.engine.(*scripting.MemoryEngine)
	require.True(t, ok)
	clientEngine.RegisterPrefab(prefabID, func() scripting.SceneObject {
		root := scripting.NewBasicObject("Game.Prefabs.Root")
		root.SetPrefab(prefabID, rootPrefabObjectID)
		loadedRoot = root
		return root
	})

	obj := scripting.NewBasicObject("Game.Prefabs.Root")
	obj.SetPrefab(prefabID, missingPrefabObjectID)
	_, err := server.AddObject(obj)
	require.NoError(t, err)
	require.NoError(t, server.SpawnObject(obj))

	server.ClientConnected(clientA)
	server.Tick()
	drain(clientPeer, client)

	require.Empty(t, client.objects, "spawn naming an unresolvable prefab sub-object must be dropped")
	require.NotNil(t, loadedRoot)
	require.True(t, loadedRoot.Destroyed(), "the loaded-but-unmatched prefab instance must be destroyed, not left dangling")
}
