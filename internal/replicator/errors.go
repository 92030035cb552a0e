package replicator

import "errors"

// Sentinel errors surfaced by the control API and message handlers. Per
// spec section 7 none of these cross the module boundary as panics — they
// are either returned to a caller of the public API or logged and dropped
// inside the tick/handler pipeline.
var (
	ErrOffline           = errors.New("replicator: offline, call is a no-op")
	ErrObjectNotFound    = errors.New("replicator: object not found in registry")
	ErrNotOwner          = errors.New("replicator: local role is not owner of object")
	ErrAlreadySpawned    = errors.New("replicator: object already spawned")
	ErrNotSpawned        = errors.New("replicator: object not spawned")
	ErrNoSerializer      = errors.New("replicator: no serializer registered for type")
	ErrPrefabNotFound    = errors.New("replicator: prefab asset missing")
	ErrCannotSelfElevate = errors.New("replicator: non-owner may not set role to owned-authoritative")
)
