//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/vireo-net/replicator/internal/config"
	"github.com/vireo-net/replicator/internal/observability/log"
	"github.com/vireo-net/replicator/internal/replicator"
	"github.com/vireo-net/replicator/internal/scripting"
	"github.com/vireo-net/replicator/internal/transport"
)

func ProvideLogger(cfg config.Config) *log.Logger {
	wire.Build(log.Provide)
	return log.New(cfg.LogLevelValue())
}

func ProvideReplicator(isServer bool, engine scripting.Engine, peer transport.Peer, logger *log.Logger) *replicator.Replicator {
	wire.Build(replicator.New)
	return replicator.New(isServer, engine, peer, logger)
}
