package main

import (
	"context"
	"crypto/tls"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vireo-net/replicator/internal/config"
	"github.com/vireo-net/replicator/internal/observability/log"
	"github.com/vireo-net/replicator/internal/replicator"
	"github.com/vireo-net/replicator/internal/scripting"
	"github.com/vireo-net/replicator/internal/transport"
	"github.com/vireo-net/replicator/internal/transport/quicpeer"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:7777", "server address")
	tickMs := flag.Int("tick", 33, "tick interval in milliseconds")
	flag.Parse()

	logger := log.New(config.Default().LogLevelValue())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := scripting.NewMemoryEngine()
	engine.RegisterType("Game.Actors.Actor", "", func() scripting.Object {
		return scripting.NewBasicObject("Game.Actors.Actor")
	})

	peer := quicpeer.New(quicpeer.DefaultConfig(), logger)
	if err := peer.Dial(ctx, *addr, &tls.Config{InsecureSkipVerify: true, NextProtos: []string{"replicator"}}); err != nil {
		logger.Fatal("client: dial failed", log.Error(err))
	}

	repl := replicator.New(false, engine, peer, logger)
	repl.Open()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	go pumpIncoming(ctx, repl, peer)
	go pumpTicks(ctx, repl, time.Duration(*tickMs)*time.Millisecond)

	<-stopCh
	cancel()
	repl.Clear()
	_ = peer.Close()
}

func pumpIncoming(ctx context.Context, repl *replicator.Replicator, peer transport.Peer) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-peer.Incoming():
			repl.HandleMessage(msg)
		}
	}
}

func pumpTicks(ctx context.Context, repl *replicator.Replicator, interval time.Duration) {
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			repl.Tick()
		}
	}
}
