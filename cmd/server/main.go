package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"flag"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vireo-net/replicator/internal/config"
	"github.com/vireo-net/replicator/internal/idgen"
	"github.com/vireo-net/replicator/internal/observability/log"
	"github.com/vireo-net/replicator/internal/replicator"
	"github.com/vireo-net/replicator/internal/scripting"
	"github.com/vireo-net/replicator/internal/transport"
	"github.com/vireo-net/replicator/internal/transport/quicpeer"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to server config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	logger := log.New(cfg.LogLevelValue())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := scripting.NewMemoryEngine()
	engine.RegisterType("Game.Actors.Actor", "", func() scripting.Object {
		return scripting.NewBasicObject("Game.Actors.Actor")
	})

	quicCfg := quicpeer.DefaultConfig()
	quicCfg.TLSConfig = generateSelfSignedTLS()
	peer := quicpeer.New(quicCfg, logger)

	addr := cfg.Host + ":" + itoa(cfg.Port)
	if err := peer.Listen(ctx, addr); err != nil {
		logger.Fatal("server: quic listen failed", log.Error(err))
	}
	logger.Info("server: listening", log.String("addr", addr))

	repl := replicator.New(true, engine, peer, logger)
	repl.Open()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	go pumpIncoming(ctx, repl, peer)
	go pumpPresence(ctx, repl, peer, logger)
	go pumpTicks(ctx, repl, cfg.TickInterval)

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

// pumpPresence polls the transport peer's connected-client set and turns
// its edges into ClientConnected/ClientDisconnected calls. A push-based
// connect/disconnect callback on transport.Peer would remove the poll, but
// would also force every Peer implementation (including test fakes) to
// carry callback registration machinery it otherwise has no use for.
func pumpPresence(ctx context.Context, repl *replicator.Replicator, peer transport.Peer, logger log.Log) {
	seen := make(map[idgen.ClientID]struct{})
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := make(map[idgen.ClientID]struct{})
			for _, c := range peer.Clients() {
				current[c.ClientID] = struct{}{}
				if _, ok := seen[c.ClientID]; !ok {
					logger.Info("server: client connected", log.Uint32("client_id", uint32(c.ClientID)))
					repl.ClientConnected(c.ClientID)
				}
			}
			for id := range seen {
				if _, ok := current[id]; !ok {
					logger.Info("server: client disconnected", log.Uint32("client_id", uint32(id)))
					repl.ClientDisconnected(id)
				}
			}
			seen = current
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

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// generateSelfSignedTLS mints an ephemeral cert for local/demo QUIC use;
// production deployments should load a real certificate via cfg instead.
func generateSelfSignedTLS() *tls.Config {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	template := x509.Certificate{SerialNumber: big.NewInt(1), NotAfter: time.Now().Add(24 * time.Hour)}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		panic(err)
	}
	cert := tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
	return &tls.Config{Certificates: []tls.Certificate{cert}, NextProtos: []string{"replicator"}}
}
