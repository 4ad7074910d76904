package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/kerrnet/kerr/internal/config"
	"github.com/kerrnet/kerr/internal/mux"
	"github.com/kerrnet/kerr/internal/observability"
	"github.com/kerrnet/kerr/internal/session/browser"
	"github.com/kerrnet/kerr/internal/session/filetransfer"
	"github.com/kerrnet/kerr/internal/session/ping"
	"github.com/kerrnet/kerr/internal/session/shell"
	"github.com/kerrnet/kerr/internal/session/tcprelay"
	"github.com/kerrnet/kerr/internal/token"
	"github.com/kerrnet/kerr/internal/wire"
	"github.com/kerrnet/kerr/internal/kquic"
)

// serveCmd starts an endpoint, prints the connection token peers need to
// reach it, and serves sessions until interrupted.
func serveCmd(args []string) error {
	cfg := config.DefaultConfig()
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfg.RegisterFlags(fs)
	relayURL := fs.String("relay-url", "", "relay fallback address advertised in the connection token")
	if err := fs.Parse(args); err != nil {
		return usageErrorf("%v", err)
	}

	log := newLogger()
	id, err := loadIdentity(cfg)
	if err != nil {
		return fmt.Errorf("loading identity: %w", err)
	}

	ep, err := kquic.Listen(cfg.QUICAddress, id)
	if err != nil {
		return err
	}
	defer ep.Close()

	tok, err := token.Encode(token.Token{
		NodeID:          id.NodeID(),
		DirectAddresses: []string{ep.Addr()},
		RelayURL:        *relayURL,
	})
	if err != nil {
		return fmt.Errorf("encoding connection token: %w", err)
	}
	fmt.Println(tok)

	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker(version)
	health.RegisterCheck("quic_listener", observability.QUICListenerCheck(ep.Addr()))
	health.RegisterCheck("keystore", observability.KeystoreCheck(true))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reg := newSessionRegistry()
	if cfg.EnableAdminServer {
		admin := observability.NewAdminServer(reg, metrics, health)
		go func() {
			if err := admin.Serve(ctx, cfg.AdminAddress); err != nil {
				log.Error(err, "admin server stopped")
			}
		}()
	}

	var wg sync.WaitGroup
	for {
		conn, err := ep.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Error(err, "accepting connection")
			continue
		}
		log.ConnectionEstablished(conn.Raw.RemoteAddr().String(), conn.PeerNodeID)
		metrics.RecordQUICConnection(true)

		wg.Add(1)
		go func() {
			defer wg.Done()
			serveConnection(ctx, cfg, log, metrics, reg, conn)
		}()
	}
	wg.Wait()
	return nil
}

func serveConnection(ctx context.Context, cfg *config.Config, log *observability.Logger, metrics *observability.Metrics, reg *sessionRegistry, conn *kquic.Connection) {
	m := mux.New(log.WithPeer(conn.PeerNodeID))
	m.PeerNodeID = conn.PeerNodeID

	m.Register(wire.KindShell, func(ctx context.Context, sessionID string, stream mux.Stream) error {
		return shell.Serve(ctx, sessionID, stream, defaultShellPath(), nil)
	})
	m.Register(wire.KindFileTransfer, func(ctx context.Context, sessionID string, stream mux.Stream) error {
		var reported int64
		progress := func(transferred, total int64) {
			metrics.RecordTransferBytes("down", transferred-reported)
			reported = transferred
		}
		_, err := filetransfer.Serve(sessionID, stream, cfg.FilesystemRoot, cfg.ChunkSize, progress)
		return err
	})
	m.Register(wire.KindFileBrowser, func(ctx context.Context, sessionID string, stream mux.Stream) error {
		return browser.Serve(sessionID, stream, cfg.FilesystemRoot)
	})
	m.Register(wire.KindTcpRelay, func(ctx context.Context, sessionID string, stream mux.Stream) error {
		counters := reg.newRelayCounters(sessionID)
		defer reg.dropRelayCounters(sessionID)
		return tcprelay.Serve(sessionID, stream, counters)
	})
	m.Register(wire.KindPing, func(ctx context.Context, sessionID string, stream mux.Stream) error {
		return ping.Serve(sessionID, stream)
	})

	reg.add(conn.PeerNodeID, m)
	defer reg.remove(conn.PeerNodeID)

	acc := mux.AcceptorFunc(func(ctx context.Context) (mux.Stream, error) {
		return conn.AcceptStream(ctx)
	})
	if err := m.Serve(ctx, acc); err != nil {
		log.Error(err, "connection ended")
	}
	conn.Close()
}

func defaultShellPath() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}
