package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/loomnet/loom/config"
	"github.com/loomnet/loom/node"
	"github.com/loomnet/loom/transport"
	"github.com/loomnet/loom/types/key"
)

var programLevel = new(slog.LevelVar) // Info by default

func main() {
	cfgFile := flag.String("config", "", "path to the config file (default: ./loom.yaml)")
	flag.Parse()

	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: programLevel})
	slog.SetDefault(slog.New(h))

	if err := run(*cfgFile); err != nil {
		slog.Error("loomd failed", "err", err)
		os.Exit(1)
	}
}

func run(cfgFile string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	programLevel.Set(cfg.Level())

	var priv key.NodePrivate

	if cfg.Node.KeyFile != "" {
		priv, err = node.LoadOrCreateKey(cfg.Node.KeyFile)
		if err != nil {
			return err
		}
	}

	listen, err := cfg.Endpoints()
	if err != nil {
		return err
	}

	allowed, err := cfg.Prefixes()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	n, err := node.New(node.Options{
		Ctx:          ctx,
		Priv:         priv,
		RequireAuth:  cfg.Transport.RequireAuth,
		AllowedCIDRs: allowed,
		MaxPeers:     cfg.Transport.MaxPeers,
		Listen:       listen,
	})
	if err != nil {
		return err
	}
	defer n.Close()

	if err := n.Start(); err != nil {
		return err
	}

	slog.Info("loomd up", "key", n.Key().Marshal())

	for {
		select {
		case <-ctx.Done():
			slog.Info("shutting down")
			return nil
		case ev, ok := <-n.Events():
			if !ok {
				return nil
			}

			logEvent(ev)
		}
	}
}

func logEvent(ev transport.Event) {
	switch ev := ev.(type) {
	case transport.PeerConnected:
		slog.Info("peer connected", "peer", ev.Peer, "kind", ev.Kind, "key", ev.Key.Debug())
	case transport.PeerChunk:
		slog.Debug("chunk", "peer", ev.Peer, "len", len(ev.Data))
	case transport.PeerDisconnected:
		slog.Info("peer disconnected", "peer", ev.Peer, "reason", ev.Reason)
	case transport.ListenerClosed:
		slog.Warn("listener closed", "bind", ev.Bind, "reason", ev.Reason)
	}
}
