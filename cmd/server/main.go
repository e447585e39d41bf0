// Command server is the entry point for the tablehall lobby/game
// networking core: it loads configuration, wires the acceptor, lobby, and
// sender together, and runs them under one errgroup until a termination
// signal arrives.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"tablehall/internal/acceptor"
	"tablehall/internal/config"
	"tablehall/internal/lobby"
	"tablehall/internal/sender"
	"tablehall/internal/session"
)

const ConfigPath = "config/server.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	path := ConfigPath
	if p := os.Getenv("TABLEHALL_CONFIG"); p != "" {
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))
	slog.Info("tablehall server starting",
		"port", cfg.BindPort, "enableIPv6", cfg.EnableIPv6, "maxSessions", cfg.MaxSessions)

	connectQueue := make(chan acceptor.ConnectData, cfg.ConnectQueue)

	acc := acceptor.New(acceptor.Config{
		Port:       cfg.BindPort,
		EnableIPv6: cfg.EnableIPv6,
		EnableSCTP: cfg.EnableSCTP,
	}, connectQueue)

	if err := acc.Listen(); err != nil {
		return fmt.Errorf("starting listener: %w", err)
	}
	slog.Info("listening", "addr", acc.Addr())

	snd := sender.New(cfg.SendQueueDepth, lobby.NewSenderCallback())
	sessions := session.NewManager(cfg.SendQueueDepth)

	lt := lobby.New(
		lobby.Config{Password: cfg.Password, MaxSessions: cfg.MaxSessions},
		sessions,
		snd,
		connectQueue,
		nil,
		slog.Default(),
		nil,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return snd.Run()
	})

	g.Go(func() error {
		slog.Info("starting acceptor")
		return acc.Serve(gctx)
	})

	g.Go(func() error {
		slog.Info("starting lobby")
		return lt.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// parseLogLevel converts string log level to slog.Level. Defaults to Info
// if invalid or empty.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
