package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/BioHazard786/Strangers/internal/config"
	"github.com/BioHazard786/Strangers/internal/logging"
	"github.com/BioHazard786/Strangers/internal/matchmaking"
	"github.com/BioHazard786/Strangers/internal/server"
	"github.com/BioHazard786/Strangers/internal/signaling"
	"github.com/BioHazard786/Strangers/internal/stats"
	"github.com/BioHazard786/Strangers/internal/version"
)

func main() {
	configPath := flag.String("config", os.Getenv("STRANGERS_CONFIG"), "Path to YAML config file")
	port := flag.Int("port", 0, "Override server port")
	flag.Parse()

	cfg, err := config.LoadServer(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.OverridePort(*port); err != nil {
		slog.Error("invalid port flag", "error", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stderr, logging.ParseLevel(cfg.Log.Level, slog.LevelInfo), cfg.Log.Format)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Create the engine and the hub that feeds it
	engine := matchmaking.New(matchmaking.WithLogger(logger.With("component", "matchmaking")))
	hub := signaling.NewHub(engine,
		signaling.WithLimits(signaling.Limits{
			WriteWait:      cfg.Websocket.WriteWait,
			PongWait:       cfg.Websocket.PongWait,
			PingPeriod:     cfg.Websocket.PingPeriod,
			MaxMessageSize: cfg.Websocket.MaxMessageSize,
			SendBuffer:     cfg.Websocket.SendBuffer,
		}),
		signaling.WithHubLogger(logger.With("component", "signaling")),
	)

	srv := server.New(cfg, hub, stats.NewCollector(engine), logger.With("component", "server"))
	logger.Info("starting strangers server", "version", version.Version, "addr", cfg.Addr())

	// 2. Run the hub's event loop and serve HTTP until a signal arrives.
	// A listener failure cancels the hub too.
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
