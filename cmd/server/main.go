// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"

	"github.com/opd-ai/go-starsector/pkg/config"
	"github.com/opd-ai/go-starsector/pkg/content"
	"github.com/opd-ai/go-starsector/pkg/health"
	"github.com/opd-ai/go-starsector/pkg/logging"
	"github.com/opd-ai/go-starsector/pkg/network"
	"github.com/opd-ai/go-starsector/pkg/peer"
	"github.com/opd-ai/go-starsector/pkg/persist"
)

// directoryBucket is the JetStream KV bucket holding live peer entries
const directoryBucket = "starsector-peers"

// tickStallLimit is how long the tick loop may go quiet before readiness fails
const tickStallLimit = 2 * time.Second

// peerLink is the transport and directory a server talks to its peers through
type peerLink struct {
	transport peer.Transport
	directory peer.Directory
	close     func()
}

func main() {
	logger := logging.NewLogger()
	ctx := context.Background()

	configPath := flag.String("config", "config.json", "Path to configuration file")
	createDefault := flag.Bool("default", false, "Create default configuration file")
	envFile := flag.String("env", ".env", "Optional .env file")
	flag.Parse()

	if *createDefault {
		if err := config.SaveConfig(config.DefaultConfig(), *configPath); err != nil {
			logger.Error(ctx, "Failed to create default configuration", err, "config_path", *configPath)
			os.Exit(1)
		}
		logger.Info(ctx, "Created default configuration file", "config_path", *configPath)
		return
	}

	if err := run(ctx, logger, *configPath, *envFile); err != nil {
		logger.Error(ctx, "Server stopped with error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *logging.Logger, configPath, envFile string) error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	gameConfig, err := loadGameConfig(ctx, logger, configPath)
	if err != nil {
		return err
	}
	if err := config.ApplyEnvironmentOverrides(gameConfig); err != nil {
		return logging.WrapError(err, "failed to apply environment configuration")
	}
	env, err := config.LoadConfigFromEnv()
	if err != nil {
		return logging.WrapError(err, "failed to read environment configuration")
	}

	defs := content.Default()
	if gameConfig.ContentFile != "" {
		if defs, err = content.LoadFile(gameConfig.ContentFile); err != nil {
			return logging.WrapError(err, "failed to load content", "path", gameConfig.ContentFile)
		}
	}

	universe, err := network.NewUniverse(gameConfig, defs, logger)
	if err != nil {
		return logging.WrapError(err, "failed to build universe")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	link, err := connectPeers(ctx, gameConfig, env, logger)
	if err != nil {
		return err
	}
	defer link.close()

	self := peer.NewEntry(gameConfig.ServerName, gameConfig.PublicAddress)
	if err := link.directory.Announce(ctx, self); err != nil {
		return logging.WrapError(err, "failed to announce to peer directory")
	}
	roster := peer.NewRoster(link.directory)
	if err := roster.Refresh(ctx); err != nil {
		logger.Warn(ctx, "Initial peer directory read failed", "error", err)
	}

	handoff := peer.NewHandoff(
		link.transport,
		universe.Ownership,
		roster,
		network.NewNetworkService(gameConfig.Peers.Breaker, env, logger),
		gameConfig.Peers.TransferTimeBox,
		logger,
	)
	handoff.Seed = gameConfig.Seed
	if err := handoff.Register(); err != nil {
		return logging.WrapError(err, "failed to register peer handlers")
	}
	universe.Handoff = handoff
	if err := handoff.AnnounceOwnership(); err != nil {
		logger.Warn(ctx, "Initial ownership broadcast failed", "error", err)
	}

	store, err := persist.NewFileStore(gameConfig.Checkpoint.Directory)
	if err != nil {
		return logging.WrapError(err, "failed to open checkpoint store", "dir", gameConfig.Checkpoint.Directory)
	}
	universe.Checkpointer = persist.NewCheckpointer(store, network.NewNetworkService(gameConfig.Checkpoint.Retry, env, logger), logger)

	sched := network.NewScheduler(universe, gameConfig.NetworkConfig.TickRate, 0, logger)
	server := network.NewGameServer(sched, gameConfig, env, logger)

	healthChecker := health.NewHealthChecker()
	healthChecker.AddCheck(health.NewTickLoopHealthCheck(sched.Alive, tickStallLimit))
	healthChecker.AddCheck(health.NewListenerHealthCheck(server.ListenerAddress))
	healthChecker.AddCheck(health.NewDirectoryHealthCheck(roster.Healthy))
	healthChecker.AddCheck(health.NewMemoryHealthCheck(int64(env.MaxMemoryMB), nil))
	healthServer := &http.Server{
		Addr:         net.JoinHostPort("", strconv.Itoa(env.HealthPort)),
		Handler:      healthChecker.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	serverAddr := gameConfig.NetworkConfig.ServerAddress
	if serverAddr == "" {
		return fmt.Errorf("server address not configured: set %s and %s or provide it in the config file",
			config.EnvServerAddr, config.EnvServerPort)
	}
	logger.Info(ctx, "Starting server",
		"server", gameConfig.ServerName,
		"address", serverAddr,
		"public_address", gameConfig.PublicAddress,
		"peer", fmt.Sprintf("%d/%d", gameConfig.Peers.Index+1, gameConfig.Peers.Count),
		"max_players", gameConfig.MaxPlayers,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return server.ListenAndServe(gctx, serverAddr) })
	g.Go(func() error {
		return quiet(peer.Heartbeat(gctx, link.directory, self, gameConfig.Peers.HeartbeatInterval, logger))
	})
	g.Go(func() error {
		return quiet(roster.Run(gctx, gameConfig.Peers.HeartbeatInterval, logger))
	})
	g.Go(func() error {
		logger.Info(gctx, "Starting health check server", "addr", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return logging.WrapError(err, "health check server failed")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return healthServer.Shutdown(shutdownCtx)
	})

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	<-gctx.Done()
	logger.Info(ctx, "Shutting down server", "timeout", env.ShutdownTimeout)
	select {
	case err := <-done:
		return err
	case <-time.After(env.ShutdownTimeout):
		return fmt.Errorf("shutdown did not finish within %v", env.ShutdownTimeout)
	}
}

// loadGameConfig reads the config file, falling back to the defaults when
// it does not exist
func loadGameConfig(ctx context.Context, logger *logging.Logger, path string) (*config.GameConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Info(ctx, "Configuration file not found, using default configuration", "config_path", path)
		return config.DefaultConfig(), nil
	}
	gameConfig, err := config.LoadConfig(path)
	if err != nil {
		return nil, logging.WrapError(err, "failed to load configuration", "config_path", path)
	}
	return gameConfig, nil
}

// connectPeers dials NATS when a URL is configured. A lone server without
// NATS uses an in-process hub and directory.
func connectPeers(ctx context.Context, cfg *config.GameConfig, env *config.EnvironmentConfig, logger *logging.Logger) (*peerLink, error) {
	if env.NATSURL == "" {
		if cfg.Peers.Count > 1 {
			return nil, fmt.Errorf("%d peers configured but %s is not set", cfg.Peers.Count, config.EnvNATSURL)
		}
		hub := peer.NewHub()
		transport := hub.Transport(cfg.ServerName)
		return &peerLink{
			transport: transport,
			directory: peer.NewMemoryDirectory(cfg.Peers.DirectoryTTL),
			close:     func() { transport.Close() },
		}, nil
	}

	nc, err := nats.Connect(env.NATSURL,
		nats.Name(cfg.ServerName),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn(ctx, "NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info(ctx, "NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, logging.WrapError(err, "failed to connect to NATS", "url", env.NATSURL)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, logging.WrapError(err, "failed to open JetStream")
	}
	dir, err := peer.NewKVDirectory(ctx, js, directoryBucket, cfg.Peers.DirectoryTTL)
	if err != nil {
		nc.Close()
		return nil, logging.WrapError(err, "failed to open peer directory", "bucket", directoryBucket)
	}
	transport := peer.NewNATSTransport(nc, cfg.ServerName, logger)
	logger.Info(ctx, "Connected to NATS", "url", nc.ConnectedUrl())
	return &peerLink{
		transport: transport,
		directory: dir,
		close: func() {
			transport.Close()
			if err := nc.Drain(); err != nil {
				logger.Warn(context.Background(), "NATS drain failed", "error", err)
			}
		},
	}, nil
}

// quiet treats cancellation as a clean exit
func quiet(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
