package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/argus-vision/argus/internal/api"
	"github.com/argus-vision/argus/internal/config"
	"github.com/argus-vision/argus/internal/db"
	"github.com/argus-vision/argus/internal/frames"
	"github.com/argus-vision/argus/internal/identity"
	"github.com/argus-vision/argus/internal/logging"
	"github.com/argus-vision/argus/internal/pipeline"
	"github.com/argus-vision/argus/internal/radar"
	"github.com/argus-vision/argus/internal/relay"
	"github.com/argus-vision/argus/internal/session"
	"github.com/argus-vision/argus/internal/watchlist"
)

var rootCmd = &cobra.Command{
	Use:     "argusd",
	Short:   "Argus surveillance server",
	Version: config.Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return run(cmd.Context())
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting argus server", "version", config.Version, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	persons := identity.NewRepository(database.Conn())

	serverID, err := ensureConfigValue(persons, "server_id", 16)
	if err != nil {
		return fmt.Errorf("failed to ensure server ID: %w", err)
	}
	authToken, err := ensureConfigValue(persons, "auth_token", 32)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║                    ARGUS SERVER v%-6s                   ║\n", config.Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:     http://127.0.0.1:%-26d ║\n", cfg.APIPort())
	fmt.Printf("║  Camera Port: %-44d ║\n", cfg.CameraPort())
	fmt.Printf("║  Live Port:   %-44d ║\n", cfg.LivePort())
	fmt.Printf("║  Auth Token:  %-44s ║\n", authToken)
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	index := identity.NewIndex(cfg.EmbeddingDim())
	resolver := identity.NewResolver(index, persons, cfg.MatchThreshold(), logging.WithComponent(logger, "identity"))
	if err := resolver.Rebuild(ctx); err != nil {
		return fmt.Errorf("failed to rebuild vector index: %w", err)
	}

	frameStore := frames.NewStore(cfg.FramesDir())
	registry := session.NewRegistry()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	discovery := radar.New(cfg.DiscoveryPort(), cfg.DiscoveryTTL(), cfg.SweepInterval(),
		logging.WithComponent(logger, "radar"))
	if err := discovery.Start(ctx); err != nil {
		return fmt.Errorf("failed to start discovery radar: %w", err)
	}

	cameraServer := session.NewServer(cfg.CameraPort(), registry, frameStore,
		logging.WithComponent(logger, "session"))
	if err := cameraServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start camera server: %w", err)
	}

	hub := relay.NewHub(logging.WithComponent(logger, "relay"))
	liveServer := relay.NewServer(cfg.LivePort(), hub, logging.WithComponent(logger, "relay"))
	if err := liveServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start live relay: %w", err)
	}

	embedder := pipeline.HashEmbedder{Dim: cfg.EmbeddingDim()}
	runner := pipeline.NewRunner(frameStore, pipeline.FullFrameDetector{}, embedder, resolver,
		cfg.ScanInterval(), logging.WithComponent(logger, "pipeline"))
	go runner.Start(ctx)

	wlRepo := watchlist.NewRepository(database.Conn())
	matcher := watchlist.NewMatcher(wlRepo, persons, resolver, embedder, cfg.PhotosDir(),
		logging.WithComponent(logger, "watchlist"))
	go matcher.Start(ctx, cfg.CheckInterval())

	apiServer := api.NewServer(api.ServerConfig{
		Port:          cfg.APIPort(),
		Registry:      registry,
		Radar:         discovery,
		Persons:       persons,
		Watchlist:     matcher,
		WatchlistRepo: wlRepo,
		Logger:        logging.WithComponent(logger, "api"),
		StartTime:     startTime,
		ServerID:      serverID,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	<-ctx.Done()

	logger.Info("initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// ensureConfigValue returns the stored value for key, generating and
// persisting a random hex value on first run.
func ensureConfigValue(repo identity.Repository, key string, bytes int) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, key)
	if err == nil && existing != "" {
		return existing, nil
	}

	raw := make([]byte, bytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	value := hex.EncodeToString(raw)

	if err := repo.SetConfig(ctx, key, value); err != nil {
		return "", err
	}
	return value, nil
}
