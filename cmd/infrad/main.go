// Infrad is the knowledge daemon for infrastructure automation agents.
//
// It serves federated semantic search, agent memory, cloud inventory
// and drift context, and session state over HTTP, backed by an
// embedded or external vector store and a NATS JetStream session
// bucket.
//
// Usage:
//
//	# Start the daemon with defaults
//	infrad serve
//
//	# Start with a specific config file
//	infrad serve --config ~/.config/infrad/config.yaml
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/infrad/internal/assembler"
	"github.com/fyrsmithlabs/infrad/internal/cloud"
	"github.com/fyrsmithlabs/infrad/internal/cloudstate"
	"github.com/fyrsmithlabs/infrad/internal/config"
	"github.com/fyrsmithlabs/infrad/internal/embeddings"
	"github.com/fyrsmithlabs/infrad/internal/federation"
	httpserver "github.com/fyrsmithlabs/infrad/internal/http"
	"github.com/fyrsmithlabs/infrad/internal/llm"
	"github.com/fyrsmithlabs/infrad/internal/logging"
	"github.com/fyrsmithlabs/infrad/internal/memory"
	"github.com/fyrsmithlabs/infrad/internal/services"
	"github.com/fyrsmithlabs/infrad/internal/session"
	"github.com/fyrsmithlabs/infrad/internal/telemetry"
	"github.com/fyrsmithlabs/infrad/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "infrad",
	Short: "Knowledge daemon for infrastructure automation agents",
	Long: `infrad serves federated semantic search, agent memory, cloud
inventory context and session state over HTTP.`,
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the infrad daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("infrad by Fyrsmith Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "config file path (default ~/.config/infrad/config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// run wires every service and blocks until the context is cancelled.
//
//  1. Loads and validates configuration
//  2. Initializes logger and telemetry
//  3. Creates the embedding provider and vector store
//  4. Connects to NATS for the session bucket
//  5. Wires memory, cloud state, federation, assembly and the LLM client
//  6. Starts the HTTP server and shuts it down gracefully
func run(ctx context.Context) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("starting infrad",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("vectorstore", cfg.VectorStore.Provider))

	tel, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	store, cleanup, err := initVectorStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing vector store: %w", err)
	}
	defer cleanup()

	sessions, nc, err := initSessions(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing session store: %w", err)
	}
	defer nc.Close()

	var fetcher cloud.Fetcher
	if cfg.Inventory.Path != "" {
		inventory, err := cloud.LoadInventoryFile(cfg.Inventory.Path)
		if err != nil {
			return fmt.Errorf("loading inventory: %w", err)
		}
		fetcher = cloud.NewStatic(inventory, logger)
		logger.Info("static inventory loaded",
			zap.String("path", cfg.Inventory.Path),
			zap.Int("resource_types", len(inventory)))
	}

	federator := federation.New(store, federation.Config{
		PerCollectionTimeout: cfg.Federation.PerCollectionTimeout.Duration(),
		MaxConcurrency:       cfg.Federation.MaxConcurrency,
	}, logger)

	memMgr, err := memory.NewManager(store, memory.Config{}, logger)
	if err != nil {
		return fmt.Errorf("initializing memory manager: %w", err)
	}

	cloudSvc, err := cloudstate.NewService(store, fetcher, federator, logger)
	if err != nil {
		return fmt.Errorf("initializing cloud state service: %w", err)
	}

	var llmClient llm.Client
	if cfg.LLM.APIKey.IsSet() {
		claude, err := llm.NewClaudeClient(cfg.LLM.APIKey.Value(), cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.MaxTokens)
		if err != nil {
			return fmt.Errorf("initializing llm client: %w", err)
		}
		llmClient = claude
	} else {
		logger.Warn("no llm api key configured, chat endpoint disabled")
	}

	users, err := services.NewUserAdmin(store, sessions, logger)
	if err != nil {
		return fmt.Errorf("initializing user admin: %w", err)
	}

	registry := services.NewRegistry(services.Options{
		VectorStore: store,
		Sessions:    sessions,
		Fetcher:     fetcher,
		Memory:      memMgr,
		CloudState:  cloudSvc,
		Federator:   federator,
		Assembler:   assembler.New(logger),
		LLM:         llmClient,
		Users:       users,
	})

	srv, err := httpserver.NewServer(registry, logger, &httpserver.Config{
		Host:             cfg.Server.Host,
		Port:             cfg.Server.Port,
		DefaultMaxTokens: cfg.Assembler.MaxContextTokens,
	})
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// initVectorStore builds the configured store backend, wrapped with
// metrics instrumentation. The cleanup closes the underlying store.
func initVectorStore(cfg *config.Config, logger *zap.Logger) (vectorstore.Store, func(), error) {
	if cfg.VectorStore.Provider == "memory" {
		store := vectorstore.NewMemoryStore()
		return vectorstore.NewInstrumentedStore(store), func() { _ = store.Close() }, nil
	}

	provider, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider: cfg.Embeddings.Provider,
		Model:    cfg.Embeddings.Model,
		BaseURL:  cfg.Embeddings.BaseURL,
		CacheDir: cfg.Embeddings.CacheDir,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	logger.Info("embedding provider initialized",
		zap.String("provider", cfg.Embeddings.Provider),
		zap.String("model", cfg.Embeddings.Model),
		zap.Int("dimension", provider.Dimension()))

	var inner vectorstore.Store
	switch cfg.VectorStore.Provider {
	case "qdrant":
		inner, err = vectorstore.NewQdrantStore(vectorstore.QdrantConfig{
			Host:       cfg.VectorStore.Qdrant.Host,
			Port:       cfg.VectorStore.Qdrant.Port,
			APIKey:     cfg.VectorStore.Qdrant.APIKey.Value(),
			UseTLS:     cfg.VectorStore.Qdrant.UseTLS,
			VectorSize: uint64(provider.Dimension()),
		}, provider)
	default: // chromem
		inner, err = vectorstore.NewChromemStore(vectorstore.ChromemConfig{
			Path:       cfg.VectorStore.Chromem.Path,
			Compress:   cfg.VectorStore.Chromem.Compress,
			VectorSize: provider.Dimension(),
		}, provider, logger)
	}
	if err != nil {
		_ = provider.Close()
		return nil, nil, err
	}

	cleanup := func() {
		_ = inner.Close()
		_ = provider.Close()
	}
	return vectorstore.NewInstrumentedStore(inner), cleanup, nil
}

// initSessions connects to NATS and builds the JetStream-backed
// session service.
func initSessions(cfg *config.Config, logger *zap.Logger) (*session.Service, *nats.Conn, error) {
	nc, err := nats.Connect(cfg.NATS.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to nats at %s: %w", cfg.NATS.URL, err)
	}

	store, err := session.NewNATSStore(nc, cfg.NATS.Bucket, logger)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("creating session bucket: %w", err)
	}

	svc, err := session.NewService(store, cfg.NATS.SessionTTL.Duration(), logger)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}

	logger.Info("session store ready",
		zap.String("nats_url", cfg.NATS.URL),
		zap.String("bucket", cfg.NATS.Bucket))
	return svc, nc, nil
}
