// Ragd is a retrieval-augmented chat daemon with an HTTP/SSE API.
//
// It ingests documents into a local vector index and answers session
// scoped chat queries grounded on the indexed content, streaming tokens
// over server-sent events.
//
// Configuration is loaded from an optional YAML file plus environment
// variables. See internal/config for the full surface.
//
// Usage:
//
//	# Start server with defaults
//	ragd
//
//	# Configure via environment
//	SERVER_HTTP_PORT=9000 PROVIDER_OPENAI_API_KEY=sk-... ragd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/chat"
	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/documents"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/memory"
	"github.com/fyrsmithlabs/ragd/internal/provider"
	"github.com/fyrsmithlabs/ragd/internal/retrieval"
	"github.com/fyrsmithlabs/ragd/internal/server"
	"github.com/fyrsmithlabs/ragd/internal/telemetry"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  ragd           Start the ragd daemon\n")
			fmt.Fprintf(os.Stderr, "  ragd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("ragd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the daemon and blocks until the context is cancelled.
//
// Initialization order:
//  1. Load configuration (.env, YAML file, environment)
//  2. Logger and telemetry
//  3. Vector index and document metadata from disk
//  4. Embedder, provider registry, session memory
//  5. Retrieval pipeline and ingest service
//  6. HTTP server, then graceful shutdown on cancellation
func run(ctx context.Context, configPath string) error {
	// .env is optional, ignore a missing file.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer logger.Sync()

	logger.Info(ctx, "starting ragd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.HTTPPort),
		zap.String("default_provider", cfg.Provider.Default))

	tel, err := telemetry.New(telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "telemetry shutdown failed", zap.Error(err))
		}
	}()

	embedder, err := embeddings.New(embeddings.Config{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		BaseURL:   cfg.Embedding.BaseURL,
		APIKey:    cfg.Embedding.APIKey,
		Dimension: cfg.Embedding.Dimension,
	})
	if err != nil {
		return fmt.Errorf("initialize embedder: %w", err)
	}

	index, err := vectorstore.NewIndex(embedder.Dimension(), vectorstore.MetricCosine)
	if err != nil {
		return fmt.Errorf("create vector index: %w", err)
	}

	persister := vectorstore.NewPersister(index, cfg.Store.IndexPath(), cfg.Store.SaveInterval, logger)
	if err := persister.LoadIfExists(); err != nil {
		return fmt.Errorf("load vector index: %w", err)
	}
	logger.Info(ctx, "vector index ready",
		zap.Int("chunks", index.Count()),
		zap.Int("dimension", embedder.Dimension()))

	docs := documents.NewStore(cfg.Store.MetadataPath())
	if err := docs.Load(); err != nil {
		return fmt.Errorf("load document metadata: %w", err)
	}
	logger.Info(ctx, "document registry ready", zap.Int("documents", docs.Count()))

	registry := provider.NewRegistry()
	if cfg.Provider.OpenAI.APIKey != "" {
		openaiAdapter, err := provider.NewOpenAIAdapter(provider.OpenAIConfig{
			APIKey:  cfg.Provider.OpenAI.APIKey,
			BaseURL: cfg.Provider.OpenAI.BaseURL,
			Model:   cfg.Provider.OpenAI.Model,
		})
		if err != nil {
			return fmt.Errorf("initialize openai provider: %w", err)
		}
		registry.Register(openaiAdapter)
	}
	registry.Register(provider.NewOllamaAdapter(provider.OllamaConfig{
		BaseURL: cfg.Provider.Ollama.BaseURL,
		Model:   cfg.Provider.Ollama.Model,
	}))
	logger.Info(ctx, "providers registered", zap.Strings("providers", registry.Names()))

	sessions := memory.NewStore(memory.Config{
		Window:        cfg.Memory.Window,
		MaxTurns:      cfg.Memory.MaxTurns,
		IdleTTL:       cfg.Memory.IdleTTL,
		SweepInterval: cfg.Memory.SweepInterval,
	}, logger)

	retriever := retrieval.NewRetriever(embedder, index, retrieval.Defaults{
		TopK:           cfg.Retrieval.TopK,
		ScoreThreshold: float32(cfg.Retrieval.ScoreThreshold),
	}, logger)

	counter, err := retrieval.NewTiktokenCounter()
	var builder *retrieval.ContextBuilder
	if err != nil {
		logger.Warn(ctx, "tokenizer unavailable, using length heuristic", zap.Error(err))
		builder = retrieval.NewContextBuilder(retrieval.HeuristicCounter{}, cfg.Context.TokenBudget)
	} else {
		builder = retrieval.NewContextBuilder(counter, cfg.Context.TokenBudget)
	}
	builder.ResolveFilename = func(documentID string) string {
		doc, err := docs.Get(documentID)
		if err != nil {
			return documentID
		}
		return doc.Filename
	}

	orch := chat.NewOrchestrator(sessions, retriever, builder, registry,
		chat.Config{DefaultProvider: cfg.Provider.Default}, logger)

	extractors := []ingest.Extractor{ingest.PlainTextExtractor{}}
	if cfg.Ingest.ParserURL != "" {
		extractors = append(extractors, ingest.NewSidecarExtractor(cfg.Ingest.ParserURL, []string{"pdf", "docx"}))
	}
	ingestSvc := ingest.NewService(docs, index, embedder, extractors, persister, ingest.Config{
		MaxFileSize:  cfg.Ingest.MaxFileSize,
		ChunkSize:    cfg.Ingest.ChunkSize,
		ChunkOverlap: cfg.Ingest.ChunkOverlap,
	}, logger)

	srv, err := server.NewServer(orch, ingestSvc, docs, sessions, server.NewHTTPMetrics(), logger, server.Config{
		Host:    cfg.Server.Host,
		Port:    cfg.Server.HTTPPort,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("initialize http server: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		persister.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		sessions.RunSweeper(ctx)
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		// Startup failure; background loops stop via the deferred cancel.
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "http shutdown failed", zap.Error(err))
	}
	wg.Wait()

	if err := docs.Save(); err != nil {
		logger.Error(shutdownCtx, "failed to save document metadata", zap.Error(err))
	}
	return nil
}
