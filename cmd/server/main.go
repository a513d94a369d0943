package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/docquery/docquery/internal/chunker"
	"github.com/docquery/docquery/internal/core"
	"github.com/docquery/docquery/internal/embed"
	"github.com/docquery/docquery/internal/extract"
	"github.com/docquery/docquery/internal/httpapi"
	"github.com/docquery/docquery/internal/llm"
	"github.com/docquery/docquery/internal/logger"
	"github.com/docquery/docquery/internal/qa"
	"github.com/docquery/docquery/internal/vecstore"
)

// Config represents the application configuration.
type Config struct {
	ListenAddr        string
	AuthToken         string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	CompletionModel   string
	EmbeddingModel    string
	EmbeddingDim      int
	MilvusHost        string
	MilvusPort        string
	MilvusEnabled     bool
	LocalIndexDir     string
	ChunkSize         int
	ChunkOverlap      int
	ExtractionTimeout time.Duration
}

// loadConfig loads configuration from environment variables.
func loadConfig() *Config {
	return &Config{
		ListenAddr:        getEnvWithDefault("LISTEN_ADDR", ":8080"),
		AuthToken:         os.Getenv("API_AUTH_TOKEN"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:     getEnvWithDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		CompletionModel:   getEnvWithDefault("COMPLETION_MODEL", llm.DefaultModel),
		EmbeddingModel:    getEnvWithDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDim:      getEnvIntWithDefault("EMBEDDING_DIM", embed.DefaultDimension),
		MilvusHost:        getEnvWithDefault("MILVUS_HOST", "milvus"),
		MilvusPort:        getEnvWithDefault("MILVUS_PORT", "19530"),
		MilvusEnabled:     getEnvWithDefault("MILVUS_ENABLED", "true") == "true",
		LocalIndexDir:     getEnvWithDefault("LOCAL_INDEX_DIR", "data/index"),
		ChunkSize:         getEnvIntWithDefault("CHUNK_SIZE", chunker.DefaultChunkSize),
		ChunkOverlap:      getEnvIntWithDefault("CHUNK_OVERLAP", chunker.DefaultChunkOverlap),
		ExtractionTimeout: time.Duration(getEnvIntWithDefault("EXTRACTION_TIMEOUT_SECONDS", 30)) * time.Second,
	}
}

// getEnvWithDefault gets an environment variable or returns a default value.
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func main() {
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logger.Init(*debug)
	logger.Info("Starting document QA server...")

	if err := godotenv.Load(); err != nil {
		logger.Info("Warning: No .env file found or error loading it")
	}

	config := loadConfig()

	if logger.IsDebugEnabled() {
		logger.Debug("Configuration loaded: ListenAddr=%s, CompletionModel=%s, EmbeddingDim=%d, MilvusHost=%s, MilvusEnabled=%v",
			config.ListenAddr, config.CompletionModel, config.EmbeddingDim, config.MilvusHost, config.MilvusEnabled)
	}

	if config.OpenAIAPIKey == "" {
		logger.Error("OPENAI_API_KEY environment variable is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Initializing services...")

	extractor := extract.NewHTTPExtractor(config.ExtractionTimeout)

	embedder := embed.NewClient(embed.Config{
		BaseURL:   config.OpenAIBaseURL,
		APIKey:    config.OpenAIAPIKey,
		Model:     config.EmbeddingModel,
		Dimension: config.EmbeddingDim,
	})

	// The local backend is required; Milvus is primary but optional.
	localBackend, err := vecstore.NewLocal(config.LocalIndexDir, embedder)
	if err != nil {
		logger.Error("Failed to initialize local vector index: %v", err)
		os.Exit(1)
	}

	backends := []core.Backend{}
	var milvusBackend *vecstore.MilvusBackend
	if config.MilvusEnabled {
		milvusAddr := config.MilvusHost + ":" + config.MilvusPort
		milvusBackend, err = vecstore.NewMilvus(ctx, milvusAddr, config.EmbeddingDim)
		if err != nil {
			logger.Warn("Milvus unavailable, continuing with local index only: %v", err)
		} else {
			backends = append(backends, milvusBackend)
		}
	}
	backends = append(backends, localBackend)

	index, err := vecstore.NewIndex(embedder, backends...)
	if err != nil {
		logger.Error("Failed to initialize vector index: %v", err)
		os.Exit(1)
	}

	completer := llm.NewClient(llm.Config{
		BaseURL: config.OpenAIBaseURL,
		APIKey:  config.OpenAIAPIKey,
		Model:   config.CompletionModel,
	})

	ch, err := chunker.New(config.ChunkSize, config.ChunkOverlap)
	if err != nil {
		logger.Error("Invalid chunking configuration: %v", err)
		os.Exit(1)
	}

	processor := qa.NewProcessor(extractor, ch, index, completer)
	server := httpapi.NewServer(processor, config.AuthToken)

	httpServer := &http.Server{
		Addr:    config.ListenAddr,
		Handler: server.Handler(),
	}

	go func() {
		logger.Info("Listening on %s", config.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed: %v", err)
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case <-ctx.Done():
	}
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed: %v", err)
	}
	if milvusBackend != nil {
		if err := milvusBackend.Close(shutdownCtx); err != nil {
			logger.Error("Failed to close Milvus connection: %v", err)
		}
	}

	logger.Info("Server has been shut down")
}
