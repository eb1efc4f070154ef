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
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"ragchat/internal/auth"
	"ragchat/internal/chat_service/api"
	"ragchat/internal/chat_service/publisher"
	"ragchat/internal/chat_service/service"
	"ragchat/internal/chat_service/store"
	"ragchat/internal/config"
	kafkadb "ragchat/internal/database/kafka"
	milvusdb "ragchat/internal/database/milvus"
	miniodb "ragchat/internal/database/minio"
	mongodb "ragchat/internal/database/mongo"
	redisdb "ragchat/internal/database/redis"
	"ragchat/internal/embedding"
	"ragchat/internal/llm"
	"ragchat/internal/rag/loaders"
	"ragchat/internal/rag/splitters"
	"ragchat/internal/vectorstore"
	milvusstore "ragchat/internal/vectorstore/milvus"
	opensearchstore "ragchat/internal/vectorstore/opensearch"
	"ragchat/pkg/httpclient"
	"ragchat/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.Init(level)
	appLogger := logger.New("chat_service", "")

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	embedder, err := buildEmbedder(cfg, appLogger)
	if err != nil {
		appLogger.Fatal(err.Error())
	}

	model, err := llm.New(cfg.Models.LLM)
	if err != nil {
		appLogger.Fatal(fmt.Sprintf("failed to create LLM client: %v", err))
	}

	breaker := httpclient.Options{
		Timeout:          30 * time.Second,
		BreakerEnabled:   cfg.Middleware.CircuitBreaker.Enabled,
		FailureThreshold: cfg.Middleware.CircuitBreaker.FailureThreshold,
		SuccessThreshold: cfg.Middleware.CircuitBreaker.SuccessThreshold,
		BreakerTimeout:   time.Duration(cfg.Middleware.CircuitBreaker.Timeout) * time.Second,
	}

	vecStore, err := buildStore(ctx, cfg, breaker, appLogger)
	if err != nil {
		appLogger.Fatal(err.Error())
	}

	deps := service.Deps{
		Store:     vecStore,
		Embedder:  embedder,
		Model:     model,
		Loader:    loaders.NewPdfLoader(),
		Splitter:  splitters.NewRecursiveCharacterSplitter(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap),
		Retrieval: cfg.Retrieval,
		Upload:    cfg.Upload,
		Log:       appLogger,
	}

	if cfg.Databases.MongoDB.Address != "" {
		client, err := mongodb.GetClient(&cfg.Databases.MongoDB)
		if err != nil {
			appLogger.Fatal(err.Error())
		}
		defer mongodb.Close(context.Background())
		deps.Uploads = store.NewMongoUploadStore(client.Database(cfg.Databases.MongoDB.Database), cfg.Databases.MongoDB.UploadsCollection)
	}

	if cfg.Databases.MinIO.Enabled {
		client, err := miniodb.GetClient(&cfg.Databases.MinIO)
		if err != nil {
			appLogger.Fatal(err.Error())
		}
		deps.Archive = service.NewMinioArchiver(client, cfg.Databases.MinIO.Bucket)
	}

	if cfg.Databases.Kafka.Enabled {
		client, err := kafkadb.GetClient(&cfg.Databases.Kafka)
		if err != nil {
			appLogger.Fatal(err.Error())
		}
		defer client.Close()
		deps.Events = publisher.NewKafkaPublisher(client, appLogger)
	}

	svc, err := service.New(deps)
	if err != nil {
		appLogger.Fatal(err.Error())
	}

	verifier, err := auth.NewVerifier(cfg.Auth, httpclient.New(breaker), appLogger)
	if err != nil {
		appLogger.Fatal(err.Error())
	}

	handler := api.NewHandler(svc, appLogger)
	router := api.SetupRouter(handler, verifier, cfg.Middleware)

	srv := &http.Server{Addr: cfg.Server.Address, Handler: router}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		appLogger.Info("server listening on " + cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		appLogger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLogger.Fatal(err.Error())
	}
	appLogger.Info("server stopped")
}

// buildEmbedder creates the provider client and wraps it with the Redis
// cache when enabled.
func buildEmbedder(cfg *config.AppConfig, appLogger *logger.Logger) (embedding.Embedding, error) {
	embedder, err := embedding.New(cfg.Models.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}
	if !cfg.Databases.Redis.Enabled {
		return embedder, nil
	}

	rdb, err := redisdb.GetClient(&cfg.Databases.Redis)
	if err != nil {
		return nil, err
	}
	ttl := time.Duration(cfg.Databases.Redis.TTL) * time.Second
	return embedding.NewCachedEmbedding(embedder, rdb, ttl, appLogger), nil
}

// buildStore constructs the configured vector store realization and runs its
// startup bootstrap.
func buildStore(ctx context.Context, cfg *config.AppConfig, breaker httpclient.Options, appLogger *logger.Logger) (vectorstore.Store, error) {
	switch cfg.VectorStore.Backend {
	case "milvus":
		client, err := milvusdb.GetClient(ctx, &cfg.VectorStore.Milvus)
		if err != nil {
			return nil, err
		}
		if cfg.VectorStore.Milvus.CreateOnStartup {
			if err := client.EnsureCollections(ctx, cfg.Models.Dimension); err != nil {
				return nil, err
			}
		}
		return milvusstore.NewStore(client, appLogger)
	case "opensearch":
		st, err := opensearchstore.NewStore(&cfg.VectorStore.OpenSearch, httpclient.New(breaker), cfg.Models.Dimension, appLogger)
		if err != nil {
			return nil, err
		}
		if err := st.EnsureIndices(ctx); err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unsupported vector store backend: %s", cfg.VectorStore.Backend)
	}
}
