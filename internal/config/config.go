package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Address string `yaml:"address"` // listen address, e.g. ":8080"
	Mode    string `yaml:"mode"`    // gin mode: "debug" or "release"
}

// AuthConfig configures how bearer tokens are verified. Method "provider"
// verifies the token against the external identity provider's API; "jwt"
// verifies an HMAC-signed token locally.
type AuthConfig struct {
	Method         string `yaml:"method"`
	JwtSecret      string `yaml:"jwtSecret"`
	ProviderURL    string `yaml:"providerURL"`    // identity provider API base URL
	ProviderSecret string `yaml:"providerSecret"` // server-side API key for the provider
}

// ModelConfig identifies one external model endpoint.
type ModelConfig struct {
	Provider string `yaml:"provider"` // "openai", "google" or "ollama"
	Model    string `yaml:"model"`
	APIKey   string `yaml:"apiKey"`
	BaseURL  string `yaml:"baseURL,omitempty"` // for self-hosted providers
}

// ModelConfigs groups the embedding and completion model settings.
type ModelConfigs struct {
	Embedding ModelConfig `yaml:"embedding"`
	LLM       ModelConfig `yaml:"llm"`
	// Dimension is the embedding vector size. It must match the vector
	// store's configured dimension; a mismatch is a configuration error.
	Dimension int `yaml:"dimension"`
}

// MilvusConfig defines the Milvus connection and collection names.
type MilvusConfig struct {
	Address           string `yaml:"address"`
	PassageCollection string `yaml:"passageCollection"`
	TurnCollection    string `yaml:"turnCollection"`
	IndexNlist        int    `yaml:"indexNlist"`
	SearchNprobe      int    `yaml:"searchNprobe"`
	MaxContentLength  int    `yaml:"maxContentLength"`  // VarChar capacity for passage/turn text
	SessionScanLimit  int    `yaml:"sessionScanLimit"`  // upper bound on turns scanned per listing query
	TurnHistoryLimit  int    `yaml:"turnHistoryLimit"`  // upper bound on turns returned per chat
	DocumentListLimit int    `yaml:"documentListLimit"` // upper bound on passages returned per listing
	CreateOnStartup   bool   `yaml:"createOnStartup"`   // create missing collections at boot
}

// OpenSearchConfig defines the OpenSearch connection and index names.
type OpenSearchConfig struct {
	Address       string `yaml:"address"` // e.g. "https://localhost:9200"
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	DocumentIndex string `yaml:"documentIndex"`
	ChatIndex     string `yaml:"chatIndex"`
}

// VectorStoreConfig selects and configures the backing store realization.
type VectorStoreConfig struct {
	Backend    string           `yaml:"backend"` // "milvus" or "opensearch"
	Milvus     MilvusConfig     `yaml:"milvus"`
	OpenSearch OpenSearchConfig `yaml:"opensearch"`
}

// RedisConfig defines the Redis connection used by the embedding cache.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TTL      int    `yaml:"ttl"` // cache entry lifetime in seconds
}

// MongoConfig defines the MongoDB connection for the upload registry.
type MongoConfig struct {
	Address           string `yaml:"address"`
	Username          string `yaml:"username"`
	Password          string `yaml:"password"`
	Database          string `yaml:"database"`
	UploadsCollection string `yaml:"uploadsCollection"`
}

// MinIOConfig defines the optional object-storage archive for uploads.
type MinIOConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Secure    bool   `yaml:"secure"`
}

// KafkaConfig defines the optional domain-event publisher.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// DatabaseConfigs groups the supporting stores.
type DatabaseConfigs struct {
	Redis   RedisConfig `yaml:"redis"`
	MongoDB MongoConfig `yaml:"mongodb"`
	MinIO   MinIOConfig `yaml:"minio"`
	Kafka   KafkaConfig `yaml:"kafka"`
}

// UploadConfig bounds document uploads.
type UploadConfig struct {
	MaxFileSize int64  `yaml:"maxFileSize"` // bytes
	TempDir     string `yaml:"tempDir"`
}

// RetrievalConfig bounds similarity searches.
type RetrievalConfig struct {
	ChatTopK      int `yaml:"chatTopK"`      // passages retrieved per chat turn
	SearchTopK    int `yaml:"searchTopK"`    // default k for explicit document search
	MaxTopK       int `yaml:"maxTopK"`       // hard cap on caller-supplied k
	ContextTokens int `yaml:"contextTokens"` // token budget for the grounding context
}

// ChunkingConfig bounds the document splitter.
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunkSize"`
	ChunkOverlap int `yaml:"chunkOverlap"`
}

// RateLimiterConfig configures the per-route token bucket.
type RateLimiterConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Rate     float64 `yaml:"rate"`
	Capacity int     `yaml:"capacity"`
}

// CircuitBreakerConfig configures the outbound-call breaker.
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	SuccessThreshold uint32 `yaml:"successThreshold"`
	Timeout          int    `yaml:"timeout"` // seconds the circuit stays open
}

// MiddlewareConfig groups transport-level protections.
type MiddlewareConfig struct {
	RateLimiter    RateLimiterConfig    `yaml:"rateLimiter"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// AppConfig is the root configuration object.
type AppConfig struct {
	Server      ServerConfig      `yaml:"server"`
	Auth        AuthConfig        `yaml:"auth"`
	Models      ModelConfigs      `yaml:"models"`
	VectorStore VectorStoreConfig `yaml:"vectorStore"`
	Databases   DatabaseConfigs   `yaml:"databases"`
	Upload      UploadConfig      `yaml:"upload"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	Middleware  MiddlewareConfig  `yaml:"middleware"`
}

// LoadConfig reads the YAML file at path, applies environment overrides for
// secrets, and fills in defaults for anything left unset.
func LoadConfig(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	return &cfg, nil
}

// applyEnvOverrides lets secrets come from the environment instead of the
// config file, so the file can be committed without credentials.
func (c *AppConfig) applyEnvOverrides() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if c.Models.Embedding.Provider == "openai" {
			c.Models.Embedding.APIKey = v
		}
		if c.Models.LLM.Provider == "openai" {
			c.Models.LLM.APIKey = v
		}
	}
	if v := os.Getenv("GOOGLE_API_KEY"); v != "" {
		if c.Models.Embedding.Provider == "google" {
			c.Models.Embedding.APIKey = v
		}
		if c.Models.LLM.Provider == "google" {
			c.Models.LLM.APIKey = v
		}
	}
	if v := os.Getenv("IDENTITY_PROVIDER_SECRET"); v != "" {
		c.Auth.ProviderSecret = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JwtSecret = v
	}
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Auth.Method == "" {
		c.Auth.Method = "provider"
	}
	if c.Models.Dimension == 0 {
		c.Models.Dimension = 1536
	}
	if c.VectorStore.Backend == "" {
		c.VectorStore.Backend = "milvus"
	}
	if c.VectorStore.Milvus.PassageCollection == "" {
		c.VectorStore.Milvus.PassageCollection = "rag_documents"
	}
	if c.VectorStore.Milvus.TurnCollection == "" {
		c.VectorStore.Milvus.TurnCollection = "chat_history"
	}
	if c.VectorStore.Milvus.IndexNlist == 0 {
		c.VectorStore.Milvus.IndexNlist = 128
	}
	if c.VectorStore.Milvus.SearchNprobe == 0 {
		c.VectorStore.Milvus.SearchNprobe = 10
	}
	if c.VectorStore.Milvus.MaxContentLength == 0 {
		c.VectorStore.Milvus.MaxContentLength = 8192
	}
	if c.VectorStore.Milvus.SessionScanLimit == 0 {
		c.VectorStore.Milvus.SessionScanLimit = 1000
	}
	if c.VectorStore.Milvus.TurnHistoryLimit == 0 {
		c.VectorStore.Milvus.TurnHistoryLimit = 100
	}
	if c.VectorStore.Milvus.DocumentListLimit == 0 {
		c.VectorStore.Milvus.DocumentListLimit = 1000
	}
	if c.VectorStore.OpenSearch.DocumentIndex == "" {
		c.VectorStore.OpenSearch.DocumentIndex = "rag_documents"
	}
	if c.VectorStore.OpenSearch.ChatIndex == "" {
		c.VectorStore.OpenSearch.ChatIndex = "chat_history"
	}
	if c.Databases.MongoDB.UploadsCollection == "" {
		c.Databases.MongoDB.UploadsCollection = "document_uploads"
	}
	if c.Databases.Redis.TTL == 0 {
		c.Databases.Redis.TTL = 3600
	}
	if c.Databases.Kafka.Topic == "" {
		c.Databases.Kafka.Topic = "ragchat_events"
	}
	if c.Upload.MaxFileSize == 0 {
		c.Upload.MaxFileSize = 10 * 1024 * 1024
	}
	if c.Upload.TempDir == "" {
		c.Upload.TempDir = "uploads"
	}
	if c.Retrieval.ChatTopK == 0 {
		c.Retrieval.ChatTopK = 3
	}
	if c.Retrieval.SearchTopK == 0 {
		c.Retrieval.SearchTopK = 5
	}
	if c.Retrieval.MaxTopK == 0 {
		c.Retrieval.MaxTopK = 20
	}
	if c.Retrieval.ContextTokens == 0 {
		c.Retrieval.ContextTokens = 3000
	}
	if c.Chunking.ChunkSize == 0 {
		c.Chunking.ChunkSize = 1000
	}
	if c.Chunking.ChunkOverlap == 0 {
		c.Chunking.ChunkOverlap = 200
	}
	if c.Middleware.CircuitBreaker.FailureThreshold == 0 {
		c.Middleware.CircuitBreaker.FailureThreshold = 5
	}
	if c.Middleware.CircuitBreaker.SuccessThreshold == 0 {
		c.Middleware.CircuitBreaker.SuccessThreshold = 2
	}
	if c.Middleware.CircuitBreaker.Timeout == 0 {
		c.Middleware.CircuitBreaker.Timeout = 30
	}
}
