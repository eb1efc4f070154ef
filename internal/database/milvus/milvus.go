package milvus

import (
	"context"
	"fmt"
	"sync"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"ragchat/internal/config"
	"ragchat/pkg/logger"
)

var (
	instance *Client
	once     sync.Once
	initErr  error
)

// Client wraps the Milvus SDK client together with the collection
// configuration.
type Client struct {
	Client client.Client
	Config *config.MilvusConfig
}

// GetClient initializes and returns a singleton Milvus client.
func GetClient(ctx context.Context, cfg *config.MilvusConfig) (*Client, error) {
	once.Do(func() {
		c, err := client.NewClient(ctx, client.Config{Address: cfg.Address})
		if err != nil {
			initErr = fmt.Errorf("failed to connect to Milvus: %w", err)
			return
		}
		logger.New("database", "").Info("connected to Milvus")
		instance = &Client{Client: c, Config: cfg}
	})
	return instance, initErr
}

// Close shuts down the Milvus connection.
func (c *Client) Close() {
	if c.Client != nil {
		c.Client.Close()
	}
}

// HealthCheck verifies the Milvus connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.Client == nil {
		return fmt.Errorf("milvus client is nil")
	}
	if _, err := c.Client.ListCollections(ctx); err != nil {
		return fmt.Errorf("milvus health check failed: %w", err)
	}
	return nil
}

// EnsureCollections creates and loads the passage and turn collections if
// they do not exist. dim is the embedding dimension of the configured model.
func (c *Client) EnsureCollections(ctx context.Context, dim int) error {
	if err := c.ensureCollection(ctx, c.passageSchema(dim)); err != nil {
		return err
	}
	return c.ensureCollection(ctx, c.turnSchema(dim))
}

func (c *Client) passageSchema(dim int) *entity.Schema {
	cfg := c.Config
	return entity.NewSchema().
		WithName(cfg.PassageCollection).
		WithDescription("document chunks with embeddings, scoped per user").
		WithField(entity.NewField().WithName("id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(64).WithIsPrimaryKey(true)).
		WithField(entity.NewField().WithName("user_id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(128)).
		WithField(entity.NewField().WithName("document_id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(64)).
		WithField(entity.NewField().WithName("content").WithDataType(entity.FieldTypeVarChar).WithMaxLength(int64(cfg.MaxContentLength))).
		WithField(entity.NewField().WithName("metadata").WithDataType(entity.FieldTypeJSON)).
		WithField(entity.NewField().WithName("embedding").WithDataType(entity.FieldTypeFloatVector).WithDim(int64(dim)))
}

func (c *Client) turnSchema(dim int) *entity.Schema {
	cfg := c.Config
	return entity.NewSchema().
		WithName(cfg.TurnCollection).
		WithDescription("chat turns, scoped per user and grouped by chat id").
		WithField(entity.NewField().WithName("id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(64).WithIsPrimaryKey(true)).
		WithField(entity.NewField().WithName("chat_id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(64)).
		WithField(entity.NewField().WithName("user_id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(128)).
		WithField(entity.NewField().WithName("message").WithDataType(entity.FieldTypeVarChar).WithMaxLength(int64(cfg.MaxContentLength))).
		WithField(entity.NewField().WithName("response").WithDataType(entity.FieldTypeVarChar).WithMaxLength(int64(cfg.MaxContentLength))).
		WithField(entity.NewField().WithName("sources").WithDataType(entity.FieldTypeJSON)).
		WithField(entity.NewField().WithName("created_at").WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().WithName("embedding").WithDataType(entity.FieldTypeFloatVector).WithDim(int64(dim)))
}

func (c *Client) ensureCollection(ctx context.Context, schema *entity.Schema) error {
	exists, err := c.Client.HasCollection(ctx, schema.CollectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection %q: %w", schema.CollectionName, err)
	}
	if !exists {
		if err := c.Client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("failed to create collection %q: %w", schema.CollectionName, err)
		}
		idx, err := entity.NewIndexIvfFlat(entity.COSINE, c.Config.IndexNlist)
		if err != nil {
			return fmt.Errorf("failed to build index: %w", err)
		}
		if err := c.Client.CreateIndex(ctx, schema.CollectionName, "embedding", idx, false); err != nil {
			return fmt.Errorf("failed to create index on %q: %w", schema.CollectionName, err)
		}
	}

	if err := c.Client.LoadCollection(ctx, schema.CollectionName, false); err != nil {
		return fmt.Errorf("failed to load collection %q: %w", schema.CollectionName, err)
	}
	return nil
}

// Flush forces in-memory segments of a collection to disk.
func (c *Client) Flush(ctx context.Context, collection string) error {
	if err := c.Client.Flush(ctx, collection, false); err != nil {
		return fmt.Errorf("failed to flush collection %q: %w", collection, err)
	}
	return nil
}
