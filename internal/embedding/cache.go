package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ragchat/internal/models"
	"ragchat/pkg/logger"
)

// CachedEmbedding wraps another Embedding with a Redis cache keyed by a hash
// of the input text. Cache failures are logged and treated as misses; the
// inner client remains the source of truth.
type CachedEmbedding struct {
	inner Embedding
	rdb   *redis.Client
	ttl   time.Duration
	log   *logger.Logger
}

// NewCachedEmbedding creates the cache decorator.
func NewCachedEmbedding(inner Embedding, rdb *redis.Client, ttl time.Duration, log *logger.Logger) *CachedEmbedding {
	return &CachedEmbedding{inner: inner, rdb: rdb, ttl: ttl, log: log}
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "embedding:" + hex.EncodeToString(sum[:])
}

// Embed returns the cached vector for text, or embeds and caches it.
func (c *CachedEmbedding) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if data, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var vector []float32
		if err := json.Unmarshal(data, &vector); err == nil {
			return vector, nil
		}
	}

	vector, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, vector)
	return vector, nil
}

// EmbedBatch resolves cached entries and embeds only the misses, in a single
// call to the inner client. Input order is preserved.
func (c *CachedEmbedding) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var missing []int

	keys := make([]string, len(texts))
	for i, text := range texts {
		keys[i] = cacheKey(text)
	}
	if cached, err := c.rdb.MGet(ctx, keys...).Result(); err == nil {
		for i, raw := range cached {
			s, ok := raw.(string)
			if !ok {
				missing = append(missing, i)
				continue
			}
			var vector []float32
			if err := json.Unmarshal([]byte(s), &vector); err != nil {
				missing = append(missing, i)
				continue
			}
			results[i] = vector
		}
	} else {
		for i := range texts {
			missing = append(missing, i)
		}
	}

	if len(missing) == 0 {
		return results, nil
	}

	batch := make([]string, len(missing))
	for i, idx := range missing {
		batch[i] = texts[idx]
	}
	embedded, err := c.inner.EmbedBatch(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(embedded) != len(batch) {
		return nil, &models.EmbeddingError{
			Err: fmt.Errorf("expected %d embeddings, got %d", len(batch), len(embedded)),
		}
	}
	for i, idx := range missing {
		results[idx] = embedded[i]
		c.store(ctx, keys[idx], embedded[i])
	}
	return results, nil
}

func (c *CachedEmbedding) store(ctx context.Context, key string, vector []float32) {
	data, err := json.Marshal(vector)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.WithError(err).Warn("failed to cache embedding")
	}
}

var _ Embedding = (*CachedEmbedding)(nil)
