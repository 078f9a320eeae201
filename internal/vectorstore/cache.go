package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/soratone/counsel-backend/internal/pkg/logger"
)

// DefaultCacheTTL is how long a search result stays fresh. The corpus
// only grows on ingest runs, so an hour of staleness is acceptable.
const DefaultCacheTTL = time.Hour

const cacheKeyPrefix = "vsearch:"

type cachedStore struct {
	inner Store
	rdb   *redis.Client
	log   *logger.Logger
	ttl   time.Duration
}

// NewCachedStore decorates inner with a Redis result cache. Redis
// failures degrade to uncached searches; they never fail the request.
func NewCachedStore(inner Store, rdb *redis.Client, log *logger.Logger, ttl time.Duration) Store {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &cachedStore{
		inner: inner,
		rdb:   rdb,
		log:   log.With("service", "CachedVectorStore"),
		ttl:   ttl,
	}
}

func (c *cachedStore) Search(ctx context.Context, query []float32, topK int, threshold float64, filter Filter) ([]Match, error) {
	key, keyErr := cacheKey(query, topK, threshold, filter)
	if keyErr == nil {
		raw, err := c.rdb.Get(ctx, key).Bytes()
		if err == nil {
			var cached []Match
			if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
				return cached, nil
			}
		} else if err != redis.Nil {
			c.log.Warn("Search cache read failed", "error", err.Error())
		}
	}

	matches, err := c.inner.Search(ctx, query, topK, threshold, filter)
	if err != nil {
		return nil, err
	}

	if keyErr == nil {
		if raw, jsonErr := json.Marshal(matches); jsonErr == nil {
			if setErr := c.rdb.Set(ctx, key, raw, c.ttl).Err(); setErr != nil {
				c.log.Warn("Search cache write failed", "error", setErr.Error())
			}
		}
	}
	return matches, nil
}

// cacheKey digests everything that determines a search result.
func cacheKey(query []float32, topK int, threshold float64, filter Filter) (string, error) {
	h := sha256.New()

	buf := make([]byte, 8)
	for _, f := range query {
		binary.LittleEndian.PutUint32(buf[:4], math.Float32bits(f))
		h.Write(buf[:4])
	}
	binary.LittleEndian.PutUint64(buf, uint64(topK))
	h.Write(buf)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(threshold))
	h.Write(buf)

	rawFilter, err := json.Marshal(filter)
	if err != nil {
		return "", err
	}
	h.Write(rawFilter)

	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil)), nil
}
