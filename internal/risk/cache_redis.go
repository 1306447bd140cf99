package risk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "arbiter/pkg/domain"
	"arbiter/pkg/platform/sentinel"
)

const assessmentKeyPrefix = "risk:assessment:"

// RedisCache stores assessments with a TTL so a batch worklist run does not
// hammer the scoring model for applicants it already scored recently.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func cacheKey(schemeID id.SchemeID, applicantID id.ApplicantID) string {
	return assessmentKeyPrefix + schemeID.String() + ":" + applicantID.String()
}

func (c *RedisCache) Get(ctx context.Context, schemeID id.SchemeID, applicantID id.ApplicantID) (*Assessment, error) {
	raw, err := c.client.Get(ctx, cacheKey(schemeID, applicantID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("risk cache get: %w", err)
	}
	var assessment Assessment
	if err := json.Unmarshal(raw, &assessment); err != nil {
		return nil, fmt.Errorf("risk cache decode: %w", err)
	}
	return &assessment, nil
}

func (c *RedisCache) Put(ctx context.Context, schemeID id.SchemeID, applicantID id.ApplicantID, a *Assessment) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("risk cache encode: %w", err)
	}
	return c.client.Set(ctx, cacheKey(schemeID, applicantID), raw, c.ttl).Err()
}
