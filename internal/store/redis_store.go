package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stemline/api/internal/model"
)

const trackIndexKey = "tracks:index"

// RedisStore keeps one JSON document per track under tracks:{id} and
// indexes ids by creation time.
type RedisStore struct {
	redis *redis.Client
	now   func() time.Time
}

func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{
		redis: redisClient,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *RedisStore) Save(ctx context.Context, track *model.Track) error {
	track.CreatedAt = s.now()
	data, err := json.Marshal(track)
	if err != nil {
		return fmt.Errorf("failed to marshal track: %w", err)
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, trackDocKey(track.TrackID), data, 0)
	pipe.ZAdd(ctx, trackIndexKey, redis.Z{
		Score:  float64(track.CreatedAt.UnixMilli()),
		Member: track.TrackID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save track: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, trackID string) (*model.Track, error) {
	data, err := s.redis.Get(ctx, trackDocKey(trackID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var track model.Track
	if err := json.Unmarshal(data, &track); err != nil {
		return nil, fmt.Errorf("failed to unmarshal track: %w", err)
	}
	return &track, nil
}

// Recent returns up to limit track ids, newest first
func (s *RedisStore) Recent(ctx context.Context, limit int64) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.redis.ZRevRange(ctx, trackIndexKey, 0, limit-1).Result()
}

func trackDocKey(trackID string) string {
	return fmt.Sprintf("tracks:%s", trackID)
}
