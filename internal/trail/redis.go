package trail

import (
	"context"
	"encoding/json"
	"log"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const sessionsKey = "trail:sessions"

// RedisStore keeps each session's trail in a sorted set scored by the sample
// timestamp, which gives age-based pruning and per-session bulk reads the
// same index semantics the embedded-store contract asks for. A set of known
// session ids supports pruning across sessions.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func trailKey(sessionID string) string {
	return "trail:" + sessionID + ":samples"
}

func (s *RedisStore) Append(ctx context.Context, sample Sample) {
	payload, err := json.Marshal(sample)
	if err != nil {
		log.Printf("trail: marshal failed for session %s: %v", sample.SessionID, err)
		return
	}

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, trailKey(sample.SessionID), redis.Z{
		Score:  float64(sample.TimestampMs),
		Member: payload,
	})
	pipe.SAdd(ctx, sessionsKey, sample.SessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("trail: append failed for session %s: %v", sample.SessionID, err)
	}
}

func (s *RedisStore) GetAll(ctx context.Context, sessionID string) ([]Sample, error) {
	members, err := s.client.ZRange(ctx, trailKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	samples := make([]Sample, 0, len(members))
	for _, m := range members {
		var smp Sample
		if err := json.Unmarshal([]byte(m), &smp); err != nil {
			log.Printf("trail: skipping corrupt sample in session %s: %v", sessionID, err)
			continue
		}
		samples = append(samples, smp)
	}
	return samples, nil
}

func (s *RedisStore) Clear(ctx context.Context, sessionID string) {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, trailKey(sessionID))
	pipe.SRem(ctx, sessionsKey, sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("trail: clear failed for session %s: %v", sessionID, err)
	}
}

func (s *RedisStore) PruneOlderThan(ctx context.Context, days int) {
	sessions, err := s.client.SMembers(ctx, sessionsKey).Result()
	if err != nil {
		log.Printf("trail: prune session scan failed: %v", err)
		return
	}

	cutoff := strconv.FormatInt(pruneCutoffMs(days), 10)
	for _, sessionID := range sessions {
		key := trailKey(sessionID)
		if err := s.client.ZRemRangeByScore(ctx, key, "-inf", "("+cutoff).Err(); err != nil {
			log.Printf("trail: prune failed for session %s: %v", sessionID, err)
			continue
		}
		remaining, err := s.client.ZCard(ctx, key).Result()
		if err == nil && remaining == 0 {
			s.Clear(ctx, sessionID)
		}
	}
}
