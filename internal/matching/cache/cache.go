// Package cache stores computed match scores in Redis, one hash per founder,
// with a reverse index from advisor to the founders whose sets contain it.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "advisor-matching/internal/common/errors"
	"advisor-matching/internal/common/logger"
	"advisor-matching/internal/common/metrics"
	"advisor-matching/internal/models"
)

const (
	KeyPrefix      = "match:"
	scoresPrefix   = KeyPrefix + "scores:"
	advisorPrefix  = KeyPrefix + "advisor:"
	scanBatchSize  = 500
	deleteChunkLen = 200
)

// ScoreCache is the contract the matcher and orchestrator depend on.
type ScoreCache interface {
	GetCached(ctx context.Context, founderID string) ([]models.MatchScore, error)
	Put(ctx context.Context, scores []models.MatchScore) error
	Refresh(ctx context.Context, score models.MatchScore) (bool, error)
	Invalidate(ctx context.Context, founderID string) error
	InvalidateAll(ctx context.Context) error
	FoundersForAdvisor(ctx context.Context, advisorID string) ([]string, error)
}

type RedisCache struct {
	client  *redis.Client
	version string
	ttl     time.Duration
	now     func() time.Time
	logger  logger.Logger
}

type Option func(*RedisCache)

// WithClock replaces time.Now for validity checks.
func WithClock(now func() time.Time) Option {
	return func(c *RedisCache) { c.now = now }
}

func NewRedisCache(client *redis.Client, version string, ttl time.Duration, log logger.Logger, opts ...Option) *RedisCache {
	c := &RedisCache{
		client:  client,
		version: version,
		ttl:     ttl,
		now:     time.Now,
		logger:  log.WithFields(map[string]interface{}{"component": "score-cache"}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisCache) scoresKey(founderID string) string {
	return scoresPrefix + c.version + ":" + founderID
}

func (c *RedisCache) advisorKey(advisorID string) string {
	return advisorPrefix + c.version + ":" + advisorID
}

// GetCached returns the valid cached scores for a founder, best first.
// Entries with another algorithm version or older than the TTL are skipped
// and deleted as part of the read. It never computes scores.
func (c *RedisCache) GetCached(ctx context.Context, founderID string) ([]models.MatchScore, error) {
	entries, err := c.client.HGetAll(ctx, c.scoresKey(founderID)).Result()
	if err != nil {
		return nil, apperrors.NewCacheUnavailableError(err)
	}

	now := c.now()
	scores := make([]models.MatchScore, 0, len(entries))
	var stale []string
	for advisorID, raw := range entries {
		var s models.MatchScore
		if err := json.Unmarshal([]byte(raw), &s); err != nil || !s.IsValid(c.version, c.ttl, now) {
			stale = append(stale, advisorID)
			continue
		}
		scores = append(scores, s)
	}

	if len(stale) > 0 {
		metrics.ScoreCacheLookups.WithLabelValues("stale").Add(float64(len(stale)))
		if err := c.client.HDel(ctx, c.scoresKey(founderID), stale...).Err(); err != nil {
			c.logger.Warn("Failed to drop stale cache entries", map[string]interface{}{
				"founderId": founderID,
				"count":     len(stale),
				"error":     err,
			})
		}
	}

	if len(scores) == 0 {
		metrics.ScoreCacheLookups.WithLabelValues("miss").Inc()
		return nil, nil
	}
	metrics.ScoreCacheLookups.WithLabelValues("hit").Inc()

	SortScores(scores)
	return scores, nil
}

// Put upserts scores keyed by (founder, advisor, version) and records each
// advisor in the reverse index.
func (c *RedisCache) Put(ctx context.Context, scores []models.MatchScore) error {
	if len(scores) == 0 {
		return nil
	}

	byFounder := map[string][]interface{}{}
	advisors := map[string][]interface{}{}
	for _, s := range scores {
		if s.AlgorithmVersion == "" {
			s.AlgorithmVersion = c.version
		}
		raw, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("encode score %s/%s: %w", s.FounderID, s.AdvisorID, err)
		}
		byFounder[s.FounderID] = append(byFounder[s.FounderID], s.AdvisorID, string(raw))
		advisors[s.AdvisorID] = append(advisors[s.AdvisorID], s.FounderID)
	}

	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for founderID, fields := range byFounder {
			pipe.HSet(ctx, c.scoresKey(founderID), fields...)
			pipe.Expire(ctx, c.scoresKey(founderID), c.ttl)
		}
		for advisorID, founders := range advisors {
			pipe.SAdd(ctx, c.advisorKey(advisorID), founders...)
			pipe.Expire(ctx, c.advisorKey(advisorID), c.ttl)
		}
		return nil
	})
	if err != nil {
		return apperrors.NewCacheUnavailableError(err)
	}
	return nil
}

// Refresh replaces a single pair's entry, but only when the founder already
// has a cached set. A founder without one is left to a full recompute so a
// lone pair is never served as the complete ranking.
func (c *RedisCache) Refresh(ctx context.Context, score models.MatchScore) (bool, error) {
	exists, err := c.client.Exists(ctx, c.scoresKey(score.FounderID)).Result()
	if err != nil {
		return false, apperrors.NewCacheUnavailableError(err)
	}
	if exists == 0 {
		return false, nil
	}
	return true, c.Put(ctx, []models.MatchScore{score})
}

// Invalidate removes the founder's cached set and its reverse index entries.
func (c *RedisCache) Invalidate(ctx context.Context, founderID string) error {
	key := c.scoresKey(founderID)
	advisorIDs, err := c.client.HKeys(ctx, key).Result()
	if err != nil {
		return apperrors.NewCacheUnavailableError(err)
	}

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		for _, advisorID := range advisorIDs {
			pipe.SRem(ctx, c.advisorKey(advisorID), founderID)
		}
		return nil
	})
	if err != nil {
		return apperrors.NewCacheUnavailableError(err)
	}
	return nil
}

// InvalidateAll removes every score set and reverse index entry, for all versions.
func (c *RedisCache) InvalidateAll(ctx context.Context) error {
	var removed int
	for _, pattern := range []string{scoresPrefix + "*", advisorPrefix + "*"} {
		iter := c.client.Scan(ctx, 0, pattern, scanBatchSize).Iterator()
		var batch []string
		for iter.Next(ctx) {
			batch = append(batch, iter.Val())
			if len(batch) >= deleteChunkLen {
				if err := c.client.Del(ctx, batch...).Err(); err != nil {
					return apperrors.NewCacheUnavailableError(err)
				}
				removed += len(batch)
				batch = batch[:0]
			}
		}
		if err := iter.Err(); err != nil {
			return apperrors.NewCacheUnavailableError(err)
		}
		if len(batch) > 0 {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return apperrors.NewCacheUnavailableError(err)
			}
			removed += len(batch)
		}
	}

	c.logger.Info("Score cache cleared", map[string]interface{}{"keysRemoved": removed})
	return nil
}

// FoundersForAdvisor lists founders whose cached set includes the advisor.
func (c *RedisCache) FoundersForAdvisor(ctx context.Context, advisorID string) ([]string, error) {
	founders, err := c.client.SMembers(ctx, c.advisorKey(advisorID)).Result()
	if err != nil {
		return nil, apperrors.NewCacheUnavailableError(err)
	}
	sort.Strings(founders)
	return founders, nil
}

// SortScores orders by overall score descending, advisor id ascending.
func SortScores(scores []models.MatchScore) {
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Overall != scores[j].Overall {
			return scores[i].Overall > scores[j].Overall
		}
		return scores[i].AdvisorID < scores[j].AdvisorID
	})
}
