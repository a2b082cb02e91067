package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/tutorlink/backend/internal/config"
)

// RateLimiter implements sliding window rate limiting using Redis
type RateLimiter struct {
	redis  *Redis
	config *config.RateLimitConfig
}

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	Limit      int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(r *Redis, cfg *config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		redis:  r,
		config: cfg,
	}
}

// Check checks if a request is allowed under the rate limit.
// Uses a sliding window over a Redis sorted set; on Redis failure the
// request is allowed (fail open).
func (r *RateLimiter) Check(ctx context.Context, userID string) (*RateLimitResult, error) {
	limit := r.config.RequestsPerWindow

	windowSeconds := r.config.WindowSeconds
	if windowSeconds <= 0 {
		windowSeconds = 60
	}

	now := time.Now()
	windowDuration := time.Duration(windowSeconds) * time.Second
	windowStart := now.Add(-windowDuration)

	key := fmt.Sprintf("ratelimit:sliding:%s", userID)

	// Score = timestamp, member = unique request ID
	pipe := r.redis.Client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
	countCmd := pipe.ZCard(ctx, key)

	_, err := pipe.Exec(ctx)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to check rate limit")
		return &RateLimitResult{
			Allowed:   true,
			Remaining: int64(limit),
			Limit:     limit,
		}, nil
	}

	currentCount := countCmd.Val()
	remaining := int64(limit) - currentCount

	result := &RateLimitResult{
		Limit:   limit,
		ResetAt: now.Add(windowDuration),
	}

	if currentCount >= int64(limit) {
		result.Allowed = false
		result.Remaining = 0

		// Retry after is based on the oldest entry in the window
		oldestScore, err := r.redis.Client.ZRangeWithScores(ctx, key, 0, 0).Result()
		if err == nil && len(oldestScore) > 0 {
			oldestTime := time.Unix(0, int64(oldestScore[0].Score))
			result.RetryAfter = oldestTime.Add(windowDuration).Sub(now)
			if result.RetryAfter < 0 {
				result.RetryAfter = time.Second
			}
		} else {
			result.RetryAfter = windowDuration
		}

		return result, nil
	}

	requestID := fmt.Sprintf("%d-%s", now.UnixNano(), userID)
	err = r.redis.Client.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: requestID,
	}).Err()
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Failed to add rate limit entry")
	}

	r.redis.Client.Expire(ctx, key, windowDuration*2)

	result.Allowed = true
	result.Remaining = remaining - 1
	if result.Remaining < 0 {
		result.Remaining = 0
	}

	return result, nil
}

// Reset clears the rate limit window for a user
func (r *RateLimiter) Reset(ctx context.Context, userID string) error {
	key := fmt.Sprintf("ratelimit:sliding:%s", userID)
	return r.redis.Client.Del(ctx, key).Err()
}
