package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter proactively guards the fallback path against provider quota
// exhaustion. Counters live in Redis so the limit is shared across every
// process hitting the same provider key.
type RateLimiter struct {
	redis    *redis.Client
	rpmLimit int64
	tpmLimit int64
	rpdLimit int64
}

// Conservative defaults sized for entry-tier provider quotas
const (
	DefaultRPM = 500
	DefaultTPM = 500_000
	DefaultRPD = 10_000
)

// NewRateLimiter creates a limiter backed by the given Redis address.
// Non-positive limits fall back to the defaults.
func NewRateLimiter(redisAddr string, rpm, tpm, rpd int) (*RateLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: redisAddr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", redisAddr, err)
	}

	rpmLimit, tpmLimit, rpdLimit := normalizeLimits(rpm, tpm, rpd)
	return &RateLimiter{
		redis:    client,
		rpmLimit: rpmLimit,
		tpmLimit: tpmLimit,
		rpdLimit: rpdLimit,
	}, nil
}

func normalizeLimits(rpm, tpm, rpd int) (int64, int64, int64) {
	rpmLimit, tpmLimit, rpdLimit := int64(DefaultRPM), int64(DefaultTPM), int64(DefaultRPD)
	if rpm > 0 {
		rpmLimit = int64(rpm)
	}
	if tpm > 0 {
		tpmLimit = int64(tpm)
	}
	if rpd > 0 {
		rpdLimit = int64(rpd)
	}
	return rpmLimit, tpmLimit, rpdLimit
}

// checkScript increments the per-minute and per-day counters and rejects
// atomically; check-then-increment as two round trips would race between
// concurrent investigations.
var checkScript = redis.NewScript(`
	local rpm_key = KEYS[1]
	local tpm_key = KEYS[2]
	local rpd_key = KEYS[3]
	local rpm_limit = tonumber(ARGV[1])
	local tpm_limit = tonumber(ARGV[2])
	local rpd_limit = tonumber(ARGV[3])
	local tokens = tonumber(ARGV[4])

	local rpm = redis.call('INCR', rpm_key)
	local tpm = redis.call('INCRBY', tpm_key, tokens)
	local rpd = redis.call('INCR', rpd_key)

	if rpm == 1 then redis.call('EXPIRE', rpm_key, 70) end
	if tpm == tokens then redis.call('EXPIRE', tpm_key, 70) end
	if rpd == 1 then redis.call('EXPIRE', rpd_key, 86400) end

	if rpm >= rpm_limit * 0.9 then
		return {-1, 'RPM', rpm, rpm_limit}
	end
	if tpm >= tpm_limit * 0.9 then
		return {-2, 'TPM', tpm, tpm_limit}
	end
	if rpd >= rpd_limit then
		return {-3, 'RPD', rpd, rpd_limit}
	end
	return {0, 'OK', rpm, tpm, rpd}
`)

// CheckAndIncrement reserves one request plus estimatedTokens against the
// shared counters. Returns an error when the 90% threshold of any limit is
// reached; the caller then skips the LLM and stays on the deterministic path.
func (r *RateLimiter) CheckAndIncrement(ctx context.Context, estimatedTokens int64) error {
	now := time.Now()
	minuteKey := fmt.Sprintf("llm:rpm:%s", now.Format("2006-01-02T15:04"))
	tpmKey := fmt.Sprintf("llm:tpm:%s", now.Format("2006-01-02T15:04"))
	dayKey := fmt.Sprintf("llm:rpd:%s", now.Format("2006-01-02"))

	result, err := checkScript.Run(ctx, r.redis,
		[]string{minuteKey, tpmKey, dayKey},
		r.rpmLimit, r.tpmLimit, r.rpdLimit, estimatedTokens).Result()
	if err != nil {
		return fmt.Errorf("rate limiter redis operation failed: %w", err)
	}

	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) < 2 {
		return fmt.Errorf("invalid rate limiter response format")
	}

	code := resultSlice[0].(int64)
	if code < 0 {
		limitType := resultSlice[1].(string)
		current := resultSlice[2].(int64)
		limit := resultSlice[3].(int64)
		return fmt.Errorf("llm %s limit reached (%d/%d)", limitType, current, limit)
	}
	return nil
}

// CurrentUsage returns the live counter values for monitoring
func (r *RateLimiter) CurrentUsage(ctx context.Context) (rpm, tpm, rpd int64, err error) {
	now := time.Now()
	pipe := r.redis.Pipeline()
	rpmCmd := pipe.Get(ctx, fmt.Sprintf("llm:rpm:%s", now.Format("2006-01-02T15:04")))
	tpmCmd := pipe.Get(ctx, fmt.Sprintf("llm:tpm:%s", now.Format("2006-01-02T15:04")))
	rpdCmd := pipe.Get(ctx, fmt.Sprintf("llm:rpd:%s", now.Format("2006-01-02")))

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, 0, 0, fmt.Errorf("failed to get usage stats: %w", err)
	}

	rpm, _ = rpmCmd.Int64()
	tpm, _ = tpmCmd.Int64()
	rpd, _ = rpdCmd.Int64()
	return rpm, tpm, rpd, nil
}

// Close closes the Redis connection
func (r *RateLimiter) Close() error {
	if r.redis != nil {
		return r.redis.Close()
	}
	return nil
}
