package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/brightpath/safety-engine/internal/audit"
	apperrors "github.com/brightpath/safety-engine/internal/errors"
	redisclient "github.com/brightpath/safety-engine/internal/redis"
)

// Sliding window over a sorted set scored in milliseconds.
var rateLimitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

local windowStart = now - window

redis.call('ZREMRANGEBYSCORE', key, '-inf', windowStart)

local count = redis.call('ZCARD', key)

if count >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local resetAt = 0
    if #oldest >= 2 then
        resetAt = tonumber(oldest[2]) + window
    else
        resetAt = now + window
    end
    return {0, 0, resetAt}
end

redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window + 10000)

local remaining = limit - count - 1
local resetAt = now + window

return {1, remaining, resetAt}
`)

type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

type RateLimiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error)
}

type RedisRateLimiter struct {
	client redis.Scripter
	now    func() time.Time
}

func NewRedisRateLimiter(client redis.Scripter) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, now: time.Now}
}

func (rl *RedisRateLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error) {
	now := rl.now().UnixMilli()
	result, err := rateLimitScript.Run(ctx, rl.client, []string{key}, now, window.Milliseconds(), limit, uuid.NewString()).Int64Slice()
	if err != nil {
		return RateLimitResult{}, fmt.Errorf("run rate limit script: %w", err)
	}
	if len(result) != 3 {
		return RateLimitResult{}, fmt.Errorf("unexpected rate limit result: %v", result)
	}
	return RateLimitResult{
		Allowed:   result[0] == 1,
		Remaining: int(result[1]),
		ResetAt:   time.UnixMilli(result[2]),
	}, nil
}

// RateLimitMiddleware limits authenticated callers per scope. A limiter
// failure lets the request through.
type RateLimitMiddleware struct {
	limiter RateLimiter
	scope   string
	limit   int
	window  time.Duration
	now     func() time.Time
}

func NewRateLimitMiddleware(limiter RateLimiter, scope string, limit int, window time.Duration) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		scope:   scope,
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := GetCaller(r.Context())
		if caller == nil || m.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		result, err := m.limiter.Check(r.Context(), redisclient.RateLimitKey(m.scope, caller.ID), m.limit, m.window)
		if err != nil {
			log.Warn().Err(err).Str("callerId", caller.ID).Str("scope", m.scope).Msg("rate limit check failed, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			retryAfter := int(result.ResetAt.Sub(m.now()).Seconds() + 0.999)
			if retryAfter < 1 {
				retryAfter = 1
			}
			log.Warn().Str("callerId", caller.ID).Str("scope", m.scope).Msg("rate limit exceeded")
			audit.LogFromRequest(r, audit.Event{
				Type:      audit.EventRateLimitExceed,
				ActorID:   caller.ID,
				ActorRole: string(caller.Role),
				Details:   map[string]interface{}{"scope": m.scope},
			})
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}
