package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/homeadapt/securevoice/internal/audit"
)

const (
	authLimitKeyPrefix = "authlimit:"
	authLimitWindow    = 60 * time.Second
)

var authLimitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

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

redis.call('ZADD', key, now, now .. '-' .. math.random())
redis.call('EXPIRE', key, window + 10)

local remaining = limit - count - 1
local resetAt = now + window

return {1, remaining, resetAt}
`)

// AuthLimiter throttles credential-guessing against the auth endpoints with
// a per-client-IP sliding window in redis. Redis failures allow the request
// so an outage cannot lock every client out.
type AuthLimiter struct {
	client *redis.Client
	limit  int
}

func NewAuthLimiter(client *redis.Client, limit int) *AuthLimiter {
	return &AuthLimiter{client: client, limit: limit}
}

func (l *AuthLimiter) check(ctx context.Context, clientIP string) (allowed bool, remaining int, resetAt int64) {
	now := time.Now().Unix()
	key := authLimitKeyPrefix + clientIP

	result, err := authLimitScript.Run(ctx, l.client, []string{key},
		now, int64(authLimitWindow.Seconds()), l.limit).Int64Slice()
	if err != nil {
		log.Warn().Err(err).Str("ip", clientIP).Msg("redis auth limit check failed, allowing request")
		return true, l.limit - 1, now + int64(authLimitWindow.Seconds())
	}

	if len(result) != 3 {
		log.Warn().Str("ip", clientIP).Msg("unexpected redis auth limit result")
		return true, l.limit - 1, now + int64(authLimitWindow.Seconds())
	}

	return result[0] == 1, int(result[1]), result[2]
}

func (l *AuthLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := ClientIP(r)

		allowed, remaining, resetAt := l.check(r.Context(), clientIP)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))

		if !allowed {
			log.Warn().Str("ip", clientIP).Str("path", r.URL.Path).Msg("auth rate limit exceeded")
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventRateLimitExceed,
				Details: map[string]interface{}{"path": r.URL.Path},
			})
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "Rate limit exceeded",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
