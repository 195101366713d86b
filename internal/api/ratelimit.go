/**
 * @description
 * This file contains the distributed rate limiting middleware. Requests are
 * counted per client IP in fixed windows using Redis, so the limit holds
 * across replicas. When Redis is unavailable the middleware fails open
 * rather than blocking traffic on a cache outage.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: Redis client and Lua script execution.
 */

package api

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RateLimiter throttles requests per client IP using a fixed Redis window.
type RateLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

// NewRateLimiter creates a limiter allowing `limit` requests per `window`
// from a single client IP. A nil client disables limiting entirely.
func NewRateLimiter(client redis.UniversalClient, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		prefix: "tgai:rate_limit",
		limit:  limit,
		window: window,
	}
}

// Middleware wraps a handler with the rate limit check.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl == nil || rl.client == nil || rl.limit <= 0 || rl.window <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		key := fmt.Sprintf("%s:%s", rl.prefix, clientIP(r))
		rawResult, err := rateLimitScript.Run(r.Context(), rl.client, []string{key}, rl.window.Milliseconds()).Result()
		if err != nil {
			// Fail open: a cache outage should not take the API down with it.
			log.Printf("level=warn component=ratelimit msg=\"redis unavailable, skipping limit\" error=%q", err)
			next.ServeHTTP(w, r)
			return
		}

		values, ok := rawResult.([]interface{})
		if !ok || len(values) != 2 {
			next.ServeHTTP(w, r)
			return
		}
		count, _ := values[0].(int64)
		ttlMs, _ := values[1].(int64)

		if count > int64(rl.limit) {
			retryAfter := int((time.Duration(ttlMs) * time.Millisecond).Round(time.Second).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"Too many requests, please try again later."}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP prefers the first X-Forwarded-For hop, falling back to RemoteAddr.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
