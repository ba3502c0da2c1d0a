package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/casino-floor/internal/config"
)

// Buckets. Seating, moving and closing spend from the write bucket; floor
// polling and lookups spend from the larger read bucket.
const (
	bucketWrite = "write"
	bucketRead  = "read"
)

// spendScript takes one token from a bucket that refills continuously.
//
//	KEYS[1]  bucket hash {tokens, at}
//	ARGV     now_ms, capacity, tokens per ms, ttl_ms
//
// It returns {allowed, whole tokens left, ms until the next token}.
var spendScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local rate = tonumber(ARGV[3])
local state = redis.call('HMGET', KEYS[1], 'tokens', 'at')
local tokens = tonumber(state[1]) or capacity
local at = tonumber(state[2]) or now
if now > at then
	tokens = math.min(capacity, tokens + (now - at) * rate)
	at = now
end
local allowed, wait = 0, 0
if tokens >= 1 then
	allowed = 1
	tokens = tokens - 1
else
	wait = math.ceil((1 - tokens) / rate)
end
redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'at', at)
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return {allowed, math.floor(tokens), wait}
`)

type bucketLimit struct {
	capacity int
	rate     string // tokens per millisecond
}

// NewTokenBucket limits staff traffic with token buckets kept in Redis so
// every API process shares them. Requests are keyed by cfg.KeyStrategy and
// split into a write and a read bucket. With the limiter disabled or no
// Redis client, requests pass through; Redis errors also fail open.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log logrus.FieldLogger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	log = log.WithField("component", "ratelimit")
	cfg.Capacity = max(cfg.Capacity, 1)
	cfg.ReadCapacity = max(cfg.ReadCapacity, cfg.Capacity)
	interval := float64(cfg.RefillInterval) / float64(time.Millisecond)
	if interval <= 0 || cfg.RefillTokens < 1 {
		cfg.RefillTokens, interval = 1, 1000
	}
	perMs := float64(cfg.RefillTokens) / interval
	limits := map[string]bucketLimit{
		bucketWrite: {capacity: cfg.Capacity, rate: strconv.FormatFloat(perMs, 'g', -1, 64)},
		// reads refill in proportion to their larger capacity
		bucketRead: {capacity: cfg.ReadCapacity, rate: strconv.FormatFloat(perMs*float64(cfg.ReadCapacity)/float64(cfg.Capacity), 'g', -1, 64)},
	}
	dims := strings.Split(strings.ToLower(cfg.KeyStrategy), "_")
	ttl := cfg.TTL.Milliseconds()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			bucket := bucketFor(c.Request().Method)
			lim := limits[bucket]
			key := rateKey(cfg.Prefix, bucket, dims, c)

			res, err := spendScript.Run(c.Request().Context(), rdb, []string{key},
				time.Now().UnixMilli(), lim.capacity, lim.rate, ttl).Int64Slice()
			if err != nil || len(res) != 3 {
				log.WithError(err).WithField("key", key).Warn("rate limiter unavailable, allowing request")
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Bucket", bucket)
			h.Set("X-RateLimit-Limit", strconv.Itoa(lim.capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(res[1], 10))
			if cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			if res[0] == 1 {
				return next(c)
			}

			secs := int(math.Ceil(float64(res[2]) / 1000))
			h.Set("Retry-After", strconv.Itoa(secs))
			log.WithFields(logrus.Fields{
				"key": key, "staff_id": StaffID(c), "casino_id": CasinoID(c), "retry_ms": res[2],
			}).Info("rate limited")
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "too_many_requests",
				"message":     "rate limit exceeded",
				"retry_after": secs,
			})
		}
	}
}

func bucketFor(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return bucketRead
	}
	return bucketWrite
}

// rateKey joins prefix, bucket and the requested dimensions, e.g.
// rl:write:casino:c1:staff:s9. Unknown dimensions are skipped.
func rateKey(prefix, bucket string, dims []string, c echo.Context) string {
	parts := []string{prefix, bucket}
	for _, d := range dims {
		switch d {
		case "casino":
			parts = append(parts, "casino", requestCasino(c))
		case "staff":
			parts = append(parts, "staff", StaffID(c))
		case "ip":
			ip := c.RealIP()
			if ip == "" {
				ip = "unknown"
			}
			parts = append(parts, "ip", ip)
		case "route":
			parts = append(parts, "route", c.Request().Method+" "+c.Path())
		}
	}
	return strings.Join(parts, ":")
}

// requestCasino is the casino a request acts for: the token's pin, else the
// casino in the path, else "any".
func requestCasino(c echo.Context) string {
	if id := CasinoID(c); id != "" {
		return id
	}
	if strings.Contains(c.Path(), "/casinos/:id") {
		if id := c.Param("id"); id != "" {
			return id
		}
	}
	return "any"
}
