package middleware

import (
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/zackweld/crAPI/internal/server/httpx"
)

const rateLimitPrefix = "crapi:identity:phone-change"

// NewLimiter builds a limiter for the formatted rate (e.g. "10-M"). With a non-empty redisURL counters
// live in Redis and are shared across replicas; otherwise an in-process store is used. The returned
// close function releases the Redis client and is never nil.
func NewLimiter(rate, redisURL string) (*limiter.Limiter, func() error, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, nil, fmt.Errorf("rate limit: %w", err)
	}
	if redisURL == "" {
		return limiter.New(memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: rateLimitPrefix}), r),
			func() error { return nil }, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("rate limit: parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	store, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: rateLimitPrefix})
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("rate limit: redis store: %w", err)
	}
	return limiter.New(store, r), client.Close, nil
}

// RateLimit returns middleware that limits requests per authenticated user (falling back to client
// IP). Must run after Authenticate and ClientIP. Exceeding the limit yields a 429 envelope and the
// X-RateLimit-* headers tell the caller when to retry.
func RateLimit(l *limiter.Limiter, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := stdlib.NewMiddleware(l,
		stdlib.WithKeyGetter(rateLimitKey),
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Message(w, http.StatusTooManyRequests, "Too many requests, please try again later")
		}),
		stdlib.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("rate limit store failed", zap.Error(err))
			httpx.Message(w, http.StatusInternalServerError, "Internal server error")
		}),
	)
	return m.Handler
}

func rateLimitKey(r *http.Request) string {
	if userID, ok := GetUserID(r.Context()); ok {
		return "user:" + userID
	}
	return "ip:" + ClientIPFromContext(r.Context())
}
