package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/ignatzorin/crm-backend/internal/logger"
)

// NewRateLimitStore выбирает хранилище счётчиков: Redis, если клиент задан,
// иначе память процесса.
func NewRateLimitStore(client *redis.Client) limiter.Store {
	if client != nil {
		store, err := redisstore.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: "crm:ratelimit"})
		if err == nil {
			return store
		}
		logger.Log.WithError(err).Warn("rate limit: redis store недоступен, используется память")
	}
	return memory.NewStore()
}

// RateLimitMiddleware создаёт middleware для ограничения количества запросов.
// По умолчанию: 10 запросов в минуту с одного IP.
func RateLimitMiddleware(store limiter.Store, limit int64, period time.Duration) gin.HandlerFunc {
	if limit <= 0 {
		limit = 10
	}
	if period <= 0 {
		period = 1 * time.Minute
	}
	if store == nil {
		store = memory.NewStore()
	}

	rate := limiter.Rate{
		Period: period,
		Limit:  limit,
	}
	instance := limiter.New(store, rate)

	return func(c *gin.Context) {
		key := c.ClientIP()
		context, err := instance.Get(c, key)
		if err != nil {
			// Сбой хранилища счётчиков не должен блокировать вход в систему.
			logger.Log.WithFields(logrus.Fields{"error": err, "ip": key}).Warn("rate limit: ошибка хранилища")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", context.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", context.Remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", context.Reset))

		if context.Reached {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "слишком много запросов, попробуйте позже",
			})
			return
		}

		c.Next()
	}
}
