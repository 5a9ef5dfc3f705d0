package middleware

import (
	"sync"
	"time"

	"github.com/kataras/iris/v12"
	"golang.org/x/time/rate"

	"github.com/example/sailchat/internal/config"
)

// idleAfter 超过该时长未使用的用户限流器会在下次清扫时回收
const idleAfter = 10 * time.Minute

type userBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// UserLimiter 按用户的令牌桶限流器
type UserLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[int64]*userBucket
	lastSweep time.Time
}

// NewUserLimiter 创建限流器；每秒速率 <= 0 时不限流
func NewUserLimiter(cfg config.RateLimitConfig) *UserLimiter {
	limit := rate.Limit(cfg.MessagesPerSecond)
	if cfg.MessagesPerSecond <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &UserLimiter{
		limit:   limit,
		burst:   burst,
		now:     time.Now,
		buckets: make(map[int64]*userBucket),
	}
}

// Allow 检查该用户是否还有可用令牌
func (l *UserLimiter) Allow(userID int64) bool {
	l.mu.Lock()
	now := l.now()
	if now.Sub(l.lastSweep) > idleAfter {
		for id, b := range l.buckets {
			if now.Sub(b.lastSeen) > idleAfter {
				delete(l.buckets, id)
			}
		}
		l.lastSweep = now
	}
	b, ok := l.buckets[userID]
	if !ok {
		b = &userBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[userID] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// RateLimitMiddleware 限流中间件，需挂在鉴权之后
func RateLimitMiddleware(l *UserLimiter) iris.Handler {
	return func(ctx iris.Context) {
		userID := ctx.Values().GetInt64Default(UserIDKey, 0)
		if !l.Allow(userID) {
			ctx.StopWithJSON(iris.StatusTooManyRequests, iris.Map{
				"code": iris.StatusTooManyRequests,
				"msg":  "请求过于频繁，请稍后再试",
			})
			return
		}
		ctx.Next()
	}
}
