package auth

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"time"

	radix "github.com/mediocregopher/radix/v3"
)

const tokenCacheKey = "chat:auth:jwt:"

// TokenCache JWT 解析结果缓存；过期时间不超过 token 自身的 exp
type TokenCache struct {
	redis radix.Client
	ttl   time.Duration
	now   func() time.Time
}

// NewTokenCache 构建缓存器，redis 为 nil 时所有操作都是空操作
func NewTokenCache(redis radix.Client, ttl time.Duration) *TokenCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &TokenCache{
		redis: redis,
		ttl:   ttl,
		now:   time.Now,
	}
}

func (c *TokenCache) cacheKey(token string) string {
	sum := sha1.Sum([]byte(token))
	return tokenCacheKey + hex.EncodeToString(sum[:])
}

// Get 尝试命中缓存的 claims
func (c *TokenCache) Get(ctx context.Context, token string) (*Claims, bool, error) {
	if c.redis == nil {
		return nil, false, nil
	}
	key := c.cacheKey(token)
	var (
		raw   []byte
		reply = radix.MaybeNil{Rcv: &raw}
	)
	if err := c.redis.Do(radix.Cmd(&reply, "GET", key)); err != nil {
		return nil, false, err
	}
	if reply.Nil {
		return nil, false, nil
	}
	var claims Claims
	if err := json.Unmarshal(raw, &claims); err != nil {
		// 数据损坏，清理后走正常解析
		_ = c.redis.Do(radix.Cmd(nil, "DEL", key))
		return nil, false, nil
	}
	if claims.ExpiresAt != nil && !claims.ExpiresAt.After(c.now()) {
		return nil, false, nil
	}
	return &claims, true, nil
}

// Set 缓存解析结果
func (c *TokenCache) Set(ctx context.Context, token string, claims *Claims) error {
	if c.redis == nil || claims == nil {
		return nil
	}
	ttl := c.ttl
	if claims.ExpiresAt != nil {
		if left := claims.ExpiresAt.Sub(c.now()); left < ttl {
			ttl = left
		}
	}
	secs := int64(ttl / time.Second)
	if secs <= 0 {
		return nil
	}
	body, err := json.Marshal(claims)
	if err != nil {
		return err
	}
	return c.redis.Do(radix.FlatCmd(nil, "SET", c.cacheKey(token), body, "EX", secs))
}
