package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	radix "github.com/mediocregopher/radix/v3"
	"go.uber.org/zap"

	"github.com/example/sailchat/internal/config"
	"github.com/example/sailchat/internal/datamodels/chat"
)

const userSnapshotKey = "chat:user:%d" // userID

var (
	client radix.Client
	once   sync.Once
)

// Init 初始化 Redis 连接池
func Init(cfg *config.RedisConfig) radix.Client {
	once.Do(func() {
		size := cfg.PoolSize
		if size <= 0 {
			size = 10
		}
		pool, err := radix.NewPool("tcp", cfg.Addr, size)
		if err != nil {
			zap.L().Fatal("failed to connect redis", zap.Error(err))
		}
		client = pool
	})
	return client
}

// Client 获取 Redis 客户端
func Client() radix.Client {
	return client
}

// Deduper 基于 SET NX EX 的一次性标记
type Deduper struct {
	client radix.Client
}

func NewDeduper(c radix.Client) *Deduper {
	return &Deduper{client: c}
}

// FirstSeen key 不存在时写入并返回 true
func (d *Deduper) FirstSeen(_ context.Context, key string, ttl time.Duration) (bool, error) {
	var (
		ok    string
		reply = radix.MaybeNil{Rcv: &ok}
	)
	if err := d.client.Do(radix.Cmd(&reply, "SET", key, "1", "NX", "EX", strconv.Itoa(ttlSeconds(ttl)))); err != nil {
		return false, err
	}
	return !reply.Nil, nil
}

func (d *Deduper) Forget(_ context.Context, key string) error {
	return d.client.Do(radix.Cmd(nil, "DEL", key))
}

// SnapshotCache 缓存用户快照，减少身份服务查询
type SnapshotCache struct {
	client radix.Client
	ttl    time.Duration
}

func NewSnapshotCache(c radix.Client, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &SnapshotCache{client: c, ttl: ttl}
}

func (c *SnapshotCache) GetUser(_ context.Context, id int64) (chat.UserSnapshot, bool, error) {
	var (
		payload string
		reply   = radix.MaybeNil{Rcv: &payload}
	)
	if err := c.client.Do(radix.Cmd(&reply, "GET", fmt.Sprintf(userSnapshotKey, id))); err != nil {
		return chat.UserSnapshot{}, false, err
	}
	if reply.Nil {
		return chat.UserSnapshot{}, false, nil
	}
	var s chat.UserSnapshot
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return chat.UserSnapshot{}, false, err
	}
	return s, true, nil
}

func (c *SnapshotCache) SetUser(_ context.Context, s chat.UserSnapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	key := fmt.Sprintf(userSnapshotKey, s.UserID)
	return c.client.Do(radix.FlatCmd(nil, "SET", key, string(payload), "EX", ttlSeconds(c.ttl)))
}

func ttlSeconds(ttl time.Duration) int {
	s := int(ttl / time.Second)
	if s <= 0 {
		s = 1
	}
	return s
}
