package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/example/sailchat/internal/monitor"
)

// ErrMalformedJob 载荷无法解析，重投也不会成功
var ErrMalformedJob = errors.New("notify: malformed job")

// Deduper 消费端幂等：FirstSeen 原子地占用 key，Forget 在处理失败时释放
type Deduper interface {
	FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Forget(ctx context.Context, key string) error
}

// Pusher 把通知推送到用户设备
type Pusher interface {
	Push(ctx context.Context, job Job) error
}

// Consumer 处理队列中的通知；队列是至少一次投递，按 (message_id, recipient_id) 去重
type Consumer struct {
	dedupe  Deduper
	pusher  Pusher
	ttl     time.Duration
	monitor *monitor.Monitor
}

func NewConsumer(dedupe Deduper, pusher Pusher, ttl time.Duration) *Consumer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Consumer{dedupe: dedupe, pusher: pusher, ttl: ttl, monitor: monitor.GetMonitor()}
}

// Handle 返回 ErrMalformedJob 时消息应丢弃，其他错误应重新入队
func (c *Consumer) Handle(ctx context.Context, body []byte) error {
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		c.monitor.RecordWorkerFailed()
		return fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}
	if !job.valid() {
		c.monitor.RecordWorkerFailed()
		return fmt.Errorf("%w: missing ids", ErrMalformedJob)
	}

	key := job.DedupeKey()
	first, err := c.dedupe.FirstSeen(ctx, key, c.ttl)
	if err != nil {
		// 去重存储不可用时宁可重复推送
		c.monitor.RecordRedisError()
		zap.L().Warn("dedupe check failed", zap.String("key", key), zap.Error(err))
		first = true
	}
	if !first {
		c.monitor.RecordWorkerDuplicate()
		zap.L().Debug("duplicate notification skipped", zap.String("key", key))
		return nil
	}

	if err := c.pusher.Push(ctx, job); err != nil {
		c.monitor.RecordWorkerFailed()
		if ferr := c.dedupe.Forget(ctx, key); ferr != nil {
			c.monitor.RecordRedisError()
			zap.L().Warn("release dedupe key failed", zap.String("key", key), zap.Error(ferr))
		}
		return err
	}
	c.monitor.RecordWorkerProcessed()
	return nil
}
