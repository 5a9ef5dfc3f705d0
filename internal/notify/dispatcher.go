package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/example/sailchat/internal/config"
	"github.com/example/sailchat/internal/datamodels/chat"
	"github.com/example/sailchat/internal/monitor"
)

const publishTimeout = 5 * time.Second

// Publisher 把序列化后的通知写入任务队列
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

// Dispatcher 在事务提交后异步投递通知。
// Dispatch 从不阻塞：缓冲区满时丢弃并记录；投递失败按指数退避加抖动重试，
// 超过 MaxAttempts 次后丢弃。
type Dispatcher struct {
	publisher Publisher
	cfg       config.NotifyConfig
	monitor   *monitor.Monitor
	now       func() time.Time

	jobs   chan Job
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewDispatcher 创建并启动 cfg.Workers 个投递协程
func NewDispatcher(publisher Publisher, cfg config.NotifyConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		publisher: publisher,
		cfg:       cfg,
		monitor:   monitor.GetMonitor(),
		now:       func() time.Time { return time.Now().UTC() },
		jobs:      make(chan Job, cfg.Buffer),
		ctx:       ctx,
		cancel:    cancel,
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Dispatch 实现 service.Notifier
func (d *Dispatcher) Dispatch(msg *chat.Message, recipients []chat.Recipient) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		zap.L().Warn("dispatcher closed, notification dropped", zap.String("message_id", msg.ID))
		return
	}
	for _, job := range JobsFor(msg, recipients, d.now()) {
		select {
		case d.jobs <- job:
			d.monitor.RecordNotifyEnqueued()
		default:
			d.monitor.RecordNotifyDropped()
			zap.L().Error("notification buffer full, dropped",
				zap.String("message_id", job.MessageID),
				zap.Int64("recipient_id", job.RecipientID))
		}
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.jobs {
		d.deliver(job)
	}
}

func (d *Dispatcher) deliver(job Job) {
	body, err := json.Marshal(job)
	if err != nil {
		d.monitor.RecordNotifyDropped()
		zap.L().Error("marshal notification failed", zap.String("message_id", job.MessageID), zap.Error(err))
		return
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.cfg.InitialInterval
	b.MaxInterval = d.cfg.MaxInterval
	b.RandomizationFactor = 0.5
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(d.cfg.MaxAttempts-1)), d.ctx)

	attempt := 0
	err = backoff.RetryNotify(func() error {
		attempt++
		ctx, cancel := context.WithTimeout(d.ctx, publishTimeout)
		defer cancel()
		return d.publisher.Publish(ctx, body)
	}, policy, func(err error, wait time.Duration) {
		d.monitor.RecordNotifyRetried()
		d.monitor.RecordMQError()
		zap.L().Warn("publish notification failed, retrying",
			zap.String("message_id", job.MessageID),
			zap.Int64("recipient_id", job.RecipientID),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
	if err != nil {
		d.monitor.RecordNotifyDropped()
		zap.L().Error("notification dropped",
			zap.String("thread_id", job.ThreadID),
			zap.String("message_id", job.MessageID),
			zap.Int64("recipient_id", job.RecipientID),
			zap.Int("attempts", attempt),
			zap.Error(fmt.Errorf("%w: %v", chat.ErrNotificationDelivery, err)))
		return
	}
	d.monitor.RecordNotifyPublished()
}

// Close 停止接收新通知并等待缓冲区投递完毕；ctx 到期后放弃剩余重试
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}
