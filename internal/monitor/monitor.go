package monitor

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Monitor 统计错误与关键事件；计数同时导出为 prometheus 指标
type Monitor struct {
	mu sync.RWMutex

	// 错误统计
	DBErrors    int64
	MQErrors    int64
	RedisErrors int64

	// 写路径
	ThreadsCreated int64
	MessagesSent   int64

	// 通知投递
	NotifyEnqueued  int64
	NotifyPublished int64
	NotifyRetried   int64
	NotifyDropped   int64

	// 通知消费端
	WorkerProcessed  int64
	WorkerDuplicates int64
	WorkerFailed     int64

	// 时间统计
	LastDBError     time.Time
	LastMQError     time.Time
	LastRedisError  time.Time
	LastMessageTime time.Time
	LastWorkerTime  time.Time

	events *prometheus.CounterVec
}

var globalMonitor = New(prometheus.DefaultRegisterer)

// GetMonitor 获取全局监控实例
func GetMonitor() *Monitor {
	return globalMonitor
}

// New 创建监控实例并把计数器注册到 reg
func New(reg prometheus.Registerer) *Monitor {
	return &Monitor{
		events: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "sail",
			Subsystem: "chat",
			Name:      "events_total",
			Help:      "Chat engine events by kind.",
		}, []string{"event"}),
	}
}

func (m *Monitor) inc(event string, counter *int64, last *time.Time) {
	m.mu.Lock()
	*counter++
	if last != nil {
		*last = time.Now()
	}
	m.mu.Unlock()
	m.events.WithLabelValues(event).Inc()
}

func (m *Monitor) RecordDBError()    { m.inc("db_error", &m.DBErrors, &m.LastDBError) }
func (m *Monitor) RecordMQError()    { m.inc("mq_error", &m.MQErrors, &m.LastMQError) }
func (m *Monitor) RecordRedisError() { m.inc("redis_error", &m.RedisErrors, &m.LastRedisError) }

func (m *Monitor) RecordThreadCreated() { m.inc("thread_created", &m.ThreadsCreated, nil) }
func (m *Monitor) RecordMessageSent()   { m.inc("message_sent", &m.MessagesSent, &m.LastMessageTime) }

func (m *Monitor) RecordNotifyEnqueued()  { m.inc("notify_enqueued", &m.NotifyEnqueued, nil) }
func (m *Monitor) RecordNotifyPublished() { m.inc("notify_published", &m.NotifyPublished, nil) }
func (m *Monitor) RecordNotifyRetried()   { m.inc("notify_retried", &m.NotifyRetried, nil) }
func (m *Monitor) RecordNotifyDropped()   { m.inc("notify_dropped", &m.NotifyDropped, nil) }

func (m *Monitor) RecordWorkerProcessed() { m.inc("worker_processed", &m.WorkerProcessed, &m.LastWorkerTime) }
func (m *Monitor) RecordWorkerDuplicate() { m.inc("worker_duplicate", &m.WorkerDuplicates, &m.LastWorkerTime) }
func (m *Monitor) RecordWorkerFailed()    { m.inc("worker_failed", &m.WorkerFailed, &m.LastWorkerTime) }

// GetStats 获取统计信息
func (m *Monitor) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	deliveryRate := float64(0)
	if m.NotifyEnqueued > 0 {
		deliveryRate = float64(m.NotifyPublished) / float64(m.NotifyEnqueued) * 100
	}

	return map[string]interface{}{
		"errors": map[string]interface{}{
			"db":    m.DBErrors,
			"mq":    m.MQErrors,
			"redis": m.RedisErrors,
		},
		"chat": map[string]interface{}{
			"threads_created": m.ThreadsCreated,
			"messages_sent":   m.MessagesSent,
		},
		"notify": map[string]interface{}{
			"enqueued":      m.NotifyEnqueued,
			"published":     m.NotifyPublished,
			"retried":       m.NotifyRetried,
			"dropped":       m.NotifyDropped,
			"delivery_rate": deliveryRate,
		},
		"worker": map[string]interface{}{
			"processed":  m.WorkerProcessed,
			"duplicates": m.WorkerDuplicates,
			"failed":     m.WorkerFailed,
		},
		"last_events": map[string]interface{}{
			"db_error":     m.LastDBError,
			"mq_error":     m.LastMQError,
			"redis_error":  m.LastRedisError,
			"last_message": m.LastMessageTime,
			"last_worker":  m.LastWorkerTime,
		},
	}
}

// Reset 重置内存计数（prometheus 计数器单调递增，不受影响）
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DBErrors = 0
	m.MQErrors = 0
	m.RedisErrors = 0
	m.ThreadsCreated = 0
	m.MessagesSent = 0
	m.NotifyEnqueued = 0
	m.NotifyPublished = 0
	m.NotifyRetried = 0
	m.NotifyDropped = 0
	m.WorkerProcessed = 0
	m.WorkerDuplicates = 0
	m.WorkerFailed = 0
}
