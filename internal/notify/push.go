package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogPusher 只记录通知内容；接入 FCM/APNs 时替换
type LogPusher struct {
	log *zap.Logger
}

func NewLogPusher(log *zap.Logger) *LogPusher {
	if log == nil {
		log = zap.L()
	}
	return &LogPusher{log: log}
}

func (p *LogPusher) Push(_ context.Context, job Job) error {
	p.log.Info("push notification",
		zap.Int64("recipient_id", job.RecipientID),
		zap.Int64("sender_id", job.SenderID),
		zap.String("thread_id", job.ThreadID),
		zap.String("message_id", job.MessageID),
		zap.String("preview", job.Preview),
		zap.Int("unread_count", job.UnreadCount))
	return nil
}
