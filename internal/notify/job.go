package notify

import (
	"fmt"
	"time"

	"github.com/example/sailchat/internal/datamodels/chat"
)

// Job 一条新消息对一个接收者的通知载荷
type Job struct {
	ThreadID    string    `json:"thread_id"`
	MessageID   string    `json:"message_id"`
	SenderID    int64     `json:"sender_id"`
	RecipientID int64     `json:"recipient_id"`
	Preview     string    `json:"preview"`
	UnreadCount int       `json:"unread_count"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// JobsFor 为每个接收者生成一条通知
func JobsFor(msg *chat.Message, recipients []chat.Recipient, now time.Time) []Job {
	preview := msg.NotificationPreview()
	jobs := make([]Job, 0, len(recipients))
	for _, r := range recipients {
		if r.UserID == msg.SenderID {
			continue
		}
		jobs = append(jobs, Job{
			ThreadID:    msg.ThreadID,
			MessageID:   msg.ID,
			SenderID:    msg.SenderID,
			RecipientID: r.UserID,
			Preview:     preview,
			UnreadCount: r.UnreadCount,
			EnqueuedAt:  now,
		})
	}
	return jobs
}

// DedupeKey 消费端幂等键
func (j Job) DedupeKey() string {
	return fmt.Sprintf("chat:notify:%s:%d", j.MessageID, j.RecipientID)
}

func (j Job) valid() bool {
	return j.ThreadID != "" && j.MessageID != "" && j.RecipientID != 0
}
