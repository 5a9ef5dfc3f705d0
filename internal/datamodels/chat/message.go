package chat

import (
	"time"

	"gorm.io/datatypes"
)

// AttachmentType 附件类型
type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
	AttachmentFile  AttachmentType = "file"
)

// Attachment 消息附件描述
type Attachment struct {
	Type        AttachmentType `json:"type"`
	URL         string         `json:"url"`
	Name        string         `json:"name,omitempty"`
	Size        *int64         `json:"size,omitempty"`
	ContentType string         `json:"content_type,omitempty"`
	Width       *int           `json:"width,omitempty"`
	Height      *int           `json:"height,omitempty"`
}

// NotificationPreviewLen 推送通知中正文预览的长度
const NotificationPreviewLen = 120

// Recipient 新消息的通知对象，UnreadCount 为递增之后的值
type Recipient struct {
	UserID      int64
	UnreadCount int
}

// Message 会话中的一条消息；排序键为 (created_at, id)。
// ClientMessageID 为空时存 NULL，唯一索引只约束非空值。
type Message struct {
	ID                string                          `gorm:"primaryKey;size:36" json:"id"`
	ThreadID          string                          `gorm:"size:36;not null;index:idx_chat_message_thread_created,priority:1;uniqueIndex:uniq_chat_message_client_id,priority:1" json:"thread_id"`
	SenderID          int64                           `gorm:"not null;index;uniqueIndex:uniq_chat_message_client_id,priority:2" json:"sender_id"`
	SenderDisplayName string                          `gorm:"size:255;not null;default:''" json:"sender_display_name"`
	Body              string                          `gorm:"type:text" json:"body"`
	Attachments       datatypes.JSONSlice[Attachment] `json:"attachments"`
	Metadata          datatypes.JSONMap               `json:"metadata"`
	CreatedAt         time.Time                       `gorm:"index:idx_chat_message_thread_created,priority:2" json:"created_at"`
	EditedAt          *time.Time                      `json:"edited_at"`
	DeletedAt         *time.Time                      `json:"deleted_at"`
	ClientMessageID   *string                         `gorm:"size:64;uniqueIndex:uniq_chat_message_client_id,priority:3" json:"client_message_id"`
}

func (Message) TableName() string { return "chat_messages" }

func (m *Message) IsDeleted() bool { return m.DeletedAt != nil }

// AttachmentCaption 没有正文时用第一个附件生成说明
func (m *Message) AttachmentCaption() string {
	if len(m.Attachments) == 0 {
		return ""
	}
	a := m.Attachments[0]
	if a.Name != "" {
		return a.Name
	}
	if a.URL != "" {
		return a.URL
	}
	return "[attachment]"
}

// ThreadPreview 写入 Thread.last_message_preview 的文本
func (m *Message) ThreadPreview() string {
	preview := m.Body
	if preview == "" {
		preview = m.AttachmentCaption()
	}
	if preview == "" {
		preview = "[attachment]"
	}
	return Truncate(preview, PreviewMaxLen)
}

// NotificationPreview 推送通知使用的预览
func (m *Message) NotificationPreview() string {
	if m.Body != "" {
		return Truncate(m.Body, NotificationPreviewLen)
	}
	return m.AttachmentCaption()
}

// Redacted 软删除的消息在普通读取中隐藏正文与附件
func (m Message) Redacted() Message {
	if m.DeletedAt == nil {
		return m
	}
	m.Body = ""
	m.Attachments = nil
	m.Metadata = nil
	return m
}
