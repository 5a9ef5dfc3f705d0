package chat

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

const (
	DefaultMaxAttachments    = 5
	DefaultMaxBodyLength     = 4000
	MaxClientMessageIDLength = 64
	maxAttachmentURLLength   = 2048
	maxAttachmentFieldLength = 255
)

// MessageInput 发送消息的入参
type MessageInput struct {
	Body            string
	Attachments     []Attachment
	Metadata        map[string]any
	ClientMessageID string
}

// Policy 消息校验规则；AllowedURLPrefixes 非空时，绝对地址的附件必须匹配其中之一
type Policy struct {
	MaxAttachments     int
	MaxBodyLength      int
	AllowedURLPrefixes []string
}

// DefaultPolicy 默认校验规则
func DefaultPolicy() Policy {
	return Policy{
		MaxAttachments: DefaultMaxAttachments,
		MaxBodyLength:  DefaultMaxBodyLength,
	}
}

// Normalize 去掉正文首尾空白并校验；返回规范化后的副本
func (p Policy) Normalize(in MessageInput) (MessageInput, error) {
	out := in
	out.Body = strings.TrimSpace(in.Body)
	out.ClientMessageID = strings.TrimSpace(in.ClientMessageID)

	maxBody := p.MaxBodyLength
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyLength
	}
	maxAttachments := p.MaxAttachments
	if maxAttachments <= 0 {
		maxAttachments = DefaultMaxAttachments
	}

	if out.Body == "" && len(out.Attachments) == 0 {
		return in, invalid("", "provide at least a message body or attachment")
	}
	if utf8.RuneCountInString(out.Body) > maxBody {
		return in, invalid("body", "must be at most %d characters", maxBody)
	}
	if len(out.Attachments) > maxAttachments {
		return in, invalid("attachments", "maximum %d attachments per message", maxAttachments)
	}
	if len(out.ClientMessageID) > MaxClientMessageIDLength {
		return in, invalid("client_message_id", "must be at most %d characters", MaxClientMessageIDLength)
	}
	for i := range out.Attachments {
		if err := p.validateAttachment(&out.Attachments[i]); err != nil {
			return in, err
		}
	}
	return out, nil
}

func (p Policy) validateAttachment(a *Attachment) error {
	if a.Type != AttachmentImage && a.Type != AttachmentFile {
		return invalid("attachments.type", "unsupported attachment type %q", a.Type)
	}
	if a.URL == "" {
		return invalid("attachments.url", "required")
	}
	if len(a.URL) > maxAttachmentURLLength {
		return invalid("attachments.url", "must be at most %d characters", maxAttachmentURLLength)
	}
	u, err := url.Parse(a.URL)
	if err != nil {
		return invalid("attachments.url", "malformed url")
	}
	if u.Scheme != "" {
		if len(p.AllowedURLPrefixes) > 0 && !hasAnyPrefix(a.URL, p.AllowedURLPrefixes) {
			return invalid("attachments.url", "attachment URL is not allowed")
		}
	} else if !strings.HasPrefix(a.URL, "/") {
		return invalid("attachments.url", "must be absolute or start with '/'")
	}
	if len(a.Name) > maxAttachmentFieldLength {
		return invalid("attachments.name", "must be at most %d characters", maxAttachmentFieldLength)
	}
	if len(a.ContentType) > maxAttachmentFieldLength {
		return invalid("attachments.content_type", "must be at most %d characters", maxAttachmentFieldLength)
	}
	if a.Size != nil && *a.Size < 0 {
		return invalid("attachments.size", "must not be negative")
	}
	if a.Width != nil && *a.Width <= 0 {
		return invalid("attachments.width", "must be positive")
	}
	if a.Height != nil && *a.Height <= 0 {
		return invalid("attachments.height", "must be positive")
	}
	return nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
