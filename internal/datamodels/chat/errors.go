package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound 会话/消息/参与者不存在
	ErrNotFound = errors.New("chat: not found")
	// ErrInvalidMessage 消息内容或附件不合法，写入前即被拒绝
	ErrInvalidMessage = errors.New("chat: invalid message")
	// ErrDuplicateEntity 唯一约束冲突，由服务层转化为幂等行为
	ErrDuplicateEntity = errors.New("chat: duplicate entity")
	// ErrNotAParticipant 调用方不是会话双方之一
	ErrNotAParticipant = errors.New("chat: not a participant")
	// ErrTransientStore 超时或连接问题，可整体重试
	ErrTransientStore = errors.New("chat: transient store failure")
	// ErrNotificationDelivery 通知投递失败，只记录，不向发送方传播
	ErrNotificationDelivery = errors.New("chat: notification delivery failure")
	// ErrSelfContact 买家与卖家是同一个人
	ErrSelfContact = errors.New("chat: cannot start a chat with your own listing")
	// ErrListingUnavailable 商品不存在或未上架
	ErrListingUnavailable = errors.New("chat: listing not found or inactive")
	// ErrNotSender 只有发送者可以删除消息
	ErrNotSender = errors.New("chat: only the sender can delete a message")
)

// ErrLockConflict 死锁或序列化失败，数据库已回滚事务；errors.Is(err, ErrTransientStore) 同样为 true
var ErrLockConflict = fmt.Errorf("%w: lock conflict", ErrTransientStore)

// ValidationError 描述具体字段的校验失败，errors.Is(err, ErrInvalidMessage) 为 true
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrInvalidMessage, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrInvalidMessage, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidMessage }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
