package chat

import (
	"context"
	"time"
)

// Repository 聊天存储。lock 为 true 时以 SELECT ... FOR UPDATE 读取，只应在事务内使用。
// 未找到返回 ErrNotFound，唯一约束冲突返回 ErrDuplicateEntity。
type Repository interface {
	// Transaction 在同一事务内执行 fn，fn 返回错误时整体回滚
	Transaction(ctx context.Context, fn func(tx Repository) error) error

	FindThreadByBuyerListing(ctx context.Context, buyerID, listingID int64, lock bool) (*Thread, error)
	GetThread(ctx context.Context, id string, lock bool) (*Thread, error)
	GetThreadWithParticipants(ctx context.Context, id string) (*Thread, error)
	CreateThread(ctx context.Context, t *Thread) error
	UpdateThread(ctx context.Context, id string, fields map[string]any) error
	ListThreadsForUser(ctx context.Context, userID int64, filter ThreadFilter) ([]*Thread, error)

	GetParticipant(ctx context.Context, threadID string, userID int64, lock bool) (*Participant, error)
	ListParticipants(ctx context.Context, threadID string, lock bool) ([]*Participant, error)
	CreateParticipant(ctx context.Context, p *Participant) error
	UpdateParticipant(ctx context.Context, id string, fields map[string]any) error
	// IncrementUnread 除 senderID 外的参与者未读数 +1 并取消软删除，归档标记不变
	IncrementUnread(ctx context.Context, threadID string, senderID int64) error

	CreateMessage(ctx context.Context, m *Message) error
	GetMessage(ctx context.Context, threadID, id string) (*Message, error)
	FindMessageByClientID(ctx context.Context, threadID string, senderID int64, clientMessageID string) (*Message, error)
	UpdateMessage(ctx context.Context, id string, fields map[string]any) error
	// ListMessagesBefore 按 (created_at, id) 降序返回早于游标的消息
	ListMessagesBefore(ctx context.Context, threadID string, before *Cursor, limit int) ([]*Message, error)
	// ListMessagesAfter 按 (created_at, id) 升序返回晚于游标的消息
	ListMessagesAfter(ctx context.Context, threadID string, after *Cursor, limit int) ([]*Message, error)

	// ListAvailabilityTargets 以 id 为键分批遍历需要同步商品状态的会话；userID 为 0 时不限用户
	ListAvailabilityTargets(ctx context.Context, userID int64, afterID string, limit int) ([]*Thread, error)
	UpdateAvailability(ctx context.Context, threadIDs []string, availability ListingAvailability, checkedAt time.Time) (int64, error)
}

// AvailabilityLookup 查询一批商品当前的可用性；缺失的 id 视为已删除
type AvailabilityLookup interface {
	Availability(ctx context.Context, listingIDs []int64) (map[int64]ListingAvailability, error)
}
