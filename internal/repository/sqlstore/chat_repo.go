package sqlstore

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/sailchat/internal/datamodels/chat"
)

type chatRepo struct {
	db *gorm.DB
}

// NewChatRepository 创建聊天仓储
func NewChatRepository(db *gorm.DB) chat.Repository {
	return &chatRepo{db: db}
}

func (r *chatRepo) Transaction(ctx context.Context, fn func(tx chat.Repository) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&chatRepo{db: tx})
	})
	return translate(err)
}

func (r *chatRepo) query(ctx context.Context, lock bool) *gorm.DB {
	q := r.db.WithContext(ctx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

func (r *chatRepo) FindThreadByBuyerListing(ctx context.Context, buyerID, listingID int64, lock bool) (*chat.Thread, error) {
	var t chat.Thread
	if err := r.query(ctx, lock).
		Where("buyer_id = ? AND listing_id = ?", buyerID, listingID).
		First(&t).Error; err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

func (r *chatRepo) GetThread(ctx context.Context, id string, lock bool) (*chat.Thread, error) {
	var t chat.Thread
	if err := r.query(ctx, lock).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

func (r *chatRepo) GetThreadWithParticipants(ctx context.Context, id string) (*chat.Thread, error) {
	var t chat.Thread
	if err := r.db.WithContext(ctx).
		Preload("Participants", orderByRole).
		Where("id = ?", id).
		First(&t).Error; err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

func (r *chatRepo) CreateThread(ctx context.Context, t *chat.Thread) error {
	return translate(r.db.WithContext(ctx).Omit(clause.Associations).Create(t).Error)
}

func (r *chatRepo) UpdateThread(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return translate(r.db.WithContext(ctx).
		Model(&chat.Thread{}).
		Where("id = ?", id).
		Updates(fields).Error)
}

func (r *chatRepo) ListThreadsForUser(ctx context.Context, userID int64, filter chat.ThreadFilter) ([]*chat.Thread, error) {
	filter = filter.Normalize()
	q := r.db.WithContext(ctx).
		Model(&chat.Thread{}).
		Joins("JOIN chat_participants me ON me.thread_id = chat_threads.id AND me.user_id = ?", userID).
		Where("me.is_deleted = ?", false)
	if filter.Archived != nil {
		q = q.Where("me.is_archived = ?", *filter.Archived)
	}
	if filter.Role != "" {
		q = q.Where("me.role = ?", filter.Role)
	}
	if filter.MyAds {
		q = q.Where("chat_threads.seller_id = ?", userID)
	}
	if filter.UnreadOnly {
		q = q.Where("me.unread_count > ?", 0)
	}

	var list []*chat.Thread
	if err := q.Preload("Participants", orderByRole).
		Order("COALESCE(chat_threads.last_message_at, chat_threads.created_at) DESC").
		Order("chat_threads.updated_at DESC").
		Order("chat_threads.id DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&list).Error; err != nil {
		return nil, translate(err)
	}
	return list, nil
}

func (r *chatRepo) GetParticipant(ctx context.Context, threadID string, userID int64, lock bool) (*chat.Participant, error) {
	var p chat.Participant
	if err := r.query(ctx, lock).
		Where("thread_id = ? AND user_id = ?", threadID, userID).
		First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *chatRepo) ListParticipants(ctx context.Context, threadID string, lock bool) ([]*chat.Participant, error) {
	var list []*chat.Participant
	if err := r.query(ctx, lock).
		Where("thread_id = ?", threadID).
		Order("role ASC").
		Find(&list).Error; err != nil {
		return nil, translate(err)
	}
	return list, nil
}

func (r *chatRepo) CreateParticipant(ctx context.Context, p *chat.Participant) error {
	return translate(r.db.WithContext(ctx).Create(p).Error)
}

func (r *chatRepo) UpdateParticipant(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return translate(r.db.WithContext(ctx).
		Model(&chat.Participant{}).
		Where("id = ?", id).
		Updates(fields).Error)
}

func (r *chatRepo) IncrementUnread(ctx context.Context, threadID string, senderID int64) error {
	return translate(r.db.WithContext(ctx).
		Model(&chat.Participant{}).
		Where("thread_id = ? AND user_id <> ?", threadID, senderID).
		Updates(map[string]any{
			"unread_count": gorm.Expr("unread_count + ?", 1),
			"is_deleted":   false,
		}).Error)
}

func (r *chatRepo) CreateMessage(ctx context.Context, m *chat.Message) error {
	return translate(r.db.WithContext(ctx).Create(m).Error)
}

func (r *chatRepo) GetMessage(ctx context.Context, threadID, id string) (*chat.Message, error) {
	var m chat.Message
	if err := r.db.WithContext(ctx).
		Where("thread_id = ? AND id = ?", threadID, id).
		First(&m).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (r *chatRepo) FindMessageByClientID(ctx context.Context, threadID string, senderID int64, clientMessageID string) (*chat.Message, error) {
	var m chat.Message
	if err := r.db.WithContext(ctx).
		Where("thread_id = ? AND sender_id = ? AND client_message_id = ?", threadID, senderID, clientMessageID).
		First(&m).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (r *chatRepo) UpdateMessage(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return translate(r.db.WithContext(ctx).
		Model(&chat.Message{}).
		Where("id = ?", id).
		UpdateColumns(fields).Error)
}

func (r *chatRepo) ListMessagesBefore(ctx context.Context, threadID string, before *chat.Cursor, limit int) ([]*chat.Message, error) {
	q := r.db.WithContext(ctx).Where("thread_id = ?", threadID)
	if before != nil {
		if before.ID == "" {
			q = q.Where("created_at < ?", before.At)
		} else {
			q = q.Where("(created_at < ? OR (created_at = ? AND id < ?))", before.At, before.At, before.ID)
		}
	}
	var list []*chat.Message
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, translate(err)
	}
	return list, nil
}

func (r *chatRepo) ListMessagesAfter(ctx context.Context, threadID string, after *chat.Cursor, limit int) ([]*chat.Message, error) {
	q := r.db.WithContext(ctx).Where("thread_id = ?", threadID)
	if after != nil {
		if after.ID == "" {
			q = q.Where("created_at > ?", after.At)
		} else {
			q = q.Where("(created_at > ? OR (created_at = ? AND id > ?))", after.At, after.At, after.ID)
		}
	}
	var list []*chat.Message
	if err := q.Order("created_at ASC, id ASC").Limit(limit).Find(&list).Error; err != nil {
		return nil, translate(err)
	}
	return list, nil
}

func (r *chatRepo) ListAvailabilityTargets(ctx context.Context, userID int64, afterID string, limit int) ([]*chat.Thread, error) {
	q := r.db.WithContext(ctx).
		Model(&chat.Thread{}).
		Where("chat_threads.id > ?", afterID)
	if userID != 0 {
		q = q.Joins("JOIN chat_participants me ON me.thread_id = chat_threads.id AND me.user_id = ? AND me.is_deleted = ?", userID, false)
	}
	var list []*chat.Thread
	if err := q.Order("chat_threads.id ASC").Limit(limit).Find(&list).Error; err != nil {
		return nil, translate(err)
	}
	return list, nil
}

func (r *chatRepo) UpdateAvailability(ctx context.Context, threadIDs []string, availability chat.ListingAvailability, checkedAt time.Time) (int64, error) {
	if len(threadIDs) == 0 {
		return 0, nil
	}
	// 不刷新 updated_at，避免同步任务打乱会话列表排序
	res := r.db.WithContext(ctx).
		Model(&chat.Thread{}).
		Where("id IN ?", threadIDs).
		UpdateColumns(map[string]any{
			"listing_availability":            availability,
			"listing_availability_checked_at": checkedAt,
		})
	return res.RowsAffected, translate(res.Error)
}

func orderByRole(db *gorm.DB) *gorm.DB {
	return db.Order("role ASC")
}
