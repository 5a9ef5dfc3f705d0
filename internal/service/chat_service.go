package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/sailchat/internal/datamodels/chat"
	"github.com/example/sailchat/internal/monitor"
)

// Notifier 接收已提交的新消息，负责异步投递通知；实现不得阻塞写路径
type Notifier interface {
	Dispatch(msg *chat.Message, recipients []chat.Recipient)
}

type nopNotifier struct{}

func (nopNotifier) Dispatch(*chat.Message, []chat.Recipient) {}

// Option 配置 ChatService
type Option func(*ChatService)

func WithNotifier(n Notifier) Option {
	return func(s *ChatService) { s.notifier = n }
}

func WithPolicy(p chat.Policy) Option {
	return func(s *ChatService) { s.policy = p }
}

// WithTxTimeout 每次调用的事务超时，<=0 表示只受调用方 ctx 约束
func WithTxTimeout(d time.Duration) Option {
	return func(s *ChatService) { s.txTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *ChatService) { s.now = now }
}

// ChatService 买卖双方聊天的事务性操作；所有写操作都在单个事务内完成
type ChatService struct {
	repo      chat.Repository
	notifier  Notifier
	policy    chat.Policy
	txTimeout time.Duration
	now       func() time.Time
	monitor   *monitor.Monitor
}

// NewChatService 创建聊天服务
func NewChatService(repo chat.Repository, opts ...Option) *ChatService {
	s := &ChatService{
		repo:      repo,
		notifier:  nopNotifier{},
		policy:    chat.DefaultPolicy(),
		txTimeout: 5 * time.Second,
		now:       defaultClock,
		monitor:   monitor.GetMonitor(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func defaultClock() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func (s *ChatService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.txTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.txTimeout)
}

// observe 统计存储层故障，业务错误不计入
func (s *ChatService) observe(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		chat.ErrNotFound, chat.ErrInvalidMessage, chat.ErrNotAParticipant, chat.ErrNotSender,
		chat.ErrSelfContact, chat.ErrDuplicateEntity, chat.ErrInvalidCursor,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	s.monitor.RecordDBError()
	return err
}

// createAttempts GetOrCreateThread 的最多尝试次数
const createAttempts = 3

// GetOrCreateThread 按 (buyer, listing) 取得或创建会话，并保证双方参与者存在。
// 并发创建时输的一方会遇到唯一约束冲突，或在 MySQL 间隙锁下被判死锁回滚；
// 两种情况都整体重试，重试即退化为查询。
func (s *ChatService) GetOrCreateThread(ctx context.Context, listing chat.ListingSnapshot, buyer, seller chat.UserSnapshot) (*chat.Thread, bool, error) {
	if buyer.UserID == seller.UserID {
		return nil, false, chat.ErrSelfContact
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		thread  *chat.Thread
		created bool
		err     error
	)
	for attempt := 1; attempt <= createAttempts; attempt++ {
		thread, created, err = s.getOrCreateOnce(ctx, listing, buyer, seller)
		if !retryableCreate(err) || ctx.Err() != nil {
			break
		}
		zap.L().Debug("thread creation raced, retrying as lookup",
			zap.Int64("buyer_id", buyer.UserID),
			zap.Int64("listing_id", listing.ListingID),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	if err != nil {
		return nil, false, s.observe(err)
	}
	if created {
		s.monitor.RecordThreadCreated()
		zap.L().Info("chat thread created",
			zap.String("thread_id", thread.ID),
			zap.Int64("listing_id", listing.ListingID),
			zap.Int64("buyer_id", buyer.UserID),
			zap.Int64("seller_id", seller.UserID))
	}
	return thread, created, nil
}

func retryableCreate(err error) bool {
	return errors.Is(err, chat.ErrDuplicateEntity) || errors.Is(err, chat.ErrLockConflict)
}

func (s *ChatService) getOrCreateOnce(ctx context.Context, listing chat.ListingSnapshot, buyer, seller chat.UserSnapshot) (*chat.Thread, bool, error) {
	var (
		thread  *chat.Thread
		created bool
	)
	err := s.repo.Transaction(ctx, func(tx chat.Repository) error {
		now := s.now()
		existing, err := tx.FindThreadByBuyerListing(ctx, buyer.UserID, listing.ListingID, true)
		switch {
		case err == nil:
			if changes := existing.ListingChanges(listing, seller.UserID); len(changes) > 0 {
				if err := tx.UpdateThread(ctx, existing.ID, changes); err != nil {
					return err
				}
				existing.ApplyListing(listing, seller.UserID)
			}
			thread = existing
		case errors.Is(err, chat.ErrNotFound):
			thread = &chat.Thread{
				ID:                           uuid.NewString(),
				BuyerID:                      buyer.UserID,
				ListingID:                    listing.ListingID,
				ListingAvailability:          chat.ListingAvailable,
				ListingAvailabilityCheckedAt: &now,
				Status:                       chat.ThreadActive,
				CreatedAt:                    now,
				UpdatedAt:                    now,
			}
			thread.ApplyListing(listing, seller.UserID)
			if err := tx.CreateThread(ctx, thread); err != nil {
				return err
			}
			created = true
		default:
			return err
		}

		participants, err := s.ensureParticipants(ctx, tx, thread, buyer, seller, now)
		if err != nil {
			return err
		}
		thread.Participants = participants
		return nil
	})
	return thread, created, err
}

// ensureParticipants 创建缺失的参与者并刷新已有参与者的昵称/头像；
// 买家主动发起联系时恢复其软删除的会话，卖家的删除状态只由新消息改变
func (s *ChatService) ensureParticipants(ctx context.Context, tx chat.Repository, thread *chat.Thread, buyer, seller chat.UserSnapshot, now time.Time) ([]chat.Participant, error) {
	sides := []struct {
		snapshot chat.UserSnapshot
		role     chat.Role
	}{
		{buyer, chat.RoleBuyer},
		{seller, chat.RoleSeller},
	}
	out := make([]chat.Participant, 0, len(sides))
	for _, side := range sides {
		p, err := tx.GetParticipant(ctx, thread.ID, side.snapshot.UserID, true)
		switch {
		case errors.Is(err, chat.ErrNotFound):
			p = &chat.Participant{
				ID:          uuid.NewString(),
				ThreadID:    thread.ID,
				UserID:      side.snapshot.UserID,
				Role:        side.role,
				DisplayName: side.snapshot.DisplayName,
				AvatarURL:   side.snapshot.AvatarURL,
				JoinedAt:    now,
				UpdatedAt:   now,
			}
			if err := tx.CreateParticipant(ctx, p); err != nil {
				return nil, err
			}
		case err != nil:
			return nil, err
		default:
			changes := p.RefreshProfile(side.snapshot, side.role)
			// 只恢复买家；卖家删除的会话要等新消息才重新出现
			if side.role == chat.RoleBuyer {
				changes = chat.Merge(changes, p.Revive())
			}
			if err := tx.UpdateParticipant(ctx, p.ID, changes); err != nil {
				return nil, err
			}
		}
		out = append(out, *p)
	}
	return out, nil
}

// AppendMessage 在会话中追加一条消息：写消息、更新会话预览、发送者自动已读并恢复可见、
// 其他参与者未读 +1 并恢复可见。事务提交后才投递通知。
// 带 client_message_id 的重复发送返回已存储的消息，不产生任何副作用。
func (s *ChatService) AppendMessage(ctx context.Context, threadID string, sender chat.UserSnapshot, in chat.MessageInput) (*chat.Message, error) {
	in, err := s.policy.Normalize(in)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		msg        *chat.Message
		recipients []chat.Recipient
		replayed   bool
	)
	err = s.repo.Transaction(ctx, func(tx chat.Repository) error {
		thread, err := tx.GetThread(ctx, threadID, true)
		if err != nil {
			return err
		}
		role, ok := thread.RoleOf(sender.UserID)
		if !ok {
			return chat.ErrNotAParticipant
		}
		participants, err := tx.ListParticipants(ctx, thread.ID, true)
		if err != nil {
			return err
		}
		var self *chat.Participant
		for _, p := range participants {
			if p.UserID == sender.UserID {
				self = p
			}
		}
		if self == nil {
			return chat.ErrNotAParticipant
		}

		if in.ClientMessageID != "" {
			existing, err := tx.FindMessageByClientID(ctx, thread.ID, sender.UserID, in.ClientMessageID)
			if err == nil {
				msg, replayed = existing, true
				return nil
			}
			if !errors.Is(err, chat.ErrNotFound) {
				return err
			}
		}

		now := s.now()
		m := &chat.Message{
			ID:                uuid.NewString(),
			ThreadID:          thread.ID,
			SenderID:          sender.UserID,
			SenderDisplayName: sender.DisplayName,
			Body:              in.Body,
			Attachments:       in.Attachments,
			Metadata:          in.Metadata,
			CreatedAt:         now,
		}
		if in.ClientMessageID != "" {
			cid := in.ClientMessageID
			m.ClientMessageID = &cid
		}
		if err := tx.CreateMessage(ctx, m); err != nil {
			return err
		}
		if err := tx.UpdateThread(ctx, thread.ID, map[string]any{
			"last_message_at":      now,
			"last_message_preview": m.ThreadPreview(),
		}); err != nil {
			return err
		}

		selfChanges := chat.Merge(
			self.MarkRead(&m.ID, now),
			self.Revive(),
			self.RefreshProfile(sender, role),
		)
		if err := tx.UpdateParticipant(ctx, self.ID, selfChanges); err != nil {
			return err
		}

		// 通知对象取复活之前的状态：软删除的参与者只恢复可见，不推送
		recipients = recipients[:0]
		for _, p := range participants {
			if p.UserID == sender.UserID || p.IsDeleted {
				continue
			}
			recipients = append(recipients, chat.Recipient{UserID: p.UserID, UnreadCount: p.UnreadCount + 1})
		}
		if err := tx.IncrementUnread(ctx, thread.ID, sender.UserID); err != nil {
			return err
		}
		msg = m
		return nil
	})

	if errors.Is(err, chat.ErrDuplicateEntity) && in.ClientMessageID != "" {
		// 同一 client id 的并发发送，输的一方返回赢家写入的消息
		existing, lookupErr := s.repo.FindMessageByClientID(ctx, threadID, sender.UserID, in.ClientMessageID)
		if lookupErr == nil {
			return existing, nil
		}
	}
	if err != nil {
		return nil, s.observe(err)
	}
	if replayed {
		zap.L().Debug("duplicate send ignored",
			zap.String("thread_id", threadID), zap.String("client_message_id", in.ClientMessageID))
		return msg, nil
	}

	s.monitor.RecordMessageSent()
	if len(recipients) > 0 {
		s.notifier.Dispatch(msg, recipients)
	}
	return msg, nil
}

// MarkRead 移动参与者的已读游标并清零未读数；messageID 必须属于该会话
func (s *ChatService) MarkRead(ctx context.Context, threadID string, userID int64, messageID *string) (*chat.Participant, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var participant *chat.Participant
	err := s.repo.Transaction(ctx, func(tx chat.Repository) error {
		p, err := participantFor(ctx, tx, threadID, userID, true)
		if err != nil {
			return err
		}
		if messageID != nil {
			if _, err := tx.GetMessage(ctx, threadID, *messageID); err != nil {
				return err
			}
		}
		if err := tx.UpdateParticipant(ctx, p.ID, p.MarkRead(messageID, s.now())); err != nil {
			return err
		}
		participant = p
		return nil
	})
	if err != nil {
		return nil, s.observe(err)
	}
	return participant, nil
}

// SetArchiveState 归档/取消归档，只影响调用者自己
func (s *ChatService) SetArchiveState(ctx context.Context, threadID string, userID int64, archived bool) (*chat.Participant, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var participant *chat.Participant
	err := s.repo.Transaction(ctx, func(tx chat.Repository) error {
		p, err := participantFor(ctx, tx, threadID, userID, true)
		if err != nil {
			return err
		}
		if err := tx.UpdateParticipant(ctx, p.ID, p.SetArchived(archived)); err != nil {
			return err
		}
		participant = p
		return nil
	})
	if err != nil {
		return nil, s.observe(err)
	}
	return participant, nil
}

// SoftDeleteThread 对调用者隐藏会话；重复调用无副作用
func (s *ChatService) SoftDeleteThread(ctx context.Context, threadID string, userID int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.repo.Transaction(ctx, func(tx chat.Repository) error {
		p, err := participantFor(ctx, tx, threadID, userID, true)
		if err != nil {
			return err
		}
		return tx.UpdateParticipant(ctx, p.ID, p.SoftDelete())
	})
	return s.observe(err)
}

// GetThread 返回调用者视角的会话
func (s *ChatService) GetThread(ctx context.Context, threadID string, userID int64) (*chat.ThreadView, error) {
	thread, err := s.repo.GetThreadWithParticipants(ctx, threadID)
	if err != nil {
		return nil, s.observe(err)
	}
	return chat.ViewFor(thread, userID)
}

// ListThreads 调用者未删除的会话，按最后一条消息时间倒序
func (s *ChatService) ListThreads(ctx context.Context, userID int64, filter chat.ThreadFilter) ([]*chat.ThreadView, error) {
	threads, err := s.repo.ListThreadsForUser(ctx, userID, filter)
	if err != nil {
		return nil, s.observe(err)
	}
	views := make([]*chat.ThreadView, 0, len(threads))
	for _, t := range threads {
		view, err := chat.ViewFor(t, userID)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// ListMessages 校验参与者身份后按游标分页读取消息
func (s *ChatService) ListMessages(ctx context.Context, threadID string, userID int64, q chat.PageQuery) (*chat.MessagePage, error) {
	if _, err := participantFor(ctx, s.repo, threadID, userID, false); err != nil {
		return nil, s.observe(err)
	}
	page, err := Paginate(ctx, s.repo, threadID, q)
	if err != nil {
		return nil, s.observe(err)
	}
	return page, nil
}

// DeleteMessage 发送者软删除自己的消息；已删除时直接返回
func (s *ChatService) DeleteMessage(ctx context.Context, threadID string, userID int64, messageID string) (*chat.Message, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var msg *chat.Message
	err := s.repo.Transaction(ctx, func(tx chat.Repository) error {
		if _, err := participantFor(ctx, tx, threadID, userID, false); err != nil {
			return err
		}
		m, err := tx.GetMessage(ctx, threadID, messageID)
		if err != nil {
			return err
		}
		if m.SenderID != userID {
			return chat.ErrNotSender
		}
		if !m.IsDeleted() {
			now := s.now()
			if err := tx.UpdateMessage(ctx, m.ID, map[string]any{"deleted_at": now}); err != nil {
				return err
			}
			m.DeletedAt = &now
		}
		msg = m
		return nil
	})
	if err != nil {
		return nil, s.observe(err)
	}
	redacted := msg.Redacted()
	return &redacted, nil
}

// participantFor 会话不存在返回 ErrNotFound，存在但用户不在其中返回 ErrNotAParticipant
func participantFor(ctx context.Context, repo chat.Repository, threadID string, userID int64, lock bool) (*chat.Participant, error) {
	p, err := repo.GetParticipant(ctx, threadID, userID, lock)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, chat.ErrNotFound) {
		return nil, err
	}
	if _, err := repo.GetThread(ctx, threadID, false); err != nil {
		return nil, err
	}
	return nil, chat.ErrNotAParticipant
}
