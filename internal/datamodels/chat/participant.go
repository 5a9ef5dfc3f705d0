package chat

import "time"

// Role 参与者在会话中的角色
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

func (r Role) IsValid() bool {
	return r == RoleBuyer || r == RoleSeller
}

// Visibility 参与者视角下会话的可见状态
//
//	visible  --Archive-->   archived
//	archived --Unarchive--> visible
//	visible|archived --SoftDelete--> deleted
//	deleted  --Revive(新消息或本人发送)--> visible|archived（保留归档标记）
type Visibility string

const (
	VisibilityVisible  Visibility = "visible"
	VisibilityArchived Visibility = "archived"
	VisibilityDeleted  Visibility = "deleted"
)

// Participant 用户在某个会话中的成员关系与个人状态；(thread_id, user_id) 唯一
type Participant struct {
	ID                string     `gorm:"primaryKey;size:36" json:"id"`
	ThreadID          string     `gorm:"size:36;not null;uniqueIndex:uniq_chat_participant_per_thread,priority:1;index:idx_chat_participant_thread_role,priority:1" json:"thread_id"`
	UserID            int64      `gorm:"not null;uniqueIndex:uniq_chat_participant_per_thread,priority:2;index:idx_chat_participant_user_deleted,priority:1" json:"user_id"`
	Role              Role       `gorm:"size:16;not null;index:idx_chat_participant_thread_role,priority:2" json:"role"`
	DisplayName       string     `gorm:"size:255;not null;default:''" json:"display_name"`
	AvatarURL         string     `gorm:"size:2048;not null;default:''" json:"avatar_url"`
	IsArchived        bool       `gorm:"not null;default:false" json:"is_archived"`
	IsDeleted         bool       `gorm:"not null;default:false;index:idx_chat_participant_user_deleted,priority:2" json:"is_deleted"`
	UnreadCount       int        `gorm:"not null;default:0" json:"unread_count"`
	LastReadMessageID *string    `gorm:"size:36" json:"last_read_message_id"`
	LastReadAt        *time.Time `json:"last_read_at"`
	JoinedAt          time.Time  `gorm:"autoCreateTime" json:"joined_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (Participant) TableName() string { return "chat_participants" }

func (p *Participant) Visibility() Visibility {
	switch {
	case p.IsDeleted:
		return VisibilityDeleted
	case p.IsArchived:
		return VisibilityArchived
	}
	return VisibilityVisible
}

// SetArchived 切换归档标记；返回需要持久化的字段，无变化时为 nil
func (p *Participant) SetArchived(archived bool) map[string]any {
	if p.IsArchived == archived {
		return nil
	}
	p.IsArchived = archived
	return map[string]any{"is_archived": archived}
}

// SoftDelete 对本人隐藏会话，数据保留
func (p *Participant) SoftDelete() map[string]any {
	if p.IsDeleted {
		return nil
	}
	p.IsDeleted = true
	return map[string]any{"is_deleted": true}
}

// Revive 新消息到达或本人发送时让会话重新出现，归档标记不受影响
func (p *Participant) Revive() map[string]any {
	if !p.IsDeleted {
		return nil
	}
	p.IsDeleted = false
	return map[string]any{"is_deleted": false}
}

// MarkRead 移动已读游标并清零未读数
func (p *Participant) MarkRead(messageID *string, at time.Time) map[string]any {
	p.LastReadMessageID = messageID
	p.LastReadAt = &at
	p.UnreadCount = 0
	return map[string]any{
		"last_read_message_id": messageID,
		"last_read_at":         at,
		"unread_count":         0,
	}
}

// RefreshProfile 同步缓存的昵称/头像与角色
func (p *Participant) RefreshProfile(snapshot UserSnapshot, role Role) map[string]any {
	changes := map[string]any{}
	if p.DisplayName != snapshot.DisplayName {
		p.DisplayName = snapshot.DisplayName
		changes["display_name"] = snapshot.DisplayName
	}
	if p.AvatarURL != snapshot.AvatarURL {
		p.AvatarURL = snapshot.AvatarURL
		changes["avatar_url"] = snapshot.AvatarURL
	}
	if p.Role != role {
		p.Role = role
		changes["role"] = role
	}
	return changes
}

// Merge 合并多组待更新字段
func Merge(sets ...map[string]any) map[string]any {
	out := map[string]any{}
	for _, s := range sets {
		for k, v := range s {
			out[k] = v
		}
	}
	return out
}
