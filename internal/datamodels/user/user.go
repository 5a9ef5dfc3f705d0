package user

import (
	"context"
	"time"
)

// User 用户模型（由账号子系统维护，聊天只读）
type User struct {
	ID          int64     `gorm:"primaryKey"`
	Username    string    `gorm:"uniqueIndex;size:64;not null"`
	DisplayName string    `gorm:"size:255"`
	AvatarURL   string    `gorm:"size:2048"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Name 展示名，未设置昵称时退回用户名
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// Repository 用户只读仓储
type Repository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByIDs(ctx context.Context, ids []int64) ([]*User, error)
}
