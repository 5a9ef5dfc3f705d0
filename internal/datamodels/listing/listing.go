package listing

import (
	"context"
	"time"
)

// Status 商品状态，只有 active 的商品可以发起新会话
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusSold     Status = "sold"
)

// Listing 分类信息（由商品子系统维护，聊天只读）
type Listing struct {
	ID            int64     `gorm:"primaryKey"`
	UserID        int64     `gorm:"not null;index"` // 卖家
	Title         string    `gorm:"size:255;not null"`
	PriceAmount   *int64    // 分，面议时为空
	PriceCurrency string    `gorm:"size:3"`
	ThumbnailURL  string    `gorm:"size:2048"`
	Status        Status    `gorm:"size:16;index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (Listing) TableName() string { return "listings" }

// Repository 商品只读仓储
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Listing, error)
	// StatusByIDs 返回存在的商品状态，不存在的 id 不出现在结果中
	StatusByIDs(ctx context.Context, ids []int64) (map[int64]Status, error)
}
