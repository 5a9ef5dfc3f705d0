package chat

import (
	"time"

	"gorm.io/datatypes"
)

// ThreadStatus 会话在仓储层面的状态，与参与者的归档标记无关
type ThreadStatus string

const (
	ThreadActive   ThreadStatus = "active"
	ThreadArchived ThreadStatus = "archived"
	ThreadClosed   ThreadStatus = "closed"
)

// ListingAvailability 缓存的商品可用性
type ListingAvailability string

const (
	ListingAvailable   ListingAvailability = "available"
	ListingUnavailable ListingAvailability = "unavailable"
	ListingDeleted     ListingAvailability = "deleted"
)

// PreviewMaxLen 会话列表中最后一条消息预览的最大长度（按字符）
const PreviewMaxLen = 400

// Thread 买家与卖家围绕一个商品的会话；(buyer_id, listing_id) 唯一
type Thread struct {
	ID                           string              `gorm:"primaryKey;size:36" json:"id"`
	BuyerID                      int64               `gorm:"not null;index;uniqueIndex:uniq_chat_thread_buyer_listing,priority:1" json:"buyer_id"`
	SellerID                     int64               `gorm:"not null;index" json:"seller_id"`
	ListingID                    int64               `gorm:"not null;index;uniqueIndex:uniq_chat_thread_buyer_listing,priority:2" json:"listing_id"`
	ListingTitle                 string              `gorm:"size:255;not null;default:''" json:"listing_title"`
	ListingPriceAmount           *int64              `json:"listing_price_amount"`
	ListingPriceCurrency         string              `gorm:"size:3;not null;default:''" json:"listing_price_currency"`
	ListingThumbnailURL          string              `gorm:"size:2048;not null;default:''" json:"listing_thumbnail_url"`
	ListingAvailability          ListingAvailability `gorm:"size:16;not null;default:'available'" json:"listing_availability"`
	ListingAvailabilityCheckedAt *time.Time          `json:"listing_availability_checked_at"`
	Status                       ThreadStatus        `gorm:"size:16;not null;default:'active';index:idx_chat_thread_status_updated,priority:1" json:"status"`
	LastMessageAt                *time.Time          `gorm:"index" json:"last_message_at"`
	LastMessagePreview           string              `gorm:"size:400;not null;default:''" json:"last_message_preview"`
	CreatedAt                    time.Time           `json:"created_at"`
	UpdatedAt                    time.Time           `gorm:"index:idx_chat_thread_status_updated,priority:2" json:"updated_at"`
	Metadata                     datatypes.JSONMap   `json:"metadata"`
	Participants                 []Participant       `gorm:"foreignKey:ThreadID;constraint:OnDelete:CASCADE" json:"-"`
	Messages                     []Message           `gorm:"foreignKey:ThreadID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Thread) TableName() string { return "chat_threads" }

// RoleOf 根据用户 ID 推导角色；不属于会话双方时返回 false
func (t *Thread) RoleOf(userID int64) (Role, bool) {
	switch userID {
	case t.BuyerID:
		return RoleBuyer, true
	case t.SellerID:
		return RoleSeller, true
	}
	return "", false
}

// ListingChanges 返回快照与当前会话缓存不一致的字段
func (t *Thread) ListingChanges(listing ListingSnapshot, sellerID int64) map[string]any {
	changes := map[string]any{}
	if t.SellerID != sellerID {
		changes["seller_id"] = sellerID
	}
	if t.ListingTitle != listing.Title {
		changes["listing_title"] = listing.Title
	}
	if !sameAmount(t.ListingPriceAmount, listing.PriceAmount) {
		changes["listing_price_amount"] = listing.PriceAmount
	}
	if t.ListingPriceCurrency != listing.PriceCurrency {
		changes["listing_price_currency"] = listing.PriceCurrency
	}
	if t.ListingThumbnailURL != listing.ThumbnailURL {
		changes["listing_thumbnail_url"] = listing.ThumbnailURL
	}
	return changes
}

// ApplyListing 把快照写回内存中的会话
func (t *Thread) ApplyListing(listing ListingSnapshot, sellerID int64) {
	t.SellerID = sellerID
	t.ListingTitle = listing.Title
	t.ListingPriceAmount = listing.PriceAmount
	t.ListingPriceCurrency = listing.PriceCurrency
	t.ListingThumbnailURL = listing.ThumbnailURL
}

func sameAmount(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Truncate 按字符截断，避免切断多字节字符
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
