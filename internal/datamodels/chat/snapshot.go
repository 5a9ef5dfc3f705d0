package chat

// ListingSnapshot 创建会话/消息时刻的商品快照，价格单位为分
type ListingSnapshot struct {
	ListingID     int64  `json:"listing_id"`
	Title         string `json:"title"`
	PriceAmount   *int64 `json:"price_amount"`
	PriceCurrency string `json:"price_currency"`
	ThumbnailURL  string `json:"thumbnail_url"`
}

// UserSnapshot 用户快照
type UserSnapshot struct {
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}
