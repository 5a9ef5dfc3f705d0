package snapshot

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/sailchat/internal/datamodels/chat"
	"github.com/example/sailchat/internal/datamodels/listing"
	"github.com/example/sailchat/internal/datamodels/user"
)

// MaxBulkListings 单次批量查询商品状态的上限
const MaxBulkListings = 100

// ErrTooManyListings 批量查询超过上限
var ErrTooManyListings = fmt.Errorf("snapshot: at most %d listing ids per request", MaxBulkListings)

// UserCache 用户快照缓存，未命中时返回 false
type UserCache interface {
	GetUser(ctx context.Context, id int64) (chat.UserSnapshot, bool, error)
	SetUser(ctx context.Context, s chat.UserSnapshot) error
}

// Resolver 把商品/用户的实时记录转换为写入时刻的快照
type Resolver struct {
	listings listing.Repository
	users    user.Repository
	cache    UserCache
}

// NewResolver 创建快照解析器；cache 可以为 nil
func NewResolver(listings listing.Repository, users user.Repository, cache UserCache) *Resolver {
	return &Resolver{listings: listings, users: users, cache: cache}
}

// Listing 返回在售商品的快照以及卖家 ID
func (r *Resolver) Listing(ctx context.Context, id int64) (chat.ListingSnapshot, int64, error) {
	l, err := r.listings.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			return chat.ListingSnapshot{}, 0, chat.ErrListingUnavailable
		}
		return chat.ListingSnapshot{}, 0, err
	}
	if l.Status != listing.StatusActive {
		return chat.ListingSnapshot{}, 0, chat.ErrListingUnavailable
	}
	return ListingSnapshotOf(l), l.UserID, nil
}

// ListingSnapshotOf 商品记录转快照
func ListingSnapshotOf(l *listing.Listing) chat.ListingSnapshot {
	return chat.ListingSnapshot{
		ListingID:     l.ID,
		Title:         l.Title,
		PriceAmount:   l.PriceAmount,
		PriceCurrency: l.PriceCurrency,
		ThumbnailURL:  l.ThumbnailURL,
	}
}

// User 返回用户快照，优先读缓存；缓存故障只记日志
func (r *Resolver) User(ctx context.Context, id int64) (chat.UserSnapshot, error) {
	if r.cache != nil {
		s, ok, err := r.cache.GetUser(ctx, id)
		if err != nil {
			zap.L().Warn("user snapshot cache read failed", zap.Int64("user_id", id), zap.Error(err))
		} else if ok {
			return s, nil
		}
	}

	u, err := r.users.GetByID(ctx, id)
	if err != nil {
		return chat.UserSnapshot{}, err
	}
	s := UserSnapshotOf(u)
	if r.cache != nil {
		if err := r.cache.SetUser(ctx, s); err != nil {
			zap.L().Warn("user snapshot cache write failed", zap.Int64("user_id", id), zap.Error(err))
		}
	}
	return s, nil
}

// UserSnapshotOf 用户记录转快照，昵称为空时使用用户名
func UserSnapshotOf(u *user.User) chat.UserSnapshot {
	return chat.UserSnapshot{
		UserID:      u.ID,
		DisplayName: u.Name(),
		AvatarURL:   u.AvatarURL,
	}
}

// BulkListingStatus 查询至多 100 个商品的可用性
func (r *Resolver) BulkListingStatus(ctx context.Context, ids []int64) (map[int64]chat.ListingAvailability, error) {
	if len(ids) > MaxBulkListings {
		return nil, ErrTooManyListings
	}
	return r.Availability(ctx, ids)
}

// Availability 实现 chat.AvailabilityLookup：不存在 → deleted，active → available，其余 → unavailable
func (r *Resolver) Availability(ctx context.Context, ids []int64) (map[int64]chat.ListingAvailability, error) {
	out := make(map[int64]chat.ListingAvailability, len(ids))
	for start := 0; start < len(ids); start += MaxBulkListings {
		end := start + MaxBulkListings
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]
		statuses, err := r.listings.StatusByIDs(ctx, batch)
		if err != nil {
			return nil, err
		}
		for _, id := range batch {
			status, ok := statuses[id]
			switch {
			case !ok:
				out[id] = chat.ListingDeleted
			case status == listing.StatusActive:
				out[id] = chat.ListingAvailable
			default:
				out[id] = chat.ListingUnavailable
			}
		}
	}
	return out, nil
}
