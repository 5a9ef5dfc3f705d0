package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/example/sailchat/internal/datamodels/chat"
)

const availabilityBatchSize = 200

// SyncResult 商品可用性同步结果
type SyncResult struct {
	Listings int `json:"synced"`
	Updated  int `json:"updated"`
}

// SyncListingAvailability 刷新会话缓存的商品可用性。userID 为 0 时处理全部会话，
// 否则只处理该用户未删除的会话。所有被检查的会话都会更新 checked_at。
func (s *ChatService) SyncListingAvailability(ctx context.Context, userID int64, lookup chat.AvailabilityLookup) (SyncResult, error) {
	var (
		result  SyncResult
		afterID string
		seen    = map[int64]struct{}{}
	)
	for {
		n, err := s.syncBatch(ctx, userID, lookup, &afterID, seen, &result)
		if err != nil {
			return result, s.observe(err)
		}
		if n < availabilityBatchSize {
			break
		}
	}
	result.Listings = len(seen)
	zap.L().Info("listing availability synced",
		zap.Int64("user_id", userID), zap.Int("listings", result.Listings), zap.Int("updated", result.Updated))
	return result, nil
}

func (s *ChatService) syncBatch(ctx context.Context, userID int64, lookup chat.AvailabilityLookup, afterID *string, seen map[int64]struct{}, result *SyncResult) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	threads, err := s.repo.ListAvailabilityTargets(ctx, userID, *afterID, availabilityBatchSize)
	if err != nil || len(threads) == 0 {
		return 0, err
	}
	*afterID = threads[len(threads)-1].ID

	ids := make([]int64, 0, len(threads))
	batchSeen := map[int64]struct{}{}
	for _, t := range threads {
		if _, ok := batchSeen[t.ListingID]; !ok {
			batchSeen[t.ListingID] = struct{}{}
			seen[t.ListingID] = struct{}{}
			ids = append(ids, t.ListingID)
		}
	}
	availability, err := lookup.Availability(ctx, ids)
	if err != nil {
		return 0, err
	}

	groups := map[chat.ListingAvailability][]string{}
	for _, t := range threads {
		a, ok := availability[t.ListingID]
		if !ok {
			a = chat.ListingDeleted
		}
		if t.ListingAvailability != a {
			result.Updated++
		}
		groups[a] = append(groups[a], t.ID)
	}
	now := s.now()
	for a, threadIDs := range groups {
		if _, err := s.repo.UpdateAvailability(ctx, threadIDs, a, now); err != nil {
			return 0, err
		}
	}
	return len(threads), nil
}
