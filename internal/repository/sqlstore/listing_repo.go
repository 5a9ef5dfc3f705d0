package sqlstore

import (
	"context"

	"gorm.io/gorm"

	"github.com/example/sailchat/internal/datamodels/listing"
)

type listingRepo struct {
	db *gorm.DB
}

// NewListingRepository 创建商品只读仓储
func NewListingRepository(db *gorm.DB) listing.Repository {
	return &listingRepo{db: db}
}

func (r *listingRepo) GetByID(ctx context.Context, id int64) (*listing.Listing, error) {
	var l listing.Listing
	if err := r.db.WithContext(ctx).First(&l, id).Error; err != nil {
		return nil, translate(err)
	}
	return &l, nil
}

func (r *listingRepo) StatusByIDs(ctx context.Context, ids []int64) (map[int64]listing.Status, error) {
	out := make(map[int64]listing.Status, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []listing.Listing
	if err := r.db.WithContext(ctx).
		Select("id", "status").
		Where("id IN ?", ids).
		Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	for _, row := range rows {
		out[row.ID] = row.Status
	}
	return out, nil
}
