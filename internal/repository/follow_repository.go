package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/village/internal/model"
)

// FollowRepository 关注边（follow_edges）的唯一写入方
type FollowRepository interface {
	WithTx(tx *gorm.DB) FollowRepository
	// Create 建立关注边；已存在时返回 created=false
	Create(ctx context.Context, followerID, followingID string) (created bool, err error)
	// Delete 删除关注边；不存在时返回 deleted=false
	Delete(ctx context.Context, followerID, followingID string) (deleted bool, err error)
	Exists(ctx context.Context, followerID, followingID string) (bool, error)
	ListFollowings(ctx context.Context, followerID string, offset, limit int) ([]*model.FollowEdge, error)
	ListFollowers(ctx context.Context, followingID string, offset, limit int) ([]*model.FollowEdge, error)
}

type followRepository struct {
	db *gorm.DB
}

func NewFollowRepository(db *gorm.DB) FollowRepository { return &followRepository{db: db} }

func (r *followRepository) WithTx(tx *gorm.DB) FollowRepository { return &followRepository{db: tx} }

func (r *followRepository) Create(ctx context.Context, followerID, followingID string) (bool, error) {
	e := &model.FollowEdge{ID: uuid.New().String(), FollowerID: followerID, FollowingID: followingID}
	// 幂等：重复关注不报错
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(e)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *followRepository) Delete(ctx context.Context, followerID, followingID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		Delete(&model.FollowEdge{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *followRepository) Exists(ctx context.Context, followerID, followingID string) (bool, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).
		Model(&model.FollowEdge{}).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

func (r *followRepository) ListFollowings(ctx context.Context, followerID string, offset, limit int) ([]*model.FollowEdge, error) {
	var res []*model.FollowEdge
	err := r.db.WithContext(ctx).
		Where("follower_id = ?", followerID).
		Order("created_at DESC, id").
		Offset(offset).Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *followRepository) ListFollowers(ctx context.Context, followingID string, offset, limit int) ([]*model.FollowEdge, error) {
	var res []*model.FollowEdge
	err := r.db.WithContext(ctx).
		Where("following_id = ?", followingID).
		Order("created_at DESC, id").
		Offset(offset).Limit(limit).
		Find(&res).Error
	return res, err
}
