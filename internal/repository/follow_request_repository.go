package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/village/internal/model"
)

// FollowRequestRepository 关注申请（follow_requests）的唯一写入方
type FollowRequestRepository interface {
	WithTx(tx *gorm.DB) FollowRequestRepository
	Create(ctx context.Context, req *model.FollowRequest) error
	// Get 按 ID 加锁读取（包含已归档的申请）；不存在返回 nil, nil
	Get(ctx context.Context, id string) (*model.FollowRequest, error)
	// FindPair 按有序对加锁读取（包含已归档的申请）；不存在返回 nil, nil
	FindPair(ctx context.Context, requesterID, requesteeID string) (*model.FollowRequest, error)
	UpdateStatus(ctx context.Context, id string, status model.RequestStatus) error
	// Archive 写入终态并软删除
	Archive(ctx context.Context, id string, status model.RequestStatus) error
	// Delete 物理删除
	Delete(ctx context.Context, id string) error
	ListIncoming(ctx context.Context, requesteeID string, offset, limit int) ([]*model.FollowRequest, error)
}

type followRequestRepository struct {
	db *gorm.DB
}

func NewFollowRequestRepository(db *gorm.DB) FollowRequestRepository {
	return &followRequestRepository{db: db}
}

func (r *followRequestRepository) WithTx(tx *gorm.DB) FollowRequestRepository {
	return &followRequestRepository{db: tx}
}

func (r *followRequestRepository) Create(ctx context.Context, req *model.FollowRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *followRequestRepository) Get(ctx context.Context, id string) (*model.FollowRequest, error) {
	var req model.FollowRequest
	err := r.db.WithContext(ctx).Unscoped().
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&req).Error
	return orNil(&req, err)
}

func (r *followRequestRepository) FindPair(ctx context.Context, requesterID, requesteeID string) (*model.FollowRequest, error) {
	var req model.FollowRequest
	err := r.db.WithContext(ctx).Unscoped().
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("requester_id = ? AND requestee_id = ?", requesterID, requesteeID).
		Take(&req).Error
	return orNil(&req, err)
}

func (r *followRequestRepository) UpdateStatus(ctx context.Context, id string, status model.RequestStatus) error {
	return r.db.WithContext(ctx).
		Model(&model.FollowRequest{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *followRequestRepository) Archive(ctx context.Context, id string, status model.RequestStatus) error {
	db := r.db.WithContext(ctx)
	if err := db.Model(&model.FollowRequest{}).Where("id = ?", id).Update("status", status).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&model.FollowRequest{}).Error
}

func (r *followRequestRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Unscoped().Where("id = ?", id).Delete(&model.FollowRequest{}).Error
}

func (r *followRequestRepository) ListIncoming(ctx context.Context, requesteeID string, offset, limit int) ([]*model.FollowRequest, error) {
	var res []*model.FollowRequest
	err := r.db.WithContext(ctx).
		Where("requestee_id = ? AND status = ?", requesteeID, model.RequestPending).
		Order("created_at DESC, id").
		Offset(offset).Limit(limit).
		Find(&res).Error
	return res, err
}

func orNil[T any](v *T, err error) (*T, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}
