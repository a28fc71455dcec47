package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/village/internal/model"
)

// ProfileRepository 资料目录只读视图；Save 仅供外部资料服务同步与测试数据填充
type ProfileRepository interface {
	WithTx(tx *gorm.DB) ProfileRepository
	// Get 不存在返回 nil, nil
	Get(ctx context.Context, id string) (*model.Profile, error)
	GetPublicProfile(ctx context.Context, id string) (*model.PublicProfile, error)
	GetMany(ctx context.Context, ids []string) (map[string]*model.Profile, error)
	Save(ctx context.Context, p *model.Profile) error
}

type profileRepository struct{ db *gorm.DB }

func NewProfileRepository(db *gorm.DB) ProfileRepository { return &profileRepository{db: db} }

func (r *profileRepository) WithTx(tx *gorm.DB) ProfileRepository { return &profileRepository{db: tx} }

func (r *profileRepository) Get(ctx context.Context, id string) (*model.Profile, error) {
	var p model.Profile
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&p).Error
	return orNil(&p, err)
}

func (r *profileRepository) GetPublicProfile(ctx context.Context, id string) (*model.PublicProfile, error) {
	p, err := r.Get(ctx, id)
	if err != nil || p == nil {
		return nil, err
	}
	pub := p.Public()
	return &pub, nil
}

func (r *profileRepository) GetMany(ctx context.Context, ids []string) (map[string]*model.Profile, error) {
	out := make(map[string]*model.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []*model.Profile
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, p := range rows {
		out[p.ID] = p
	}
	return out, nil
}

func (r *profileRepository) Save(ctx context.Context, p *model.Profile) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"full_name", "username", "avatar_url", "privacy_setting", "area", "is_community_leader", "updated_at"}),
	}).Create(p).Error
}
