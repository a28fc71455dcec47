package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/village/internal/identity"
	"github.com/d60-Lab/village/internal/model"
)

// ContactMatchRow 一个被命中的账号
type ContactMatchRow struct {
	UserID                 string
	MatchedIdentifierCount int
}

// ContactRepository 账号标识摘要与临时通讯录批次
type ContactRepository interface {
	WithTx(tx *gorm.DB) ContactRepository
	// RegisterIdentifiers 保存账号自身的标识摘要（幂等）
	RegisterIdentifiers(ctx context.Context, userID string, ids []identity.Hashed) error
	// InsertBatch 写入一次匹配请求提交的摘要
	InsertBatch(ctx context.Context, batchID, ownerID string, ids []identity.Hashed) error
	// MatchBatch 将批次与所有账号标识做连接，排除提交者本人
	MatchBatch(ctx context.Context, batchID, ownerID string) ([]ContactMatchRow, error)
	DeleteBatch(ctx context.Context, batchID string) (int64, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

type contactRepository struct{ db *gorm.DB }

func NewContactRepository(db *gorm.DB) ContactRepository { return &contactRepository{db: db} }

func (r *contactRepository) WithTx(tx *gorm.DB) ContactRepository { return &contactRepository{db: tx} }

func (r *contactRepository) RegisterIdentifiers(ctx context.Context, userID string, ids []identity.Hashed) error {
	if len(ids) == 0 {
		return nil
	}
	rows := make([]model.AccountIdentifier, 0, len(ids))
	for _, h := range ids {
		rows = append(rows, model.AccountIdentifier{
			ID:               uuid.New().String(),
			UserID:           userID,
			HashedIdentifier: h.Digest,
			IdentifierType:   h.Type,
		})
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

func (r *contactRepository) InsertBatch(ctx context.Context, batchID, ownerID string, ids []identity.Hashed) error {
	if len(ids) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]model.HashedContact, 0, len(ids))
	for _, h := range ids {
		rows = append(rows, model.HashedContact{
			ID:               uuid.New().String(),
			BatchID:          batchID,
			OwnerUserID:      ownerID,
			HashedIdentifier: h.Digest,
			IdentifierType:   h.Type,
			CreatedAt:        now,
		})
	}
	return r.db.WithContext(ctx).CreateInBatches(&rows, 500).Error
}

func (r *contactRepository) MatchBatch(ctx context.Context, batchID, ownerID string) ([]ContactMatchRow, error) {
	var rows []ContactMatchRow
	err := r.db.WithContext(ctx).
		Table("hashed_contacts AS hc").
		Select("ai.user_id AS user_id, COUNT(DISTINCT ai.id) AS matched_identifier_count").
		Joins("JOIN account_identifiers AS ai ON ai.hashed_identifier = hc.hashed_identifier").
		Where("hc.batch_id = ? AND ai.user_id <> ?", batchID, ownerID).
		Group("ai.user_id").
		Scan(&rows).Error
	return rows, err
}

func (r *contactRepository) DeleteBatch(ctx context.Context, batchID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("batch_id = ?", batchID).Delete(&model.HashedContact{})
	return res.RowsAffected, res.Error
}

func (r *contactRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", before).Delete(&model.HashedContact{})
	return res.RowsAffected, res.Error
}
