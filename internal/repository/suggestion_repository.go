package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/village/internal/model"
)

// MutualRow 二度关系候选及共同关注数
type MutualRow struct {
	UserID      string
	MutualCount int
}

// SuggestionRepository 推荐候选的只读查询。
// 所有查询都排除：本人、已关注、向其发出过待处理或被拒绝申请的账号。
type SuggestionRepository interface {
	MutualCandidates(ctx context.Context, userID string, limit int) ([]MutualRow, error)
	MutualCounts(ctx context.Context, userID string, candidateIDs []string) (map[string]int, error)
	CommunityLeaders(ctx context.Context, userID string, limit int) ([]*model.Profile, error)
	SameArea(ctx context.Context, userID, area string, limit int) ([]*model.Profile, error)
	Newest(ctx context.Context, userID string, limit int) ([]*model.Profile, error)
}

type suggestionRepository struct{ db *gorm.DB }

func NewSuggestionRepository(db *gorm.DB) SuggestionRepository { return &suggestionRepository{db: db} }

var blockedStatuses = []model.RequestStatus{model.RequestPending, model.RequestDenied}

// eligible 追加候选过滤条件，col 为候选用户 ID 所在列
func eligible(q *gorm.DB, col, userID string) *gorm.DB {
	return q.
		Where(col+" <> ?", userID).
		Where(col+" NOT IN (SELECT following_id FROM follow_edges WHERE follower_id = ?)", userID).
		Where(col+" NOT IN (SELECT requestee_id FROM follow_requests WHERE requester_id = ? AND status IN ?)", userID, blockedStatuses)
}

func (r *suggestionRepository) mutualQuery(ctx context.Context, userID string) *gorm.DB {
	q := r.db.WithContext(ctx).
		Table("follow_edges AS f1").
		Select("f2.following_id AS user_id, COUNT(DISTINCT f1.following_id) AS mutual_count").
		Joins("JOIN follow_edges AS f2 ON f2.follower_id = f1.following_id").
		Joins("JOIN profiles AS p ON p.id = f2.following_id").
		Where("f1.follower_id = ?", userID)
	return eligible(q, "f2.following_id", userID)
}

func (r *suggestionRepository) MutualCandidates(ctx context.Context, userID string, limit int) ([]MutualRow, error) {
	var rows []MutualRow
	err := r.mutualQuery(ctx, userID).
		Group("f2.following_id").
		Order("mutual_count DESC, f2.following_id ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

func (r *suggestionRepository) MutualCounts(ctx context.Context, userID string, candidateIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(candidateIDs))
	if len(candidateIDs) == 0 {
		return out, nil
	}
	var rows []MutualRow
	err := r.mutualQuery(ctx, userID).
		Where("f2.following_id IN ?", candidateIDs).
		Group("f2.following_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.UserID] = row.MutualCount
	}
	return out, nil
}

func (r *suggestionRepository) profiles(ctx context.Context, userID string) *gorm.DB {
	return eligible(r.db.WithContext(ctx).Model(&model.Profile{}), "profiles.id", userID)
}

func (r *suggestionRepository) CommunityLeaders(ctx context.Context, userID string, limit int) ([]*model.Profile, error) {
	var res []*model.Profile
	err := r.profiles(ctx, userID).
		Where("profiles.is_community_leader = ?", true).
		Order("profiles.username ASC, profiles.id ASC").
		Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *suggestionRepository) SameArea(ctx context.Context, userID, area string, limit int) ([]*model.Profile, error) {
	if area == "" {
		return nil, nil
	}
	var res []*model.Profile
	err := r.profiles(ctx, userID).
		Where("profiles.area = ?", area).
		Order("profiles.username ASC, profiles.id ASC").
		Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *suggestionRepository) Newest(ctx context.Context, userID string, limit int) ([]*model.Profile, error) {
	var res []*model.Profile
	err := r.profiles(ctx, userID).
		Order("profiles.created_at DESC, profiles.id ASC").
		Limit(limit).
		Find(&res).Error
	return res, err
}
