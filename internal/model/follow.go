package model

import (
	"time"
)

// FollowEdge 关注关系（A 关注 B）
type FollowEdge struct {
	ID          string `gorm:"primaryKey;type:varchar(36)"`
	FollowerID  string `gorm:"type:varchar(36);index:idx_edge_follower;uniqueIndex:ux_edge_pair;not null"`
	FollowingID string `gorm:"type:varchar(36);index:idx_edge_following;uniqueIndex:ux_edge_pair;not null"`
	// 复合唯一键，避免重复关注
	// ux_edge_pair = (follower_id, following_id)
	CreatedAt time.Time
}

func (FollowEdge) TableName() string { return "follow_edges" }
