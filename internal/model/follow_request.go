package model

import (
	"time"

	"gorm.io/gorm"
)

// RequestStatus 关注申请状态
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestDenied   RequestStatus = "denied"
)

// FollowRequest 关注申请（私密账号需要对方审批）
// 每个有序对 (requester, requestee) 最多一行；被拒绝的行在重新申请时被替换。
// 审批通过的申请转为关注边后软删除，仅保留用于识别重复审批。
type FollowRequest struct {
	ID          string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	RequesterID string         `gorm:"type:varchar(36);uniqueIndex:ux_request_pair;not null" json:"requester_id"`
	RequesteeID string         `gorm:"type:varchar(36);uniqueIndex:ux_request_pair;index:idx_request_requestee_status;not null" json:"requestee_id"`
	Status      RequestStatus  `gorm:"type:varchar(16);index:idx_request_requestee_status;not null;default:'pending'" json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (FollowRequest) TableName() string { return "follow_requests" }
