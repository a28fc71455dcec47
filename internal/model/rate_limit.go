package model

import "time"

// RateLimitWindow 固定窗口计数（window_start 为毫秒时间戳，便于跨方言比较）
type RateLimitWindow struct {
	ID           string `gorm:"primaryKey;type:varchar(36)"`
	Identifier   string `gorm:"type:varchar(128);uniqueIndex:ux_rate_limit_key;not null"`
	Endpoint     string `gorm:"type:varchar(64);uniqueIndex:ux_rate_limit_key;not null"`
	RequestType  string `gorm:"type:varchar(64);uniqueIndex:ux_rate_limit_key;not null"`
	WindowStart  int64  `gorm:"not null"`
	RequestCount int    `gorm:"not null;default:0"`
	UpdatedAt    time.Time
}

func (RateLimitWindow) TableName() string { return "rate_limit_windows" }
