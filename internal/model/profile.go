package model

import "time"

// Privacy 资料可见性
type Privacy string

const (
	PrivacyPublic  Privacy = "public"
	PrivacyPrivate Privacy = "private"
)

// Profile 资料目录的只读模型（资料 CRUD 由外部服务维护）
type Profile struct {
	ID                string    `gorm:"primaryKey;type:varchar(36)"`
	FullName          string    `gorm:"type:varchar(128)"`
	Username          string    `gorm:"type:varchar(64);uniqueIndex;not null"`
	AvatarURL         string    `gorm:"type:varchar(512)"`
	PrivacySetting    Privacy   `gorm:"type:varchar(16);not null;default:'public'"`
	Area              string    `gorm:"type:varchar(128);index"`
	IsCommunityLeader bool      `gorm:"index;not null;default:false"`
	CreatedAt         time.Time `gorm:"index"`
	UpdatedAt         time.Time
}

func (Profile) TableName() string { return "profiles" }

// PublicProfile 对外可见字段，核心逻辑只读取这些
type PublicProfile struct {
	UserID         string  `json:"user_id"`
	FullName       string  `json:"full_name"`
	Username       string  `json:"username"`
	AvatarURL      string  `json:"avatar_url"`
	PrivacySetting Privacy `json:"privacy_setting"`
}

func (p *Profile) Public() PublicProfile {
	return PublicProfile{
		UserID:         p.ID,
		FullName:       p.FullName,
		Username:       p.Username,
		AvatarURL:      p.AvatarURL,
		PrivacySetting: p.PrivacySetting,
	}
}
