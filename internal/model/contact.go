package model

import "time"

// IdentifierType 联系方式类型
type IdentifierType string

const (
	IdentifierEmail IdentifierType = "email"
	IdentifierPhone IdentifierType = "phone"
)

func (t IdentifierType) Valid() bool {
	return t == IdentifierEmail || t == IdentifierPhone
}

// AccountIdentifier 账号自身联系方式的摘要（注册时由服务端计算，只存摘要）
type AccountIdentifier struct {
	ID               string         `gorm:"primaryKey;type:varchar(36)"`
	UserID           string         `gorm:"type:varchar(36);uniqueIndex:ux_account_identifier;not null"`
	HashedIdentifier string         `gorm:"type:char(64);uniqueIndex:ux_account_identifier;index:idx_account_identifier_hash;not null"`
	IdentifierType   IdentifierType `gorm:"type:varchar(8);uniqueIndex:ux_account_identifier;not null"`
	CreatedAt        time.Time
}

func (AccountIdentifier) TableName() string { return "account_identifiers" }

// HashedContact 用户提交的通讯录摘要（临时数据，匹配完成后清理）
type HashedContact struct {
	ID               string         `gorm:"primaryKey;type:varchar(36)"`
	BatchID          string         `gorm:"type:varchar(36);index:idx_contact_batch;not null"`
	OwnerUserID      string         `gorm:"type:varchar(36);index;not null"`
	HashedIdentifier string         `gorm:"type:char(64);index:idx_contact_hash;not null"`
	IdentifierType   IdentifierType `gorm:"type:varchar(8);not null"`
	CreatedAt        time.Time      `gorm:"index"`
}

func (HashedContact) TableName() string { return "hashed_contacts" }
