package ratelimit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 单条 upsert 完成「过期则重置，否则自增」，避免读后写的竞态。
// postgres 与 sqlite (>= 3.35) 均支持 ON CONFLICT ... DO UPDATE ... RETURNING。
const incrementSQL = `
INSERT INTO rate_limit_windows (id, identifier, endpoint, request_type, window_start, request_count, updated_at)
VALUES (?, ?, ?, ?, ?, 1, ?)
ON CONFLICT (identifier, endpoint, request_type) DO UPDATE SET
    request_count = CASE WHEN rate_limit_windows.window_start <= ? THEN 1 ELSE rate_limit_windows.request_count + 1 END,
    window_start  = CASE WHEN rate_limit_windows.window_start <= ? THEN excluded.window_start ELSE rate_limit_windows.window_start END,
    updated_at    = excluded.updated_at
RETURNING request_count, window_start`

// GormStore 以 rate_limit_windows 表保存计数
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore { return &GormStore{db: db} }

func (s *GormStore) Increment(ctx context.Context, key Key, now time.Time, window time.Duration) (int, time.Time, error) {
	nowMs := now.UnixMilli()
	expiredAt := nowMs - window.Milliseconds()
	var row struct {
		RequestCount int
		WindowStart  int64
	}
	err := s.db.WithContext(ctx).Raw(incrementSQL,
		uuid.New().String(), key.Identifier, key.Endpoint, key.RequestType, nowMs, now,
		expiredAt, expiredAt,
	).Scan(&row).Error
	if err != nil {
		return 0, time.Time{}, err
	}
	return row.RequestCount, time.UnixMilli(row.WindowStart).UTC(), nil
}

// PurgeExpired 删除早于 before 的窗口，供定期清理使用
func (s *GormStore) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Exec("DELETE FROM rate_limit_windows WHERE window_start < ?", before.UnixMilli())
	return res.RowsAffected, res.Error
}
