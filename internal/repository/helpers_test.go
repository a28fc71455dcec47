package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/d60-Lab/village/internal/model"
	"github.com/d60-Lab/village/pkg/database"
)

func newTestDB(tb testing.TB) *gorm.DB {
	tb.Helper()
	db, err := database.OpenMemory()
	require.NoError(tb, err)
	return db
}

var seedEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// seedProfiles 创建 u000..u{n-1}，创建时间依次递增
func seedProfiles(tb testing.TB, db *gorm.DB, n int) []string {
	tb.Helper()
	repo := NewProfileRepository(db)
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = fmt.Sprintf("u%03d", i)
		require.NoError(tb, repo.Save(context.Background(), &model.Profile{
			ID:             ids[i],
			FullName:       fmt.Sprintf("User %03d", i),
			Username:       ids[i],
			PrivacySetting: model.PrivacyPublic,
			CreatedAt:      seedEpoch.Add(time.Duration(i) * time.Minute),
		}))
	}
	return ids
}
