package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/village/internal/model"
)

func TestSuggestionRepositoryMutualCandidates(t *testing.T) {
	db := newTestDB(t)
	ids := seedProfiles(t, db, 6)
	follows := NewFollowRepository(db)
	repo := NewSuggestionRepository(db)
	ctx := context.Background()
	me, f1, f2, c1, c2, c3 := ids[0], ids[1], ids[2], ids[3], ids[4], ids[5]

	edges := [][2]string{
		{me, f1}, {me, f2},
		{f1, c1}, {f2, c1}, // c1: two mutuals
		{f1, c2},           // c2: one mutual
		{f1, me},           // me never suggested to myself
		{f2, f1},           // f1 already followed
		{f1, c3},
	}
	for _, e := range edges {
		_, err := follows.Create(ctx, e[0], e[1])
		require.NoError(t, err)
	}
	// c3 has a denied request from me
	require.NoError(t, db.Create(&model.FollowRequest{ID: uuid.New().String(), RequesterID: me, RequesteeID: c3, Status: model.RequestDenied}).Error)

	rows, err := repo.MutualCandidates(ctx, me, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, MutualRow{UserID: c1, MutualCount: 2}, rows[0])
	assert.Equal(t, MutualRow{UserID: c2, MutualCount: 1}, rows[1])

	counts, err := repo.MutualCounts(ctx, me, []string{c1, c2, c3, ids[0]})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{c1: 2, c2: 1}, counts)
}

func TestSuggestionRepositoryProfileSources(t *testing.T) {
	db := newTestDB(t)
	ids := seedProfiles(t, db, 5)
	ctx := context.Background()
	require.NoError(t, db.Model(&model.Profile{}).Where("id IN ?", []string{ids[1], ids[2]}).Update("is_community_leader", true).Error)
	require.NoError(t, db.Model(&model.Profile{}).Where("id IN ?", []string{ids[0], ids[3], ids[4]}).Update("area", "Oakland").Error)
	require.NoError(t, db.Create(&model.FollowRequest{ID: uuid.New().String(), RequesterID: ids[0], RequesteeID: ids[2], Status: model.RequestPending}).Error)
	_, err := NewFollowRepository(db).Create(ctx, ids[0], ids[4])
	require.NoError(t, err)

	repo := NewSuggestionRepository(db)

	leaders, err := repo.CommunityLeaders(ctx, ids[0], 10)
	require.NoError(t, err)
	require.Len(t, leaders, 1, "pending outgoing request excludes the leader")
	assert.Equal(t, ids[1], leaders[0].ID)

	local, err := repo.SameArea(ctx, ids[0], "Oakland", 10)
	require.NoError(t, err)
	require.Len(t, local, 1, "self and followed are excluded")
	assert.Equal(t, ids[3], local[0].ID)

	none, err := repo.SameArea(ctx, ids[0], "", 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	newest, err := repo.Newest(ctx, ids[0], 2)
	require.NoError(t, err)
	require.Len(t, newest, 2)
	assert.Equal(t, ids[3], newest[0].ID)
	assert.Equal(t, ids[1], newest[1].ID)
}
