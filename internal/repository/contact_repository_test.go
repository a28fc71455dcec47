package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/village/internal/identity"
	"github.com/d60-Lab/village/internal/model"
)

func mustHash(t *testing.T, kind model.IdentifierType, raw string) identity.Hashed {
	t.Helper()
	h, err := identity.Hash(kind, raw)
	require.NoError(t, err)
	return h
}

func TestContactRepositoryMatchBatch(t *testing.T) {
	db := newTestDB(t)
	repo := NewContactRepository(db)
	ctx := context.Background()

	email := mustHash(t, model.IdentifierEmail, "c@example.com")
	phone := mustHash(t, model.IdentifierPhone, "5551234567")
	other := mustHash(t, model.IdentifierEmail, "d@example.com")
	own := mustHash(t, model.IdentifierEmail, "me@example.com")

	require.NoError(t, repo.RegisterIdentifiers(ctx, "c", []identity.Hashed{email, phone}))
	require.NoError(t, repo.RegisterIdentifiers(ctx, "c", []identity.Hashed{email}), "re-registering is idempotent")
	require.NoError(t, repo.RegisterIdentifiers(ctx, "d", []identity.Hashed{other}))
	require.NoError(t, repo.RegisterIdentifiers(ctx, "me", []identity.Hashed{own}))

	require.NoError(t, repo.InsertBatch(ctx, "batch-1", "me", []identity.Hashed{email, phone, own}))
	require.NoError(t, repo.InsertBatch(ctx, "batch-2", "x", []identity.Hashed{other}))

	rows, err := repo.MatchBatch(ctx, "batch-1", "me")
	require.NoError(t, err)
	require.Len(t, rows, 1, "owner and other batches are excluded")
	assert.Equal(t, "c", rows[0].UserID)
	assert.Equal(t, 2, rows[0].MatchedIdentifierCount)

	n, err := repo.DeleteBatch(ctx, "batch-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	var left int64
	require.NoError(t, db.Model(&model.HashedContact{}).Count(&left).Error)
	assert.Equal(t, int64(1), left)

	n, err = repo.DeleteOlderThan(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestContactRepositoryEmptyInput(t *testing.T) {
	repo := NewContactRepository(newTestDB(t))
	ctx := context.Background()
	require.NoError(t, repo.RegisterIdentifiers(ctx, "a", nil))
	require.NoError(t, repo.InsertBatch(ctx, "b", "a", nil))
	rows, err := repo.MatchBatch(ctx, "b", "a")
	require.NoError(t, err)
	assert.Empty(t, rows)
}
