package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/village/internal/apperr"
	"github.com/d60-Lab/village/internal/model"
	"github.com/d60-Lab/village/internal/ratelimit"
	"github.com/d60-Lab/village/internal/repository"
)

func TestSuggestSourceOrder(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.profile(t, "alice", inArea("Oakland"))
	b := f.profile(t, "bob")
	m1 := f.profile(t, "mia")
	m2 := f.profile(t, "max")
	l := f.profile(t, "lena", leader)
	n := f.profile(t, "nora", inArea("Oakland"))
	z := f.profile(t, "zed")
	d := f.profile(t, "dan", private)

	for _, e := range [][2]string{{a, b}, {b, m1}, {b, m2}, {b, l}} {
		_, err := f.connections.RequestFollow(ctx, as(e[0]), e[1])
		require.NoError(t, err)
	}
	// 被拒绝过的账号不再推荐
	res, err := f.connections.RequestFollow(ctx, as(a), d)
	require.NoError(t, err)
	_, err = f.connections.RespondToRequest(ctx, as(d), res.RequestID, ActionDeny)
	require.NoError(t, err)

	items, err := f.suggestions.Suggest(ctx, as(a), 10)
	require.NoError(t, err)

	got := make([]string, len(items))
	for i, it := range items {
		got[i] = it.CandidateUserID
	}
	// 二度关系按共同数、ID 排序；l 已在二度关系中出现，不再以带头人身份出现
	assert.Equal(t, []string{l, m2, m1, n, z}, got)
	assert.Equal(t, model.SuggestMutualConnections, items[0].SuggestionType)
	assert.Equal(t, model.SuggestLocationBased, items[3].SuggestionType)
	assert.Equal(t, model.SuggestSimilarInterests, items[4].SuggestionType)
	assert.Equal(t, 1, items[0].MutualConnectionCount)
	assert.Equal(t, 3001.0, items[0].RankScore)
	assert.Equal(t, "nora", items[3].Profile.Username)

	for i := 1; i < len(items); i++ {
		assert.LessOrEqual(t, items[i].RankScore, items[i-1].RankScore)
	}
}

func TestSuggestLeadersBeforeArea(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.profile(t, "alice", inArea("Berkeley"))
	n := f.profile(t, "nina", inArea("Berkeley"))
	l := f.profile(t, "lou", leader)

	items, err := f.suggestions.Suggest(ctx, as(a), 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, l, items[0].CandidateUserID)
	assert.Equal(t, 2000.0, items[0].RankScore)

	items, err = f.suggestions.Suggest(ctx, as(a), 5)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, n, items[1].CandidateUserID)
	assert.Equal(t, model.SuggestLocationBased, items[1].SuggestionType)
}

func TestSuggestLimitAndAuth(t *testing.T) {
	policies := defaultPolicies()
	policies[ratelimit.TypeSuggestions] = ratelimit.Policy{MaxRequests: 3, Window: 10 * time.Minute}
	f := newFixture(t, policies)
	ctx := context.Background()
	a := f.profile(t, "alice")
	for _, u := range []string{"u1", "u2", "u3"} {
		f.profile(t, u)
	}

	_, err := f.suggestions.Suggest(ctx, Actor{}, 5)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	items, err := f.suggestions.Suggest(ctx, as(a), 0)
	require.NoError(t, err)
	assert.Len(t, items, 1, "limit is clamped to at least one")

	items, err = f.suggestions.Suggest(ctx, as(a), 500)
	require.NoError(t, err)
	assert.Len(t, items, 3)

	_, err = f.suggestions.Suggest(ctx, as(a), 5)
	require.NoError(t, err)
	_, err = f.suggestions.Suggest(ctx, as(a), 5)
	assert.ErrorIs(t, err, apperr.ErrRateLimitExceeded)
}

// interleavingRepo 在计算共同关注数时插入一次外部变更
type interleavingRepo struct {
	repository.SuggestionRepository
	during func()
}

func (r *interleavingRepo) MutualCounts(ctx context.Context, userID string, ids []string) (map[string]int, error) {
	if r.during != nil {
		r.during()
		r.during = nil
	}
	return r.SuggestionRepository.MutualCounts(ctx, userID, ids)
}

func TestSuggestDoesNotCacheAcrossConcurrentFollow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.profile(t, "alice")
	b := f.profile(t, "bob")

	repo := &interleavingRepo{SuggestionRepository: repository.NewSuggestionRepository(f.db)}
	svc := NewSuggestionService(repo, f.profiles, f.cache, OpenGate(), 20)
	repo.during = func() {
		_, err := f.connections.RequestFollow(ctx, as(a), b)
		require.NoError(t, err)
	}

	items, err := svc.Suggest(ctx, as(a), 5)
	require.NoError(t, err)
	require.Len(t, items, 1, "computed before the follow landed")
	assert.False(t, f.mr.Exists("suggestions:"+a), "stale page must not be written back")

	st, err := f.connections.Status(ctx, as(a), b)
	require.NoError(t, err)
	assert.Equal(t, PairFollowing, st)

	items, err = svc.Suggest(ctx, as(a), 5)
	require.NoError(t, err)
	assert.Empty(t, items)
}
