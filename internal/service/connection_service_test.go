package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/d60-Lab/village/internal/apperr"
	"github.com/d60-Lab/village/internal/cache"
	"github.com/d60-Lab/village/internal/model"
	"github.com/d60-Lab/village/internal/ratelimit"
	"github.com/d60-Lab/village/internal/repository"
)

func TestPrivateRequestApproveFlow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.profile(t, "alice")
	b := f.profile(t, "bob", private)
	c := f.profile(t, "carol")

	// b 关注 c，使 c 成为 a 的二度候选
	_, err := f.connections.RequestFollow(ctx, as(b), c)
	require.NoError(t, err)

	res, err := f.connections.RequestFollow(ctx, as(a), b)
	require.NoError(t, err)
	assert.Equal(t, StatusRequestPending, res.Status)
	require.NotEmpty(t, res.RequestID)

	st, err := f.connections.Status(ctx, as(a), b)
	require.NoError(t, err)
	assert.Equal(t, PairPendingOutgoing, st)
	st, err = f.connections.Status(ctx, as(b), a)
	require.NoError(t, err)
	assert.Equal(t, PairPendingIncoming, st)

	incoming, err := f.connections.ListIncoming(ctx, as(b), 1, 10)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, a, incoming[0].RequesterID)

	out, err := f.connections.RespondToRequest(ctx, as(b), res.RequestID, ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, model.RequestApproved, out.Status)
	assert.Equal(t, a, out.RequesterID)

	st, err = f.connections.Status(ctx, as(a), b)
	require.NoError(t, err)
	assert.Equal(t, PairFollowing, st)

	following, err := f.connections.ListFollowing(ctx, a, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{b}, following)

	incoming, err = f.connections.ListIncoming(ctx, as(b), 1, 10)
	require.NoError(t, err)
	assert.Empty(t, incoming)

	items, err := f.suggestions.Suggest(ctx, as(a), 10)
	require.NoError(t, err)
	for _, it := range items {
		assert.NotEqual(t, b, it.CandidateUserID, "followed account is never suggested")
	}
	require.NotEmpty(t, items)
	assert.Equal(t, c, items[0].CandidateUserID)
	assert.Equal(t, model.SuggestMutualConnections, items[0].SuggestionType)

	_, err = f.connections.RespondToRequest(ctx, as(b), res.RequestID, ActionApprove)
	assert.ErrorIs(t, err, apperr.ErrAlreadyResolved)
}

func TestPublicTargetFollowsImmediately(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.profile(t, "alice")
	b := f.profile(t, "bob")

	res, err := f.connections.RequestFollow(ctx, as(a), b)
	require.NoError(t, err)
	assert.Equal(t, StatusFollowing, res.Status)
	assert.Empty(t, res.RequestID)

	var n int64
	require.NoError(t, f.db.Unscoped().Model(&model.FollowRequest{}).Count(&n).Error)
	assert.Zero(t, n, "no request row for public targets")

	// 已关注时再次请求是无副作用的成功
	res, err = f.connections.RequestFollow(ctx, as(a), b)
	require.NoError(t, err)
	assert.Equal(t, StatusFollowing, res.Status)
}

func TestDuplicatePendingRequest(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.profile(t, "alice")
	b := f.profile(t, "bob", private)

	_, err := f.connections.RequestFollow(ctx, as(a), b)
	require.NoError(t, err)
	_, err = f.connections.RequestFollow(ctx, as(a), b)
	assert.ErrorIs(t, err, apperr.ErrDuplicateRequest)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestRequestFollowValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.profile(t, "alice")

	_, err := f.connections.RequestFollow(ctx, as(a), a)
	assert.ErrorIs(t, err, apperr.ErrSelfTarget)

	_, err = f.connections.RequestFollow(ctx, Actor{}, a)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	_, err = f.connections.RequestFollow(ctx, as(a), "id-ghost")
	assert.ErrorIs(t, err, apperr.ErrProfileNotFound)
}

func TestRespondAuthorization(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.profile(t, "alice")
	b := f.profile(t, "bob", private)
	c := f.profile(t, "carol")

	res, err := f.connections.RequestFollow(ctx, as(a), b)
	require.NoError(t, err)

	_, err = f.connections.RespondToRequest(ctx, as(c), res.RequestID, ActionApprove)
	assert.ErrorIs(t, err, apperr.ErrNotAuthorized)
	_, err = f.connections.RespondToRequest(ctx, as(a), res.RequestID, ActionApprove)
	assert.ErrorIs(t, err, apperr.ErrNotAuthorized, "requester cannot approve their own request")

	st, err := f.connections.Status(ctx, as(a), b)
	require.NoError(t, err)
	assert.Equal(t, PairPendingOutgoing, st, "state unchanged")

	_, err = f.connections.RespondToRequest(ctx, as(b), res.RequestID, ResponseAction("maybe"))
	assert.ErrorIs(t, err, apperr.ErrInvalidAction)
	_, err = f.connections.RespondToRequest(ctx, as(b), "missing", ActionDeny)
	assert.ErrorIs(t, err, apperr.ErrRequestNotFound)
}

func TestDenyThenRequestAgain(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.profile(t, "alice")
	b := f.profile(t, "bob", private)

	res, err := f.connections.RequestFollow(ctx, as(a), b)
	require.NoError(t, err)
	_, err = f.connections.RespondToRequest(ctx, as(b), res.RequestID, ActionDeny)
	require.NoError(t, err)

	st, err := f.connections.Status(ctx, as(a), b)
	require.NoError(t, err)
	assert.Equal(t, PairDenied, st)

	_, err = f.connections.RespondToRequest(ctx, as(b), res.RequestID, ActionApprove)
	assert.ErrorIs(t, err, apperr.ErrAlreadyResolved)

	again, err := f.connections.RequestFollow(ctx, as(a), b)
	require.NoError(t, err)
	assert.Equal(t, StatusRequestPending, again.Status)
	assert.NotEqual(t, res.RequestID, again.RequestID)

	var rows []model.FollowRequest
	require.NoError(t, f.db.Unscoped().Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, model.RequestPending, rows[0].Status)
}

func TestCancelAndUnfollow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.profile(t, "alice")
	b := f.profile(t, "bob", private)
	c := f.profile(t, "carol")

	_, err := f.connections.RequestFollow(ctx, as(a), b)
	require.NoError(t, err)
	require.NoError(t, f.connections.CancelRequest(ctx, as(a), b))
	assert.ErrorIs(t, f.connections.CancelRequest(ctx, as(a), b), apperr.ErrNoPendingRequest)

	st, err := f.connections.Status(ctx, as(a), b)
	require.NoError(t, err)
	assert.Equal(t, PairNone, st)

	_, err = f.connections.RequestFollow(ctx, as(a), c)
	require.NoError(t, err)
	require.NoError(t, f.connections.Unfollow(ctx, as(a), c))
	err = f.connections.Unfollow(ctx, as(a), c)
	assert.ErrorIs(t, err, apperr.ErrNotFollowing)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestUnfollowThenRequestAfterApproval(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.profile(t, "alice")
	b := f.profile(t, "bob", private)

	res, err := f.connections.RequestFollow(ctx, as(a), b)
	require.NoError(t, err)
	_, err = f.connections.RespondToRequest(ctx, as(b), res.RequestID, ActionApprove)
	require.NoError(t, err)
	require.NoError(t, f.connections.Unfollow(ctx, as(a), b))

	again, err := f.connections.RequestFollow(ctx, as(a), b)
	require.NoError(t, err)
	assert.Equal(t, StatusRequestPending, again.Status)
}

func TestFollowBack(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.profile(t, "alice", private)
	b := f.profile(t, "bob", private)

	res, err := f.connections.RequestFollow(ctx, as(a), b)
	require.NoError(t, err)
	_, err = f.connections.RespondToRequest(ctx, as(b), res.RequestID, ActionApprove)
	require.NoError(t, err)

	back, err := f.connections.FollowBack(ctx, as(b), a)
	require.NoError(t, err)
	assert.Equal(t, StatusRequestPending, back.Status)

	followers, err := f.connections.ListFollowers(ctx, b, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{a}, followers)
}

func TestRateLimitedRequestDoesNotMutate(t *testing.T) {
	policies := defaultPolicies()
	policies[ratelimit.TypeFollowRequest] = ratelimit.Policy{MaxRequests: 1, Window: time.Hour}
	f := newFixture(t, policies)
	ctx := context.Background()
	a := f.profile(t, "alice")
	b := f.profile(t, "bob")
	c := f.profile(t, "carol", private)

	_, err := f.connections.RequestFollow(ctx, as(a), b)
	require.NoError(t, err)

	_, err = f.connections.RequestFollow(ctx, as(a), c)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrRateLimitExceeded)
	var e *apperr.Error
	require.ErrorAs(t, err, &e)
	assert.Greater(t, e.RetryAfter, time.Duration(0))

	var n int64
	require.NoError(t, f.db.Unscoped().Model(&model.FollowRequest{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestMutationInvalidatesSuggestionCache(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.profile(t, "alice")
	b := f.profile(t, "bob")

	items, err := f.suggestions.Suggest(ctx, as(a), 5)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, f.mr.Exists("suggestions:"+a))

	_, err = f.connections.RequestFollow(ctx, as(a), b)
	require.NoError(t, err)
	assert.False(t, f.mr.Exists("suggestions:"+a))

	items, err = f.suggestions.Suggest(ctx, as(a), 5)
	require.NoError(t, err)
	assert.Empty(t, items)
}

// staleReads 模拟另一事务在本事务读取之后才提交：FindPair 看不到已有申请
type staleReads struct {
	repository.FollowRequestRepository
}

func (r staleReads) WithTx(tx *gorm.DB) repository.FollowRequestRepository {
	return staleReads{r.FollowRequestRepository.WithTx(tx)}
}

func (staleReads) FindPair(context.Context, string, string) (*model.FollowRequest, error) {
	return nil, nil
}

func TestConcurrentDuplicateRequestMapsToConflict(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.profile(t, "alice")
	b := f.profile(t, "bob", private)

	first, err := f.connections.RequestFollow(ctx, as(a), b)
	require.NoError(t, err)
	require.Equal(t, StatusRequestPending, first.Status)

	racing := NewConnectionService(f.db,
		repository.NewFollowRepository(f.db),
		staleReads{repository.NewFollowRequestRepository(f.db)},
		f.profiles, OpenGate(), cache.Noop{})

	_, err = racing.RequestFollow(ctx, as(a), b)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrDuplicateRequest)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	var n int64
	require.NoError(t, f.db.Model(&model.FollowRequest{}).Count(&n).Error)
	assert.Equal(t, int64(1), n, "the losing insert rolls back")
}
