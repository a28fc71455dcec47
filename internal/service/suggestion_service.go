package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/d60-Lab/village/internal/apperr"
	"github.com/d60-Lab/village/internal/cache"
	"github.com/d60-Lab/village/internal/model"
	"github.com/d60-Lab/village/internal/ratelimit"
	"github.com/d60-Lab/village/internal/repository"
	"github.com/d60-Lab/village/pkg/logger"
)

// 各来源的基础分，保证靠前来源的候选分数不低于靠后来源
var sourceWeight = map[model.SuggestionType]float64{
	model.SuggestMutualConnections: 3000,
	model.SuggestCommunityLeader:   2000,
	model.SuggestLocationBased:     1000,
	model.SuggestSimilarInterests:  0,
}

// SuggestionService 关注推荐
type SuggestionService interface {
	Suggest(ctx context.Context, actor Actor, limit int) ([]model.SuggestionCandidate, error)
}

type suggestionService struct {
	suggestRepo repository.SuggestionRepository
	profileRepo repository.ProfileRepository
	cache       cache.SuggestionCache
	gate        Gate
	maxLimit    int
}

func NewSuggestionService(suggestRepo repository.SuggestionRepository, profileRepo repository.ProfileRepository, c cache.SuggestionCache, gate Gate, maxLimit int) SuggestionService {
	if c == nil {
		c = cache.Noop{}
	}
	if maxLimit <= 0 {
		maxLimit = 20
	}
	return &suggestionService{
		suggestRepo: suggestRepo,
		profileRepo: profileRepo,
		cache:       c,
		gate:        gate,
		maxLimit:    maxLimit,
	}
}

// collector 按来源顺序收集候选，先到先得
type collector struct {
	limit int
	seen  map[string]struct{}
	items []model.SuggestionCandidate
}

func (c *collector) remaining() int { return c.limit - len(c.items) }

// fetchLimit 需多取已见数量，避免被去重吃掉名额
func (c *collector) fetchLimit() int { return c.remaining() + len(c.seen) }

func (c *collector) add(p *model.Profile, kind model.SuggestionType) {
	if c.remaining() <= 0 {
		return
	}
	if _, ok := c.seen[p.ID]; ok {
		return
	}
	c.seen[p.ID] = struct{}{}
	c.items = append(c.items, model.SuggestionCandidate{
		CandidateUserID: p.ID,
		SuggestionType:  kind,
		Profile:         p.Public(),
	})
}

func (s *suggestionService) Suggest(ctx context.Context, actor Actor, limit int) ([]model.SuggestionCandidate, error) {
	if err := actor.authenticated(); err != nil {
		return nil, err
	}
	if err := s.gate.Gate(ctx, actor.RateKey(), ratelimit.EndpointSuggestions, ratelimit.TypeSuggestions); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 1
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	if cached, ok := s.cache.Get(ctx, actor.UserID, limit); ok {
		return cached, nil
	}
	// 先取代数再读库，期间的关注变更会让本次结果不写缓存
	gen := s.cache.Generation(ctx, actor.UserID)

	me, err := s.profileRepo.Get(ctx, actor.UserID)
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	var area string
	if me != nil {
		area = me.Area
	}

	col := &collector{limit: limit, seen: make(map[string]struct{}, limit)}

	// 1. 二度关系
	mutual, err := s.suggestRepo.MutualCandidates(ctx, actor.UserID, limit)
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	if len(mutual) > 0 {
		ids := make([]string, len(mutual))
		for i, m := range mutual {
			ids[i] = m.UserID
		}
		profiles, err := s.profileRepo.GetMany(ctx, ids)
		if err != nil {
			return nil, apperr.FromStore(err)
		}
		for _, m := range mutual {
			if p, ok := profiles[m.UserID]; ok {
				col.add(p, model.SuggestMutualConnections)
			}
		}
	}

	// 2-4. 社区带头人、同地区、最新用户
	sources := []struct {
		kind  model.SuggestionType
		fetch func(n int) ([]*model.Profile, error)
	}{
		{model.SuggestCommunityLeader, func(n int) ([]*model.Profile, error) {
			return s.suggestRepo.CommunityLeaders(ctx, actor.UserID, n)
		}},
		{model.SuggestLocationBased, func(n int) ([]*model.Profile, error) {
			return s.suggestRepo.SameArea(ctx, actor.UserID, area, n)
		}},
		{model.SuggestSimilarInterests, func(n int) ([]*model.Profile, error) {
			return s.suggestRepo.Newest(ctx, actor.UserID, n)
		}},
	}
	for _, src := range sources {
		if col.remaining() <= 0 {
			break
		}
		list, err := src.fetch(col.fetchLimit())
		if err != nil {
			return nil, apperr.FromStore(err)
		}
		for _, p := range list {
			col.add(p, src.kind)
		}
	}

	ids := make([]string, len(col.items))
	for i, it := range col.items {
		ids[i] = it.CandidateUserID
	}
	counts, err := s.suggestRepo.MutualCounts(ctx, actor.UserID, ids)
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	for i := range col.items {
		it := &col.items[i]
		it.MutualConnectionCount = counts[it.CandidateUserID]
		it.RankScore = sourceWeight[it.SuggestionType] + float64(it.MutualConnectionCount)
	}

	s.cache.Set(ctx, actor.UserID, limit, gen, col.items)
	logger.Debug("suggestions computed",
		zap.String("actor", actor.UserID),
		zap.Int("limit", limit),
		zap.Int("returned", len(col.items)))
	return col.items, nil
}
