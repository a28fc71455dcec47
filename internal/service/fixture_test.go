package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/d60-Lab/village/internal/cache"
	"github.com/d60-Lab/village/internal/model"
	"github.com/d60-Lab/village/internal/ratelimit"
	"github.com/d60-Lab/village/internal/repository"
	"github.com/d60-Lab/village/pkg/database"
)

type fixture struct {
	db          *gorm.DB
	mr          *miniredis.Miniredis
	profiles    repository.ProfileRepository
	contacts    repository.ContactRepository
	cache       *cache.RedisSuggestionCache
	connections ConnectionService
	contactSvc  ContactService
	suggestions SuggestionService
	purger      *ContactPurger
}

func defaultPolicies() map[string]ratelimit.Policy {
	return map[string]ratelimit.Policy{
		ratelimit.TypeFollowRequest: {MaxRequests: 100, Window: time.Hour},
		ratelimit.TypeContactMatch:  {MaxRequests: 100, Window: time.Hour},
		ratelimit.TypeSuggestions:   {MaxRequests: 100, Window: time.Hour},
	}
}

func newFixture(t *testing.T, policies map[string]ratelimit.Policy) *fixture {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	if policies == nil {
		policies = defaultPolicies()
	}
	limiter := ratelimit.NewLimiter(ratelimit.NewGormStore(db), policies)
	c := cache.NewRedisSuggestionCache(rdb, time.Minute)

	f := &fixture{
		db:       db,
		mr:       mr,
		profiles: repository.NewProfileRepository(db),
		contacts: repository.NewContactRepository(db),
		cache:    c,
	}
	f.purger = NewContactPurger(f.contacts, 16, time.Minute, time.Hour)
	f.connections = NewConnectionService(db,
		repository.NewFollowRepository(db),
		repository.NewFollowRequestRepository(db),
		f.profiles, limiter, c)
	f.contactSvc = NewContactService(db, f.contacts, f.profiles, limiter, f.purger, 50)
	f.suggestions = NewSuggestionService(repository.NewSuggestionRepository(db), f.profiles, c, limiter, 20)
	return f
}

var epoch = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

type profileOpt func(*model.Profile)

func private(p *model.Profile) { p.PrivacySetting = model.PrivacyPrivate }
func leader(p *model.Profile)  { p.IsCommunityLeader = true }
func inArea(area string) profileOpt {
	return func(p *model.Profile) { p.Area = area }
}

var seq int

func (f *fixture) profile(t *testing.T, username string, opts ...profileOpt) string {
	t.Helper()
	seq++
	p := &model.Profile{
		ID:             "id-" + username,
		FullName:       fmt.Sprintf("%s Parent", username),
		Username:       username,
		PrivacySetting: model.PrivacyPublic,
		CreatedAt:      epoch.Add(time.Duration(seq) * time.Minute),
	}
	for _, o := range opts {
		o(p)
	}
	require.NoError(t, f.profiles.Save(context.Background(), p))
	return p.ID
}

func as(userID string) Actor { return Actor{UserID: userID, Origin: "10.0.0.1"} }
