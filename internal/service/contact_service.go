package service

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/village/internal/apperr"
	"github.com/d60-Lab/village/internal/identity"
	"github.com/d60-Lab/village/internal/model"
	"github.com/d60-Lab/village/internal/ratelimit"
	"github.com/d60-Lab/village/internal/repository"
	"github.com/d60-Lab/village/pkg/logger"
)

// SubmittedIdentifier 客户端提交的已哈希标识（原始通讯录不进入服务端）
type SubmittedIdentifier struct {
	Hash string               `json:"hash"`
	Type model.IdentifierType `json:"type"`
}

// ContactMatch 一个匹配到的账号
type ContactMatch struct {
	model.PublicProfile
	MatchedIdentifierCount int `json:"matched_identifier_count"`
}

// BatchPurger 匹配完成后清理临时批次
type BatchPurger interface {
	Enqueue(batchID string)
}

// ContactService 通讯录匹配
type ContactService interface {
	MatchContacts(ctx context.Context, actor Actor, ids []SubmittedIdentifier) ([]ContactMatch, error)
	RegisterIdentifiers(ctx context.Context, userID, email, phone string) error
}

type contactService struct {
	db          *gorm.DB
	contactRepo repository.ContactRepository
	profileRepo repository.ProfileRepository
	gate        Gate
	purger      BatchPurger
	maxBatch    int
}

func NewContactService(db *gorm.DB, contactRepo repository.ContactRepository, profileRepo repository.ProfileRepository, gate Gate, purger BatchPurger, maxBatch int) ContactService {
	if maxBatch <= 0 {
		maxBatch = 2000
	}
	return &contactService{
		db:          db,
		contactRepo: contactRepo,
		profileRepo: profileRepo,
		gate:        gate,
		purger:      purger,
		maxBatch:    maxBatch,
	}
}

func (s *contactService) MatchContacts(ctx context.Context, actor Actor, ids []SubmittedIdentifier) ([]ContactMatch, error) {
	if err := actor.authenticated(); err != nil {
		return nil, err
	}
	if err := s.gate.Gate(ctx, actor.RateKey(), ratelimit.EndpointContacts, ratelimit.TypeContactMatch); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []ContactMatch{}, nil
	}
	if len(ids) > s.maxBatch {
		return nil, apperr.ErrBatchTooLarge.Withf("at most %d identifiers per batch", s.maxBatch)
	}

	hashes := make([]identity.Hashed, 0, len(ids))
	seen := make(map[identity.Hashed]struct{}, len(ids))
	for _, id := range ids {
		h, err := identity.ParseDigest(id.Hash, id.Type)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		hashes = append(hashes, h)
	}

	batchID := uuid.New().String()
	var rows []repository.ContactMatchRow
	var profiles map[string]*model.Profile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		contacts := s.contactRepo.WithTx(tx)
		if err := contacts.InsertBatch(ctx, batchID, actor.UserID, hashes); err != nil {
			return err
		}
		var err error
		if rows, err = contacts.MatchBatch(ctx, batchID, actor.UserID); err != nil {
			return err
		}
		userIDs := make([]string, len(rows))
		for i, r := range rows {
			userIDs[i] = r.UserID
		}
		profiles, err = s.profileRepo.WithTx(tx).GetMany(ctx, userIDs)
		return err
	})
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	if s.purger != nil {
		s.purger.Enqueue(batchID)
	}

	out := make([]ContactMatch, 0, len(rows))
	for _, r := range rows {
		p, ok := profiles[r.UserID]
		if !ok {
			continue
		}
		out = append(out, ContactMatch{PublicProfile: p.Public(), MatchedIdentifierCount: r.MatchedIdentifierCount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MatchedIdentifierCount != out[j].MatchedIdentifierCount {
			return out[i].MatchedIdentifierCount > out[j].MatchedIdentifierCount
		}
		if out[i].Username != out[j].Username {
			return out[i].Username < out[j].Username
		}
		return out[i].UserID < out[j].UserID
	})

	logger.Info("contacts matched",
		zap.String("actor", actor.UserID),
		zap.Int("submitted", len(hashes)),
		zap.Int("matched", len(out)))
	return out, nil
}

// RegisterIdentifiers 账号注册/变更联系方式时由资料服务调用，空值忽略
func (s *contactService) RegisterIdentifiers(ctx context.Context, userID, email, phone string) error {
	if userID == "" {
		return apperr.ErrInvalidArgument.Withf("user id is required")
	}
	var hashes []identity.Hashed
	if email != "" {
		h, err := identity.HashEmail(email)
		if err != nil {
			return err
		}
		hashes = append(hashes, h)
	}
	if phone != "" {
		h, err := identity.HashPhone(phone)
		if err != nil {
			return err
		}
		hashes = append(hashes, h)
	}
	return apperr.FromStore(s.contactRepo.RegisterIdentifiers(ctx, userID, hashes))
}
