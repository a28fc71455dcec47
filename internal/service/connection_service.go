package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/village/internal/apperr"
	"github.com/d60-Lab/village/internal/model"
	"github.com/d60-Lab/village/internal/ratelimit"
	"github.com/d60-Lab/village/internal/repository"
	"github.com/d60-Lab/village/pkg/logger"
)

// FollowStatus RequestFollow 的结果
type FollowStatus string

const (
	StatusFollowing      FollowStatus = "following"
	StatusRequestPending FollowStatus = "request_pending"
)

// PairStatus 从 actor 视角看与 target 的关系
type PairStatus string

const (
	PairNone            PairStatus = "none"
	PairPendingOutgoing PairStatus = "pending_outgoing"
	PairPendingIncoming PairStatus = "pending_incoming"
	PairFollowing       PairStatus = "following"
	PairDenied          PairStatus = "denied"
)

// ResponseAction 审批动作
type ResponseAction string

const (
	ActionApprove ResponseAction = "approve"
	ActionDeny    ResponseAction = "deny"
)

func (a ResponseAction) Valid() bool { return a == ActionApprove || a == ActionDeny }

type FollowResult struct {
	Status    FollowStatus `json:"status"`
	RequestID string       `json:"request_id,omitempty"`
}

type RespondResult struct {
	RequestID   string              `json:"request_id"`
	RequesterID string              `json:"requester_id"`
	Status      model.RequestStatus `json:"status"`
}

// ConnectionService 关注关系状态机
type ConnectionService interface {
	RequestFollow(ctx context.Context, actor Actor, targetID string) (FollowResult, error)
	RespondToRequest(ctx context.Context, actor Actor, requestID string, action ResponseAction) (RespondResult, error)
	CancelRequest(ctx context.Context, actor Actor, targetID string) error
	Unfollow(ctx context.Context, actor Actor, targetID string) error
	FollowBack(ctx context.Context, actor Actor, requesterID string) (FollowResult, error)
	Status(ctx context.Context, actor Actor, targetID string) (PairStatus, error)
	ListIncoming(ctx context.Context, actor Actor, page, pageSize int) ([]*model.FollowRequest, error)
	ListFollowing(ctx context.Context, userID string, page, pageSize int) ([]string, error)
	ListFollowers(ctx context.Context, userID string, page, pageSize int) ([]string, error)
}

type connectionService struct {
	db          *gorm.DB
	followRepo  repository.FollowRepository
	requestRepo repository.FollowRequestRepository
	profileRepo repository.ProfileRepository
	gate        Gate
	invalidator SuggestionInvalidator
}

func NewConnectionService(
	db *gorm.DB,
	followRepo repository.FollowRepository,
	requestRepo repository.FollowRequestRepository,
	profileRepo repository.ProfileRepository,
	gate Gate,
	invalidator SuggestionInvalidator,
) ConnectionService {
	return &connectionService{
		db:          db,
		followRepo:  followRepo,
		requestRepo: requestRepo,
		profileRepo: profileRepo,
		gate:        gate,
		invalidator: invalidator,
	}
}

func validatePair(actor Actor, targetID string) error {
	if err := actor.authenticated(); err != nil {
		return err
	}
	if targetID == "" {
		return apperr.ErrInvalidArgument.Withf("target id is required")
	}
	if actor.UserID == targetID {
		return apperr.ErrSelfTarget
	}
	return nil
}

func (s *connectionService) RequestFollow(ctx context.Context, actor Actor, targetID string) (FollowResult, error) {
	if err := validatePair(actor, targetID); err != nil {
		return FollowResult{}, err
	}
	if err := s.gate.Gate(ctx, actor.RateKey(), ratelimit.EndpointConnections, ratelimit.TypeFollowRequest); err != nil {
		return FollowResult{}, err
	}

	var (
		res     FollowResult
		mutated bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		follows := s.followRepo.WithTx(tx)
		requests := s.requestRepo.WithTx(tx)

		target, err := s.profileRepo.WithTx(tx).Get(ctx, targetID)
		if err != nil {
			return err
		}
		if target == nil {
			return apperr.ErrProfileNotFound
		}

		following, err := follows.Exists(ctx, actor.UserID, targetID)
		if err != nil {
			return err
		}
		if following {
			res = FollowResult{Status: StatusFollowing}
			return nil
		}

		existing, err := requests.FindPair(ctx, actor.UserID, targetID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Status == model.RequestPending && !existing.DeletedAt.Valid {
				return apperr.ErrDuplicateRequest
			}
			// 旧的已拒绝/已归档申请被新申请取代
			if err := requests.Delete(ctx, existing.ID); err != nil {
				return err
			}
		}

		if target.PrivacySetting == model.PrivacyPublic {
			created, err := follows.Create(ctx, actor.UserID, targetID)
			if err != nil {
				return err
			}
			mutated = created
			res = FollowResult{Status: StatusFollowing}
			return nil
		}

		req := &model.FollowRequest{
			ID:          uuid.New().String(),
			RequesterID: actor.UserID,
			RequesteeID: targetID,
			Status:      model.RequestPending,
		}
		if err := requests.Create(ctx, req); err != nil {
			return err
		}
		mutated = true
		res = FollowResult{Status: StatusRequestPending, RequestID: req.ID}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// 并发的同一申请先落库
			return FollowResult{}, apperr.ErrDuplicateRequest.Wrap(err)
		}
		return FollowResult{}, apperr.FromStore(err)
	}

	if mutated {
		logger.Info("follow requested",
			zap.String("actor", actor.UserID),
			zap.String("target", targetID),
			zap.String("status", string(res.Status)))
		s.invalidate(ctx, actor.UserID, targetID)
	}
	return res, nil
}

func (s *connectionService) RespondToRequest(ctx context.Context, actor Actor, requestID string, action ResponseAction) (RespondResult, error) {
	if err := actor.authenticated(); err != nil {
		return RespondResult{}, err
	}
	if requestID == "" {
		return RespondResult{}, apperr.ErrInvalidArgument.Withf("request id is required")
	}
	if !action.Valid() {
		return RespondResult{}, apperr.ErrInvalidAction
	}

	var res RespondResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		requests := s.requestRepo.WithTx(tx)
		req, err := requests.Get(ctx, requestID)
		if err != nil {
			return err
		}
		if req == nil {
			return apperr.ErrRequestNotFound
		}
		if req.RequesteeID != actor.UserID {
			return apperr.ErrNotAuthorized
		}
		if req.Status != model.RequestPending || req.DeletedAt.Valid {
			return apperr.ErrAlreadyResolved
		}

		res = RespondResult{RequestID: req.ID, RequesterID: req.RequesterID}
		switch action {
		case ActionApprove:
			if err := requests.Archive(ctx, req.ID, model.RequestApproved); err != nil {
				return err
			}
			if _, err := s.followRepo.WithTx(tx).Create(ctx, req.RequesterID, req.RequesteeID); err != nil {
				return err
			}
			res.Status = model.RequestApproved
		case ActionDeny:
			if err := requests.UpdateStatus(ctx, req.ID, model.RequestDenied); err != nil {
				return err
			}
			res.Status = model.RequestDenied
		}
		return nil
	})
	if err != nil {
		return RespondResult{}, apperr.FromStore(err)
	}

	logger.Info("follow request resolved",
		zap.String("request", res.RequestID),
		zap.String("requester", res.RequesterID),
		zap.String("responder", actor.UserID),
		zap.String("status", string(res.Status)))
	s.invalidate(ctx, res.RequesterID, actor.UserID)
	return res, nil
}

func (s *connectionService) CancelRequest(ctx context.Context, actor Actor, targetID string) error {
	if err := validatePair(actor, targetID); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		requests := s.requestRepo.WithTx(tx)
		req, err := requests.FindPair(ctx, actor.UserID, targetID)
		if err != nil {
			return err
		}
		if req == nil || req.Status != model.RequestPending || req.DeletedAt.Valid {
			return apperr.ErrNoPendingRequest
		}
		return requests.Delete(ctx, req.ID)
	})
	if err != nil {
		return apperr.FromStore(err)
	}
	logger.Info("follow request cancelled", zap.String("actor", actor.UserID), zap.String("target", targetID))
	s.invalidate(ctx, actor.UserID, targetID)
	return nil
}

func (s *connectionService) Unfollow(ctx context.Context, actor Actor, targetID string) error {
	if err := validatePair(actor, targetID); err != nil {
		return err
	}
	deleted, err := s.followRepo.Delete(ctx, actor.UserID, targetID)
	if err != nil {
		return apperr.FromStore(err)
	}
	if !deleted {
		return apperr.ErrNotFollowing
	}
	logger.Info("unfollowed", zap.String("actor", actor.UserID), zap.String("target", targetID))
	s.invalidate(ctx, actor.UserID, targetID)
	return nil
}

// FollowBack 回关：收到并通过对方申请后，向对方发起关注
func (s *connectionService) FollowBack(ctx context.Context, actor Actor, requesterID string) (FollowResult, error) {
	return s.RequestFollow(ctx, actor, requesterID)
}

func (s *connectionService) Status(ctx context.Context, actor Actor, targetID string) (PairStatus, error) {
	if err := validatePair(actor, targetID); err != nil {
		return "", err
	}
	following, err := s.followRepo.Exists(ctx, actor.UserID, targetID)
	if err != nil {
		return "", apperr.FromStore(err)
	}
	if following {
		return PairFollowing, nil
	}
	out, err := s.requestRepo.FindPair(ctx, actor.UserID, targetID)
	if err != nil {
		return "", apperr.FromStore(err)
	}
	if out != nil && !out.DeletedAt.Valid {
		switch out.Status {
		case model.RequestPending:
			return PairPendingOutgoing, nil
		case model.RequestDenied:
			return PairDenied, nil
		}
	}
	in, err := s.requestRepo.FindPair(ctx, targetID, actor.UserID)
	if err != nil {
		return "", apperr.FromStore(err)
	}
	if in != nil && !in.DeletedAt.Valid && in.Status == model.RequestPending {
		return PairPendingIncoming, nil
	}
	return PairNone, nil
}

func (s *connectionService) ListIncoming(ctx context.Context, actor Actor, page, pageSize int) ([]*model.FollowRequest, error) {
	if err := actor.authenticated(); err != nil {
		return nil, err
	}
	offset, limit := pageBounds(page, pageSize)
	items, err := s.requestRepo.ListIncoming(ctx, actor.UserID, offset, limit)
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	return items, nil
}

func (s *connectionService) ListFollowing(ctx context.Context, userID string, page, pageSize int) ([]string, error) {
	offset, limit := pageBounds(page, pageSize)
	items, err := s.followRepo.ListFollowings(ctx, userID, offset, limit)
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	res := make([]string, len(items))
	for i, it := range items {
		res[i] = it.FollowingID
	}
	return res, nil
}

func (s *connectionService) ListFollowers(ctx context.Context, userID string, page, pageSize int) ([]string, error) {
	offset, limit := pageBounds(page, pageSize)
	items, err := s.followRepo.ListFollowers(ctx, userID, offset, limit)
	if err != nil {
		return nil, apperr.FromStore(err)
	}
	res := make([]string, len(items))
	for i, it := range items {
		res[i] = it.FollowerID
	}
	return res, nil
}

// invalidate 失效双方的推荐缓存；缓存失败不影响已提交的关系变更
func (s *connectionService) invalidate(ctx context.Context, userIDs ...string) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx, userIDs...); err != nil {
		logger.Warn("invalidate suggestions failed", zap.Strings("users", userIDs), zap.Error(err))
	}
}
