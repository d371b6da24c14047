package service

import (
	"cardofun_backend/internal/config"
	"cardofun_backend/internal/model"
	"cardofun_backend/internal/repository"
	"cardofun_backend/internal/util"
	"cardofun_backend/pkg/logger"
	"context"
	"time"

	"go.uber.org/zap"
)

type FriendshipService struct {
	FriendRepo *repository.FriendshipRepository
	UserRepo   *repository.UserRepository
	Notifier   Notifier
	Pagination config.PaginationConfig

	now func() time.Time
}

func NewFriendshipService(
	friendRepo *repository.FriendshipRepository,
	userRepo *repository.UserRepository,
	notifier Notifier,
	cfg *config.Config,
) *FriendshipService {
	return &FriendshipService{
		FriendRepo: friendRepo,
		UserRepo:   userRepo,
		Notifier:   notifier,
		Pagination: cfg.Pagination,
		now:        time.Now,
	}
}

func (s *FriendshipService) SetClock(now func() time.Time) {
	s.now = now
}

// GetFriends pages the requester's counterparts matching filter. Without
// statuses only accepted friends are listed.
func (s *FriendshipService) GetFriends(ctx context.Context, filter repository.FriendFilter, p util.PageParams) (*util.PagedResult[model.UserListItem], error) {
	if err := p.Validate(s.Pagination.MaxPageSize); err != nil {
		return nil, err
	}
	if len(filter.Statuses) == 0 {
		filter.Statuses = []model.FriendshipStatus{model.FriendshipAccepted}
	}
	filter.Now = s.now()

	page, err := s.UserRepo.GetFriendsPage(ctx, filter, p)
	if err != nil {
		return nil, err
	}
	return s.listItems(ctx, filter.RequesterID, page)
}

// GetUsers is the discovery listing with the requester's relationship attached.
func (s *FriendshipService) GetUsers(ctx context.Context, filter repository.UserFilter, p util.PageParams) (*util.PagedResult[model.UserListItem], error) {
	if err := p.Validate(s.Pagination.MaxPageSize); err != nil {
		return nil, err
	}
	filter.Now = s.now()

	page, err := s.UserRepo.GetPage(ctx, filter, p)
	if err != nil {
		return nil, err
	}
	return s.listItems(ctx, filter.RequesterID, page)
}

func (s *FriendshipService) GetUser(ctx context.Context, requesterID, userID uint) (*model.User, *model.FriendRequest, error) {
	user, err := s.UserRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, util.ErrNotFound
	}
	if requesterID == userID {
		return user, nil, nil
	}
	statuses, err := s.FriendRepo.StatusesFor(ctx, requesterID, []uint{userID})
	if err != nil {
		return nil, nil, err
	}
	return user, statuses[userID], nil
}

func (s *FriendshipService) listItems(ctx context.Context, requesterID uint, page *util.PagedResult[model.User]) (*util.PagedResult[model.UserListItem], error) {
	ids := make([]uint, len(page.Items))
	for i, u := range page.Items {
		ids[i] = u.ID
	}
	statuses, err := s.FriendRepo.StatusesFor(ctx, requesterID, ids)
	if err != nil {
		return nil, err
	}
	now := s.now()
	return util.MapPage(page, func(u model.User) model.UserListItem {
		return model.NewUserListItem(&u, now, statuses[u.ID])
	}), nil
}

// SendFriendRequest creates a pending request from senderID to targetID. A pending
// request in the other direction is accepted instead.
func (s *FriendshipService) SendFriendRequest(ctx context.Context, senderID, targetID uint) (*model.FriendRequest, error) {
	if senderID == targetID {
		return nil, util.NewValidationError("you cannot befriend yourself")
	}

	target, err := s.UserRepo.FindByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, util.ErrNotFound
	}

	key := model.FriendRequestKey{From: senderID, To: targetID}
	existing, err := s.FriendRepo.GetRequest(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, util.NewValidationError("the friend request has already been sent")
	}

	reverse, err := s.FriendRepo.GetRequest(ctx, key.Reverse())
	if err != nil {
		return nil, err
	}
	if reverse != nil && reverse.Status == model.FriendshipPending {
		return s.RespondFriendRequest(ctx, senderID, targetID, model.FriendshipAccepted)
	}

	req := &model.FriendRequest{
		FromUserID: senderID,
		ToUserID:   targetID,
		Status:     model.FriendshipPending,
	}
	if err := s.FriendRepo.CreateRequest(ctx, req); err != nil {
		return nil, util.WrapValidationError("could not send the friend request", err)
	}

	logger.Log.Info("Friend request sent", zap.Uint("from", senderID), zap.Uint("to", targetID))
	s.notify(targetID, EventFriendRequest, req)
	return req, nil
}

// RespondFriendRequest moves the request fromUserID sent to callerID. Only the
// recipient may move a request, and only along the allowed transitions.
func (s *FriendshipService) RespondFriendRequest(ctx context.Context, callerID, fromUserID uint, status model.FriendshipStatus) (*model.FriendRequest, error) {
	key := model.FriendRequestKey{From: fromUserID, To: callerID}
	req, err := s.FriendRepo.GetRequest(ctx, key)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, util.ErrNotFound
	}
	if !req.Status.CanTransitionTo(status) {
		return nil, util.NewValidationError("cannot move a " + string(req.Status) + " request to " + string(status))
	}

	changed, err := s.FriendRepo.UpdateStatus(ctx, key, req.Status, status)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, util.NewValidationError("the friend request was changed concurrently")
	}
	req.Status = status

	logger.Log.Info("Friend request updated",
		zap.Uint("from", fromUserID), zap.Uint("to", callerID), zap.String("status", string(status)))
	s.notify(fromUserID, EventFriendStatus, req)
	return req, nil
}

func (s *FriendshipService) notify(userID uint, event string, req *model.FriendRequest) {
	if s.Notifier == nil {
		return
	}
	s.Notifier.Notify(userID, WSMessage{
		Type: event,
		Data: model.FriendshipView{
			FromUserID: req.FromUserID,
			ToUserID:   req.ToUserID,
			Status:     req.Status,
		},
	})
}
