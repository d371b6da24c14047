package repository

import (
	"cardofun_backend/internal/model"
	"cardofun_backend/internal/query"
	"cardofun_backend/pkg/logger"
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	friendCacheTTL      = 24 * time.Hour
	friendCacheEmptyTTL = 5 * time.Minute
)

type FriendshipRepository struct {
	DB    *gorm.DB
	Redis *redis.Client
}

func NewFriendshipRepository(db *gorm.DB, rdb *redis.Client) *FriendshipRepository {
	return &FriendshipRepository{
		DB:    db,
		Redis: rdb,
	}
}

func friendCacheKey(userID uint) string {
	return fmt.Sprintf("friends:ids:%d", userID)
}

// GetRequest returns the request for key, or nil.
func (r *FriendshipRepository) GetRequest(ctx context.Context, key model.FriendRequestKey) (*model.FriendRequest, error) {
	q, err := query.From[model.FriendRequest](r.DB, nil)
	if err != nil {
		return nil, err
	}
	return q.Get(ctx, key.From, key.To)
}

// CreateRequest inserts a pending request. A key collision surfaces as the store's error.
func (r *FriendshipRepository) CreateRequest(ctx context.Context, req *model.FriendRequest) error {
	if req.Status == "" {
		req.Status = model.FriendshipPending
	}
	if err := query.Add(ctx, r.DB, req); err != nil {
		return err
	}
	r.invalidate(ctx, req.FromUserID, req.ToUserID)
	return nil
}

// UpdateStatus moves key from one status to another and reports whether a row changed.
func (r *FriendshipRepository) UpdateStatus(ctx context.Context, key model.FriendRequestKey, from, to model.FriendshipStatus) (bool, error) {
	n, err := query.Update[model.FriendRequest](ctx, r.DB,
		map[string]interface{}{"status": string(to)},
		query.Eq("from_user_id", key.From),
		query.Eq("to_user_id", key.To),
		query.Eq("status", string(from)))
	if err != nil {
		return false, err
	}
	if n > 0 {
		r.invalidate(ctx, key.From, key.To)
	}
	return n > 0, nil
}

// StatusesFor maps each of ids to its request with requesterID. When both
// directions exist the requester's own request wins.
func (r *FriendshipRepository) StatusesFor(ctx context.Context, requesterID uint, ids []uint) (map[uint]*model.FriendRequest, error) {
	result := make(map[uint]*model.FriendRequest, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	q, err := query.From[model.FriendRequest](r.DB, nil, query.Or(
		query.And(query.Eq("from_user_id", requesterID), query.In("to_user_id", ids)),
		query.And(query.In("from_user_id", ids), query.Eq("to_user_id", requesterID)),
	))
	if err != nil {
		return nil, err
	}
	reqs, err := q.All(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].Key().Less(reqs[j].Key()) })
	for i := range reqs {
		req := &reqs[i]
		other := req.Counterpart(requesterID)
		if existing, ok := result[other]; ok && existing.Key().From == requesterID {
			continue
		}
		result[other] = req
	}
	return result, nil
}

// GetFriendIDs lists users with an accepted request in either direction.
func (r *FriendshipRepository) GetFriendIDs(ctx context.Context, userID uint) ([]uint, error) {
	q, err := query.From[model.FriendRequest](r.DB, nil,
		query.Eq("status", string(model.FriendshipAccepted)),
		query.Or(query.Eq("from_user_id", userID), query.Eq("to_user_id", userID)))
	if err != nil {
		return nil, err
	}
	reqs, err := q.All(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[uint]struct{}, len(reqs))
	ids := make([]uint, 0, len(reqs))
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].Key().Less(reqs[j].Key()) })
	for _, req := range reqs {
		other := req.Counterpart(userID)
		if _, ok := seen[other]; ok {
			continue
		}
		seen[other] = struct{}{}
		ids = append(ids, other)
	}
	return ids, nil
}

// GetFriendIDsCached reads through a redis set. An empty friend list is cached
// as the single member 0 for a short time.
func (r *FriendshipRepository) GetFriendIDsCached(ctx context.Context, userID uint) ([]uint, error) {
	if r.Redis == nil {
		return r.GetFriendIDs(ctx, userID)
	}

	key := friendCacheKey(userID)
	cached, err := r.Redis.SMembers(ctx, key).Result()
	if err == nil && len(cached) > 0 {
		ids := make([]uint, 0, len(cached))
		for _, s := range cached {
			id, err := strconv.ParseUint(s, 10, 32)
			if err == nil && id > 0 {
				ids = append(ids, uint(id))
			}
		}
		return ids, nil
	}

	ids, err := r.GetFriendIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	pipe := r.Redis.Pipeline()
	if len(ids) > 0 {
		members := make([]interface{}, len(ids))
		for i, id := range ids {
			members[i] = id
		}
		pipe.SAdd(ctx, key, members...)
		pipe.Expire(ctx, key, friendCacheTTL)
	} else {
		pipe.SAdd(ctx, key, 0)
		pipe.Expire(ctx, key, friendCacheEmptyTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Log.Warn("Failed to cache friend ids", zap.Uint("userId", userID), zap.Error(err))
	}
	return ids, nil
}

func (r *FriendshipRepository) invalidate(ctx context.Context, userIDs ...uint) {
	if r.Redis == nil {
		return
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = friendCacheKey(id)
	}
	if err := r.Redis.Del(ctx, keys...).Err(); err != nil {
		logger.Log.Warn("Failed to invalidate friend cache", zap.Uints("userIds", userIDs), zap.Error(err))
	}
}
