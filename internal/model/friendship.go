package model

import (
	"fmt"
	"time"
)

type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "pending"
	FriendshipAccepted FriendshipStatus = "accepted"
	FriendshipDeclined FriendshipStatus = "declined"
	FriendshipBlocked  FriendshipStatus = "blocked"
)

var friendshipTransitions = map[FriendshipStatus][]FriendshipStatus{
	FriendshipPending:  {FriendshipAccepted, FriendshipDeclined, FriendshipBlocked},
	FriendshipAccepted: {FriendshipBlocked},
	FriendshipDeclined: {FriendshipAccepted, FriendshipBlocked},
	FriendshipBlocked:  {FriendshipDeclined},
}

func ParseFriendshipStatus(s string) (FriendshipStatus, error) {
	status := FriendshipStatus(s)
	if _, ok := friendshipTransitions[status]; !ok {
		return "", fmt.Errorf("unknown friendship status %q", s)
	}
	return status, nil
}

func (s FriendshipStatus) CanTransitionTo(next FriendshipStatus) bool {
	for _, allowed := range friendshipTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// FriendRequestKey identifies a request by its ordered (from, to) pair.
type FriendRequestKey struct {
	From uint
	To   uint
}

func (k FriendRequestKey) Reverse() FriendRequestKey {
	return FriendRequestKey{From: k.To, To: k.From}
}

// Less orders keys by From, then To.
func (k FriendRequestKey) Less(o FriendRequestKey) bool {
	if k.From != o.From {
		return k.From < o.From
	}
	return k.To < o.To
}

// FriendRequest is kept after decline or block; only its status moves.
type FriendRequest struct {
	FromUserID uint             `gorm:"primaryKey;autoIncrement:false" json:"fromUserId"`
	ToUserID   uint             `gorm:"primaryKey;autoIncrement:false;index" json:"toUserId"`
	Status     FriendshipStatus `gorm:"size:16;not null;default:'pending';index" json:"status"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}

func (FriendRequest) TableName() string {
	return "friend_requests"
}

func (FriendRequest) KeyFields() []string {
	return []string{"from_user_id", "to_user_id"}
}

func (r *FriendRequest) Key() FriendRequestKey {
	return FriendRequestKey{From: r.FromUserID, To: r.ToUserID}
}

// Counterpart returns the other party from userID's point of view.
func (r *FriendRequest) Counterpart(userID uint) uint {
	if r.FromUserID == userID {
		return r.ToUserID
	}
	return r.FromUserID
}
