package model

import "time"

// UserBrief is the compact form of a user embedded in message summaries.
type UserBrief struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	PhotoURL string `json:"photoUrl"`
}

type FriendshipView struct {
	FromUserID uint             `json:"fromUserId"`
	ToUserID   uint             `json:"toUserId"`
	Status     FriendshipStatus `json:"status"`
}

type UserListItem struct {
	ID         uint            `json:"id"`
	Login      string          `json:"login"`
	Name       string          `json:"name"`
	Age        int             `json:"age"`
	Sex        Sex             `json:"sex"`
	City       *City           `json:"city,omitempty"`
	Created    time.Time       `json:"created"`
	LastActive time.Time       `json:"lastActive"`
	PhotoURL   string          `json:"photoUrl"`
	Friendship *FriendshipView `json:"friendship,omitempty"`
}

type MessageView struct {
	ID          string     `json:"id"`
	SenderID    uint       `json:"senderId"`
	RecipientID uint       `json:"recipientId"`
	Text        string     `json:"text"`
	PhotoURL    string     `json:"photoUrl,omitempty"`
	SentAt      time.Time  `json:"sentAt"`
	IsRead      bool       `json:"isRead"`
	ReadAt      *time.Time `json:"readAt"`
}

type MessageSummary struct {
	MessageView
	Sender    UserBrief `json:"sender"`
	Recipient UserBrief `json:"recipient"`
}

func NewMessageView(m *Message) MessageView {
	return MessageView{
		ID:          m.ID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Text:        m.Text,
		PhotoURL:    m.PhotoURL,
		SentAt:      m.SentAt,
		IsRead:      m.IsRead(),
		ReadAt:      m.ReadAt,
	}
}

func NewUserBrief(u *User) UserBrief {
	if u == nil {
		return UserBrief{}
	}
	return UserBrief{ID: u.ID, Name: u.Name, PhotoURL: u.MainPhotoURL()}
}

func NewUserListItem(u *User, now time.Time, friendship *FriendRequest) UserListItem {
	item := UserListItem{
		ID:         u.ID,
		Login:      u.Login,
		Name:       u.Name,
		Age:        u.Age(now),
		Sex:        u.Sex,
		City:       u.City,
		Created:    u.CreatedAt,
		LastActive: u.LastActive,
		PhotoURL:   u.MainPhotoURL(),
	}
	if friendship != nil {
		item.Friendship = &FriendshipView{
			FromUserID: friendship.FromUserID,
			ToUserID:   friendship.ToUserID,
			Status:     friendship.Status,
		}
	}
	return item
}
