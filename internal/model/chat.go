package model

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Message references both parties by id only.
type Message struct {
	ID          string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SenderID    uint       `gorm:"not null;index:idx_messages_pair,priority:1" json:"senderId"`
	RecipientID uint       `gorm:"not null;index:idx_messages_pair,priority:2;index:idx_messages_unread,priority:1" json:"recipientId"`
	Text        string     `gorm:"type:text" json:"text"`
	PhotoURL    string     `gorm:"size:255" json:"photoUrl,omitempty"`
	SentAt      time.Time  `gorm:"not null;index" json:"sentAt"`
	ReadAt      *time.Time `gorm:"index:idx_messages_unread,priority:2" json:"readAt"`
}

func (Message) TableName() string {
	return "messages"
}

func (Message) KeyFields() []string {
	return []string{"id"}
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = GenerateUUID()
	}
	return nil
}

func (m *Message) IsRead() bool {
	return m.ReadAt != nil
}

// Involves reports whether userID is the sender or the recipient.
func (m *Message) Involves(userID uint) bool {
	return m.SenderID == userID || m.RecipientID == userID
}

type MessageContainer string

const (
	ContainerDialogue MessageContainer = "dialogue"
	ContainerUnread   MessageContainer = "unread"
	ContainerThread   MessageContainer = "thread"
)

func ParseMessageContainer(s string) (MessageContainer, error) {
	switch c := MessageContainer(s); c {
	case "":
		return ContainerDialogue, nil
	case ContainerDialogue, ContainerUnread, ContainerThread:
		return c, nil
	}
	return "", fmt.Errorf("unknown message container %q", s)
}
