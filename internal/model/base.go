package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BaseModel struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func GenerateUUID() string {
	return uuid.New().String()
}

// All lists every persisted entity, in migration order.
func All() []interface{} {
	return []interface{}{
		&Country{},
		&City{},
		&Language{},
		&User{},
		&UserPhoto{},
		&UserLanguage{},
		&FriendRequest{},
		&Message{},
	}
}
