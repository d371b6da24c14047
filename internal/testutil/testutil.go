// Package testutil opens throwaway databases and seeds them for package tests.
package testutil

import (
	"cardofun_backend/internal/config"
	"cardofun_backend/internal/model"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Epoch is the fixed "now" used across tests.
var Epoch = time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)

// NewDB returns a migrated in-memory database private to t.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(model.All()...))
	return db
}

// Config is a debug-mode config with the default page sizes.
func Config() *config.Config {
	return &config.Config{
		Server:     config.ServerConfig{Port: "0", Mode: "test"},
		JWT:        config.JWTConfig{Secret: "test-secret-test-secret-test-secret", ExpireTime: time.Hour},
		Storage:    config.StorageConfig{Type: "local"},
		Pagination: config.PaginationConfig{DefaultPageSize: 10, MaxPageSize: 50},
		Delivery:   config.DeliveryConfig{QueueSize: 16},
	}
}

func Clock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

type UserOption func(u *model.User)

func WithSex(s model.Sex) UserOption {
	return func(u *model.User) { u.Sex = s }
}

func WithBirthDate(y int, m time.Month, d int) UserOption {
	return func(u *model.User) { u.BirthDate = time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }
}

func WithCity(id uint) UserOption {
	return func(u *model.User) { u.CityID = &id }
}

func WithLastActive(at time.Time) UserOption {
	return func(u *model.User) { u.LastActive = at }
}

func CreateUser(t *testing.T, db *gorm.DB, login string, opts ...UserOption) *model.User {
	t.Helper()
	u := &model.User{
		Login:      login,
		Name:       login,
		Sex:        model.SexOther,
		BirthDate:  time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC),
		LastActive: Epoch,
	}
	for _, opt := range opts {
		opt(u)
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreateUsers creates n users named user1..userN, each a minute less recently active.
func CreateUsers(t *testing.T, db *gorm.DB, n int) []*model.User {
	t.Helper()
	users := make([]*model.User, n)
	for i := range users {
		users[i] = CreateUser(t, db, fmt.Sprintf("user%d", i+1),
			WithLastActive(Epoch.Add(-time.Duration(i)*time.Minute)))
	}
	return users
}

func CreateMainPhoto(t *testing.T, db *gorm.DB, userID uint, url string) {
	t.Helper()
	require.NoError(t, db.Create(&model.UserPhoto{UserID: userID, URL: url, IsMain: true}).Error)
}

func CreateCity(t *testing.T, db *gorm.DB, name, countryIso string) *model.City {
	t.Helper()
	var country model.Country
	require.NoError(t, db.Where(model.Country{IsoCode: countryIso}).
		Attrs(model.Country{Name: countryIso}).FirstOrCreate(&country).Error)
	city := &model.City{Name: name, CountryIsoCode: countryIso}
	require.NoError(t, db.Create(city).Error)
	return city
}

func AddLanguage(t *testing.T, db *gorm.DB, userID uint, code string, learning bool) {
	t.Helper()
	var lang model.Language
	require.NoError(t, db.Where(model.Language{Code: code}).
		Attrs(model.Language{Name: code}).FirstOrCreate(&lang).Error)
	require.NoError(t, db.Create(&model.UserLanguage{UserID: userID, LanguageCode: code, Learning: learning}).Error)
}

func CreateFriendRequest(t *testing.T, db *gorm.DB, from, to uint, status model.FriendshipStatus) {
	t.Helper()
	require.NoError(t, db.Create(&model.FriendRequest{FromUserID: from, ToUserID: to, Status: status}).Error)
}

// CreateMessage stores a message with an explicit id so ordering ties are predictable.
func CreateMessage(t *testing.T, db *gorm.DB, id string, from, to uint, sentAt time.Time) *model.Message {
	t.Helper()
	m := &model.Message{ID: id, SenderID: from, RecipientID: to, Text: "msg " + id, SentAt: sentAt}
	require.NoError(t, db.Create(m).Error)
	return m
}

func MarkRead(t *testing.T, db *gorm.DB, id string, at time.Time) {
	t.Helper()
	require.NoError(t, db.Model(&model.Message{}).Where("id = ?", id).Update("read_at", at).Error)
}
