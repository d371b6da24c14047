package repository

import (
	"cardofun_backend/internal/model"
	"cardofun_backend/internal/query"
	"context"
	"time"

	"gorm.io/gorm"
)

const (
	// canonical (min, max) pair of the two participants
	pairLow  = "CASE WHEN sender_id < recipient_id THEN sender_id ELSE recipient_id END"
	pairHigh = "CASE WHEN sender_id < recipient_id THEN recipient_id ELSE sender_id END"

	// newest first; on equal sent_at the greater id wins
	newestFirst = "sent_at DESC, id DESC"

	rankedColumns = "ranked.id, ranked.sender_id, ranked.recipient_id, ranked.text, ranked.photo_url, ranked.sent_at, ranked.read_at"
)

type MessageRepository struct {
	DB *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{DB: db}
}

func (r *MessageRepository) WithTx(tx *gorm.DB) *MessageRepository {
	return &MessageRepository{DB: tx}
}

// Transaction runs fn against a repository bound to a single transaction.
func (r *MessageRepository) Transaction(ctx context.Context, fn func(repo *MessageRepository) error) error {
	return query.Transaction(ctx, r.DB, func(tx *gorm.DB) error {
		return fn(r.WithTx(tx))
	})
}

func newestShape(s *query.Shaping) {
	s.OrderByDesc("sent_at").OrderByDesc("id")
}

// latestPer keeps the newest row of every partition among the messages filter selects.
func latestPer(partition string, filter func(db *gorm.DB) *gorm.DB) query.Source {
	return func(db *gorm.DB) *gorm.DB {
		ranked := filter(db.Model(&model.Message{}).
			Select("messages.*, ROW_NUMBER() OVER (PARTITION BY " + partition + " ORDER BY " + newestFirst + ") AS rn"))
		return db.Table("(?) AS ranked", ranked).
			Select(rankedColumns).
			Where("ranked.rn = 1")
	}
}

// Dialogues holds the newest message of every conversation userID takes part in.
func (r *MessageRepository) Dialogues(userID uint) (*query.Query[model.Message], error) {
	source := latestPer(pairLow+", "+pairHigh, func(db *gorm.DB) *gorm.DB {
		return db.Where("sender_id = ? OR recipient_id = ?", userID, userID)
	})
	return query.FromSource[model.Message](r.DB, source, newestShape)
}

// Unread holds, per sender, the newest message to userID that is still unread.
// Older unread messages stay visible even when a newer one from the same sender was read.
// Whether this should list every unread message instead is to be confirmed with stakeholders.
func (r *MessageRepository) Unread(userID uint) (*query.Query[model.Message], error) {
	source := latestPer("sender_id", func(db *gorm.DB) *gorm.DB {
		return db.Where("recipient_id = ? AND read_at IS NULL", userID)
	})
	return query.FromSource[model.Message](r.DB, source, newestShape)
}

// Thread is the full history between two users, newest first.
func (r *MessageRepository) Thread(userID, otherID uint) (*query.Query[model.Message], error) {
	return query.From[model.Message](r.DB, newestShape, query.Or(
		query.And(query.Eq("sender_id", userID), query.Eq("recipient_id", otherID)),
		query.And(query.Eq("sender_id", otherID), query.Eq("recipient_id", userID)),
	))
}

// Get returns the message with id, or nil.
func (r *MessageRepository) Get(ctx context.Context, id string) (*model.Message, error) {
	q, err := query.From[model.Message](r.DB, nil)
	if err != nil {
		return nil, err
	}
	return q.Get(ctx, id)
}

func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	return query.Add(ctx, r.DB, m)
}

// MarkRead sets read_at on messages to recipientID that are still unread and
// returns how many changed. Already read messages are left alone.
func (r *MessageRepository) MarkRead(ctx context.Context, recipientID uint, at time.Time, ids ...string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return query.Update[model.Message](ctx, r.DB,
		map[string]interface{}{"read_at": at},
		query.In("id", ids),
		query.Eq("recipient_id", recipientID),
		query.IsNull("read_at"))
}
