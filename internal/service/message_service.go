package service

import (
	"cardofun_backend/internal/config"
	"cardofun_backend/internal/model"
	"cardofun_backend/internal/query"
	"cardofun_backend/internal/repository"
	"cardofun_backend/internal/util"
	"cardofun_backend/pkg/logger"
	"cardofun_backend/pkg/monitoring"
	"cardofun_backend/pkg/tracing"
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const messagePhotoScope = "messages"

type MessageService struct {
	MessageRepo *repository.MessageRepository
	UserRepo    *repository.UserRepository
	Notifier    Notifier
	Storage     *StorageService
	Pagination  config.PaginationConfig

	now func() time.Time
}

func NewMessageService(
	messageRepo *repository.MessageRepository,
	userRepo *repository.UserRepository,
	notifier Notifier,
	storage *StorageService,
	cfg *config.Config,
) *MessageService {
	return &MessageService{
		MessageRepo: messageRepo,
		UserRepo:    userRepo,
		Notifier:    notifier,
		Storage:     storage,
		Pagination:  cfg.Pagination,
		now:         time.Now,
	}
}

// SetClock replaces the clock used for read timestamps.
func (s *MessageService) SetClock(now func() time.Time) {
	s.now = now
}

// timestamp is what gets stored; the store keeps millisecond precision.
func (s *MessageService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

type DialogueParams struct {
	UserID        uint
	Container     model.MessageContainer
	CounterpartID uint
	Page          util.PageParams
}

// GetDialogues lists one of the caller's message containers. Listing never
// changes read state, the thread container included.
func (s *MessageService) GetDialogues(ctx context.Context, params DialogueParams) (*util.PagedResult[model.MessageSummary], error) {
	ctx, span := tracing.Tracer.Start(ctx, "MessageService.GetDialogues")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", int64(params.UserID)), attribute.String("container", string(params.Container)))

	if err := params.Page.Validate(s.Pagination.MaxPageSize); err != nil {
		return nil, err
	}

	var (
		q   *query.Query[model.Message]
		err error
	)
	switch params.Container {
	case model.ContainerUnread:
		q, err = s.MessageRepo.Unread(params.UserID)
	case model.ContainerThread:
		if params.CounterpartID == 0 {
			return nil, util.NewValidationError("the thread container needs a counterpart")
		}
		q, err = s.MessageRepo.Thread(params.UserID, params.CounterpartID)
	default:
		q, err = s.MessageRepo.Dialogues(params.UserID)
	}
	if err != nil {
		return nil, err
	}

	page, err := q.Page(ctx, params.Page)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, page)
}

// GetThread pages the conversation between userID and counterpartID and marks
// everything on the page that the counterpart sent to userID as read.
func (s *MessageService) GetThread(ctx context.Context, userID, counterpartID uint, p util.PageParams) (*util.PagedResult[model.MessageSummary], error) {
	ctx, span := tracing.Tracer.Start(ctx, "MessageService.GetThread")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", int64(userID)), attribute.Int64("counterpart.id", int64(counterpartID)))

	if err := p.Validate(s.Pagination.MaxPageSize); err != nil {
		return nil, err
	}

	counterpart, err := s.UserRepo.FindByID(ctx, counterpartID)
	if err != nil {
		return nil, err
	}
	if counterpart == nil {
		return nil, util.ErrNotFound
	}

	var page *util.PagedResult[model.Message]
	err = s.MessageRepo.Transaction(ctx, func(repo *repository.MessageRepository) error {
		q, err := repo.Thread(userID, counterpartID)
		if err != nil {
			return err
		}
		page, err = q.Page(ctx, p)
		if err != nil {
			return err
		}
		return s.markPageRead(ctx, repo, userID, page.Items)
	})
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, page)
}

func (s *MessageService) markPageRead(ctx context.Context, repo *repository.MessageRepository, userID uint, items []model.Message) error {
	var ids []string
	for _, m := range items {
		if m.RecipientID == userID && !m.IsRead() {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	at := s.timestamp()
	n, err := repo.MarkRead(ctx, userID, at, ids...)
	if err != nil {
		return err
	}
	monitoring.MessageReads.Add(float64(n))

	stored := map[string]*time.Time{}
	if n < int64(len(ids)) {
		// someone else marked part of the page first; report their timestamps
		q, err := query.From[model.Message](repo.DB, nil, query.In("id", ids))
		if err != nil {
			return err
		}
		current, err := q.All(ctx)
		if err != nil {
			return err
		}
		for i := range current {
			stored[current[i].ID] = current[i].ReadAt
		}
	}

	for i := range items {
		m := &items[i]
		if m.RecipientID != userID || m.IsRead() {
			continue
		}
		if readAt, ok := stored[m.ID]; ok {
			m.ReadAt = readAt
			continue
		}
		readAt := at
		m.ReadAt = &readAt
	}
	return nil
}

// GetMessage returns a single message to one of its participants. The recipient's
// first read stamps ReadAt; later reads return the same value.
func (s *MessageService) GetMessage(ctx context.Context, callerID uint, id string) (*model.MessageSummary, error) {
	ctx, span := tracing.Tracer.Start(ctx, "MessageService.GetMessage")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", int64(callerID)), attribute.String("message.id", id))

	var msg *model.Message
	err := s.MessageRepo.Transaction(ctx, func(repo *repository.MessageRepository) error {
		m, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if m == nil {
			return util.ErrNotFound
		}
		if !m.Involves(callerID) {
			return util.ErrUnauthorized
		}

		if m.RecipientID == callerID && !m.IsRead() {
			at := s.timestamp()
			n, err := repo.MarkRead(ctx, callerID, at, m.ID)
			if err != nil {
				return err
			}
			if n == 0 {
				if m, err = repo.Get(ctx, id); err != nil {
					return err
				}
				if m == nil {
					return util.ErrNotFound
				}
			} else {
				m.ReadAt = &at
				monitoring.MessageReads.Inc()
			}
		}
		msg = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	briefs, err := s.UserRepo.FindBriefs(ctx, []uint{msg.SenderID, msg.RecipientID})
	if err != nil {
		return nil, err
	}
	summary := newSummary(msg, briefs)
	return &summary, nil
}

type CreateMessageInput struct {
	SenderID    uint
	RecipientID uint
	Text        string
	Photo       *PhotoUpload
}

// CreateMessage stores a message and, once it is committed, hands a NEW_MESSAGE
// event to the notifier for the recipient.
//
// A missing recipient and a failed insert are both reported as validation errors.
func (s *MessageService) CreateMessage(ctx context.Context, in CreateMessageInput) (*model.MessageSummary, error) {
	ctx, span := tracing.Tracer.Start(ctx, "MessageService.CreateMessage")
	defer span.End()

	if in.RecipientID == 0 {
		return nil, util.NewValidationError("recipient is required")
	}
	text := strings.TrimSpace(in.Text)
	if text == "" && in.Photo == nil {
		return nil, util.NewValidationError("message must have text or a photo")
	}

	briefs, err := s.UserRepo.FindBriefs(ctx, []uint{in.SenderID, in.RecipientID})
	if err != nil {
		return nil, err
	}
	if _, ok := briefs[in.RecipientID]; !ok {
		return nil, util.NewValidationError("recipient hasn't been found")
	}

	msg := &model.Message{
		SenderID:    in.SenderID,
		RecipientID: in.RecipientID,
		Text:        text,
		SentAt:      s.timestamp(),
	}

	var photo *StoredPhoto
	if in.Photo != nil {
		if s.Storage == nil {
			return nil, util.NewValidationError("photo attachments are not available")
		}
		photo, err = s.Storage.SavePhoto(ctx, messagePhotoScope, in.SenderID, in.Photo)
		if err != nil {
			if util.IsValidationError(err) {
				return nil, err
			}
			return nil, util.WrapValidationError("could not store the photo", err)
		}
		msg.PhotoURL = photo.URL
	}

	if err := s.MessageRepo.Create(ctx, msg); err != nil {
		if photo != nil {
			if derr := s.Storage.Delete(ctx, photo.ObjectKey); derr != nil {
				logger.Log.Warn("Failed to remove orphaned photo", zap.String("key", photo.ObjectKey), zap.Error(derr))
			}
		}
		logger.Log.Error("Failed to save message",
			zap.Uint("senderId", in.SenderID), zap.Uint("recipientId", in.RecipientID), zap.Error(err))
		return nil, util.WrapValidationError("could not send the message", err)
	}

	summary := newSummary(msg, briefs)
	if s.Notifier != nil {
		s.Notifier.Notify(in.RecipientID, WSMessage{Type: EventNewMessage, Data: summary})
	}
	span.SetAttributes(attribute.String("message.id", msg.ID))
	return &summary, nil
}

func (s *MessageService) summarize(ctx context.Context, page *util.PagedResult[model.Message]) (*util.PagedResult[model.MessageSummary], error) {
	seen := map[uint]struct{}{}
	var ids []uint
	for _, m := range page.Items {
		for _, id := range []uint{m.SenderID, m.RecipientID} {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	briefs, err := s.UserRepo.FindBriefs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return util.MapPage(page, func(m model.Message) model.MessageSummary {
		return newSummary(&m, briefs)
	}), nil
}

func newSummary(m *model.Message, users map[uint]*model.User) model.MessageSummary {
	return model.MessageSummary{
		MessageView: model.NewMessageView(m),
		Sender:      briefOf(m.SenderID, users),
		Recipient:   briefOf(m.RecipientID, users),
	}
}

func briefOf(id uint, users map[uint]*model.User) model.UserBrief {
	if u, ok := users[id]; ok {
		return model.NewUserBrief(u)
	}
	return model.UserBrief{ID: id}
}
