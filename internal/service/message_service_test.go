package service_test

import (
	"bytes"
	"cardofun_backend/internal/model"
	"cardofun_backend/internal/repository"
	"cardofun_backend/internal/service"
	"cardofun_backend/internal/testutil"
	"cardofun_backend/internal/util"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"gorm.io/gorm"
)

type messageFixture struct {
	db       *gorm.DB
	svc      *service.MessageService
	notifier *recordingNotifier
	storage  string
	anna     *model.User
	boris    *model.User
	clara    *model.User
}

var readClock = testutil.Epoch.Add(30 * time.Minute)

func newMessageFixture(t *testing.T) *messageFixture {
	t.Helper()
	db := testutil.NewDB(t)
	cfg := testutil.Config()
	cfg.Storage.LocalPath = t.TempDir()

	f := &messageFixture{
		db:       db,
		notifier: &recordingNotifier{},
		storage:  cfg.Storage.LocalPath,
	}
	f.svc = service.NewMessageService(
		repository.NewMessageRepository(db),
		repository.NewUserRepository(db),
		f.notifier,
		service.NewStorageService(cfg),
		cfg,
	)
	f.svc.SetClock(testutil.Clock(readClock))

	f.anna = testutil.CreateUser(t, db, "anna")
	f.boris = testutil.CreateUser(t, db, "boris")
	f.clara = testutil.CreateUser(t, db, "clara")
	testutil.CreateMainPhoto(t, db, f.boris.ID, "/p/boris.jpg")
	return f
}

func (f *messageFixture) stored(t *testing.T, id string) *model.Message {
	t.Helper()
	var m model.Message
	require.NoError(t, f.db.First(&m, "id = ?", id).Error)
	return &m
}

func TestCreateMessageNotifiesRecipientAfterCommit(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	msg, err := f.svc.CreateMessage(ctx, service.CreateMessageInput{
		SenderID:    f.anna.ID,
		RecipientID: f.boris.ID,
		Text:        "  hi there ",
	})
	require.NoError(t, err)

	assert.Equal(t, "hi there", msg.Text)
	assert.True(t, msg.SentAt.Equal(readClock))
	assert.False(t, msg.IsRead)
	assert.Equal(t, "/p/boris.jpg", msg.Recipient.PhotoURL)
	assert.Equal(t, "anna", msg.Sender.Name)

	stored := f.stored(t, msg.ID)
	assert.Equal(t, f.boris.ID, stored.RecipientID)

	events := f.notifier.all()
	require.Len(t, events, 1)
	assert.Equal(t, f.boris.ID, events[0].userID)
	assert.Equal(t, service.EventNewMessage, events[0].msg.Type)
	summary, ok := events[0].msg.Data.(model.MessageSummary)
	require.True(t, ok)
	assert.Equal(t, msg.ID, summary.ID)
}

func TestCreateMessageValidation(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateMessage(ctx, service.CreateMessageInput{SenderID: f.anna.ID, Text: "hi"})
	assert.True(t, util.IsValidationError(err))

	_, err = f.svc.CreateMessage(ctx, service.CreateMessageInput{SenderID: f.anna.ID, RecipientID: f.boris.ID, Text: "   "})
	assert.True(t, util.IsValidationError(err))

	_, err = f.svc.CreateMessage(ctx, service.CreateMessageInput{SenderID: f.anna.ID, RecipientID: 999, Text: "hi"})
	var ve *util.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "recipient hasn't been found", ve.Reason)

	assert.Empty(t, f.notifier.all())
}

// A failed insert is reported like a missing recipient; only the logs tell them apart.
func TestCreateMessageStoreFailureIsValidationError(t *testing.T) {
	f := newMessageFixture(t)
	require.NoError(t, f.db.Migrator().DropTable(&model.Message{}))

	_, err := f.svc.CreateMessage(context.Background(), service.CreateMessageInput{
		SenderID:    f.anna.ID,
		RecipientID: f.boris.ID,
		Text:        "hi",
	})
	var ve *util.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "could not send the message", ve.Reason)
	assert.Error(t, ve.Err)
	assert.Empty(t, f.notifier.all())
}

func TestCreateMessageWithPhoto(t *testing.T) {
	f := newMessageFixture(t)
	png := []byte("\x89PNG\r\n\x1a\n0000")

	msg, err := f.svc.CreateMessage(context.Background(), service.CreateMessageInput{
		SenderID:    f.anna.ID,
		RecipientID: f.boris.ID,
		Photo: &service.PhotoUpload{
			Filename:    "cat.png",
			ContentType: "image/png",
			Size:        int64(len(png)),
			Reader:      bytes.NewReader(png),
		},
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(msg.PhotoURL, "/uploads/messages/"))
	assert.True(t, strings.HasSuffix(msg.PhotoURL, ".png"))

	onDisk, err := os.ReadFile(filepath.Join(f.storage, filepath.FromSlash(strings.TrimPrefix(msg.PhotoURL, "/uploads/"))))
	require.NoError(t, err)
	assert.Equal(t, png, onDisk)
}

func TestCreateMessageRejectsNonImage(t *testing.T) {
	f := newMessageFixture(t)

	_, err := f.svc.CreateMessage(context.Background(), service.CreateMessageInput{
		SenderID:    f.anna.ID,
		RecipientID: f.boris.ID,
		Photo:       &service.PhotoUpload{Filename: "a.txt", ContentType: "text/plain", Size: 1, Reader: strings.NewReader("a")},
	})
	assert.True(t, util.IsValidationError(err))
}

func TestGetMessageMarksReadOnceForRecipient(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()
	testutil.CreateMessage(t, f.db, "m1", f.anna.ID, f.boris.ID, testutil.Epoch)

	// the sender's view changes nothing
	got, err := f.svc.GetMessage(ctx, f.anna.ID, "m1")
	require.NoError(t, err)
	assert.False(t, got.IsRead)
	assert.Nil(t, f.stored(t, "m1").ReadAt)

	got, err = f.svc.GetMessage(ctx, f.boris.ID, "m1")
	require.NoError(t, err)
	require.NotNil(t, got.ReadAt)
	assert.True(t, got.ReadAt.Equal(readClock))
	assert.Equal(t, "/p/boris.jpg", got.Recipient.PhotoURL)

	// a later read leaves the first timestamp in place
	f.svc.SetClock(testutil.Clock(readClock.Add(time.Hour)))
	again, err := f.svc.GetMessage(ctx, f.boris.ID, "m1")
	require.NoError(t, err)
	require.NotNil(t, again.ReadAt)
	assert.True(t, again.ReadAt.Equal(readClock))
	assert.True(t, f.stored(t, "m1").ReadAt.Equal(readClock))
}

// readElsewhere stamps ids with at right before the next update of messages,
// as a concurrent reader committing first would.
func readElsewhere(t *testing.T, db *gorm.DB, at time.Time, ids ...string) {
	t.Helper()
	var once sync.Once
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("test:read_elsewhere", func(tx *gorm.DB) {
		if tx.Statement.Table != "messages" {
			return
		}
		once.Do(func() {
			err := tx.Session(&gorm.Session{NewDB: true}).
				Exec("UPDATE messages SET read_at = ? WHERE id IN ?", at, ids).Error
			require.NoError(t, err)
		})
	}))
}

func TestGetMessageReportsReadStampedConcurrently(t *testing.T) {
	f := newMessageFixture(t)
	testutil.CreateMessage(t, f.db, "m1", f.anna.ID, f.boris.ID, testutil.Epoch)
	earlier := testutil.Epoch.Add(10 * time.Minute)
	readElsewhere(t, f.db, earlier, "m1")

	got, err := f.svc.GetMessage(context.Background(), f.boris.ID, "m1")
	require.NoError(t, err)
	require.NotNil(t, got.ReadAt)
	assert.True(t, got.IsRead)
	assert.True(t, got.ReadAt.Equal(earlier), "got %v", got.ReadAt)
	assert.True(t, f.stored(t, "m1").ReadAt.Equal(earlier))
}

func TestGetMessageRejectsStrangerBeforeMarking(t *testing.T) {
	f := newMessageFixture(t)
	testutil.CreateMessage(t, f.db, "m1", f.anna.ID, f.boris.ID, testutil.Epoch)

	_, err := f.svc.GetMessage(context.Background(), f.clara.ID, "m1")
	assert.ErrorIs(t, err, util.ErrUnauthorized)
	assert.Nil(t, f.stored(t, "m1").ReadAt)
}

func TestGetMessageMissing(t *testing.T) {
	f := newMessageFixture(t)

	_, err := f.svc.GetMessage(context.Background(), f.anna.ID, "nope")
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestGetThreadMarksReceivedMessagesOnPage(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()
	a, b := f.anna.ID, f.boris.ID

	testutil.CreateMessage(t, f.db, "b1", b, a, testutil.Epoch.Add(-4*time.Minute))
	testutil.CreateMessage(t, f.db, "a1", a, b, testutil.Epoch.Add(-3*time.Minute))
	testutil.CreateMessage(t, f.db, "b2", b, a, testutil.Epoch.Add(-2*time.Minute))
	testutil.CreateMessage(t, f.db, "b3", b, a, testutil.Epoch.Add(-1*time.Minute))
	testutil.MarkRead(t, f.db, "b3", testutil.Epoch)

	page, err := f.svc.GetThread(ctx, a, b, util.NewPageParams(1, 3))
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.EqualValues(t, 4, page.TotalCount)

	byID := map[string]model.MessageSummary{}
	for _, m := range page.Items {
		byID[m.ID] = m
	}
	assert.Equal(t, []string{"b3", "b2", "a1"}, []string{page.Items[0].ID, page.Items[1].ID, page.Items[2].ID})

	// already read: keeps its original stamp
	assert.True(t, byID["b3"].ReadAt.Equal(testutil.Epoch))
	// newly read on this page
	require.NotNil(t, byID["b2"].ReadAt)
	assert.True(t, byID["b2"].ReadAt.Equal(readClock))
	assert.True(t, f.stored(t, "b2").ReadAt.Equal(readClock))
	// sent by the caller: untouched
	assert.Nil(t, byID["a1"].ReadAt)
	// not on the page: untouched
	assert.Nil(t, f.stored(t, "b1").ReadAt)
}

func TestGetThreadReportsReadsStampedConcurrently(t *testing.T) {
	f := newMessageFixture(t)
	a, b := f.anna.ID, f.boris.ID

	testutil.CreateMessage(t, f.db, "b1", b, a, testutil.Epoch.Add(-3*time.Minute))
	testutil.CreateMessage(t, f.db, "b2", b, a, testutil.Epoch.Add(-2*time.Minute))
	testutil.CreateMessage(t, f.db, "b3", b, a, testutil.Epoch.Add(-1*time.Minute))
	earlier := testutil.Epoch.Add(10 * time.Minute)
	readElsewhere(t, f.db, earlier, "b2")

	page, err := f.svc.GetThread(context.Background(), a, b, util.NewPageParams(1, 10))
	require.NoError(t, err)
	require.Len(t, page.Items, 3)

	for _, m := range page.Items {
		require.NotNil(t, m.ReadAt, m.ID)
		want := readClock
		if m.ID == "b2" {
			want = earlier
		}
		assert.True(t, m.ReadAt.Equal(want), "%s read at %v", m.ID, m.ReadAt)
		assert.True(t, f.stored(t, m.ID).ReadAt.Equal(want), m.ID)
	}
}

func TestGetThreadUnknownCounterpart(t *testing.T) {
	f := newMessageFixture(t)

	_, err := f.svc.GetThread(context.Background(), f.anna.ID, 999, util.NewPageParams(1, 10))
	assert.ErrorIs(t, err, util.ErrNotFound)
}

func TestGetDialoguesContainers(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()
	a, b, c := f.anna.ID, f.boris.ID, f.clara.ID

	testutil.CreateMessage(t, f.db, "ab", a, b, testutil.Epoch.Add(-3*time.Minute))
	testutil.CreateMessage(t, f.db, "ba", b, a, testutil.Epoch.Add(-2*time.Minute))
	testutil.CreateMessage(t, f.db, "ca", c, a, testutil.Epoch.Add(-1*time.Minute))
	page1 := util.NewPageParams(1, 10)

	dialogues, err := f.svc.GetDialogues(ctx, service.DialogueParams{UserID: a, Page: page1})
	require.NoError(t, err)
	require.Len(t, dialogues.Items, 2)
	assert.Equal(t, "ca", dialogues.Items[0].ID)
	assert.Equal(t, "ba", dialogues.Items[1].ID)
	assert.Equal(t, "boris", dialogues.Items[1].Sender.Name)
	assert.Equal(t, "/p/boris.jpg", dialogues.Items[1].Sender.PhotoURL)
	assert.Equal(t, "anna", dialogues.Items[1].Recipient.Name)

	unread, err := f.svc.GetDialogues(ctx, service.DialogueParams{UserID: a, Container: model.ContainerUnread, Page: page1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, unread.TotalCount)

	_, err = f.svc.GetDialogues(ctx, service.DialogueParams{UserID: a, Container: model.ContainerThread, Page: page1})
	assert.True(t, util.IsValidationError(err))

	thread, err := f.svc.GetDialogues(ctx, service.DialogueParams{
		UserID: a, Container: model.ContainerThread, CounterpartID: b, Page: page1,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, thread.TotalCount)
	// listing the thread container does not mark anything read
	assert.Nil(t, f.stored(t, "ba").ReadAt)

	_, err = f.svc.GetDialogues(ctx, service.DialogueParams{UserID: a, Page: util.NewPageParams(0, 10)})
	assert.True(t, util.IsValidationError(err))
}

func TestGetDialoguesClampsPageSize(t *testing.T) {
	f := newMessageFixture(t)

	page, err := f.svc.GetDialogues(context.Background(), service.DialogueParams{
		UserID: f.anna.ID,
		Page:   util.NewPageParams(1, 1000),
	})
	require.NoError(t, err)
	assert.Equal(t, 50, page.PageSize)
	assert.Empty(t, page.Items)
}

func TestMessageServiceSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	f := newMessageFixture(t)
	ctx := context.Background()
	testutil.CreateMessage(t, f.db, "m1", f.anna.ID, f.boris.ID, testutil.Epoch)

	_, err := f.svc.GetDialogues(ctx, service.DialogueParams{
		UserID: f.anna.ID, Container: model.ContainerDialogue, Page: util.NewPageParams(1, 10),
	})
	require.NoError(t, err)
	_, err = f.svc.GetMessage(ctx, f.boris.ID, "m1")
	require.NoError(t, err)
	_, err = f.svc.GetThread(ctx, f.anna.ID, f.boris.ID, util.NewPageParams(1, 10))
	require.NoError(t, err)
	_, err = f.svc.CreateMessage(ctx, service.CreateMessageInput{SenderID: f.anna.ID, RecipientID: f.boris.ID, Text: "hi"})
	require.NoError(t, err)

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	assert.ElementsMatch(t, []string{
		"MessageService.GetDialogues",
		"MessageService.GetMessage",
		"MessageService.GetThread",
		"MessageService.CreateMessage",
	}, names)
}
