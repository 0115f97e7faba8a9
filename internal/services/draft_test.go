package services

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"maildraft/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDraftRepo implements domain.DraftRepository for tests.
type fakeDraftRepo struct {
	mu      sync.Mutex
	stored  *domain.Draft
	getErr  error
	saveErr error
	delErr  error
	saves   int
}

func (f *fakeDraftRepo) Get(ctx context.Context, userID string) (*domain.Draft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.stored == nil {
		return nil, sql.ErrNoRows
	}
	cp := *f.stored
	return &cp, nil
}

func (f *fakeDraftRepo) Save(ctx context.Context, d *domain.Draft) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	cp := *d
	f.stored = &cp
	return nil
}

func (f *fakeDraftRepo) Delete(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delErr != nil {
		return f.delErr
	}
	f.stored = nil
	return nil
}

// fakeCodec implements domain.AttachmentCodec with real base64.
type fakeCodec struct {
	encodeErr error
	decodeErr error
}

func (f *fakeCodec) Encode(r io.Reader) (string, error) {
	if f.encodeErr != nil {
		return "", f.encodeErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func (f *fakeCodec) Decode(encoded, name string) (*domain.Attachment, error) {
	if f.decodeErr != nil {
		return nil, f.decodeErr
	}
	content, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	return &domain.Attachment{Name: name, ContentType: domain.AttachmentContentType, Content: content}, nil
}

// fakeSenderRepo implements the subset of domain.UserRepository the draft
// service touches.
type fakeSenderRepo struct {
	user *domain.User
	err  error
}

func (f *fakeSenderRepo) Create(ctx context.Context, u *domain.User) error { return nil }
func (f *fakeSenderRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return nil, sql.ErrNoRows
}
func (f *fakeSenderRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.user, nil
}
func (f *fakeSenderRepo) Update(ctx context.Context, u *domain.User) error { return nil }
func (f *fakeSenderRepo) List(ctx context.Context, p domain.PaginationParams) ([]*domain.User, int, error) {
	return nil, 0, nil
}
func (f *fakeSenderRepo) AssignRole(ctx context.Context, userID, roleID string) error { return nil }

// fakeEmailService implements domain.EmailService for tests.
type fakeEmailService struct {
	mu        sync.Mutex
	sendErr   error
	messageID string
	sent      []*domain.OutboundMessage
	started   chan struct{} // closed once, when the first send begins
	startOnce sync.Once
	block     chan struct{} // when set, the first send waits until closed
}

func (f *fakeEmailService) SendWelcomeMessage(ctx context.Context, data *domain.WelcomeMessageEmailData) error {
	return nil
}

func (f *fakeEmailService) SendComposed(ctx context.Context, msg *domain.OutboundMessage) (string, error) {
	first := false
	if f.started != nil {
		f.startOnce.Do(func() {
			close(f.started)
			first = true
		})
	}
	if first && f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, msg)
	if f.messageID != "" {
		return f.messageID, nil
	}
	return "msg-1", nil
}

func (f *fakeEmailService) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func strPtr(s string) *string       { return &s }
func slicePtr(s []string) *[]string { return &s }

func validStored(userID string) *domain.Draft {
	return &domain.Draft{
		UserID:     userID,
		Recipients: []string{"to@example.com"},
		Subject:    "hello",
		Body:       "a body long enough",
		UpdatedAt:  time.Now(),
	}
}

func TestDraftService_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("missing draft yields empty draft", func(t *testing.T) {
		svc := NewDraftService(&fakeDraftRepo{}, &fakeCodec{}, &fakeSenderRepo{}, &fakeEmailService{}, testLogger())
		draft, err := svc.Load(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, domain.EmptyDraft("user-1"), draft)
	})

	t.Run("repository failure yields empty draft, not an error", func(t *testing.T) {
		repo := &fakeDraftRepo{getErr: sql.ErrConnDone}
		svc := NewDraftService(repo, &fakeCodec{}, &fakeSenderRepo{}, &fakeEmailService{}, testLogger())
		draft, err := svc.Load(ctx, "user-1")
		require.NoError(t, err)
		assert.Empty(t, draft.Recipients)
		assert.Empty(t, draft.Subject)
	})

	t.Run("stored draft round-trips field for field", func(t *testing.T) {
		stored := validStored("user-1")
		stored.Attachment = &domain.StoredAttachment{Name: "resume.pdf", Data: "YWJj"}
		repo := &fakeDraftRepo{stored: stored}
		svc := NewDraftService(repo, &fakeCodec{}, &fakeSenderRepo{}, &fakeEmailService{}, testLogger())
		draft, err := svc.Load(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, stored.Recipients, draft.Recipients)
		assert.Equal(t, stored.Subject, draft.Subject)
		assert.Equal(t, stored.Body, draft.Body)
		assert.Equal(t, stored.Attachment, draft.Attachment)
	})

	t.Run("attachment without a name is dropped", func(t *testing.T) {
		stored := validStored("user-1")
		stored.Attachment = &domain.StoredAttachment{Data: "YWJj"}
		repo := &fakeDraftRepo{stored: stored}
		svc := NewDraftService(repo, &fakeCodec{}, &fakeSenderRepo{}, &fakeEmailService{}, testLogger())
		draft, err := svc.Load(ctx, "user-1")
		require.NoError(t, err)
		assert.Nil(t, draft.Attachment)
	})
}

func TestDraftService_Save(t *testing.T) {
	ctx := context.Background()

	t.Run("fields are persisted", func(t *testing.T) {
		repo := &fakeDraftRepo{}
		svc := NewDraftService(repo, &fakeCodec{}, &fakeSenderRepo{}, &fakeEmailService{}, testLogger())

		draft, err := svc.Save(ctx, "user-1", domain.DraftChange{
			Recipients: slicePtr([]string{"a@example.com"}),
			Subject:    strPtr("hi"),
			Body:       strPtr("short"),
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"a@example.com"}, draft.Recipients)
		assert.Equal(t, "hi", draft.Subject)
		assert.Equal(t, "short", draft.Body)
		require.NotNil(t, repo.stored)
		assert.Equal(t, "hi", repo.stored.Subject)
	})

	t.Run("no validation at save time", func(t *testing.T) {
		repo := &fakeDraftRepo{}
		svc := NewDraftService(repo, &fakeCodec{}, &fakeSenderRepo{}, &fakeEmailService{}, testLogger())

		_, err := svc.Save(ctx, "user-1", domain.DraftChange{Body: strPtr("short")})
		require.NoError(t, err)
	})

	t.Run("new file is encoded before the save", func(t *testing.T) {
		repo := &fakeDraftRepo{}
		svc := NewDraftService(repo, &fakeCodec{}, &fakeSenderRepo{}, &fakeEmailService{}, testLogger())

		draft, err := svc.Save(ctx, "user-1", domain.DraftChange{
			File:     strings.NewReader("file-bytes"),
			FileName: "resume.pdf",
		})
		require.NoError(t, err)
		require.NotNil(t, draft.Attachment)
		assert.Equal(t, "resume.pdf", draft.Attachment.Name)
		assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("file-bytes")), draft.Attachment.Data)
		assert.Equal(t, draft.Attachment, repo.stored.Attachment)
	})

	t.Run("encoding failure blocks the save", func(t *testing.T) {
		repo := &fakeDraftRepo{}
		codec := &fakeCodec{encodeErr: domain.ErrAttachmentRead}
		svc := NewDraftService(repo, codec, &fakeSenderRepo{}, &fakeEmailService{}, testLogger())

		_, err := svc.Save(ctx, "user-1", domain.DraftChange{
			File:     strings.NewReader("file-bytes"),
			FileName: "resume.pdf",
		})
		require.ErrorIs(t, err, domain.ErrAttachmentRead)
		assert.Zero(t, repo.saves, "nothing must be persisted when encoding fails")
	})

	t.Run("persistence failure is swallowed", func(t *testing.T) {
		repo := &fakeDraftRepo{saveErr: sql.ErrConnDone}
		svc := NewDraftService(repo, &fakeCodec{}, &fakeSenderRepo{}, &fakeEmailService{}, testLogger())

		draft, err := svc.Save(ctx, "user-1", domain.DraftChange{Subject: strPtr("hi")})
		require.NoError(t, err)
		assert.Equal(t, "hi", draft.Subject)
	})

	t.Run("file without a name is rejected", func(t *testing.T) {
		svc := NewDraftService(&fakeDraftRepo{}, &fakeCodec{}, &fakeSenderRepo{}, &fakeEmailService{}, testLogger())
		_, err := svc.Save(ctx, "user-1", domain.DraftChange{File: strings.NewReader("x")})
		require.ErrorIs(t, err, domain.ErrAttachmentRead)
	})
}

func TestDraftService_Clear(t *testing.T) {
	ctx := context.Background()
	stored := validStored("user-1")
	stored.Attachment = &domain.StoredAttachment{Name: "resume.pdf", Data: "YWJj"}
	repo := &fakeDraftRepo{stored: stored}
	svc := NewDraftService(repo, &fakeCodec{}, &fakeSenderRepo{}, &fakeEmailService{}, testLogger())

	require.NoError(t, svc.Clear(ctx, "user-1"))
	assert.Nil(t, repo.stored)

	draft, err := svc.Load(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, draft.Attachment)
}

func TestDraftService_Submit(t *testing.T) {
	ctx := context.Background()
	sender := &domain.User{ID: "user-1", Email: "sender@example.com", Name: "Sender"}

	t.Run("validation failure blocks the send", func(t *testing.T) {
		mail := &fakeEmailService{}
		svc := NewDraftService(&fakeDraftRepo{}, &fakeCodec{}, &fakeSenderRepo{user: sender}, mail, testLogger())

		_, err := svc.Submit(ctx, "user-1", domain.DraftChange{
			Recipients: slicePtr([]string{"a@example.com"}),
			Subject:    strPtr("hi"),
			Body:       strPtr("short"),
		})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Error(), "at least 10 characters")
		assert.Zero(t, mail.sentCount())
	})

	t.Run("stored attachment is decoded and attached", func(t *testing.T) {
		stored := validStored("user-1")
		stored.Attachment = &domain.StoredAttachment{
			Name: "resume.pdf",
			Data: base64.StdEncoding.EncodeToString([]byte("pdf-bytes")),
		}
		mail := &fakeEmailService{}
		svc := NewDraftService(&fakeDraftRepo{stored: stored}, &fakeCodec{}, &fakeSenderRepo{user: sender}, mail, testLogger())

		res, err := svc.Submit(ctx, "user-1", domain.DraftChange{})
		require.NoError(t, err)
		assert.Equal(t, "msg-1", res.MessageID)
		require.Len(t, mail.sent, 1)
		msg := mail.sent[0]
		assert.Equal(t, "sender@example.com", msg.From)
		require.NotNil(t, msg.Attachment)
		assert.Equal(t, "resume.pdf", msg.Attachment.Name)
		assert.Equal(t, []byte("pdf-bytes"), msg.Attachment.Content)
	})

	t.Run("new file wins over the stored attachment", func(t *testing.T) {
		stored := validStored("user-1")
		stored.Attachment = &domain.StoredAttachment{
			Name: "old.pdf",
			Data: base64.StdEncoding.EncodeToString([]byte("old")),
		}
		mail := &fakeEmailService{}
		svc := NewDraftService(&fakeDraftRepo{stored: stored}, &fakeCodec{}, &fakeSenderRepo{user: sender}, mail, testLogger())

		_, err := svc.Submit(ctx, "user-1", domain.DraftChange{
			File:     strings.NewReader("new-bytes"),
			FileName: "new.pdf",
		})
		require.NoError(t, err)
		require.Len(t, mail.sent, 1)
		require.NotNil(t, mail.sent[0].Attachment)
		assert.Equal(t, "new.pdf", mail.sent[0].Attachment.Name)
		assert.Equal(t, []byte("new-bytes"), mail.sent[0].Attachment.Content)
	})

	t.Run("no attachment at all sends without one", func(t *testing.T) {
		mail := &fakeEmailService{}
		svc := NewDraftService(&fakeDraftRepo{stored: validStored("user-1")}, &fakeCodec{}, &fakeSenderRepo{user: sender}, mail, testLogger())

		_, err := svc.Submit(ctx, "user-1", domain.DraftChange{})
		require.NoError(t, err)
		require.Len(t, mail.sent, 1)
		assert.Nil(t, mail.sent[0].Attachment)
	})

	t.Run("draft survives a successful send", func(t *testing.T) {
		stored := validStored("user-1")
		stored.Attachment = &domain.StoredAttachment{
			Name: "resume.pdf",
			Data: base64.StdEncoding.EncodeToString([]byte("pdf")),
		}
		repo := &fakeDraftRepo{stored: stored}
		svc := NewDraftService(repo, &fakeCodec{}, &fakeSenderRepo{user: sender}, &fakeEmailService{}, testLogger())

		_, err := svc.Submit(ctx, "user-1", domain.DraftChange{})
		require.NoError(t, err)
		require.NotNil(t, repo.stored, "draft must not be cleared by a send")
		assert.Equal(t, "resume.pdf", repo.stored.Attachment.Name)
	})

	t.Run("send failure preserves the draft and reports the error", func(t *testing.T) {
		repo := &fakeDraftRepo{stored: validStored("user-1")}
		mail := &fakeEmailService{sendErr: errors.New("ses unavailable")}
		svc := NewDraftService(repo, &fakeCodec{}, &fakeSenderRepo{user: sender}, mail, testLogger())

		_, err := svc.Submit(ctx, "user-1", domain.DraftChange{})
		require.ErrorIs(t, err, domain.ErrSendFailed)
		require.NotNil(t, repo.stored)
		assert.Equal(t, "hello", repo.stored.Subject)
	})

	t.Run("second submit while one is in flight is rejected", func(t *testing.T) {
		block := make(chan struct{})
		started := make(chan struct{})
		mail := &fakeEmailService{block: block, started: started}
		svc := NewDraftService(&fakeDraftRepo{stored: validStored("user-1")}, &fakeCodec{}, &fakeSenderRepo{user: sender}, mail, testLogger())

		firstDone := make(chan error, 1)
		go func() {
			_, err := svc.Submit(ctx, "user-1", domain.DraftChange{})
			firstDone <- err
		}()

		// Wait for the first submit to be mid-send, holding the slot.
		<-started
		_, err := svc.Submit(ctx, "user-1", domain.DraftChange{})
		require.ErrorIs(t, err, domain.ErrSubmitInFlight)

		close(block)
		require.NoError(t, <-firstDone)

		// The slot is free again once the first send resolves.
		_, err = svc.Submit(ctx, "user-1", domain.DraftChange{})
		require.NoError(t, err)
	})

	t.Run("sender lookup failure surfaces", func(t *testing.T) {
		svc := NewDraftService(&fakeDraftRepo{stored: validStored("user-1")}, &fakeCodec{}, &fakeSenderRepo{err: sql.ErrConnDone}, &fakeEmailService{}, testLogger())
		_, err := svc.Submit(ctx, "user-1", domain.DraftChange{})
		require.Error(t, err)
	})
}
