package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"maildraft/internal/domain"
)

// ValidationError carries the per-field messages that blocked a submission.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, "; ")
}

type draftService struct {
	repo         domain.DraftRepository
	codec        domain.AttachmentCodec
	userRepo     domain.UserRepository
	emailService domain.EmailService
	logger       *slog.Logger

	// inFlight holds one entry per user with a submit in progress.
	// The draft slot is effectively single-writer; this guard is the
	// server-side stand-in for that serialization.
	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewDraftService creates the DraftService orchestrating persistence,
// attachment encoding, and submission.
func NewDraftService(repo domain.DraftRepository, codec domain.AttachmentCodec, userRepo domain.UserRepository, emailService domain.EmailService, logger *slog.Logger) domain.DraftService {
	return &draftService{
		repo:         repo,
		codec:        codec,
		userRepo:     userRepo,
		emailService: emailService,
		logger:       logger,
		inFlight:     make(map[string]struct{}),
	}
}

// Load returns the stored draft, or an empty one when nothing is stored or
// the read fails. It never surfaces persistence errors to the caller.
func (s *draftService) Load(ctx context.Context, userID string) (*domain.Draft, error) {
	draft, err := s.repo.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !isNotFound(err) {
			s.logger.WarnContext(ctx, "draft load failed, returning empty draft", "user_id", userID, "err", err)
		}
		return domain.EmptyDraft(userID), nil
	}
	if draft.Attachment != nil && !draft.Attachment.Valid() {
		draft.Attachment = nil
	}
	return draft, nil
}

// Save applies the change and persists the result. A newly chosen file is
// encoded before anything is written, so a half-read attachment is never
// stored. Encoding failures are returned; persistence failures are logged
// and swallowed, matching the accepted-data-loss contract of the slot.
func (s *draftService) Save(ctx context.Context, userID string, change domain.DraftChange) (*domain.Draft, error) {
	draft, err := s.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.apply(draft, change); err != nil {
		return nil, err
	}
	draft.UpdatedAt = time.Now()
	if err := s.repo.Save(ctx, draft); err != nil {
		s.logger.WarnContext(ctx, "draft save failed", "user_id", userID, "err", err)
	}
	return draft, nil
}

// Clear removes the stored draft, attachment included. This is the only
// operation that discards a stored attachment.
func (s *draftService) Clear(ctx context.Context, userID string) error {
	if err := s.repo.Delete(ctx, userID); err != nil {
		return fmt.Errorf("failed to clear draft: %w", err)
	}
	return nil
}

// Submit validates the draft (with the change applied), assembles the
// outbound message, and sends it. Precedence for the attachment: a file in
// this request, else the stored one (decoded), else none. The stored draft
// is left untouched on success as well as on failure; only an explicit
// Clear removes it.
func (s *draftService) Submit(ctx context.Context, userID string, change domain.DraftChange) (*domain.SendResult, error) {
	if !s.begin(userID) {
		return nil, domain.ErrSubmitInFlight
	}
	defer s.end(userID)

	draft, err := s.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	stored := draft.Attachment
	newFile := change.File != nil
	if err := s.apply(draft, change); err != nil {
		return nil, err
	}
	if msgs := draft.Validate(); len(msgs) > 0 {
		return nil, &ValidationError{Messages: msgs}
	}

	sender, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sender: %w", err)
	}

	msg := &domain.OutboundMessage{
		From:     sender.Email,
		FromName: sender.Name,
		To:       draft.Recipients,
		Subject:  draft.Subject,
		TextBody: draft.Body,
	}
	switch {
	case newFile:
		att, err := s.codec.Decode(draft.Attachment.Data, draft.Attachment.Name)
		if err != nil {
			return nil, err
		}
		msg.Attachment = att
	case stored.Valid():
		att, err := s.codec.Decode(stored.Data, stored.Name)
		if err != nil {
			return nil, err
		}
		msg.Attachment = att
	}

	id, err := s.emailService.SendComposed(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSendFailed, err)
	}

	// Persist the field values submitted with this request so the draft and
	// its stored copy stay in sync, but never clear the slot here.
	draft.UpdatedAt = time.Now()
	if err := s.repo.Save(ctx, draft); err != nil {
		s.logger.WarnContext(ctx, "draft save after send failed", "user_id", userID, "err", err)
	}
	return &domain.SendResult{MessageID: id}, nil
}

// apply folds a change into the draft, encoding a new file first.
func (s *draftService) apply(draft *domain.Draft, change domain.DraftChange) error {
	if change.File != nil {
		if change.FileName == "" {
			return fmt.Errorf("%w: missing file name", domain.ErrAttachmentRead)
		}
		encoded, err := s.codec.Encode(change.File)
		if err != nil {
			return err
		}
		draft.Attachment = &domain.StoredAttachment{Name: change.FileName, Data: encoded}
	}
	if change.Recipients != nil {
		list := domain.RecipientList{}
		for _, r := range *change.Recipients {
			_ = list.Add(r)
		}
		draft.Recipients = list
	}
	if change.Subject != nil {
		draft.Subject = *change.Subject
	}
	if change.Body != nil {
		draft.Body = *change.Body
	}
	return nil
}

func (s *draftService) begin(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[userID]; busy {
		return false
	}
	s.inFlight[userID] = struct{}{}
	return true
}

func (s *draftService) end(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, userID)
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrDraftNotFound) || errors.Is(err, sql.ErrNoRows)
}
