package domain

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

// Sentinel errors for draft operations.
var (
	ErrDraftNotFound  = errors.New("draft not found")
	ErrSubmitInFlight = errors.New("a send is already in flight for this draft")
	ErrAttachmentRead = errors.New("failed to read attachment")
	ErrAttachmentSize = errors.New("attachment exceeds the maximum allowed size")
	ErrSendFailed     = errors.New("send failed")
)

// Minimum body length accepted at submission time.
const MinBodyLen = 10

// AttachmentContentType is the fixed content type attachments are decoded with.
const AttachmentContentType = "application/octet-stream"

// StoredAttachment is the persisted representation of a previously chosen
// file: base64-encoded content paired with the original file name.
// Encoded content without a name is invalid and is dropped on load.
type StoredAttachment struct {
	Name string `json:"name"`
	Data string `json:"-"`
}

// Valid reports whether the pairing invariant holds.
func (a *StoredAttachment) Valid() bool {
	return a != nil && a.Name != "" && a.Data != ""
}

// Attachment is a decoded binary attachment ready to be sent.
type Attachment struct {
	Name        string
	ContentType string
	Content     []byte
}

// Draft is a user's single in-progress email. It survives a successful send;
// only an explicit clear removes it.
type Draft struct {
	UserID     string            `json:"-"`
	Recipients []string          `json:"recipients"`
	Subject    string            `json:"subject"`
	Body       string            `json:"body"`
	Attachment *StoredAttachment `json:"attachment,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// EmptyDraft returns a fresh draft for the given user.
func EmptyDraft(userID string) *Draft {
	return &Draft{UserID: userID}
}

// Validate checks the submission rules: at least one recipient (each a valid
// address), a non-empty subject, and a body of at least MinBodyLen characters.
// It returns one message per failing field, empty when the draft is sendable.
func (d *Draft) Validate() []string {
	var errs []string
	if len(d.Recipients) == 0 {
		errs = append(errs, "at least one recipient is required")
	} else {
		for _, r := range d.Recipients {
			if !ValidEmail(r) {
				errs = append(errs, "invalid recipient address: "+r)
			}
		}
	}
	if strings.TrimSpace(d.Subject) == "" {
		errs = append(errs, "subject is required")
	}
	if len(d.Body) < MinBodyLen {
		errs = append(errs, "body must be at least 10 characters")
	}
	return errs
}

// DraftChange carries one mutation of the draft. Nil field pointers mean
// "leave unchanged". File, when set, is a newly chosen attachment and is
// encoded before anything is persisted.
type DraftChange struct {
	Recipients *[]string
	Subject    *string
	Body       *string
	File       io.Reader
	FileName   string
}

// SendResult reports a completed send.
type SendResult struct {
	MessageID string `json:"message_id"`
}

// DraftRepository defines the interface for the single per-user draft slot.
// Get returns sql.ErrNoRows (wrapped or not) when no draft is stored.
type DraftRepository interface {
	Get(ctx context.Context, userID string) (*Draft, error)
	Save(ctx context.Context, draft *Draft) error
	Delete(ctx context.Context, userID string) error
}

// AttachmentCodec converts a binary upload to a storable text encoding and back.
type AttachmentCodec interface {
	Encode(r io.Reader) (string, error)
	Decode(encoded, name string) (*Attachment, error)
}

// DraftService defines the draft lifecycle: load-or-empty, save-on-change,
// explicit clear, and validated submission.
type DraftService interface {
	Load(ctx context.Context, userID string) (*Draft, error)
	Save(ctx context.Context, userID string, change DraftChange) (*Draft, error)
	Clear(ctx context.Context, userID string) error
	Submit(ctx context.Context, userID string, change DraftChange) (*SendResult, error)
}
