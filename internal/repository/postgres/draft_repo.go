package postgres

import (
	"context"
	"database/sql"
	"strings"

	"maildraft/internal/domain"
)

type draftRepository struct {
	DB *sql.DB
}

// NewDraftRepository returns a DraftRepository backed by the drafts table,
// which holds at most one row per user.
func NewDraftRepository(db *sql.DB) domain.DraftRepository {
	return &draftRepository{DB: db}
}

func (r *draftRepository) Get(ctx context.Context, userID string) (*domain.Draft, error) {
	query := `
		SELECT recipients, subject, body, attachment_name, attachment_data, updated_at
		FROM drafts
		WHERE user_id = $1
	`
	d := &domain.Draft{UserID: userID}
	var recipients, attName, attData string
	err := r.DB.QueryRowContext(ctx, query, userID).Scan(&recipients, &d.Subject, &d.Body, &attName, &attData, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	// Re-parsing drops anything malformed, so a corrupt recipients value
	// degrades to an empty list instead of failing the load.
	d.Recipients = domain.ParseRecipients(recipients)
	if attName != "" && attData != "" {
		d.Attachment = &domain.StoredAttachment{Name: attName, Data: attData}
	}
	return d, nil
}

func (r *draftRepository) Save(ctx context.Context, d *domain.Draft) error {
	query := `
		INSERT INTO drafts (user_id, recipients, subject, body, attachment_name, attachment_data, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE
		SET recipients = $2, subject = $3, body = $4, attachment_name = $5, attachment_data = $6, updated_at = $7
	`
	var attName, attData string
	if d.Attachment.Valid() {
		attName = d.Attachment.Name
		attData = d.Attachment.Data
	}
	_, err := r.DB.ExecContext(ctx, query,
		d.UserID, strings.Join(d.Recipients, ","), d.Subject, d.Body, attName, attData, d.UpdatedAt)
	return err
}

func (r *draftRepository) Delete(ctx context.Context, userID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM drafts WHERE user_id = $1`, userID)
	return err
}
