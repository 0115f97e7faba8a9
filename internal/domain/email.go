package domain

import "context"

// OutboundMessage is a fully assembled email ready for delivery.
// From may be empty, in which case the mailer uses its configured address.
type OutboundMessage struct {
	From       string
	FromName   string
	To         []string
	Subject    string
	TextBody   string
	HTMLBody   string
	Attachment *Attachment
}

// Mailer defines the contract for sending emails (infrastructure port).
// It returns the provider message ID when available.
type Mailer interface {
	Send(ctx context.Context, msg *OutboundMessage) (messageID string, err error)
}

// EmailTemplateRenderer renders email content from a named template with the given data.
type EmailTemplateRenderer interface {
	Render(templateName string, data any) (subject, htmlBody, textBody string, err error)
}

// WelcomeMessageEmailData holds data for the welcome email.
type WelcomeMessageEmailData struct {
	Email string
	Name  string
}

// EmailService defines the contract for sending domain-level emails.
type EmailService interface {
	SendWelcomeMessage(ctx context.Context, data *WelcomeMessageEmailData) error
	SendComposed(ctx context.Context, msg *OutboundMessage) (messageID string, err error)
}
