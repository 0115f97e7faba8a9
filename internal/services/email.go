package services

import (
	"context"
	"fmt"
	"log/slog"

	"maildraft/internal/domain"
)

type emailService struct {
	mailer   domain.Mailer
	renderer domain.EmailTemplateRenderer
	logger   *slog.Logger
}

// NewEmailService returns an EmailService that uses the given Mailer and template renderer.
func NewEmailService(mailer domain.Mailer, renderer domain.EmailTemplateRenderer, logger *slog.Logger) domain.EmailService {
	return &emailService{mailer: mailer, renderer: renderer, logger: logger}
}

// SendWelcomeMessage sends a welcome email using the "welcome" template and the given data.
func (s *emailService) SendWelcomeMessage(ctx context.Context, data *domain.WelcomeMessageEmailData) error {
	if data == nil {
		return fmt.Errorf("welcome message data is nil")
	}
	subject, htmlBody, textBody, err := s.renderer.Render("welcome", data)
	if err != nil {
		return fmt.Errorf("failed to render welcome template: %w", err)
	}
	msg := &domain.OutboundMessage{
		To:       []string{data.Email},
		Subject:  subject,
		HTMLBody: htmlBody,
		TextBody: textBody,
	}
	if _, err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send welcome email: %w", err)
	}
	s.logger.InfoContext(ctx, "welcome email sent", "to", data.Email)
	return nil
}

// SendComposed delivers a user-composed message as is, without templating.
func (s *emailService) SendComposed(ctx context.Context, msg *domain.OutboundMessage) (string, error) {
	if msg == nil {
		return "", fmt.Errorf("outbound message is nil")
	}
	id, err := s.mailer.Send(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("failed to send composed email: %w", err)
	}
	s.logger.InfoContext(ctx, "composed email sent", "recipients", len(msg.To), "message_id", id, "has_attachment", msg.Attachment != nil)
	return id, nil
}
