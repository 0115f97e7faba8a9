package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/google/uuid"

	"maildraft/internal/domain"
)

// SESConfig holds configuration for AWS SES.
type SESConfig struct {
	Region             string
	AccessKeyID        string
	SecretAccessKey    string
	InsecureSkipVerify bool
}

// MailerConfig holds configuration for creating a mailer.
type MailerConfig struct {
	Provider    string
	FromAddress string
	FromName    string
	SES         SESConfig
}

// NewMailer creates a mailer from config. Provider "ses" uses AWS SES; "noop" or unknown uses a no-op mailer.
func NewMailer(config MailerConfig) (domain.Mailer, error) {
	switch config.Provider {
	case "ses":
		sesConfig := config.SES
		if config.SES.InsecureSkipVerify {
			log.Printf("[MAILER] WARNING: TLS certificate verification is disabled for SES. Use only in development.")
		}
		httpClient := &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: sesConfig.InsecureSkipVerify,
					MinVersion:         tls.VersionTLS12,
				},
			},
		}
		awsCfg := aws.Config{
			Region: sesConfig.Region,
			Credentials: aws.NewCredentialsCache(
				credentials.NewStaticCredentialsProvider(
					sesConfig.AccessKeyID,
					sesConfig.SecretAccessKey,
					"",
				),
			),
			HTTPClient: httpClient,
		}
		client := ses.NewFromConfig(awsCfg)
		return &sesMailer{
			client:      client,
			fromAddress: config.FromAddress,
			fromName:    config.FromName,
		}, nil
	case "noop":
		return &noopMailer{}, nil
	default:
		log.Printf("[MAILER] Unknown email provider %q, using noop", config.Provider)
		return &noopMailer{}, nil
	}
}

type sesMailer struct {
	client      *ses.Client
	fromAddress string
	fromName    string
}

func (s *sesMailer) source(msg *domain.OutboundMessage) string {
	address := msg.From
	if address == "" {
		address = s.fromAddress
	}
	name := msg.FromName
	if name == "" {
		name = s.fromName
	}
	if name != "" {
		return fmt.Sprintf("%s <%s>", name, address)
	}
	return address
}

func (s *sesMailer) Send(ctx context.Context, msg *domain.OutboundMessage) (string, error) {
	if msg.Attachment != nil {
		return s.sendRaw(ctx, msg)
	}

	input := &ses.SendEmailInput{
		Source: aws.String(s.source(msg)),
		Destination: &types.Destination{
			ToAddresses: msg.To,
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(msg.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{},
		},
	}
	if msg.HTMLBody != "" {
		input.Message.Body.Html = &types.Content{
			Data:    aws.String(msg.HTMLBody),
			Charset: aws.String("UTF-8"),
		}
	}
	if msg.TextBody != "" {
		input.Message.Body.Text = &types.Content{
			Data:    aws.String(msg.TextBody),
			Charset: aws.String("UTF-8"),
		}
	}
	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to send email via SES: %w", err)
	}
	id := aws.ToString(result.MessageId)
	log.Printf("[MAILER] Email sent via SES. MessageID: %s", id)
	return id, nil
}

// sendRaw builds a MIME multipart message and sends it through the raw SES
// API, which is the only one that carries attachments.
func (s *sesMailer) sendRaw(ctx context.Context, msg *domain.OutboundMessage) (string, error) {
	raw, err := buildMIME(s.source(msg), msg)
	if err != nil {
		return "", fmt.Errorf("failed to build MIME message: %w", err)
	}
	result, err := s.client.SendRawEmail(ctx, &ses.SendRawEmailInput{
		RawMessage:   &types.RawMessage{Data: raw},
		Destinations: msg.To,
	})
	if err != nil {
		return "", fmt.Errorf("failed to send raw email via SES: %w", err)
	}
	id := aws.ToString(result.MessageId)
	log.Printf("[MAILER] Email with attachment sent via SES. MessageID: %s", id)
	return id, nil
}

type noopMailer struct{}

func (n *noopMailer) Send(ctx context.Context, msg *domain.OutboundMessage) (string, error) {
	log.Printf("[MAILER] Email would be sent (noop). To: %s, Subject: %s", strings.Join(msg.To, ","), msg.Subject)
	return "noop-" + uuid.New().String(), nil
}
