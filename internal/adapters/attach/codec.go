package attach

import (
	"encoding/base64"
	"fmt"
	"io"

	"maildraft/internal/domain"
)

type base64Codec struct {
	maxBytes int64
}

// NewBase64Codec returns an AttachmentCodec that stores attachments as
// standard base64 text. maxBytes caps the pre-encoding size; zero or
// negative means no cap.
func NewBase64Codec(maxBytes int64) domain.AttachmentCodec {
	return &base64Codec{maxBytes: maxBytes}
}

func (c *base64Codec) Encode(r io.Reader) (string, error) {
	if c.maxBytes > 0 {
		// Read one byte past the cap so we can tell "exactly at cap" from "over".
		r = io.LimitReader(r, c.maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrAttachmentRead, err)
	}
	if c.maxBytes > 0 && int64(len(data)) > c.maxBytes {
		return "", domain.ErrAttachmentSize
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func (c *base64Codec) Decode(encoded, name string) (*domain.Attachment, error) {
	content, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment %q: %w", name, err)
	}
	return &domain.Attachment{
		Name:        name,
		ContentType: domain.AttachmentContentType,
		Content:     content,
	}, nil
}
