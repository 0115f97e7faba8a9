package email

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"strings"

	"maildraft/internal/domain"
)

// base64LineLen is the maximum line length for base64 bodies per RFC 2045.
const base64LineLen = 76

// buildMIME assembles an RFC 2822 message with a text body and one
// base64-encoded attachment part.
func buildMIME(source string, msg *domain.OutboundMessage) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", headerValue(source))
	fmt.Fprintf(&buf, "To: %s\r\n", headerValue(strings.Join(msg.To, ", ")))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n", w.Boundary())
	buf.WriteString("\r\n")

	body := msg.TextBody
	if body == "" {
		body = msg.HTMLBody
	}
	textHeader := textproto.MIMEHeader{}
	if msg.TextBody == "" && msg.HTMLBody != "" {
		textHeader.Set("Content-Type", "text/html; charset=UTF-8")
	} else {
		textHeader.Set("Content-Type", "text/plain; charset=UTF-8")
	}
	part, err := w.CreatePart(textHeader)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write([]byte(body)); err != nil {
		return nil, err
	}

	att := msg.Attachment
	attHeader := textproto.MIMEHeader{}
	attHeader.Set("Content-Type", fmt.Sprintf("%s; name=%q", att.ContentType, att.Name))
	attHeader.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.Name))
	attHeader.Set("Content-Transfer-Encoding", "base64")
	part, err = w.CreatePart(attHeader)
	if err != nil {
		return nil, err
	}
	if err := writeBase64Lines(part, att.Content); err != nil {
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// headerValue strips CR and LF so a value cannot terminate its header line
// and smuggle additional headers into the message.
func headerValue(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	return strings.ReplaceAll(s, "\n", "")
}

// writeBase64Lines writes content base64-encoded, folded at 76 characters.
func writeBase64Lines(w io.Writer, content []byte) error {
	encoded := base64.StdEncoding.EncodeToString(content)
	for len(encoded) > 0 {
		n := base64LineLen
		if n > len(encoded) {
			n = len(encoded)
		}
		if _, err := w.Write([]byte(encoded[:n])); err != nil {
			return err
		}
		if _, err := w.Write([]byte("\r\n")); err != nil {
			return err
		}
		encoded = encoded[n:]
	}
	return nil
}
