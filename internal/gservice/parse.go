package gservice

import (
	"encoding/base64"
	"strings"

	"google.golang.org/api/gmail/v1"

	"github.com/Karanpal97/constructure-ai/internal/mail"
)

const labelUnread = "UNREAD"

func (s *Service) parseMessage(msg *gmail.Message) mail.Message {
	m := mail.Message{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
		Subject:  "(No Subject)",
		Sender:   "Unknown",
		Labels:   msg.LabelIds,
	}

	for _, label := range msg.LabelIds {
		if label == labelUnread {
			m.IsUnread = true
			break
		}
	}

	if msg.Payload == nil {
		return m
	}

	for _, header := range msg.Payload.Headers {
		switch header.Name {
		case "From":
			m.Sender, m.SenderEmail = splitSender(header.Value)
		case "Subject":
			if header.Value != "" {
				m.Subject = header.Value
			}
		case "Date":
			m.Date = header.Value
		}
	}

	m.Body = s.extractBody(msg.Payload)

	return m
}

// splitSender separates a From header into display name and address.
// "Jane Doe <jane@example.com>" yields ("Jane Doe", "jane@example.com");
// a bare address is used for both.
func splitSender(from string) (name, email string) {
	idx := strings.Index(from, "<")
	if idx == -1 {
		addr := strings.TrimSpace(from)
		return addr, addr
	}

	name = strings.Trim(strings.TrimSpace(from[:idx]), "\"")
	if end := strings.Index(from[idx:], ">"); end != -1 {
		email = strings.TrimSpace(from[idx+1 : idx+end])
	}
	if name == "" {
		name = email
	}

	return name, email
}

// extractBody walks the MIME tree preferring text/plain; an HTML-only body
// is converted to readable text.
func (s *Service) extractBody(payload *gmail.MessagePart) string {
	textBody, htmlBody := extractBodies(payload)

	if textBody != "" {
		return textBody
	}
	if htmlBody == "" {
		return ""
	}

	converted, err := s.conv.HTMLToText([]byte(htmlBody))
	if err != nil {
		s.log.Warnw("HTML body conversion failed, using raw markup", "error", err)
		return htmlBody
	}

	return converted
}

func extractBodies(payload *gmail.MessagePart) (textBody, htmlBody string) {
	textBody, htmlBody = bodyFromPart(payload)

	for _, part := range payload.Parts {
		partText, partHTML := bodyFromPart(part)

		if textBody == "" {
			textBody = partText
		}
		if htmlBody == "" {
			htmlBody = partHTML
		}

		if len(part.Parts) > 0 {
			nestedText, nestedHTML := extractBodies(part)
			if textBody == "" {
				textBody = nestedText
			}
			if htmlBody == "" {
				htmlBody = nestedHTML
			}
		}
	}

	return textBody, htmlBody
}

func bodyFromPart(part *gmail.MessagePart) (textBody, htmlBody string) {
	if part.Body == nil || part.Body.Data == "" {
		return "", ""
	}

	switch part.MimeType {
	case "text/plain":
		return decodeBase64URL(part.Body.Data), ""
	case "text/html":
		return "", decodeBase64URL(part.Body.Data)
	default:
		return "", ""
	}
}

func decodeBase64URL(data string) string {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		decoded, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			return data
		}
	}
	return string(decoded)
}
