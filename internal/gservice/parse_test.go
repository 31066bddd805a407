package gservice

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"google.golang.org/api/gmail/v1"
)

func TestSplitSender(t *testing.T) {
	cases := []struct {
		name          string
		from          string
		expectedName  string
		expectedEmail string
	}{
		{
			name:          "name and address",
			from:          "Jane Doe <jane@example.com>",
			expectedName:  "Jane Doe",
			expectedEmail: "jane@example.com",
		},
		{
			name:          "quoted name",
			from:          `"Doe, Jane" <jane@example.com>`,
			expectedName:  "Doe, Jane",
			expectedEmail: "jane@example.com",
		},
		{
			name:          "bare address",
			from:          "jane@example.com",
			expectedName:  "jane@example.com",
			expectedEmail: "jane@example.com",
		},
		{
			name:          "empty name falls back to address",
			from:          "<jane@example.com>",
			expectedName:  "jane@example.com",
			expectedEmail: "jane@example.com",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			name, email := splitSender(tc.from)
			assert.Equal(t, tc.expectedName, name)
			assert.Equal(t, tc.expectedEmail, email)
		})
	}
}

type staticConverter struct{}

func (staticConverter) HTMLToText(_ []byte) (string, error) {
	return "converted html", nil
}

func TestParseMessage(t *testing.T) {
	svc := &Service{conv: staticConverter{}, log: zap.NewNop().Sugar()}

	plain := base64.URLEncoding.EncodeToString([]byte("plain text body"))
	html := base64.URLEncoding.EncodeToString([]byte("<p>html body</p>"))

	msg := &gmail.Message{
		Id:       "m-1",
		ThreadId: "t-1",
		Snippet:  "snippet",
		LabelIds: []string{"INBOX", "UNREAD"},
		Payload: &gmail.MessagePart{
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: "Jane Doe <jane@example.com>"},
				{Name: "Subject", Value: "Quarterly numbers"},
				{Name: "Date", Value: "Mon, 12 May 2025 10:00:00 +0000"},
			},
			MimeType: "multipart/alternative",
			Parts: []*gmail.MessagePart{
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: plain}},
				{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: html}},
			},
		},
	}

	parsed := svc.parseMessage(msg)

	assert.Equal(t, "m-1", parsed.ID)
	assert.Equal(t, "t-1", parsed.ThreadID)
	assert.Equal(t, "Jane Doe", parsed.Sender)
	assert.Equal(t, "jane@example.com", parsed.SenderEmail)
	assert.Equal(t, "Quarterly numbers", parsed.Subject)
	assert.True(t, parsed.IsUnread)
	assert.Equal(t, "plain text body", parsed.Body, "text/plain wins over HTML")
}

func TestParseMessageHTMLOnly(t *testing.T) {
	svc := &Service{conv: staticConverter{}, log: zap.NewNop().Sugar()}

	html := base64.URLEncoding.EncodeToString([]byte("<p>html body</p>"))
	msg := &gmail.Message{
		Id: "m-2",
		Payload: &gmail.MessagePart{
			MimeType: "text/html",
			Body:     &gmail.MessagePartBody{Data: html},
		},
	}

	parsed := svc.parseMessage(msg)
	assert.Equal(t, "converted html", parsed.Body)
	assert.Equal(t, "(No Subject)", parsed.Subject)
	assert.False(t, parsed.IsUnread)
}
