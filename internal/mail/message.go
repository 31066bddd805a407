// Package mail holds the email domain model shared by the mailbox client
// and the assistant.
package mail

import "strings"

// Message is an immutable snapshot of a single email fetched from the
// provider. It is never mutated locally.
type Message struct {
	ID          string   `json:"id"`
	ThreadID    string   `json:"thread_id"`
	Sender      string   `json:"sender"`
	SenderEmail string   `json:"sender_email"`
	Subject     string   `json:"subject"`
	Snippet     string   `json:"snippet"`
	Body        string   `json:"body"`
	Date        string   `json:"date"`
	IsUnread    bool     `json:"is_unread"`
	Labels      []string `json:"labels,omitempty"`
}

// Summary pairs a message with its generated summary. Recomputed on demand,
// not cached beyond the chat turn.
type Summary struct {
	Message  Message `json:"email"`
	Summary  string  `json:"summary"`
	Category string  `json:"category,omitempty"`
}

// ReplyDraft is a generated reply bound to the message it answers.
type ReplyDraft struct {
	MessageID string `json:"message_id"`
	ThreadID  string `json:"thread_id,omitempty"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Tone      string `json:"tone"`
}

// SendResult reports the outcome of a send call.
type SendResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	ThreadID  string `json:"thread_id,omitempty"`
}

// Category groups summaries under a named label.
type Category struct {
	Name   string    `json:"name"`
	Emails []Summary `json:"emails"`
	Count  int       `json:"count"`
}

// Digest is the daily inbox overview.
type Digest struct {
	Date         string     `json:"date"`
	TotalEmails  int        `json:"total_emails"`
	Summary      string     `json:"summary"`
	Categories   []Category `json:"categories"`
	ActionItems  []string   `json:"action_items"`
	UrgentEmails []Summary  `json:"urgent_emails"`
}

const replyPrefix = "Re:"

// NormalizeReplySubject prefixes a subject with "Re:" exactly once.
func NormalizeReplySubject(subject string) string {
	if strings.HasPrefix(subject, replyPrefix) {
		return subject
	}
	return replyPrefix + " " + subject
}
