package tool

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Karanpal97/constructure-ai/internal/mail"
)

// ListMessagesRequest selects which messages to list.
type ListMessagesRequest struct {
	UserID     string `json:"user_id" jsonschema:"ID of the authorized user"`
	Query      string `json:"query,omitempty" jsonschema:"Gmail search query, defaults to the inbox"`
	MaxResults int64  `json:"max_results,omitempty" jsonschema:"max messages to return"`
}

// ListMessagesResponse contains message summaries.
type ListMessagesResponse struct {
	Messages     []MessageSummary `json:"messages" jsonschema:"array of message summaries"`
	TotalResults int              `json:"total_results" jsonschema:"number of messages returned"`
}

// MessageSummary contains essential message metadata.
type MessageSummary struct {
	ID          string `json:"id" jsonschema:"message ID"`
	ThreadID    string `json:"thread_id" jsonschema:"thread ID"`
	Sender      string `json:"sender" jsonschema:"sender display name"`
	SenderEmail string `json:"sender_email" jsonschema:"sender address"`
	Subject     string `json:"subject" jsonschema:"email subject"`
	Snippet     string `json:"snippet" jsonschema:"message preview"`
	Date        string `json:"date" jsonschema:"message date header"`
	IsUnread    bool   `json:"is_unread" jsonschema:"whether the message is unread"`
}

type listMessagesSvc interface {
	Fetch(ctx context.Context, userID string, maxResults int64, query string) ([]mail.Message, error)
}

// NewListMessages creates the list_messages tool.
func NewListMessages(svc listMessagesSvc) *ListMessages {
	return &ListMessages{svc: svc}
}

// ListMessages lists a user's recent messages.
type ListMessages struct {
	svc listMessagesSvc
}

// ListMessages fetches and summarizes recent messages.
func (t *ListMessages) ListMessages(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListMessagesRequest,
) (*mcp.CallToolResult, ListMessagesResponse, error) {
	if input.UserID == "" {
		return nil, ListMessagesResponse{}, fmt.Errorf("user_id is required")
	}
	input.MaxResults = normalizeMaxResults(input.MaxResults)

	msgs, err := t.svc.Fetch(ctx, input.UserID, input.MaxResults, input.Query)
	if err != nil {
		return nil, ListMessagesResponse{}, fmt.Errorf("svc.Fetch failed: %w", err)
	}

	messages := make([]MessageSummary, 0, len(msgs))
	for _, m := range msgs {
		messages = append(messages, MessageSummary{
			ID:          m.ID,
			ThreadID:    m.ThreadID,
			Sender:      m.Sender,
			SenderEmail: m.SenderEmail,
			Subject:     m.Subject,
			Snippet:     m.Snippet,
			Date:        m.Date,
			IsUnread:    m.IsUnread,
		})
	}

	return nil, ListMessagesResponse{
		Messages:     messages,
		TotalResults: len(messages),
	}, nil
}

func normalizeMaxResults(maxResults int64) int64 {
	if maxResults == 0 {
		return 10
	}
	if maxResults > 50 {
		return 50
	}
	return maxResults
}
