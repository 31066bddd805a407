package tool

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Karanpal97/constructure-ai/internal/assistant"
)

// ChatRequest is one conversational turn addressed to the assistant.
type ChatRequest struct {
	UserID   string `json:"user_id" jsonschema:"ID of the authorized user"`
	UserName string `json:"user_name,omitempty" jsonschema:"display name used in replies"`
	Message  string `json:"message" jsonschema:"the natural-language request"`
}

// ChatResponse is the assistant's reply to one turn.
type ChatResponse struct {
	Message    string `json:"message" jsonschema:"the assistant's reply text"`
	ActionType string `json:"action_type" jsonschema:"which action the assistant took"`
}

type conversation interface {
	HandleMessage(ctx context.Context, userID, userName, message string) *assistant.Response
}

// NewChat creates the chat tool.
func NewChat(conv conversation) *Chat {
	return &Chat{conv: conv}
}

// Chat relays conversational turns to the assistant.
type Chat struct {
	conv conversation
}

// Chat handles one turn.
func (t *Chat) Chat(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ChatRequest,
) (*mcp.CallToolResult, ChatResponse, error) {
	if input.UserID == "" {
		return nil, ChatResponse{}, fmt.Errorf("user_id is required")
	}
	if input.Message == "" {
		return nil, ChatResponse{}, fmt.Errorf("message is required")
	}

	resp := t.conv.HandleMessage(ctx, input.UserID, input.UserName, input.Message)

	return nil, ChatResponse{
		Message:    resp.Message,
		ActionType: resp.ActionType,
	}, nil
}
