package tool_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Karanpal97/constructure-ai/internal/assistant"
	"github.com/Karanpal97/constructure-ai/internal/mail"
	"github.com/Karanpal97/constructure-ai/internal/tool"
)

type conversationMock struct {
	HandleMessageFunc func(ctx context.Context, userID, userName, message string) *assistant.Response
}

func (m *conversationMock) HandleMessage(ctx context.Context, userID, userName, message string) *assistant.Response {
	return m.HandleMessageFunc(ctx, userID, userName, message)
}

type mailboxMock struct {
	FetchFunc func(ctx context.Context, userID string, maxResults int64, query string) ([]mail.Message, error)
}

func (m *mailboxMock) Fetch(ctx context.Context, userID string, maxResults int64, query string) ([]mail.Message, error) {
	return m.FetchFunc(ctx, userID, maxResults, query)
}

type mcpSession struct {
	ctx    context.Context
	client *mcp.ClientSession
	server *mcp.ServerSession
}

func (s *mcpSession) Close() {
	s.client.Close()
	s.server.Close()
}

func setupMCPSession(t *testing.T, conv *conversationMock, mbx *mailboxMock) *mcpSession {
	t.Helper()

	server := tool.NewServer(conv, mbx)
	client := mcp.NewClient(&mcp.Implementation{Name: "test-client"}, nil)
	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	ctx := context.Background()

	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)

	clientSession, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	return &mcpSession{ctx: ctx, client: clientSession, server: serverSession}
}

func TestChatTool(t *testing.T) {
	conv := &conversationMock{
		HandleMessageFunc: func(_ context.Context, userID, userName, message string) *assistant.Response {
			assert.Equal(t, "u1", userID)
			assert.Equal(t, "Kim", userName)
			assert.Equal(t, "show my emails", message)
			return &assistant.Response{Message: "here you go", ActionType: "read_emails"}
		},
	}

	session := setupMCPSession(t, conv, &mailboxMock{})
	defer session.Close()

	result, err := session.client.CallTool(session.ctx, &mcp.CallToolParams{
		Name: "chat",
		Arguments: tool.ChatRequest{
			UserID:   "u1",
			UserName: "Kim",
			Message:  "show my emails",
		},
	})
	require.NoError(t, err)
	require.False(t, result.IsError, "chat failed: %v", result.Content)

	var response tool.ChatResponse
	require.NoError(t, json.Unmarshal(
		[]byte(result.Content[0].(*mcp.TextContent).Text),
		&response,
	))

	assert.Equal(t, "here you go", response.Message)
	assert.Equal(t, "read_emails", response.ActionType)
}

func TestChatToolRequiresUserID(t *testing.T) {
	session := setupMCPSession(t, &conversationMock{}, &mailboxMock{})
	defer session.Close()

	result, err := session.client.CallTool(session.ctx, &mcp.CallToolParams{
		Name:      "chat",
		Arguments: tool.ChatRequest{Message: "hello"},
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestListMessagesTool(t *testing.T) {
	mbx := &mailboxMock{
		FetchFunc: func(_ context.Context, userID string, maxResults int64, query string) ([]mail.Message, error) {
			assert.Equal(t, "u1", userID)
			assert.Equal(t, int64(10), maxResults)
			assert.Equal(t, "from:alice", query)
			return []mail.Message{
				{ID: "m1", ThreadID: "t1", Sender: "Alice", SenderEmail: "alice@example.com",
					Subject: "Hello", Snippet: "Hi there", IsUnread: true},
			}, nil
		},
	}

	session := setupMCPSession(t, &conversationMock{}, mbx)
	defer session.Close()

	result, err := session.client.CallTool(session.ctx, &mcp.CallToolParams{
		Name: "list_messages",
		Arguments: tool.ListMessagesRequest{
			UserID: "u1",
			Query:  "from:alice",
		},
	})
	require.NoError(t, err)
	require.False(t, result.IsError, "list_messages failed: %v", result.Content)

	var response tool.ListMessagesResponse
	require.NoError(t, json.Unmarshal(
		[]byte(result.Content[0].(*mcp.TextContent).Text),
		&response,
	))

	require.Equal(t, 1, response.TotalResults)
	assert.Equal(t, "m1", response.Messages[0].ID)
	assert.Equal(t, "Alice", response.Messages[0].Sender)
	assert.True(t, response.Messages[0].IsUnread)
}

func TestListMessagesToolFetchFailure(t *testing.T) {
	mbx := &mailboxMock{
		FetchFunc: func(context.Context, string, int64, string) ([]mail.Message, error) {
			return nil, errors.New("list failed: boom")
		},
	}

	session := setupMCPSession(t, &conversationMock{}, mbx)
	defer session.Close()

	result, err := session.client.CallTool(session.ctx, &mcp.CallToolParams{
		Name:      "list_messages",
		Arguments: tool.ListMessagesRequest{UserID: "u1"},
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
