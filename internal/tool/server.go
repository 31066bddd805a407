package tool

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewServer creates an MCP server exposing the email assistant.
func NewServer(conv conversation, mbx listMessagesSvc) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "email-assistant", Version: "v1.0.0"}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "chat",
		Description: "Send a natural-language message to the email assistant and get its reply",
	}, NewChat(conv).Chat)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_messages",
		Description: "List a user's recent inbox messages, optionally filtered by a Gmail search query",
	}, NewListMessages(mbx).ListMessages)

	return server
}
