package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Karanpal97/constructure-ai/internal/llm"
	"github.com/Karanpal97/constructure-ai/internal/session"
)

const (
	intentMaxTokens  = 300
	intentContextRef = 5
)

const intentSystemPrompt = "You are an email assistant command parser. Return only valid JSON."

// IntentParser maps a raw chat message to a (command, parameters) pair
// using a constrained-output prompt contract.
type IntentParser struct {
	gen llm.Generator
	log *zap.SugaredLogger
}

// NewIntentParser creates a parser. Wrap gen with llm.NewRetry to bound
// transient-failure retries.
func NewIntentParser(gen llm.Generator, log *zap.SugaredLogger) *IntentParser {
	return &IntentParser{gen: gen, log: log}
}

// Parse interprets one chat message. It never fails: any generation or
// parse problem degrades to the unknown command.
func (p *IntentParser) Parse(ctx context.Context, message string, sess *session.Context) Intent {
	prompt := buildIntentPrompt(message, sess)

	out, err := p.gen.Generate(ctx, intentSystemPrompt, prompt, intentMaxTokens)
	if err != nil {
		p.log.Errorw("intent generation failed", "error", err)
		return Intent{Command: CmdUnknown, Params: map[string]any{}}
	}

	raw, err := llm.ExtractObject(out)
	if err != nil {
		p.log.Errorw("intent output had no JSON object", "error", err, "output", truncate(out, 200))
		return Intent{Command: CmdUnknown, Params: map[string]any{}}
	}

	var parsed struct {
		Action string         `json:"action"`
		Params map[string]any `json:"params"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		p.log.Errorw("intent JSON did not unmarshal", "error", err)
		return Intent{Command: CmdUnknown, Params: map[string]any{}}
	}

	cmd := Command(parsed.Action)
	if !knownCommands[cmd] {
		cmd = CmdUnknown
	}
	if parsed.Params == nil {
		parsed.Params = map[string]any{}
	}

	p.log.Infow("parsed intent", "action", cmd, "params", parsed.Params)

	return Intent{Command: cmd, Params: parsed.Params}
}

func buildIntentPrompt(message string, sess *session.Context) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Parse this user message into an action and parameters for an email assistant.\n\n")
	fmt.Fprintf(&b, "User message: %q\n", message)

	if sess != nil && len(sess.RecentEmails) > 0 {
		b.WriteString("\nRecently fetched emails:\n")
		for i, ref := range sess.RecentEmails {
			if i == intentContextRef {
				break
			}
			sender := ref.Sender
			if sender == "" {
				sender = "Unknown"
			}
			subject := ref.Subject
			if subject == "" {
				subject = "No Subject"
			}
			fmt.Fprintf(&b, "%d. From: %s, Subject: %s\n", i+1, sender, subject)
		}
	}

	b.WriteString(`
Available actions:
- read_emails: Fetch and show emails (params: count, query)
- generate_response: Generate a reply suggestion (params: email_number or email_id, tone)
- send_email: Send the prepared email reply (params: content)
- delete_email: Delete an email (params: email_number, email_id, sender, or subject_keyword)
- categorize: Group emails by category (params: count)
- daily_digest: Generate daily email summary (params: count)
- help: Show available commands
- unknown: Cannot understand the request

Return JSON:
{
    "action": "action_name",
    "params": {}
}

Examples:
- "Show me my last 5 emails" -> {"action": "read_emails", "params": {"count": 5}}
- "Delete the email from John" -> {"action": "delete_email", "params": {"sender": "John"}}
- "Write a casual reply to email 2" -> {"action": "generate_response", "params": {"email_number": 2, "tone": "casual"}}
- "Send it" -> {"action": "send_email", "params": {}}`)

	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
