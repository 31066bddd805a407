package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Karanpal97/constructure-ai/internal/llm"
	"github.com/Karanpal97/constructure-ai/internal/mail"
)

// Prompt budgets. Bodies and snippets are truncated before they enter a
// prompt to bound its size; these are presentation truncations only.
const (
	bodyPromptBudget     = 3000
	categorizeSnipBudget = 100
	digestSnipBudget     = 150

	summaryMaxTokens    = 150
	replyMaxTokens      = 500
	categorizeMaxTokens = 200
	digestMaxTokens     = 400
)

const catchAllCategory = "All Emails"

// Summarizer runs the generation-backed email transforms: per-message
// summaries, reply drafting, categorization and the daily digest.
type Summarizer struct {
	gen llm.Generator
	log *zap.SugaredLogger
}

// NewSummarizer creates a Summarizer. Wrap gen with llm.NewRetry to bound
// transient-failure retries.
func NewSummarizer(gen llm.Generator, log *zap.SugaredLogger) *Summarizer {
	return &Summarizer{gen: gen, log: log}
}

// SummarizeEmail produces a 1-2 sentence summary. On generation failure it
// degrades to a snippet-based pseudo-summary instead of failing the turn.
func (s *Summarizer) SummarizeEmail(ctx context.Context, m mail.Message) string {
	system := "You are a helpful email assistant that creates concise, accurate summaries of emails."
	prompt := fmt.Sprintf(`Summarize this email in 1-2 concise sentences. Focus on the key points and any action items.

From: %s <%s>
Subject: %s
Date: %s

Content:
%s
`, m.Sender, m.SenderEmail, m.Subject, m.Date, truncate(m.Body, bodyPromptBudget))

	summary, err := s.gen.Generate(ctx, system, prompt, summaryMaxTokens)
	if err != nil {
		s.log.Errorw("failed to generate email summary", "email_id", m.ID, "error", err)
		return fmt.Sprintf("Unable to generate summary: %s...", truncateClean(m.Snippet, 100))
	}

	return summary
}

// SummarizeEmails summarizes each message in order.
func (s *Summarizer) SummarizeEmails(ctx context.Context, msgs []mail.Message) []mail.Summary {
	summaries := make([]mail.Summary, 0, len(msgs))
	for _, m := range msgs {
		summaries = append(summaries, mail.Summary{
			Message: m,
			Summary: s.SummarizeEmail(ctx, m),
		})
	}
	return summaries
}

// GenerateReply drafts a reply to the message in the requested tone. Unlike
// summaries there is no degraded fallback: a bad reply draft is worse than
// an explicit failure.
func (s *Summarizer) GenerateReply(ctx context.Context, m mail.Message, tone string) (mail.ReplyDraft, error) {
	if tone == "" {
		tone = "professional"
	}

	system := fmt.Sprintf("You are a helpful email assistant that writes %s, clear, and contextually appropriate email replies. Keep responses concise but complete.", tone)
	prompt := fmt.Sprintf(`Generate a %s reply to this email. The reply should:
- Be appropriate and context-aware
- Address the main points of the original email
- Be ready to send without further editing
- Not include placeholders like [Your Name]

Original Email:
From: %s <%s>
Subject: %s
Date: %s

Content:
%s

Generate only the reply body, no subject line or headers.`,
		tone, m.Sender, m.SenderEmail, m.Subject, m.Date, truncate(m.Body, bodyPromptBudget))

	body, err := s.gen.Generate(ctx, system, prompt, replyMaxTokens)
	if err != nil {
		return mail.ReplyDraft{}, fmt.Errorf("reply generation failed: %w", err)
	}

	return mail.ReplyDraft{
		MessageID: m.ID,
		ThreadID:  m.ThreadID,
		To:        m.SenderEmail,
		Subject:   m.Subject,
		Body:      body,
		Tone:      tone,
	}, nil
}

// Categorize groups messages into named categories. The backend must return
// a JSON object mapping category names to 1-based message indices; any
// generation or parse failure degrades to a single catch-all category
// containing a summary of every input message.
func (s *Summarizer) Categorize(ctx context.Context, msgs []mail.Message) []mail.Category {
	if len(msgs) == 0 {
		return nil
	}

	lines := make([]string, 0, len(msgs))
	for i, m := range msgs {
		lines = append(lines, fmt.Sprintf("%d. From: %s, Subject: %s, Snippet: %s",
			i+1, m.Sender, m.Subject, truncate(m.Snippet, categorizeSnipBudget)))
	}

	system := "You are an email categorization assistant. Return only valid JSON."
	prompt := fmt.Sprintf(`Categorize these emails into the following categories: Work, Personal, Promotions, Urgent, Other.

Emails:
%s

Return a JSON object with category names as keys and arrays of email numbers (1-based) as values.
Example: {"Work": [1, 3], "Personal": [2], "Promotions": [4, 5], "Urgent": [1], "Other": []}

Only return the JSON, no explanation.`, strings.Join(lines, "\n"))

	grouped, err := s.categorizeRaw(ctx, system, prompt)
	if err != nil {
		s.log.Errorw("categorization failed, falling back to catch-all", "error", err)
		return []mail.Category{{
			Name:   catchAllCategory,
			Emails: s.SummarizeEmails(ctx, msgs),
			Count:  len(msgs),
		}}
	}

	categories := make([]mail.Category, 0, len(grouped))
	for name, nums := range grouped {
		var emails []mail.Summary
		for _, num := range nums {
			if num < 1 || num > len(msgs) {
				continue
			}
			m := msgs[num-1]
			emails = append(emails, mail.Summary{
				Message:  m,
				Summary:  s.SummarizeEmail(ctx, m),
				Category: name,
			})
		}
		if len(emails) > 0 {
			categories = append(categories, mail.Category{
				Name:   name,
				Emails: emails,
				Count:  len(emails),
			})
		}
	}

	return categories
}

func (s *Summarizer) categorizeRaw(ctx context.Context, system, prompt string) (map[string][]int, error) {
	out, err := s.gen.Generate(ctx, system, prompt, categorizeMaxTokens)
	if err != nil {
		return nil, err
	}

	raw, err := llm.ExtractObject(out)
	if err != nil {
		return nil, err
	}

	var grouped map[string][]int
	if err := json.Unmarshal(raw, &grouped); err != nil {
		return nil, fmt.Errorf("categorization JSON did not unmarshal: %w", err)
	}

	return grouped, nil
}

// DailyDigest produces the inbox overview: overall summary, action items
// and the urgent subset, plus categories. A digest without real content is
// worse than an explicit error, so there is no fallback.
func (s *Summarizer) DailyDigest(ctx context.Context, msgs []mail.Message) (mail.Digest, error) {
	lines := make([]string, 0, len(msgs))
	for i, m := range msgs {
		lines = append(lines, fmt.Sprintf("%d. From: %s\n   Subject: %s\n   Preview: %s",
			i+1, m.Sender, m.Subject, truncate(m.Snippet, digestSnipBudget)))
	}

	system := "You are an executive assistant creating a daily email digest. Be concise and actionable. Return only valid JSON."
	prompt := fmt.Sprintf(`Create a daily email digest summary for these %d emails.

Emails:
%s

Provide:
1. A brief overall summary (2-3 sentences)
2. List any action items or follow-ups needed
3. Identify any urgent emails (by number)

Format as JSON:
{
    "summary": "overall summary here",
    "action_items": ["action 1", "action 2"],
    "urgent_email_numbers": [1, 2]
}`, len(msgs), strings.Join(lines, "\n\n"))

	out, err := s.gen.Generate(ctx, system, prompt, digestMaxTokens)
	if err != nil {
		return mail.Digest{}, fmt.Errorf("digest generation failed: %w", err)
	}

	raw, err := llm.ExtractObject(out)
	if err != nil {
		return mail.Digest{}, fmt.Errorf("digest output had no JSON object: %w", err)
	}

	var parsed struct {
		Summary      string   `json:"summary"`
		ActionItems  []string `json:"action_items"`
		UrgentEmails []int    `json:"urgent_email_numbers"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return mail.Digest{}, fmt.Errorf("digest JSON did not unmarshal: %w", err)
	}

	var urgent []mail.Summary
	for _, num := range parsed.UrgentEmails {
		if num < 1 || num > len(msgs) {
			continue
		}
		m := msgs[num-1]
		urgent = append(urgent, mail.Summary{
			Message:  m,
			Summary:  s.SummarizeEmail(ctx, m),
			Category: "Urgent",
		})
	}

	return mail.Digest{
		Date:         time.Now().Format("2006-01-02"),
		TotalEmails:  len(msgs),
		Summary:      parsed.Summary,
		Categories:   s.Categorize(ctx, msgs),
		ActionItems:  parsed.ActionItems,
		UrgentEmails: urgent,
	}, nil
}

// truncateClean is truncate with trailing whitespace trimmed, for use
// inside sentences.
func truncateClean(s string, n int) string {
	return strings.TrimSpace(truncate(s, n))
}
