package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Karanpal97/constructure-ai/internal/mail"
	"github.com/Karanpal97/constructure-ai/internal/session"
)

// Action types carried on responses alongside the command vocabulary.
const (
	ActionError         = "error"
	ActionCancelled     = "cancelled"
	ActionUnknown       = "unknown"
	ActionReauth        = "reauth_required"
	ActionConfirmDelete = "confirm_delete"
)

// Affirmation words accepted while a delete is pending. Matched as
// case-insensitive substrings; anything else cancels.
var affirmations = []string{"yes", "confirm", "delete", "do it", "sure"}

const (
	defaultReadCount  = 5
	defaultBatchCount = 20
	maxFetchCount     = 50
	summaryListBudget = 50
	categoryListLimit = 3
)

// Response is the result of one chat turn, consumed by presentation layers.
type Response struct {
	Message    string            `json:"message"`
	ActionType string            `json:"action_type"`
	Emails     []mail.Summary    `json:"emails,omitempty"`
	Replies    []mail.ReplyDraft `json:"suggested_replies,omitempty"`
	Digest     *mail.Digest      `json:"digest,omitempty"`
	Data       map[string]any    `json:"action_data,omitempty"`
}

// Mailbox is the provider-side collaborator the executor drives.
type Mailbox interface {
	Fetch(ctx context.Context, userID string, maxResults int64, query string) ([]mail.Message, error)
	Get(ctx context.Context, userID, id string) (mail.Message, error)
	Send(ctx context.Context, userID, to, subject, body, threadID string) (mail.SendResult, error)
	Delete(ctx context.Context, userID, id string) error
}

type intentParser interface {
	Parse(ctx context.Context, message string, sess *session.Context) Intent
}

type transformer interface {
	SummarizeEmails(ctx context.Context, msgs []mail.Message) []mail.Summary
	GenerateReply(ctx context.Context, m mail.Message, tone string) (mail.ReplyDraft, error)
	Categorize(ctx context.Context, msgs []mail.Message) []mail.Category
	DailyDigest(ctx context.Context, msgs []mail.Message) (mail.Digest, error)
}

type credentialChecker interface {
	HasCredentials(userID string) bool
}

// Executor owns the dialogue loop: it turns parsed intents into mailbox
// operations and context mutations, and runs the confirm/cancel protocol
// for destructive actions. Turns for the same user are serialized.
type Executor struct {
	mailbox  Mailbox
	parser   intentParser
	tf       transformer
	sessions session.Store
	creds    credentialChecker
	log      *zap.SugaredLogger

	locks sync.Map // userID -> *sync.Mutex
}

// NewExecutor wires the dialogue loop.
func NewExecutor(mailbox Mailbox, parser intentParser, tf transformer, sessions session.Store, creds credentialChecker, log *zap.SugaredLogger) *Executor {
	return &Executor{
		mailbox:  mailbox,
		parser:   parser,
		tf:       tf,
		sessions: sessions,
		creds:    creds,
		log:      log,
	}
}

func (e *Executor) userLock(userID string) *sync.Mutex {
	mu, _ := e.locks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// HandleMessage processes one chat turn end to end. It never returns an
// error: every failure becomes a user-facing response, and no failure may
// crash the hosting process.
func (e *Executor) HandleMessage(ctx context.Context, userID, userName, message string) *Response {
	mu := e.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	if userName == "" {
		userName = "there"
	}

	e.log.Infow("processing chat message", "user_id", userID, "message", truncate(message, 100))

	if !e.creds.HasCredentials(userID) {
		return &Response{
			Message:    "Your Gmail session has expired. Please log in again to continue.",
			ActionType: ActionReauth,
		}
	}

	sess, err := e.sessions.Get(ctx, userID)
	if err != nil {
		e.log.Errorw("session load failed", "user_id", userID, "error", err)
		return &Response{
			Message:    "Something went wrong. Please try again or rephrase your request.",
			ActionType: ActionError,
		}
	}

	var resp *Response
	if sess.Pending != nil {
		resp = e.resolvePending(ctx, userID, message, sess)
	} else {
		intent := e.parser.Parse(ctx, message, sess)
		resp = e.dispatch(ctx, userID, userName, intent, sess)
	}

	if err := e.sessions.Put(ctx, userID, sess); err != nil {
		e.log.Errorw("session save failed", "user_id", userID, "error", err)
	}

	return resp
}

func (e *Executor) dispatch(ctx context.Context, userID, userName string, intent Intent, sess *session.Context) (resp *Response) {
	// The turn boundary: nothing a collaborator throws may escape it.
	defer func() {
		if r := recover(); r != nil {
			e.log.Errorw("panic during dispatch", "user_id", userID, "panic", r)
			resp = &Response{
				Message:    "Something went wrong. Please try again or rephrase your request.",
				ActionType: ActionError,
			}
		}
	}()

	switch intent.Command {
	case CmdReadEmails:
		return e.handleReadEmails(ctx, userID, userName, intent, sess)
	case CmdGenerateResponse:
		return e.handleGenerateResponse(ctx, userID, intent, sess)
	case CmdSendEmail:
		return e.handleSendEmail(ctx, userID, intent, sess)
	case CmdDeleteEmail:
		return e.handleDeleteEmail(intent, sess)
	case CmdCategorize:
		return e.handleCategorize(ctx, userID, userName, intent)
	case CmdDailyDigest:
		return e.handleDailyDigest(ctx, userID, intent)
	case CmdHelp:
		return helpResponse(userName)
	default:
		return unknownResponse(userName)
	}
}

// resolvePending runs the confirm/cancel protocol. The incoming message is
// never parsed for intent while an action is pending: an affirmation word
// executes it, anything else cancels. Both paths clear the pending state
// (failure keeps it so the user can retry).
func (e *Executor) resolvePending(ctx context.Context, userID, message string, sess *session.Context) *Response {
	pending := sess.Pending

	if pending.Kind != session.PendingDelete {
		// Unreachable until more variants exist; clear rather than trap
		// the user in an unknown state.
		sess.Pending = nil
		return &Response{Message: "What would you like me to do?", ActionType: ActionUnknown}
	}

	if !isAffirmation(message) {
		sess.Pending = nil
		return &Response{
			Message:    "No problem, I've cancelled the deletion. What else can I help you with?",
			ActionType: ActionCancelled,
		}
	}

	if err := e.mailbox.Delete(ctx, userID, pending.TargetID); err != nil {
		e.log.Errorw("delete failed", "user_id", userID, "message_id", pending.TargetID, "error", err)
		if isAuthError(err) {
			return &Response{
				Message:    "Your Gmail session has expired. Please log in again, then ask me to delete it again.",
				ActionType: ActionReauth,
			}
		}
		// Keep the pending delete so the next affirmative retries it.
		return &Response{
			Message:    "I couldn't delete that email just now. Say 'yes' to try again or anything else to cancel.",
			ActionType: ActionError,
		}
	}

	desc := pending.Description
	if desc == "" {
		desc = "the email"
	}

	sess.Pending = nil
	sess.RemoveRecent(pending.TargetID)

	return &Response{
		Message:    fmt.Sprintf("🗑️ Done! I've moved %s to trash. Anything else?", desc),
		ActionType: string(CmdDeleteEmail),
		Data:       map[string]any{"email_id": pending.TargetID},
	}
}

func isAffirmation(message string) bool {
	lower := strings.ToLower(strings.TrimSpace(message))
	for _, word := range affirmations {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

func (e *Executor) handleReadEmails(ctx context.Context, userID, userName string, intent Intent, sess *session.Context) *Response {
	count := normalizeCount(intent.IntOr("count", defaultReadCount))
	query := intent.StrOr("query", "")

	msgs, err := e.mailbox.Fetch(ctx, userID, int64(count), query)
	if err != nil {
		return e.collaboratorFailure("fetch your emails", err)
	}

	summaries := e.tf.SummarizeEmails(ctx, msgs)

	refs := make([]session.EmailRef, 0, len(summaries))
	for _, s := range summaries {
		refs = append(refs, session.EmailRef{
			ID:          s.Message.ID,
			Sender:      s.Message.Sender,
			SenderEmail: s.Message.SenderEmail,
			Subject:     s.Message.Subject,
			Summary:     s.Summary,
		})
	}
	sess.RecentEmails = refs

	if len(summaries) == 0 {
		return &Response{
			Message:    fmt.Sprintf("You don't have any emails matching that criteria, %s.", userName),
			ActionType: string(CmdReadEmails),
			Emails:     []mail.Summary{},
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Here are your last %d emails, %s:\n\n", len(summaries), userName)
	for i, s := range summaries {
		fmt.Fprintf(&b, "**%d. %s**\n", i+1, s.Message.Subject)
		fmt.Fprintf(&b, "   From: %s\n", s.Message.Sender)
		fmt.Fprintf(&b, "   Summary: %s\n\n", s.Summary)
	}
	b.WriteString("You can ask me to reply to any of these, delete them, or get more details.")

	return &Response{
		Message:    b.String(),
		ActionType: string(CmdReadEmails),
		Emails:     summaries,
	}
}

func (e *Executor) handleGenerateResponse(ctx context.Context, userID string, intent Intent, sess *session.Context) *Response {
	ref, ok := resolveTarget(sess, intent, true)
	if !ok {
		return &Response{
			Message:    "Please show me your emails first by saying 'Show my emails', then I can help you reply.",
			ActionType: ActionError,
		}
	}

	msg, err := e.mailbox.Get(ctx, userID, ref.ID)
	if err != nil {
		if errors.Is(err, mail.ErrNotFound) {
			return &Response{
				Message:    "I couldn't find that email. Try showing your emails again.",
				ActionType: ActionError,
			}
		}
		return e.collaboratorFailure("look up that email", err)
	}

	draft, err := e.tf.GenerateReply(ctx, msg, intent.StrOr("tone", "professional"))
	if err != nil {
		e.log.Errorw("reply generation failed", "user_id", userID, "message_id", msg.ID, "error", err)
		return &Response{
			Message:    "I had trouble writing that reply. Please try again in a moment.",
			ActionType: ActionError,
		}
	}

	sess.PendingReply = &draft

	var b strings.Builder
	fmt.Fprintf(&b, "Here's a suggested reply for the email from **%s** about \"*%s*\":\n\n", msg.Sender, msg.Subject)
	fmt.Fprintf(&b, "---\n%s\n---\n\n", draft.Body)
	b.WriteString("Would you like me to send this reply? Just say 'Send it' or 'Yes, send'.")

	return &Response{
		Message:    b.String(),
		ActionType: string(CmdGenerateResponse),
		Replies:    []mail.ReplyDraft{draft},
	}
}

func (e *Executor) handleSendEmail(ctx context.Context, userID string, intent Intent, sess *session.Context) *Response {
	pending := sess.PendingReply
	if pending == nil {
		return &Response{
			Message:    "I don't have a reply ready to send. Let me generate one first. Which email would you like to reply to?",
			ActionType: ActionError,
		}
	}

	body := intent.StrOr("content", pending.Body)
	subject := mail.NormalizeReplySubject(pending.Subject)

	result, err := e.mailbox.Send(ctx, userID, pending.To, subject, body, pending.ThreadID)
	if err != nil {
		// The draft survives the failure so the user can just retry.
		return e.collaboratorFailure("send that reply", err)
	}

	sess.PendingReply = nil

	return &Response{
		Message:    fmt.Sprintf("✅ Done! I've sent the reply to **%s**. Is there anything else you'd like me to help with?", pending.To),
		ActionType: string(CmdSendEmail),
		Data: map[string]any{
			"message_id": result.MessageID,
			"thread_id":  result.ThreadID,
		},
	}
}

func (e *Executor) handleDeleteEmail(intent Intent, sess *session.Context) *Response {
	ref, ok := resolveTarget(sess, intent, false)
	if !ok {
		return &Response{
			Message:    "I couldn't find the email you want to delete. Try showing your emails first with 'Show my emails'.",
			ActionType: ActionError,
		}
	}

	desc := "the email"
	switch {
	case ref.Subject != "" && ref.Sender != "":
		desc = fmt.Sprintf("\"%s\" from %s", ref.Subject, ref.Sender)
	case ref.Subject != "":
		desc = fmt.Sprintf("\"%s\"", ref.Subject)
	}

	sess.Pending = &session.PendingAction{
		Kind:        session.PendingDelete,
		TargetID:    ref.ID,
		Description: desc,
	}

	return &Response{
		Message:    fmt.Sprintf("⚠️ Are you sure you want to delete the email %s?\n\nSay **'Yes, delete it'** to confirm or **'Cancel'** to abort.", desc),
		ActionType: ActionConfirmDelete,
		Data:       map[string]any{"email_id": ref.ID},
	}
}

func (e *Executor) handleCategorize(ctx context.Context, userID, userName string, intent Intent) *Response {
	count := normalizeCount(intent.IntOr("count", defaultBatchCount))

	msgs, err := e.mailbox.Fetch(ctx, userID, int64(count), "")
	if err != nil {
		return e.collaboratorFailure("fetch your emails", err)
	}

	categories := e.tf.Categorize(ctx, msgs)

	var b strings.Builder
	fmt.Fprintf(&b, "📊 Here's how I've organized your last %d emails, %s:\n\n", len(msgs), userName)
	for _, cat := range categories {
		fmt.Fprintf(&b, "**%s** (%d emails)\n", cat.Name, cat.Count)
		for i, s := range cat.Emails {
			if i == categoryListLimit {
				break
			}
			fmt.Fprintf(&b, "  %d. %s - %s...\n", i+1, s.Message.Subject, truncateClean(s.Summary, summaryListBudget))
		}
		if cat.Count > categoryListLimit {
			fmt.Fprintf(&b, "  ...and %d more\n", cat.Count-categoryListLimit)
		}
		b.WriteString("\n")
	}

	return &Response{
		Message:    b.String(),
		ActionType: string(CmdCategorize),
		Data:       map[string]any{"categories": categories},
	}
}

func (e *Executor) handleDailyDigest(ctx context.Context, userID string, intent Intent) *Response {
	count := normalizeCount(intent.IntOr("count", defaultBatchCount))

	msgs, err := e.mailbox.Fetch(ctx, userID, int64(count), "")
	if err != nil {
		return e.collaboratorFailure("fetch your emails", err)
	}

	digest, err := e.tf.DailyDigest(ctx, msgs)
	if err != nil {
		// No degraded digest: an empty overview is worse than an error.
		e.log.Errorw("digest generation failed", "user_id", userID, "error", err)
		return &Response{
			Message:    "I couldn't put together your digest right now. Please try again in a few minutes.",
			ActionType: ActionError,
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📬 **Your Daily Email Digest** (%s)\n\n", digest.Date)
	fmt.Fprintf(&b, "You have **%d emails** to review.\n\n", digest.TotalEmails)
	fmt.Fprintf(&b, "**Summary**: %s\n\n", digest.Summary)

	if len(digest.UrgentEmails) > 0 {
		b.WriteString("🚨 **Urgent**:\n")
		for _, s := range digest.UrgentEmails {
			fmt.Fprintf(&b, "  • %s from %s\n", s.Message.Subject, s.Message.Sender)
		}
		b.WriteString("\n")
	}

	if len(digest.ActionItems) > 0 {
		b.WriteString("📋 **Action Items**:\n")
		for _, item := range digest.ActionItems {
			fmt.Fprintf(&b, "  • %s\n", item)
		}
		b.WriteString("\n")
	}

	b.WriteString("Would you like me to show you any specific category or help you respond to any emails?")

	return &Response{
		Message:    b.String(),
		ActionType: string(CmdDailyDigest),
		Digest:     &digest,
	}
}

// resolveTarget finds the message a command refers to, checking in fixed
// priority order: 1-based index into the recent list, explicit id, sender
// substring (name or address), subject keyword, then the first recent
// message when defaultFirst is set. It never mutates the context.
func resolveTarget(sess *session.Context, intent Intent, defaultFirst bool) (session.EmailRef, bool) {
	recent := sess.RecentEmails

	if num, ok := intent.Int("email_number"); ok {
		if num >= 1 && num <= len(recent) {
			return recent[num-1], true
		}
		return session.EmailRef{}, false
	}

	if id, ok := intent.Str("email_id"); ok {
		for _, ref := range recent {
			if ref.ID == id {
				return ref, true
			}
		}
		return session.EmailRef{ID: id}, true
	}

	if sender, ok := intent.Str("sender"); ok {
		needle := strings.ToLower(sender)
		for _, ref := range recent {
			if strings.Contains(strings.ToLower(ref.Sender), needle) ||
				strings.Contains(strings.ToLower(ref.SenderEmail), needle) {
				return ref, true
			}
		}
		return session.EmailRef{}, false
	}

	if keyword, ok := intent.Str("subject_keyword"); ok {
		needle := strings.ToLower(keyword)
		for _, ref := range recent {
			if strings.Contains(strings.ToLower(ref.Subject), needle) {
				return ref, true
			}
		}
		return session.EmailRef{}, false
	}

	if defaultFirst && len(recent) > 0 {
		return recent[0], true
	}

	return session.EmailRef{}, false
}

func (e *Executor) collaboratorFailure(doing string, err error) *Response {
	e.log.Errorw("collaborator failure", "doing", doing, "error", err)

	if isAuthError(err) {
		return &Response{
			Message:    "Your Gmail session has expired. Please log in again to continue.",
			ActionType: ActionReauth,
		}
	}

	return &Response{
		Message:    fmt.Sprintf("I ran into an issue trying to %s. Please try again.", doing),
		ActionType: ActionError,
	}
}

func isAuthError(err error) bool {
	return errors.Is(err, mail.ErrUnauthorized) || errors.Is(err, mail.ErrNoToken)
}

func normalizeCount(count int) int {
	if count < 1 {
		return defaultReadCount
	}
	if count > maxFetchCount {
		return maxFetchCount
	}
	return count
}

func helpResponse(userName string) *Response {
	var b strings.Builder
	fmt.Fprintf(&b, "👋 Hi %s! I'm your AI email assistant. Here's what I can do:\n\n", userName)
	b.WriteString("**📧 Read Emails**\n")
	b.WriteString("  • \"Show me my last 5 emails\"\n")
	b.WriteString("  • \"Show emails from John\"\n")
	b.WriteString("  • \"Find emails about invoice\"\n\n")
	b.WriteString("**✍️ Reply to Emails**\n")
	b.WriteString("  • \"Write a reply to email 2\"\n")
	b.WriteString("  • \"Reply to the email from Sarah\"\n")
	b.WriteString("  • \"Generate a professional response\"\n\n")
	b.WriteString("**🗑️ Delete Emails**\n")
	b.WriteString("  • \"Delete email number 3\"\n")
	b.WriteString("  • \"Delete the email from promotions\"\n\n")
	b.WriteString("**📊 Organize**\n")
	b.WriteString("  • \"Categorize my inbox\"\n")
	b.WriteString("  • \"Give me today's email digest\"\n\n")
	b.WriteString("Just type naturally - I'll understand! 😊")

	return &Response{Message: b.String(), ActionType: string(CmdHelp)}
}

func unknownResponse(userName string) *Response {
	msg := fmt.Sprintf("I'm not sure I understood that, %s. You can ask me to:\n\n", userName) +
		"• **Read emails**: \"Show me my last 5 emails\"\n" +
		"• **Generate replies**: \"Write a reply to email 2\"\n" +
		"• **Send emails**: \"Send that reply\" (after generating one)\n" +
		"• **Delete emails**: \"Delete the email from John\"\n" +
		"• **Categorize**: \"Organize my inbox\"\n" +
		"• **Daily digest**: \"Give me today's email summary\"\n\n" +
		"What would you like me to do?"

	return &Response{Message: msg, ActionType: ActionUnknown}
}

// Welcome is the greeting shown when a chat session opens.
func Welcome(userName string) *Response {
	if userName == "" {
		userName = "there"
	}

	msg := fmt.Sprintf("👋 Welcome back, **%s**! I'm your AI email assistant.\n\n", userName) +
		"I can help you:\n" +
		"• 📧 Read and summarize your emails\n" +
		"• ✍️ Generate smart replies\n" +
		"• 🗑️ Delete unwanted messages\n" +
		"• 📊 Organize your inbox\n\n" +
		"Try saying **\"Show me my last 5 emails\"** to get started!"

	return &Response{Message: msg, ActionType: string(CmdHelp)}
}
