package assistant

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Karanpal97/constructure-ai/internal/mail"
	"github.com/Karanpal97/constructure-ai/internal/session"
)

type mailboxMock struct {
	FetchFunc  func(ctx context.Context, userID string, maxResults int64, query string) ([]mail.Message, error)
	GetFunc    func(ctx context.Context, userID, id string) (mail.Message, error)
	SendFunc   func(ctx context.Context, userID, to, subject, body, threadID string) (mail.SendResult, error)
	DeleteFunc func(ctx context.Context, userID, id string) error

	fetchCalls  []int64
	sendCalls   []string
	deleteCalls []string
}

func (m *mailboxMock) Fetch(ctx context.Context, userID string, maxResults int64, query string) ([]mail.Message, error) {
	m.fetchCalls = append(m.fetchCalls, maxResults)
	return m.FetchFunc(ctx, userID, maxResults, query)
}

func (m *mailboxMock) Get(ctx context.Context, userID, id string) (mail.Message, error) {
	return m.GetFunc(ctx, userID, id)
}

func (m *mailboxMock) Send(ctx context.Context, userID, to, subject, body, threadID string) (mail.SendResult, error) {
	m.sendCalls = append(m.sendCalls, subject)
	return m.SendFunc(ctx, userID, to, subject, body, threadID)
}

func (m *mailboxMock) Delete(ctx context.Context, userID, id string) error {
	m.deleteCalls = append(m.deleteCalls, id)
	return m.DeleteFunc(ctx, userID, id)
}

type parserMock struct {
	ParseFunc func(ctx context.Context, message string, sess *session.Context) Intent
	calls     int
}

func (m *parserMock) Parse(ctx context.Context, message string, sess *session.Context) Intent {
	m.calls++
	return m.ParseFunc(ctx, message, sess)
}

type transformerMock struct {
	SummarizeEmailsFunc func(ctx context.Context, msgs []mail.Message) []mail.Summary
	GenerateReplyFunc   func(ctx context.Context, m mail.Message, tone string) (mail.ReplyDraft, error)
	CategorizeFunc      func(ctx context.Context, msgs []mail.Message) []mail.Category
	DailyDigestFunc     func(ctx context.Context, msgs []mail.Message) (mail.Digest, error)
}

func (m *transformerMock) SummarizeEmails(ctx context.Context, msgs []mail.Message) []mail.Summary {
	return m.SummarizeEmailsFunc(ctx, msgs)
}

func (m *transformerMock) GenerateReply(ctx context.Context, msg mail.Message, tone string) (mail.ReplyDraft, error) {
	return m.GenerateReplyFunc(ctx, msg, tone)
}

func (m *transformerMock) Categorize(ctx context.Context, msgs []mail.Message) []mail.Category {
	return m.CategorizeFunc(ctx, msgs)
}

func (m *transformerMock) DailyDigest(ctx context.Context, msgs []mail.Message) (mail.Digest, error) {
	return m.DailyDigestFunc(ctx, msgs)
}

type credsMock struct{ has bool }

func (m credsMock) HasCredentials(string) bool { return m.has }

func plainSummaries(_ context.Context, msgs []mail.Message) []mail.Summary {
	out := make([]mail.Summary, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, mail.Summary{Message: m, Summary: "about " + m.Subject})
	}
	return out
}

func staticIntent(in Intent) *parserMock {
	return &parserMock{
		ParseFunc: func(context.Context, string, *session.Context) Intent { return in },
	}
}

func newTestExecutor(mb *mailboxMock, p *parserMock, tf *transformerMock) (*Executor, *session.MemoryStore) {
	store := session.NewMemoryStore(session.DefaultTTL)
	return NewExecutor(mb, p, tf, store, credsMock{has: true}, zap.NewNop().Sugar()), store
}

func TestHandleMessageRequiresCredentials(t *testing.T) {
	e := NewExecutor(&mailboxMock{}, staticIntent(Intent{Command: CmdHelp}), &transformerMock{},
		session.NewMemoryStore(session.DefaultTTL), credsMock{has: false}, zap.NewNop().Sugar())

	resp := e.HandleMessage(context.Background(), "u1", "Kim", "show my emails")

	assert.Equal(t, ActionReauth, resp.ActionType)
}

func TestHandleReadEmails(t *testing.T) {
	mb := &mailboxMock{
		FetchFunc: func(_ context.Context, _ string, _ int64, _ string) ([]mail.Message, error) {
			return testMessages(3), nil
		},
	}
	tf := &transformerMock{SummarizeEmailsFunc: plainSummaries}
	e, store := newTestExecutor(mb, staticIntent(Intent{Command: CmdReadEmails, Params: map[string]any{}}), tf)

	resp := e.HandleMessage(context.Background(), "u1", "Kim", "show my emails")

	assert.Equal(t, string(CmdReadEmails), resp.ActionType)
	assert.Len(t, resp.Emails, 3)
	assert.Contains(t, resp.Message, "Here are your last 3 emails, Kim:")
	assert.Contains(t, resp.Message, "**1. Subject A**")
	assert.Contains(t, resp.Message, "**3. Subject C**")

	require.Equal(t, []int64{5}, mb.fetchCalls)

	sess, err := store.Get(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, sess.RecentEmails, 3)
	assert.Equal(t, "a", sess.RecentEmails[0].ID)
	assert.Equal(t, "about Subject A", sess.RecentEmails[0].Summary)
}

func TestHandleReadEmailsClampsCount(t *testing.T) {
	mb := &mailboxMock{
		FetchFunc: func(_ context.Context, _ string, _ int64, _ string) ([]mail.Message, error) {
			return nil, nil
		},
	}
	tf := &transformerMock{SummarizeEmailsFunc: plainSummaries}
	e, _ := newTestExecutor(mb, staticIntent(Intent{
		Command: CmdReadEmails,
		Params:  map[string]any{"count": float64(200)},
	}), tf)

	resp := e.HandleMessage(context.Background(), "u1", "Kim", "show me 200 emails")

	assert.Equal(t, []int64{50}, mb.fetchCalls)
	assert.Contains(t, resp.Message, "don't have any emails")
}

func TestHandleReadEmailsAuthFailure(t *testing.T) {
	mb := &mailboxMock{
		FetchFunc: func(_ context.Context, _ string, _ int64, _ string) ([]mail.Message, error) {
			return nil, fmt.Errorf("list failed: %w", mail.ErrUnauthorized)
		},
	}
	e, _ := newTestExecutor(mb, staticIntent(Intent{Command: CmdReadEmails, Params: map[string]any{}}), &transformerMock{})

	resp := e.HandleMessage(context.Background(), "u1", "Kim", "show my emails")

	assert.Equal(t, ActionReauth, resp.ActionType)
}

func TestReplyThenSend(t *testing.T) {
	mb := &mailboxMock{
		GetFunc: func(_ context.Context, _, id string) (mail.Message, error) {
			return mail.Message{
				ID: id, ThreadID: "t-" + id,
				Sender: "Alice", SenderEmail: "alice@example.com",
				Subject: "Review request", Body: "Please review.",
			}, nil
		},
		SendFunc: func(_ context.Context, _, _, _, _, _ string) (mail.SendResult, error) {
			return mail.SendResult{Success: true, MessageID: "sent1", ThreadID: "t-b"}, nil
		},
	}
	tf := &transformerMock{
		SummarizeEmailsFunc: plainSummaries,
		GenerateReplyFunc: func(_ context.Context, m mail.Message, tone string) (mail.ReplyDraft, error) {
			return mail.ReplyDraft{
				MessageID: m.ID, ThreadID: m.ThreadID, To: m.SenderEmail,
				Subject: m.Subject, Body: "Will do.", Tone: tone,
			}, nil
		},
	}

	intents := []Intent{
		{Command: CmdGenerateResponse, Params: map[string]any{"email_number": float64(2)}},
		{Command: CmdSendEmail, Params: map[string]any{}},
		{Command: CmdSendEmail, Params: map[string]any{}},
	}
	i := 0
	p := &parserMock{ParseFunc: func(context.Context, string, *session.Context) Intent {
		in := intents[i]
		i++
		return in
	}}

	e, store := newTestExecutor(mb, p, tf)

	ctx := context.Background()
	sess, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	sess.RecentEmails = []session.EmailRef{
		{ID: "a", Sender: "Bob", Subject: "Other"},
		{ID: "b", Sender: "Alice", Subject: "Review request"},
	}
	require.NoError(t, store.Put(ctx, "u1", sess))

	resp := e.HandleMessage(ctx, "u1", "Kim", "reply to email 2")
	assert.Equal(t, string(CmdGenerateResponse), resp.ActionType)
	require.Len(t, resp.Replies, 1)
	assert.Equal(t, "Will do.", resp.Replies[0].Body)
	assert.Contains(t, resp.Message, "Would you like me to send this reply?")

	resp = e.HandleMessage(ctx, "u1", "Kim", "send it")
	assert.Equal(t, string(CmdSendEmail), resp.ActionType)
	assert.Contains(t, resp.Message, "alice@example.com")
	require.Equal(t, []string{"Re: Review request"}, mb.sendCalls)

	// The draft is consumed by the send; a second send has nothing to do.
	resp = e.HandleMessage(ctx, "u1", "Kim", "send it")
	assert.Equal(t, ActionError, resp.ActionType)
	assert.Contains(t, resp.Message, "don't have a reply ready")
	assert.Len(t, mb.sendCalls, 1)
}

func TestSendKeepsDraftOnFailure(t *testing.T) {
	mb := &mailboxMock{
		SendFunc: func(_ context.Context, _, _, _, _, _ string) (mail.SendResult, error) {
			return mail.SendResult{}, errors.New("send failed: boom")
		},
	}
	e, store := newTestExecutor(mb, staticIntent(Intent{Command: CmdSendEmail, Params: map[string]any{}}), &transformerMock{})

	ctx := context.Background()
	sess, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	sess.PendingReply = &mail.ReplyDraft{To: "alice@example.com", Subject: "Hello", Body: "Hi"}
	require.NoError(t, store.Put(ctx, "u1", sess))

	resp := e.HandleMessage(ctx, "u1", "Kim", "send it")
	assert.Equal(t, ActionError, resp.ActionType)

	sess, err = store.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, sess.PendingReply)
	assert.Equal(t, "Hi", sess.PendingReply.Body)
}

func TestDeleteConfirmFlow(t *testing.T) {
	mb := &mailboxMock{
		DeleteFunc: func(context.Context, string, string) error { return nil },
	}
	p := staticIntent(Intent{Command: CmdDeleteEmail, Params: map[string]any{"email_number": float64(2)}})
	e, store := newTestExecutor(mb, p, &transformerMock{})

	ctx := context.Background()
	sess, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	sess.RecentEmails = []session.EmailRef{
		{ID: "a", Sender: "Bob", Subject: "Keep me"},
		{ID: "b", Sender: "Spam Inc", Subject: "Big sale"},
	}
	require.NoError(t, store.Put(ctx, "u1", sess))

	resp := e.HandleMessage(ctx, "u1", "Kim", "delete email 2")
	assert.Equal(t, ActionConfirmDelete, resp.ActionType)
	assert.Contains(t, resp.Message, `"Big sale" from Spam Inc`)
	assert.Empty(t, mb.deleteCalls)

	resp = e.HandleMessage(ctx, "u1", "Kim", "Yes, delete it")
	assert.Equal(t, string(CmdDeleteEmail), resp.ActionType)
	assert.Equal(t, []string{"b"}, mb.deleteCalls)

	// Confirmation turns bypass intent parsing.
	assert.Equal(t, 1, p.calls)

	sess, err = store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, sess.Pending)
	require.Len(t, sess.RecentEmails, 1)
	assert.Equal(t, "a", sess.RecentEmails[0].ID)
}

func TestDeleteCancelFlow(t *testing.T) {
	mb := &mailboxMock{
		DeleteFunc: func(context.Context, string, string) error {
			t.Fatal("delete must not run on cancel")
			return nil
		},
	}
	p := staticIntent(Intent{Command: CmdDeleteEmail, Params: map[string]any{"email_number": float64(1)}})
	e, store := newTestExecutor(mb, p, &transformerMock{})

	ctx := context.Background()
	sess, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	sess.RecentEmails = []session.EmailRef{{ID: "a", Sender: "Bob", Subject: "Keep me"}}
	require.NoError(t, store.Put(ctx, "u1", sess))

	resp := e.HandleMessage(ctx, "u1", "Kim", "delete the first email")
	assert.Equal(t, ActionConfirmDelete, resp.ActionType)

	resp = e.HandleMessage(ctx, "u1", "Kim", "actually never mind")
	assert.Equal(t, ActionCancelled, resp.ActionType)

	sess, err = store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, sess.Pending)
	assert.Len(t, sess.RecentEmails, 1)
}

func TestDeleteFailureKeepsPending(t *testing.T) {
	calls := 0
	mb := &mailboxMock{
		DeleteFunc: func(context.Context, string, string) error {
			calls++
			if calls == 1 {
				return errors.New("trash failed: boom")
			}
			return nil
		},
	}
	p := staticIntent(Intent{Command: CmdDeleteEmail, Params: map[string]any{"email_number": float64(1)}})
	e, store := newTestExecutor(mb, p, &transformerMock{})

	ctx := context.Background()
	sess, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	sess.RecentEmails = []session.EmailRef{{ID: "a", Sender: "Bob", Subject: "Keep me"}}
	require.NoError(t, store.Put(ctx, "u1", sess))

	e.HandleMessage(ctx, "u1", "Kim", "delete it")

	resp := e.HandleMessage(ctx, "u1", "Kim", "yes")
	assert.Equal(t, ActionError, resp.ActionType)

	sess, err = store.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, sess.Pending)

	resp = e.HandleMessage(ctx, "u1", "Kim", "yes")
	assert.Equal(t, string(CmdDeleteEmail), resp.ActionType)
	assert.Equal(t, 2, calls)
}

func TestDeleteWithoutContext(t *testing.T) {
	e, _ := newTestExecutor(&mailboxMock{},
		staticIntent(Intent{Command: CmdDeleteEmail, Params: map[string]any{"sender": "John"}}), &transformerMock{})

	resp := e.HandleMessage(context.Background(), "u1", "Kim", "delete the email from John")

	assert.Equal(t, ActionError, resp.ActionType)
	assert.Contains(t, resp.Message, "Show my emails")
}

func TestIsAffirmation(t *testing.T) {
	tests := map[string]bool{
		"yes":             true,
		"Yes, delete it":  true,
		"sure, go ahead":  true,
		"DO IT":           true,
		"confirm":         true,
		"no":              false,
		"cancel":          false,
		"what about Bob?": false,
	}

	for input, want := range tests {
		assert.Equal(t, want, isAffirmation(input), "input %q", input)
	}
}

func TestResolveTarget(t *testing.T) {
	sess := &session.Context{
		RecentEmails: []session.EmailRef{
			{ID: "a", Sender: "Alice Smith", SenderEmail: "alice@example.com", Subject: "Standup notes"},
			{ID: "b", Sender: "Bob Jones", SenderEmail: "bob@corp.com", Subject: "Invoice #42"},
			{ID: "c", Sender: "Carol", SenderEmail: "carol@example.com", Subject: "Lunch on Friday"},
		},
	}

	tests := map[string]struct {
		params       map[string]any
		defaultFirst bool
		wantID       string
		wantOK       bool
	}{
		"by number":                 {params: map[string]any{"email_number": float64(2)}, wantID: "b", wantOK: true},
		"number out of range":       {params: map[string]any{"email_number": float64(9)}, wantOK: false},
		"number beats sender":       {params: map[string]any{"email_number": float64(3), "sender": "Alice"}, wantID: "c", wantOK: true},
		"by id":                     {params: map[string]any{"email_id": "b"}, wantID: "b", wantOK: true},
		"unknown id passes through": {params: map[string]any{"email_id": "zzz"}, wantID: "zzz", wantOK: true},
		"by sender name":            {params: map[string]any{"sender": "bob"}, wantID: "b", wantOK: true},
		"by sender address":         {params: map[string]any{"sender": "carol@"}, wantID: "c", wantOK: true},
		"sender not found":          {params: map[string]any{"sender": "dave"}, wantOK: false},
		"by subject keyword":        {params: map[string]any{"subject_keyword": "invoice"}, wantID: "b", wantOK: true},
		"default first":             {params: map[string]any{}, defaultFirst: true, wantID: "a", wantOK: true},
		"no default":                {params: map[string]any{}, wantOK: false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			ref, ok := resolveTarget(sess, Intent{Command: CmdDeleteEmail, Params: tc.params}, tc.defaultFirst)
			require.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.Equal(t, tc.wantID, ref.ID)
			}
		})
	}
}

func TestHandleCategorize(t *testing.T) {
	mb := &mailboxMock{
		FetchFunc: func(_ context.Context, _ string, _ int64, _ string) ([]mail.Message, error) {
			return testMessages(5), nil
		},
	}
	tf := &transformerMock{
		CategorizeFunc: func(_ context.Context, msgs []mail.Message) []mail.Category {
			sums := plainSummaries(context.Background(), msgs)
			return []mail.Category{{Name: "Work", Emails: sums, Count: len(sums)}}
		},
	}
	e, _ := newTestExecutor(mb, staticIntent(Intent{Command: CmdCategorize, Params: map[string]any{}}), tf)

	resp := e.HandleMessage(context.Background(), "u1", "Kim", "organize my inbox")

	assert.Equal(t, string(CmdCategorize), resp.ActionType)
	assert.Equal(t, []int64{20}, mb.fetchCalls)
	assert.Contains(t, resp.Message, "**Work** (5 emails)")
	// Only the first three per category are listed.
	assert.Contains(t, resp.Message, "...and 2 more")
	assert.NotContains(t, resp.Message, "4. Subject D")
}

func TestHandleDailyDigest(t *testing.T) {
	mb := &mailboxMock{
		FetchFunc: func(_ context.Context, _ string, _ int64, _ string) ([]mail.Message, error) {
			return testMessages(2), nil
		},
	}
	tf := &transformerMock{
		DailyDigestFunc: func(_ context.Context, msgs []mail.Message) (mail.Digest, error) {
			return mail.Digest{
				Date:        "2026-08-29",
				TotalEmails: len(msgs),
				Summary:     "Quiet day.",
				ActionItems: []string{"Reply to Alice"},
				UrgentEmails: []mail.Summary{
					{Message: msgs[0], Summary: "urgent thing"},
				},
			}, nil
		},
	}
	e, _ := newTestExecutor(mb, staticIntent(Intent{Command: CmdDailyDigest, Params: map[string]any{}}), tf)

	resp := e.HandleMessage(context.Background(), "u1", "Kim", "daily digest")

	assert.Equal(t, string(CmdDailyDigest), resp.ActionType)
	require.NotNil(t, resp.Digest)
	assert.Contains(t, resp.Message, "Quiet day.")
	assert.Contains(t, resp.Message, "Reply to Alice")
	assert.Contains(t, resp.Message, "Subject A from Sender A")
}

func TestHandleDailyDigestFailure(t *testing.T) {
	mb := &mailboxMock{
		FetchFunc: func(_ context.Context, _ string, _ int64, _ string) ([]mail.Message, error) {
			return testMessages(2), nil
		},
	}
	tf := &transformerMock{
		DailyDigestFunc: func(context.Context, []mail.Message) (mail.Digest, error) {
			return mail.Digest{}, errors.New("digest generation failed: boom")
		},
	}
	e, _ := newTestExecutor(mb, staticIntent(Intent{Command: CmdDailyDigest, Params: map[string]any{}}), tf)

	resp := e.HandleMessage(context.Background(), "u1", "Kim", "daily digest")

	assert.Equal(t, ActionError, resp.ActionType)
}

func TestHelpAndUnknown(t *testing.T) {
	e, _ := newTestExecutor(&mailboxMock{}, staticIntent(Intent{Command: CmdHelp}), &transformerMock{})
	resp := e.HandleMessage(context.Background(), "u1", "Kim", "help")
	assert.Equal(t, string(CmdHelp), resp.ActionType)
	assert.Contains(t, resp.Message, "Hi Kim!")

	e, _ = newTestExecutor(&mailboxMock{}, staticIntent(Intent{Command: CmdUnknown}), &transformerMock{})
	resp = e.HandleMessage(context.Background(), "u1", "", "gibberish")
	assert.Equal(t, ActionUnknown, resp.ActionType)
	assert.Contains(t, resp.Message, "there")
}

func TestWelcome(t *testing.T) {
	resp := Welcome("Kim")
	assert.Contains(t, resp.Message, "Welcome back, **Kim**!")

	resp = Welcome("")
	assert.Contains(t, resp.Message, "Welcome back, **there**!")
}
