// Package session holds per-user conversational state: the recently shown
// email list, a pending reply draft, and a pending confirmable action.
package session

import (
	"context"

	"github.com/Karanpal97/constructure-ai/internal/mail"
)

// PendingKind tags the variant of a pending confirmable action. Only delete
// exists today; the tag keeps future confirmable actions type-safe.
type PendingKind string

// PendingDelete awaits confirmation before trashing a message.
const PendingDelete PendingKind = "delete"

// PendingAction is a destructive operation awaiting explicit confirmation.
type PendingAction struct {
	Kind        PendingKind `json:"kind"`
	TargetID    string      `json:"target_id"`
	Description string      `json:"description"`
}

// EmailRef is a lightweight reference to a recently shown email, kept for
// follow-up commands ("reply to email 2", "delete the one from John").
type EmailRef struct {
	ID          string `json:"id"`
	Sender      string `json:"sender"`
	SenderEmail string `json:"sender_email"`
	Subject     string `json:"subject"`
	Summary     string `json:"summary"`
}

// Context is one user's conversation state. It is mutated only by the
// executor, which serializes turns per user.
type Context struct {
	RecentEmails []EmailRef       `json:"recent_emails,omitempty"`
	PendingReply *mail.ReplyDraft `json:"pending_reply,omitempty"`
	Pending      *PendingAction   `json:"pending_action,omitempty"`
}

// RemoveRecent drops the ref with the given id, if present.
func (c *Context) RemoveRecent(id string) {
	kept := c.RecentEmails[:0]
	for _, ref := range c.RecentEmails {
		if ref.ID != id {
			kept = append(kept, ref)
		}
	}
	c.RecentEmails = kept
}

// Store persists conversation contexts keyed by user id. Get returns a
// fresh empty context for unknown users.
type Store interface {
	Get(ctx context.Context, userID string) (*Context, error)
	Put(ctx context.Context, userID string, c *Context) error
}
