// Package store persists sessions, messages and project briefs.
package store

import (
	"context"
	"errors"

	"github.com/kolson/planner/backend/internal/model/brief"
	"github.com/kolson/planner/backend/internal/model/chat"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// SessionStore creates, resumes and updates visitor sessions.
type SessionStore interface {
	UpsertSession(ctx context.Context, visitorID string) (*chat.Session, error)
	GetSession(ctx context.Context, sessionID string) (*chat.Session, error)
	UpdateContact(ctx context.Context, sessionID string, contact chat.ContactUpdate) error
}

// MessageStore appends and reads ordered conversation history.
type MessageStore interface {
	AppendMessage(ctx context.Context, msg *chat.Message) error
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]chat.Message, error)
}

// BriefStore holds at most one brief per session.
type BriefStore interface {
	UpsertBrief(ctx context.Context, sessionID string, fields brief.Fields, status brief.Status) error
	EnsureBrief(ctx context.Context, sessionID string) error
	MarkShared(ctx context.Context, sessionID string) error
	AssignShareID(ctx context.Context, sessionID string) (string, error)
	GetBriefBySession(ctx context.Context, sessionID string) (*brief.Brief, error)
	GetBriefByShareID(ctx context.Context, shareID string) (*brief.Brief, error)
}

// Store is the full persistence surface.
type Store interface {
	SessionStore
	MessageStore
	BriefStore
	Close() error
}

var _ Store = (*SQLiteStore)(nil)
