package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kolson/planner/backend/internal/model/chat"
	"github.com/kolson/planner/backend/internal/store"
)

var (
	ErrVisitorRequired = errors.New("visitor id is required")
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyMessage    = errors.New("message content is empty")
)

// DefaultResumeLimit bounds the history returned when a session is resumed.
const DefaultResumeLimit = 50

// Repository is the persistence surface the service needs.
type Repository interface {
	store.SessionStore
	store.MessageStore
}

// Service encapsulates conversation state management on top of the store.
type Service struct {
	repo Repository
}

// NewService wires the chat service to a repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// StartSession creates or resumes the session bound to visitorID.
func (s *Service) StartSession(ctx context.Context, visitorID string) (*chat.Session, error) {
	visitorID = strings.TrimSpace(visitorID)
	if visitorID == "" {
		return nil, ErrVisitorRequired
	}
	session, err := s.repo.UpsertSession(ctx, visitorID)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	return session, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*chat.Session, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// SaveMessage appends a message to the session history.
func (s *Service) SaveMessage(ctx context.Context, sessionID string, role chat.Role, content string) (*chat.Message, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}

	msg := &chat.Message{SessionID: sessionID, Role: role, Content: content}
	if err := s.repo.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("save %s message: %w", role, err)
	}
	return msg, nil
}

// LoadTranscript returns up to limit of the most recent messages, oldest first.
func (s *Service) LoadTranscript(ctx context.Context, sessionID string, limit int) ([]chat.Message, error) {
	messages, err := s.repo.RecentMessages(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	return messages, nil
}

// UpdateContact records contact details captured for a session.
func (s *Service) UpdateContact(ctx context.Context, sessionID string, contact chat.ContactUpdate) error {
	contact.Email = strings.TrimSpace(contact.Email)
	contact.Name = strings.TrimSpace(contact.Name)

	err := s.repo.UpdateContact(ctx, sessionID, contact)
	if errors.Is(err, store.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("update contact: %w", err)
	}
	return nil
}
