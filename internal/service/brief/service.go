package brief

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/kolson/planner/backend/internal/logger"
	briefmodel "github.com/kolson/planner/backend/internal/model/brief"
	"github.com/kolson/planner/backend/internal/model/chat"
	"github.com/kolson/planner/backend/internal/store"
)

// ErrBriefNotFound is returned when a session or share token has no brief.
var ErrBriefNotFound = errors.New("brief not found")

// Repository is the persistence surface the brief pipeline reads and writes.
type Repository interface {
	store.MessageStore
	store.BriefStore
}

// Notifier tells the site owner about a shared brief. Implementations swallow their own failures.
type Notifier interface {
	Notify(ctx context.Context, contactEmail string, b *briefmodel.Brief, shareURL string)
}

// Config tunes the pipeline.
type Config struct {
	MergeFields   bool
	MessageWindow int
	PublicBaseURL string
}

// Service runs extraction passes and owns brief reads, sharing and publishing.
type Service struct {
	repo       Repository
	extractor  *Extractor
	dispatcher *Dispatcher
	notifier   Notifier
	cfg        Config
	log        *log.Logger
}

// NewService wires the pipeline. dispatcher and notifier may be nil; without a dispatcher
// background work runs inline.
func NewService(repo Repository, extractor *Extractor, dispatcher *Dispatcher, notifier Notifier, cfg Config) *Service {
	if cfg.MessageWindow <= 0 {
		cfg.MessageWindow = 200
	}
	cfg.PublicBaseURL = strings.TrimSuffix(cfg.PublicBaseURL, "/")
	return &Service{
		repo:       repo,
		extractor:  extractor,
		dispatcher: dispatcher,
		notifier:   notifier,
		cfg:        cfg,
		log:        logger.For("brief"),
	}
}

// ScheduleRefresh queues an extraction pass for sessionID.
func (s *Service) ScheduleRefresh(sessionID string) {
	s.dispatch("extract:"+sessionID, func(ctx context.Context) error {
		return s.Refresh(ctx, sessionID)
	})
}

// Refresh runs one extraction pass over the session transcript and upserts the result.
// Below the user-turn gate it only makes sure an empty brief exists.
func (s *Service) Refresh(ctx context.Context, sessionID string) error {
	messages, err := s.repo.RecentMessages(ctx, sessionID, s.cfg.MessageWindow)
	if err != nil {
		return fmt.Errorf("load transcript: %w", err)
	}
	turns := chat.Turns(messages)

	if s.extractor == nil || !s.extractor.Ready(turns) {
		if err := s.repo.EnsureBrief(ctx, sessionID); err != nil {
			return fmt.Errorf("seed brief: %w", err)
		}
		return nil
	}

	fields, ok := s.extractor.Extract(ctx, turns)
	if !ok {
		return nil
	}

	if s.cfg.MergeFields {
		prev, err := s.repo.GetBriefBySession(ctx, sessionID)
		switch {
		case err == nil:
			fields = fields.MergeOnto(prev.Fields)
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("load previous brief: %w", err)
		}
	}

	status := briefmodel.DeriveStatus(fields)
	if err := s.repo.UpsertBrief(ctx, sessionID, fields, status); err != nil {
		return fmt.Errorf("upsert brief: %w", err)
	}
	s.log.Debug("brief refreshed", "session", sessionID, "status", status,
		"goals", len(fields.Goals), "features", len(fields.Features))
	return nil
}

// Get returns the brief owned by sessionID.
func (s *Service) Get(ctx context.Context, sessionID string) (*briefmodel.Brief, error) {
	b, err := s.repo.GetBriefBySession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrBriefNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get brief: %w", err)
	}
	return b, nil
}

// GetPublic resolves a share token. Malformed tokens are rejected before any store access.
func (s *Service) GetPublic(ctx context.Context, shareID string) (*briefmodel.Brief, error) {
	if !briefmodel.ValidShareID(shareID) {
		return nil, briefmodel.ErrInvalidShareID
	}
	b, err := s.repo.GetBriefByShareID(ctx, shareID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrBriefNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get public brief: %w", err)
	}
	return b, nil
}

// Share marks the brief shared, assigns its public token and notifies the owner when
// the visitor left an email address.
func (s *Service) Share(ctx context.Context, sessionID, contactEmail string) (*briefmodel.Brief, error) {
	if err := s.repo.MarkShared(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("mark shared: %w", err)
	}
	if _, err := s.repo.AssignShareID(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("assign share id: %w", err)
	}
	b, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	contactEmail = strings.TrimSpace(contactEmail)
	if contactEmail != "" && s.notifier != nil {
		shareURL := s.ShareURL(b.ShareID)
		shared := *b
		s.dispatch("notify:"+sessionID, func(ctx context.Context) error {
			s.notifier.Notify(ctx, contactEmail, &shared, shareURL)
			return nil
		})
	}
	return b, nil
}

// ShareURL builds the public link for a share token.
func (s *Service) ShareURL(shareID string) string {
	if shareID == "" {
		return ""
	}
	return s.cfg.PublicBaseURL + "/brief/" + shareID
}

func (s *Service) dispatch(key string, task Task) {
	if s.dispatcher != nil {
		s.dispatcher.Submit(key, task)
		return
	}
	if err := task(context.Background()); err != nil {
		s.log.Warn("background task failed", "key", key, "err", err)
	}
}
