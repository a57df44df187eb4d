package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/synesthesia/backend/internal/model/chat"
	"github.com/zhouzirui/synesthesia/backend/internal/service/annotator"
	"github.com/zhouzirui/synesthesia/backend/internal/service/conversation"
	"github.com/zhouzirui/synesthesia/backend/internal/service/trajectory"
	"github.com/zhouzirui/synesthesia/backend/internal/service/transport"
	"github.com/zhouzirui/synesthesia/backend/internal/view"
)

var ErrSessionNotFound = errors.New("session not found")

// RuntimeFailurePrefix starts the banner shown when analysis is unavailable.
const RuntimeFailurePrefix = "Failed to load analysis runtime: "

// Dependencies are shared by every session.
type Dependencies struct {
	Analyzer           annotator.Analyzer
	Backend            transport.Backend
	Annotation         annotator.Config
	TrajectoryCapacity int
	Graph              conversation.Options
}

// Session bundles the per-session pipeline.
type Session struct {
	chat.Session
	View       *view.State
	Controller *conversation.Controller
	Transport  *transport.Transport
}

// Service is the in-memory session registry.
type Service struct {
	deps   Dependencies
	logger *zap.Logger

	mu         sync.RWMutex
	sessions   map[string]*Session
	credential string
	banner     string
}

// NewService creates a registry. credential may be empty.
func NewService(deps Dependencies, credential string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.TrajectoryCapacity <= 0 {
		deps.TrajectoryCapacity = trajectory.DefaultCapacity
	}
	return &Service{
		deps:       deps,
		logger:     logger.With(zap.String("component", "sessions")),
		sessions:   make(map[string]*Session),
		credential: credential,
	}
}

// CreateSession provisions an anonymous session with its own view,
// transport history and mood trajectory.
func (s *Service) CreateSession(_ context.Context) (*Session, error) {
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	state := view.NewState(id)
	if s.banner != "" {
		state.ShowBanner(s.banner)
	}
	tr := transport.New(s.deps.Backend, s.credential, s.logger)
	ann := annotator.New(s.deps.Analyzer, s.deps.Annotation, s.logger)
	ctrl := conversation.New(ann, tr, state, trajectory.New(s.deps.TrajectoryCapacity), s.deps.Graph,
		s.logger.With(zap.String("session", id)))

	session := &Session{
		Session:    chat.Session{ID: id, CreatedAt: time.Now().UTC()},
		View:       state,
		Controller: ctrl,
		Transport:  tr,
	}
	s.sessions[id] = session

	s.logger.Info("session created", zap.String("session", id))
	return session, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Submit runs one conversation turn in the given session.
func (s *Service) Submit(ctx context.Context, sessionID, text string) (conversation.TurnResult, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return conversation.TurnResult{}, err
	}
	return session.Controller.Submit(ctx, text)
}

// LoadTranscript returns the displayed messages for the session.
func (s *Service) LoadTranscript(ctx context.Context, sessionID string) ([]chat.Message, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return session.Controller.Transcript(), nil
}

// CloseSession drops a session and its history.
func (s *Service) CloseSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	session.Controller.Close()
	session.View.Close()
	s.logger.Info("session closed", zap.String("session", sessionID))
	return nil
}

// SetCredential applies a new credential to every current and future session.
func (s *Service) SetCredential(credential string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credential = credential
	for _, session := range s.sessions {
		session.Transport.SetCredential(credential)
	}
}

// Credential returns the credential given to new sessions.
func (s *Service) Credential() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credential
}

// ReportRuntimeFailure shows a persistent banner in every session.
func (s *Service) ReportRuntimeFailure(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.banner = RuntimeFailurePrefix + err.Error()
	for _, session := range s.sessions {
		session.View.ShowBanner(s.banner)
	}
}

// Len returns the number of live sessions.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
