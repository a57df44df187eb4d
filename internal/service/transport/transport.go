package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/zhouzirui/synesthesia/backend/internal/model/chat"
)

const (
	DefaultModel     = "claude-3-5-sonnet-20241022"
	DefaultMaxTokens = 1000

	// ConnectionGuidance is returned when the completion proxy cannot be reached.
	ConnectionGuidance = "Connection error: Make sure the API proxy is running (go run ./cmd/proxy in another terminal)."
)

// ErrConnection marks failures to reach the completion endpoint at all.
var ErrConnection = errors.New("completion endpoint unreachable")

// StatusError is a non-2xx reply from the completion endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error: %d - %s", e.StatusCode, e.Body)
}

// Backend sends the full turn history and returns the assistant reply.
type Backend interface {
	Complete(ctx context.Context, turns []chat.Turn, credential string) (string, error)
}

// SelfAuthenticating is implemented by backends that carry their own
// credentials and never need the user's key.
type SelfAuthenticating interface {
	SelfAuthenticating() bool
}

// Transport keeps the conversation history and turns every failure into
// displayable text.
type Transport struct {
	backend Backend
	logger  *zap.Logger

	mu         sync.RWMutex
	credential string
	history    []chat.Turn
}

// New creates a Transport that authenticates with credential.
func New(backend Backend, credential string, logger *zap.Logger) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{
		backend:    backend,
		credential: credential,
		logger:     logger.With(zap.String("component", "transport")),
	}
}

// SetCredential replaces the credential used for later requests.
func (t *Transport) SetCredential(credential string) {
	t.mu.Lock()
	t.credential = credential
	t.mu.Unlock()
}

// HasCredential reports whether requests can be authenticated.
func (t *Transport) HasCredential() bool {
	if sa, ok := t.backend.(SelfAuthenticating); ok && sa.SelfAuthenticating() {
		return true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.credential != ""
}

// History returns a copy of the turns sent so far.
func (t *Transport) History() []chat.Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]chat.Turn(nil), t.history...)
}

// SendMessage records text as a user turn, requests a completion over the
// whole history and returns the reply or an error description.
func (t *Transport) SendMessage(ctx context.Context, text string) string {
	t.mu.Lock()
	t.history = append(t.history, chat.Turn{Role: chat.OriginUser, Content: text})
	turns := append([]chat.Turn(nil), t.history...)
	credential := t.credential
	t.mu.Unlock()

	reply, err := t.backend.Complete(ctx, turns, credential)
	if err != nil {
		t.logger.Error("completion request failed", zap.Error(err), zap.Int("turns", len(turns)))
		return Describe(err)
	}

	t.mu.Lock()
	t.history = append(t.history, chat.Turn{Role: chat.OriginAssistant, Content: reply})
	t.mu.Unlock()
	return reply
}

// Describe maps a backend error to the text shown in the transcript.
func Describe(err error) string {
	if errors.Is(err, ErrConnection) {
		return ConnectionGuidance
	}
	return "Error: " + err.Error()
}
