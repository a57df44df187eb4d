package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/synesthesia/backend/internal/model/chat"
	"github.com/zhouzirui/synesthesia/backend/internal/service/aggregate"
	"github.com/zhouzirui/synesthesia/backend/internal/service/analysis"
	"github.com/zhouzirui/synesthesia/backend/internal/service/annotator"
	"github.com/zhouzirui/synesthesia/backend/internal/service/trajectory"
	"github.com/zhouzirui/synesthesia/backend/internal/view"
)

var (
	ErrEmptyMessage   = errors.New("message text is required")
	ErrTurnInProgress = errors.New("a turn is already in progress")
)

// ThinkingText is shown on the busy indicator while waiting for a reply.
const ThinkingText = "Claude is thinking..."

const (
	DefaultGraphWidth  = 300
	DefaultGraphHeight = 100
)

// Annotator runs chunked analysis over a message.
type Annotator interface {
	Annotate(ctx context.Context, text string, sink annotator.Sink) int
}

// Transport exchanges turns with the completion endpoint.
type Transport interface {
	SendMessage(ctx context.Context, text string) string
	HasCredential() bool
}

// TurnResult is what one Submit displayed.
type TurnResult struct {
	User      chat.Message  `json:"user"`
	Assistant *chat.Message `json:"assistant,omitempty"`
}

// Options tunes the controller. Zero values use defaults.
type Options struct {
	GraphWidth  float64
	GraphHeight float64
}

// Controller runs one conversation: display, analyse, ask, display, analyse.
// Only one turn runs at a time.
type Controller struct {
	annotator  Annotator
	transport  Transport
	view       view.Sink
	trajectory *trajectory.Trajectory
	logger     *zap.Logger
	opts       Options

	turn    sync.Mutex
	welcome sync.Once

	mu         sync.RWMutex
	transcript []chat.Message

	newID func() string
	now   func() time.Time
}

// New wires a controller. traj may be shared with readers such as the graph endpoint.
func New(ann Annotator, tr Transport, sink view.Sink, traj *trajectory.Trajectory, opts Options, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if traj == nil {
		traj = trajectory.New(trajectory.DefaultCapacity)
	}
	if opts.GraphWidth <= 0 {
		opts.GraphWidth = DefaultGraphWidth
	}
	if opts.GraphHeight <= 0 {
		opts.GraphHeight = DefaultGraphHeight
	}
	return &Controller{
		annotator:  ann,
		transport:  tr,
		view:       sink,
		trajectory: traj,
		logger:     logger.With(zap.String("component", "conversation")),
		opts:       opts,
		newID:      newMessageID,
		now:        time.Now,
	}
}

func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Submit runs one full turn for text. It fails only for empty input or when
// another turn is still running; transport problems come back as the
// assistant's message text.
func (c *Controller) Submit(ctx context.Context, text string) (TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return TurnResult{}, ErrEmptyMessage
	}
	if !c.turn.TryLock() {
		return TurnResult{}, ErrTurnInProgress
	}
	defer c.turn.Unlock()

	// A turn runs to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	result := TurnResult{User: c.processMessage(ctx, text, chat.OriginUser)}

	if c.transport == nil || !c.transport.HasCredential() {
		c.logger.Debug("no credential configured, skipping completion")
		return result, nil
	}

	c.view.SetBusy(true, ThinkingText)
	reply := c.transport.SendMessage(ctx, text)
	c.view.SetBusy(false, "")

	assistant := c.processMessage(ctx, reply, chat.OriginAssistant)
	result.Assistant = &assistant
	return result, nil
}

func (c *Controller) processMessage(ctx context.Context, text string, origin chat.Origin) chat.Message {
	c.welcome.Do(func() {
		c.view.RemoveWelcome()
	})

	msg := &chat.Message{
		ID:         c.newID(),
		Origin:     origin,
		Text:       text,
		CreatedAt:  c.now(),
		Highlights: []chat.Highlight{},
	}
	c.view.DisplayMessage(*msg)

	if c.annotator != nil {
		calls := c.annotator.Annotate(ctx, text, func(_ context.Context, _ string, result analysis.Result) {
			if aggregate.Apply(c.view, msg, result) {
				aggregate.RenderEntities(c.view, result.Entities)
			}
		})
		c.logger.Debug("message annotated",
			zap.String("message", msg.ID),
			zap.Stringer("origin", origin),
			zap.Int("analyses", calls))
	}

	if msg.Mood != nil {
		c.trajectory.Append(*msg.Mood)
		c.drawTrajectory()
	}

	c.mu.Lock()
	c.transcript = append(c.transcript, *msg)
	c.mu.Unlock()
	return *msg
}

func (c *Controller) drawTrajectory() {
	surface := trajectory.NewSVGSurface(c.opts.GraphWidth, c.opts.GraphHeight)
	c.trajectory.Render(surface)
	c.view.DrawTrajectory(surface.String())
}

// Transcript returns every message displayed so far, oldest first.
func (c *Controller) Transcript() []chat.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]chat.Message(nil), c.transcript...)
}

// Trajectory exposes the mood history.
func (c *Controller) Trajectory() *trajectory.Trajectory {
	return c.trajectory
}

// Close drops the transcript and mood history at session end.
func (c *Controller) Close() {
	c.turn.Lock()
	defer c.turn.Unlock()

	c.mu.Lock()
	c.transcript = nil
	c.mu.Unlock()
	c.trajectory.Clear()
}
