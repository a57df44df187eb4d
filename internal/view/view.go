// Package view holds the rendered state of one chat session and publishes
// every change as an Event for the browser to apply.
package view

import (
	"html"
	"sync"
	"time"

	"github.com/zhouzirui/synesthesia/backend/internal/model/chat"
)

// Panel names a side panel of emotion words.
type Panel string

const (
	PanelCool Panel = "cool"
	PanelWarm Panel = "warm"
)

// PanelFor returns the side panel that collects words from origin.
func PanelFor(origin chat.Origin) Panel {
	switch origin {
	case chat.OriginUser:
		return PanelCool
	case chat.OriginAssistant:
		return PanelWarm
	default:
		return PanelCool
	}
}

// Event types published to subscribers.
const (
	EventWelcomeRemoved = "welcome_removed"
	EventMessage        = "message"
	EventMarkup         = "markup"
	EventPanel          = "panel"
	EventMood           = "mood"
	EventEntities       = "entities"
	EventTrajectory     = "trajectory"
	EventBusy           = "busy"
	EventBanner         = "banner"
)

// Event is a single view change.
type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// PanelEntry is one emotion word in a side panel.
type PanelEntry struct {
	MessageID string `json:"messageId"`
	Text      string `json:"text"`
	Label     string `json:"label"`
	Color     string `json:"color"`
}

// MoodIndicator is the "current mood" badge.
type MoodIndicator struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

// EntityItem is one row of the entity list.
type EntityItem struct {
	Text      string  `json:"text"`
	Label     string  `json:"label"`
	Color     string  `json:"color"`
	Score     float64 `json:"score"`
	ScoreText string  `json:"scoreText"`
}

// MessageView is a displayed message and its current markup.
type MessageView struct {
	Message chat.Message `json:"message"`
	Markup  string       `json:"markup"`
}

// Busy is the processing indicator.
type Busy struct {
	Active bool   `json:"active"`
	Text   string `json:"text,omitempty"`
}

// Sink is everything the conversation pipeline writes to.
type Sink interface {
	RemoveWelcome() bool
	DisplayMessage(msg chat.Message)
	UpdateMessage(msg chat.Message, markup string)
	AppendPanel(panel Panel, entry PanelEntry)
	SetMood(indicator MoodIndicator)
	ReplaceEntities(items []EntityItem)
	DrawTrajectory(svg string)
	SetBusy(active bool, text string)
	ShowBanner(text string)
}

// Snapshot is a point-in-time copy of the whole view.
type Snapshot struct {
	SessionID  string                 `json:"sessionId"`
	Welcome    bool                   `json:"welcome"`
	Messages   []MessageView          `json:"messages"`
	Panels     map[Panel][]PanelEntry `json:"panels"`
	Mood       *MoodIndicator         `json:"mood,omitempty"`
	Entities   []EntityItem           `json:"entities"`
	Trajectory string                 `json:"trajectory,omitempty"`
	Busy       Busy                   `json:"busy"`
	Banner     string                 `json:"banner,omitempty"`
}

// State is the Sink implementation kept per session.
type State struct {
	mu          sync.RWMutex
	sessionID   string
	welcome     bool
	messages    []MessageView
	index       map[string]int
	panels      map[Panel][]PanelEntry
	mood        *MoodIndicator
	entities    []EntityItem
	trajectory  string
	busy        Busy
	banner      string
	subscribers map[int]chan Event
	nextSub     int
	dropped     int
	closed      bool
}

// NewState returns a view showing only the welcome placeholder.
func NewState(sessionID string) *State {
	return &State{
		sessionID:   sessionID,
		welcome:     true,
		index:       make(map[string]int),
		panels:      map[Panel][]PanelEntry{PanelCool: {}, PanelWarm: {}},
		subscribers: make(map[int]chan Event),
	}
}

// Subscribe returns a channel of future events and a function to stop.
// Slow subscribers lose events rather than block the pipeline.
func (s *State) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(sub)
		}
	}
}

// Close ends every subscription; later subscribers get an already closed channel.
func (s *State) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
}

// publish must be called with s.mu held.
func (s *State) publish(eventType string, data any) {
	event := Event{
		Type:      eventType,
		SessionID: s.sessionID,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
	for _, ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			s.dropped++
		}
	}
}

func (s *State) RemoveWelcome() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.welcome {
		return false
	}
	s.welcome = false
	s.publish(EventWelcomeRemoved, nil)
	return true
}

func (s *State) DisplayMessage(msg chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mv := MessageView{Message: cloneMessage(msg), Markup: html.EscapeString(msg.Text)}
	s.index[msg.ID] = len(s.messages)
	s.messages = append(s.messages, mv)
	s.publish(EventMessage, mv)
}

func (s *State) UpdateMessage(msg chat.Message, markup string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[msg.ID]
	if !ok {
		return
	}
	s.messages[i] = MessageView{Message: cloneMessage(msg), Markup: markup}
	s.publish(EventMarkup, s.messages[i])
}

func (s *State) AppendPanel(panel Panel, entry PanelEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panels[panel] = append(s.panels[panel], entry)
	s.publish(EventPanel, map[string]any{"panel": panel, "entry": entry})
}

func (s *State) SetMood(indicator MoodIndicator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mood = &indicator
	s.publish(EventMood, indicator)
}

func (s *State) ReplaceEntities(items []EntityItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities = append([]EntityItem{}, items...)
	s.publish(EventEntities, s.entities)
}

func (s *State) DrawTrajectory(svg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trajectory = svg
	s.publish(EventTrajectory, svg)
}

func (s *State) SetBusy(active bool, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = Busy{Active: active, Text: text}
	s.publish(EventBusy, s.busy)
}

func (s *State) ShowBanner(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.banner = text
	s.publish(EventBanner, text)
}

// Snapshot copies the current view.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		SessionID:  s.sessionID,
		Welcome:    s.welcome,
		Messages:   make([]MessageView, len(s.messages)),
		Panels:     make(map[Panel][]PanelEntry, len(s.panels)),
		Entities:   append([]EntityItem{}, s.entities...),
		Trajectory: s.trajectory,
		Busy:       s.busy,
		Banner:     s.banner,
	}
	for i, mv := range s.messages {
		snap.Messages[i] = MessageView{Message: cloneMessage(mv.Message), Markup: mv.Markup}
	}
	for panel, entries := range s.panels {
		snap.Panels[panel] = append([]PanelEntry{}, entries...)
	}
	if s.mood != nil {
		mood := *s.mood
		snap.Mood = &mood
	}
	return snap
}

// Dropped returns how many events were discarded for slow subscribers.
func (s *State) Dropped() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dropped
}

func cloneMessage(msg chat.Message) chat.Message {
	out := msg
	out.Highlights = append([]chat.Highlight{}, msg.Highlights...)
	if msg.Mood != nil {
		mood := *msg.Mood
		out.Mood = &mood
	}
	return out
}
