package view

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/synesthesia/backend/internal/model/chat"
)

func TestPanelFor(t *testing.T) {
	assert.Equal(t, PanelCool, PanelFor(chat.OriginUser))
	assert.Equal(t, PanelWarm, PanelFor(chat.OriginAssistant))
}

func TestRemoveWelcomeOnlyOnce(t *testing.T) {
	s := NewState("s1")
	assert.True(t, s.RemoveWelcome())
	assert.False(t, s.RemoveWelcome())
	assert.False(t, s.Snapshot().Welcome)
}

func TestDisplayMessageEscapesText(t *testing.T) {
	s := NewState("s1")
	s.DisplayMessage(chat.Message{ID: "m1", Text: "<b>hi</b>", CreatedAt: time.Now()})

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "&lt;b&gt;hi&lt;/b&gt;", snap.Messages[0].Markup)
}

func TestUpdateMessageReplacesMarkup(t *testing.T) {
	s := NewState("s1")
	msg := chat.Message{ID: "m1", Text: "sad"}
	s.DisplayMessage(msg)

	msg.Mood = &chat.Mood{Spectrum: "cool"}
	s.UpdateMessage(msg, "<span>sad</span>")
	s.UpdateMessage(chat.Message{ID: "unknown"}, "ignored")

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "<span>sad</span>", snap.Messages[0].Markup)
	require.NotNil(t, snap.Messages[0].Message.Mood)
}

func TestSubscribeReceivesEventsInOrder(t *testing.T) {
	s := NewState("s1")
	events, cancel := s.Subscribe(8)
	defer cancel()

	s.SetBusy(true, "thinking")
	s.AppendPanel(PanelWarm, PanelEntry{Text: "furious", Label: "fierce"})
	s.SetMood(MoodIndicator{Label: "Warm", Color: "#F5222D"})

	first := <-events
	second := <-events
	third := <-events
	assert.Equal(t, EventBusy, first.Type)
	assert.Equal(t, EventPanel, second.Type)
	assert.Equal(t, EventMood, third.Type)
	assert.Equal(t, "s1", third.SessionID)
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	s := NewState("s1")
	_, cancel := s.Subscribe(1)
	defer cancel()

	s.ShowBanner("one")
	s.ShowBanner("two")

	assert.Equal(t, 1, s.Dropped())
	assert.Equal(t, "two", s.Snapshot().Banner)
}

func TestCancelClosesChannel(t *testing.T) {
	s := NewState("s1")
	events, cancel := s.Subscribe(1)
	cancel()
	cancel()

	_, ok := <-events
	assert.False(t, ok)
}

func TestCloseEndsSubscriptions(t *testing.T) {
	s := NewState("s1")
	first, cancelFirst := s.Subscribe(1)
	second, _ := s.Subscribe(1)

	s.Close()
	cancelFirst()

	_, ok := <-first
	assert.False(t, ok)
	_, ok = <-second
	assert.False(t, ok)

	late, cancelLate := s.Subscribe(1)
	_, ok = <-late
	assert.False(t, ok)
	cancelLate()

	s.ShowBanner("after close")
	assert.Equal(t, 0, s.Dropped())
}
