package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/synesthesia/backend/internal/model/chat"
	"github.com/zhouzirui/synesthesia/backend/internal/service/analysis"
	"github.com/zhouzirui/synesthesia/backend/internal/service/annotator"
	"github.com/zhouzirui/synesthesia/backend/internal/service/trajectory"
	"github.com/zhouzirui/synesthesia/backend/internal/view"
)

type fakeTransport struct {
	credential bool
	reply      string
	sent       []string
	entered    chan struct{}
	block      chan struct{}
	onSend     func()
}

func (f *fakeTransport) HasCredential() bool { return f.credential }

func (f *fakeTransport) SendMessage(_ context.Context, text string) string {
	f.sent = append(f.sent, text)
	if f.onSend != nil {
		f.onSend()
	}
	if f.entered != nil {
		close(f.entered)
	}
	if f.block != nil {
		<-f.block
	}
	return f.reply
}

type busyRecorder struct {
	*view.State
	mu   sync.Mutex
	busy []view.Busy
}

func (b *busyRecorder) SetBusy(active bool, text string) {
	b.mu.Lock()
	b.busy = append(b.busy, view.Busy{Active: active, Text: text})
	b.mu.Unlock()
	b.State.SetBusy(active, text)
}

func readyRuntime(t *testing.T) *analysis.Runtime {
	t.Helper()
	rt := analysis.NewRuntime(analysis.NewKeywordEngine(), nil)
	require.NoError(t, rt.Initialize(context.Background()))
	return rt
}

func newController(t *testing.T, tr Transport, analyzer annotator.Analyzer) (*Controller, *busyRecorder) {
	t.Helper()
	sink := &busyRecorder{State: view.NewState("s1")}
	ann := annotator.New(analyzer, annotator.DefaultConfig(), nil)
	c := New(ann, tr, sink, trajectory.New(trajectory.DefaultCapacity), Options{}, nil)
	return c, sink
}

func TestSubmitRejectsEmptyText(t *testing.T) {
	c, sink := newController(t, &fakeTransport{}, readyRuntime(t))

	_, err := c.Submit(context.Background(), "   \n\t")
	require.ErrorIs(t, err, ErrEmptyMessage)

	snap := sink.Snapshot()
	assert.True(t, snap.Welcome)
	assert.Empty(t, snap.Messages)
}

func TestSubmitWithoutCredentialSkipsCompletion(t *testing.T) {
	tr := &fakeTransport{}
	c, sink := newController(t, tr, readyRuntime(t))

	result, err := c.Submit(context.Background(), "I feel happy today")
	require.NoError(t, err)

	assert.Nil(t, result.Assistant)
	assert.Empty(t, tr.sent)
	assert.Empty(t, sink.busy)

	snap := sink.Snapshot()
	assert.False(t, snap.Welcome)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, chat.OriginUser, snap.Messages[0].Message.Origin)
	assert.Contains(t, snap.Messages[0].Markup, `data-emotion="joyful"`)
	require.Len(t, snap.Panels[view.PanelCool], 1)
	assert.Equal(t, "happy", snap.Panels[view.PanelCool][0].Text)
	require.NotNil(t, snap.Mood)
	assert.Equal(t, "Neutral", snap.Mood.Label)
	assert.Equal(t, 1, c.Trajectory().Len())
}

func TestSubmitFullTurn(t *testing.T) {
	tr := &fakeTransport{credential: true, reply: "I am sorry you feel sad and angry"}
	c, sink := newController(t, tr, readyRuntime(t))

	result, err := c.Submit(context.Background(), "  I am worried  ")
	require.NoError(t, err)

	assert.Equal(t, []string{"I am worried"}, tr.sent)
	assert.Equal(t, "I am worried", result.User.Text)
	require.NotNil(t, result.Assistant)
	assert.Equal(t, chat.OriginAssistant, result.Assistant.Origin)
	assert.NotEqual(t, result.User.ID, result.Assistant.ID)

	assert.Equal(t, []view.Busy{{Active: true, Text: ThinkingText}, {Active: false}}, sink.busy)

	snap := sink.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Len(t, snap.Panels[view.PanelCool], 1)
	assert.Len(t, snap.Panels[view.PanelWarm], 2)
	assert.Len(t, snap.Entities, 2)
	assert.NotEmpty(t, snap.Trajectory)
	assert.Equal(t, 2, c.Trajectory().Len())

	transcript := c.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, result.User.ID, transcript[0].ID)
	assert.NotNil(t, transcript[1].Mood)
}

func TestSubmitAnnotatesUserMessageBeforeCompletion(t *testing.T) {
	tr := &fakeTransport{credential: true, reply: "That is calm"}
	c, sink := newController(t, tr, readyRuntime(t))

	var atSend view.Snapshot
	tr.onSend = func() { atSend = sink.Snapshot() }

	words := "I am worried about tomorrow and a little sad but mostly hopeful that the meeting goes well for everyone"
	_, err := c.Submit(context.Background(), words)
	require.NoError(t, err)

	require.Len(t, atSend.Messages, 1)
	user := atSend.Messages[0]
	assert.Equal(t, chat.OriginUser, user.Message.Origin)
	assert.Contains(t, user.Markup, `data-emotion="anxious"`)
	assert.Contains(t, user.Markup, `data-emotion="hopeful"`)
	assert.NotEmpty(t, atSend.Panels[view.PanelCool])
	assert.Empty(t, atSend.Panels[view.PanelWarm])
	assert.Equal(t, view.Busy{Active: true, Text: ThinkingText}, atSend.Busy)

	after := sink.Snapshot()
	require.Len(t, after.Messages, 2)
	assert.Equal(t, chat.OriginAssistant, after.Messages[1].Message.Origin)
	assert.False(t, after.Busy.Active)
}

func TestSubmitTransportFailureIsDisplayed(t *testing.T) {
	tr := &fakeTransport{credential: true, reply: "Error: boom"}
	c, sink := newController(t, tr, readyRuntime(t))

	result, err := c.Submit(context.Background(), "hello")
	require.NoError(t, err)
	require.NotNil(t, result.Assistant)
	assert.Equal(t, "Error: boom", result.Assistant.Text)
	assert.Len(t, sink.Snapshot().Messages, 2)
}

func TestSubmitAnalysisNotReady(t *testing.T) {
	rt := analysis.NewRuntime(analysis.NewKeywordEngine(), nil)
	c, sink := newController(t, &fakeTransport{}, rt)

	result, err := c.Submit(context.Background(), "I feel happy")
	require.NoError(t, err)

	assert.Empty(t, result.User.Highlights)
	assert.Nil(t, result.User.Mood)
	snap := sink.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "I feel happy", snap.Messages[0].Markup)
	assert.Nil(t, snap.Mood)
	assert.Equal(t, 0, c.Trajectory().Len())
}

func TestSubmitRejectsConcurrentTurn(t *testing.T) {
	tr := &fakeTransport{credential: true, reply: "ok", entered: make(chan struct{}), block: make(chan struct{})}
	c, _ := newController(t, tr, readyRuntime(t))

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), "first")
		done <- err
	}()

	select {
	case <-tr.entered:
	case <-time.After(time.Second):
		t.Fatal("first turn never reached the transport")
	}

	_, err := c.Submit(context.Background(), "second")
	require.ErrorIs(t, err, ErrTurnInProgress)

	close(tr.block)
	require.NoError(t, <-done)
}

func TestCloseClearsHistory(t *testing.T) {
	c, _ := newController(t, &fakeTransport{}, readyRuntime(t))
	_, err := c.Submit(context.Background(), "calm")
	require.NoError(t, err)

	c.Close()

	assert.Empty(t, c.Transcript())
	assert.Equal(t, 0, c.Trajectory().Len())
}
