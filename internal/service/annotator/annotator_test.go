package annotator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/synesthesia/backend/internal/service/analysis"
)

type recordingAnalyzer struct {
	ready  bool
	calls  []string
	failOn map[int]bool
}

func (r *recordingAnalyzer) Ready() bool { return r.ready }

func (r *recordingAnalyzer) Analyze(_ context.Context, text string) (analysis.Result, error) {
	r.calls = append(r.calls, text)
	if r.failOn[len(r.calls)] {
		return analysis.Result{}, errors.New("engine exploded")
	}
	return analysis.Result{Text: text}, nil
}

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i+1)
	}
	return strings.Join(parts, " ")
}

func expectedCalls(n int) int {
	if n == 0 {
		return 0
	}
	calls := 1
	if n >= DefaultChunkWords {
		calls += 1 + (n-DefaultChunkWords)/(DefaultChunkWords-DefaultCarryWords)
	}
	return calls
}

func TestAnnotateShortMessageSingleFinalPass(t *testing.T) {
	analyzer := &recordingAnalyzer{ready: true}
	a := New(analyzer, DefaultConfig(), nil)

	n := a.Annotate(context.Background(), "I feel happy and a bit scared", nil)

	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"I feel happy and a bit scared"}, analyzer.calls)
}

func TestAnnotateFortyWords(t *testing.T) {
	analyzer := &recordingAnalyzer{ready: true}
	a := New(analyzer, DefaultConfig(), nil)
	text := words(40)

	a.Annotate(context.Background(), text, nil)

	require.GreaterOrEqual(t, len(analyzer.calls), 2)
	assert.Equal(t, text, analyzer.calls[len(analyzer.calls)-1])
	assert.Equal(t, words(15), analyzer.calls[0])
	assert.Equal(t, words(25), analyzer.calls[1])
	assert.Equal(t, words(35), analyzer.calls[2])
}

func TestPlanInvocationCounts(t *testing.T) {
	a := New(nil, DefaultConfig(), nil)
	for _, n := range []int{0, 1, 7, 14, 15, 16, 24, 25, 26, 40, 100} {
		text := words(n)
		chunks := a.Plan(text)
		require.Len(t, chunks, expectedCalls(n), "words=%d", n)
		if n > 0 {
			assert.Equal(t, text, chunks[len(chunks)-1], "words=%d", n)
		}
		for _, c := range chunks {
			assert.True(t, strings.HasPrefix(text, c), "chunk %q is not a prefix", c)
		}
	}
}

func TestPlanKeepsOriginalWhitespace(t *testing.T) {
	a := New(nil, Config{ChunkWords: 2, CarryWords: 1}, nil)
	text := "one  two\tthree\n four"

	assert.Equal(t, []string{"one  two", "one  two\tthree", "one  two\tthree\n four", text}, a.Plan(text))
}

func TestAnnotateWhitespaceOnlyMakesNoCalls(t *testing.T) {
	analyzer := &recordingAnalyzer{ready: true}
	a := New(analyzer, DefaultConfig(), nil)

	assert.Zero(t, a.Annotate(context.Background(), "   \n\t ", nil))
	assert.Empty(t, analyzer.calls)
}

func TestAnnotateSkipsWhenRuntimeNotReady(t *testing.T) {
	analyzer := &recordingAnalyzer{ready: false}
	a := New(analyzer, DefaultConfig(), nil)

	sinkCalls := 0
	n := a.Annotate(context.Background(), words(30), func(context.Context, string, analysis.Result) { sinkCalls++ })

	assert.Zero(t, n)
	assert.Zero(t, sinkCalls)
	assert.Empty(t, analyzer.calls)
}

func TestAnnotateContinuesAfterChunkFailure(t *testing.T) {
	analyzer := &recordingAnalyzer{ready: true, failOn: map[int]bool{1: true}}
	a := New(analyzer, DefaultConfig(), nil)

	var delivered []string
	text := words(20)
	n := a.Annotate(context.Background(), text, func(_ context.Context, analyzed string, _ analysis.Result) {
		delivered = append(delivered, analyzed)
	})

	assert.Equal(t, 1, n)
	assert.Len(t, analyzer.calls, 2)
	assert.Equal(t, []string{text}, delivered)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	a := New(nil, Config{ChunkWords: 5, CarryWords: 5}, nil)
	assert.Equal(t, DefaultConfig(), a.cfg)
}
