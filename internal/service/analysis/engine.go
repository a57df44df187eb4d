package analysis

import (
	"context"
	"encoding/json"

	"github.com/zhouzirui/synesthesia/backend/internal/analysis/emotion"
)

// Engine produces raw JSON analysis output for a piece of text. The text is
// always passed as data, never spliced into anything the engine executes.
type Engine interface {
	Name() string
	Initialize(ctx context.Context) error
	Run(ctx context.Context, text string) ([]byte, error)
}

// KeywordEngine wraps the in-process keyword analyzer.
type KeywordEngine struct{}

// NewKeywordEngine returns the keyword engine.
func NewKeywordEngine() *KeywordEngine {
	return &KeywordEngine{}
}

func (e *KeywordEngine) Name() string { return "keyword" }

func (e *KeywordEngine) Initialize(context.Context) error { return nil }

func (e *KeywordEngine) Run(_ context.Context, text string) ([]byte, error) {
	return json.Marshal(emotion.Analyze(text))
}
