package annotator

import (
	"context"
	"fmt"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/zhouzirui/synesthesia/backend/internal/service/analysis"
)

const (
	DefaultChunkWords = 15
	DefaultCarryWords = 5
)

// Analyzer is the slice of the analysis runtime the annotator needs.
type Analyzer interface {
	Ready() bool
	Analyze(ctx context.Context, text string) (analysis.Result, error)
}

// Config controls how often a growing message is re-analysed.
type Config struct {
	ChunkWords int
	CarryWords int
}

// DefaultConfig analyses every 15 words and carries 5 words of context.
func DefaultConfig() Config {
	return Config{ChunkWords: DefaultChunkWords, CarryWords: DefaultCarryWords}
}

// Validate rejects windows that could never drain.
func (c Config) Validate() error {
	if c.ChunkWords < 1 {
		return fmt.Errorf("chunk words must be positive, got %d", c.ChunkWords)
	}
	if c.CarryWords < 0 || c.CarryWords >= c.ChunkWords {
		return fmt.Errorf("carry words must be in [0, %d), got %d", c.ChunkWords, c.CarryWords)
	}
	return nil
}

// Sink receives each successful analysis in invocation order.
type Sink func(ctx context.Context, analyzed string, result analysis.Result)

// Annotator feeds a message to the analyzer word by word.
type Annotator struct {
	cfg      Config
	analyzer Analyzer
	logger   *zap.Logger
}

// New builds an Annotator. An invalid cfg falls back to DefaultConfig.
func New(analyzer Analyzer, cfg Config, logger *zap.Logger) *Annotator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		logger.Warn("invalid chunk config, using defaults", zap.Error(err))
		cfg = DefaultConfig()
	}
	return &Annotator{
		cfg:      cfg,
		analyzer: analyzer,
		logger:   logger.With(zap.String("component", "annotator")),
	}
}

// Plan returns the texts Annotate would submit for text, in order. Each entry
// is a verbatim prefix of text and the last one is text itself.
func (a *Annotator) Plan(text string) []string {
	return plan(text, a.cfg)
}

// Annotate runs the chunk plan against the analyzer. Chunks are skipped when
// the analyzer is not ready or a call fails; the rest still run. It returns
// the number of successful analyses.
func (a *Annotator) Annotate(ctx context.Context, text string, sink Sink) int {
	succeeded := 0
	for i, chunk := range a.Plan(text) {
		if a.analyzer == nil || !a.analyzer.Ready() {
			continue
		}

		result, err := a.analyzer.Analyze(ctx, chunk)
		if err != nil {
			a.logger.Warn("analysis chunk failed",
				zap.Int("chunk", i),
				zap.Int("length", utf8.RuneCountInString(chunk)),
				zap.Error(err))
			continue
		}

		succeeded++
		if sink != nil {
			sink(ctx, chunk, result)
		}
	}
	return succeeded
}

func plan(text string, cfg Config) []string {
	var (
		chunks []string
		buffer int
	)

	for _, end := range wordEnds(text) {
		buffer++
		if buffer >= cfg.ChunkWords {
			chunks = append(chunks, text[:end])
			buffer = cfg.CarryWords
		}
	}

	if buffer > 0 {
		chunks = append(chunks, text)
	}
	return chunks
}

// wordEnds returns the byte offset just past each whitespace-delimited word.
func wordEnds(text string) []int {
	var ends []int
	inWord := false
	for i, r := range text {
		if unicode.IsSpace(r) {
			if inWord {
				ends = append(ends, i)
			}
			inWord = false
			continue
		}
		inWord = true
	}
	if inWord {
		ends = append(ends, len(text))
	}
	return ends
}
