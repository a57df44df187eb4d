package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/zhouzirui/synesthesia/backend/internal/model/chat"
)

// StatusBuffering is reported by engines that are still accumulating input.
const StatusBuffering = "buffering"

// ErrMalformedResult is returned when an engine produces output that is not
// an analysis object.
var ErrMalformedResult = errors.New("malformed analysis result")

// Result is the structured outcome of one analysis call.
type Result struct {
	Text       string           `json:"text,omitempty"`
	Highlights []chat.Highlight `json:"highlights"`
	Mood       *chat.Mood       `json:"mood"`
	Entities   []chat.Entity    `json:"entities,omitempty"`
	Status     string           `json:"status,omitempty"`
}

// Annotated reports whether the result carries highlights to merge.
func (r Result) Annotated() bool {
	return r.Highlights != nil
}

// decodeResult parses engine output and drops spans that do not address text.
func decodeResult(raw []byte, text string) (Result, error) {
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "{") {
		return Result{}, fmt.Errorf("%w: expected json object", ErrMalformedResult)
	}

	var result Result
	if err := json.Unmarshal([]byte(trimmed), &result); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}

	length := len([]rune(text))
	if result.Highlights != nil {
		kept := make([]chat.Highlight, 0, len(result.Highlights))
		for _, h := range result.Highlights {
			if h.Valid(length) {
				kept = append(kept, h)
			}
		}
		result.Highlights = kept
	}

	if result.Mood != nil {
		if result.Mood.Spectrum == "" {
			return Result{}, fmt.Errorf("%w: mood without spectrum", ErrMalformedResult)
		}
		result.Mood.Intensity = clampUnit(result.Mood.Intensity)
	}

	return result, nil
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
