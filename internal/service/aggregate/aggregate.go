package aggregate

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/zhouzirui/synesthesia/backend/internal/model/chat"
	"github.com/zhouzirui/synesthesia/backend/internal/service/analysis"
	"github.com/zhouzirui/synesthesia/backend/internal/view"
)

// FallbackEntityColor is used for labels missing from the entity palette.
const FallbackEntityColor = "#888888"

var entityColors = map[string]string{
	"sad":        "#4A90E2",
	"happy":      "#FADB14",
	"angry":      "#F5222D",
	"excited":    "#FA8C16",
	"calm":       "#52C41A",
	"frustrated": "#FF7A45",
}

// EntityColor maps an entity label to its list color.
func EntityColor(label string) string {
	if color, ok := entityColors[label]; ok {
		return color
	}
	return FallbackEntityColor
}

// RenderMarkup wraps each highlight of text in a styled span. Spans are
// applied from the rightmost start leftwards so no insertion moves an offset
// still to be processed. Invalid spans are skipped and a span reaching into an
// already wrapped one is cut at that span's start.
func RenderMarkup(text string, highlights []chat.Highlight) string {
	runes := []rune(text)

	ordered := append([]chat.Highlight(nil), highlights...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Start > ordered[j].Start
	})

	// pieces are collected right to left.
	pieces := make([]string, 0, 2*len(ordered)+1)
	limit := len(runes)
	for _, h := range ordered {
		if !h.Valid(len(runes)) || h.Start >= limit {
			continue
		}
		end := h.End
		if end > limit {
			end = limit
		}
		pieces = append(pieces, html.EscapeString(string(runes[end:limit])))
		pieces = append(pieces, wrap(h, string(runes[h.Start:end])))
		limit = h.Start
	}
	pieces = append(pieces, html.EscapeString(string(runes[:limit])))

	var b strings.Builder
	for i := len(pieces) - 1; i >= 0; i-- {
		b.WriteString(pieces[i])
	}
	return b.String()
}

func wrap(h chat.Highlight, inner string) string {
	color := html.EscapeString(h.Color)
	return fmt.Sprintf(
		`<span class="emotion-highlight" style="background-color: %s40; color: %s;" data-emotion="%s">%s</span>`,
		color, color, html.EscapeString(h.Label), html.EscapeString(inner))
}

// Apply merges one analysis round into msg and the view. The round's
// highlights replace the message markup entirely. It reports whether the
// result carried annotations.
func Apply(sink view.Sink, msg *chat.Message, result analysis.Result) bool {
	if !result.Annotated() {
		return false
	}

	msg.Highlights = append([]chat.Highlight{}, result.Highlights...)
	msg.Mood = nil
	if result.Mood != nil {
		mood := *result.Mood
		msg.Mood = &mood
	}
	sink.UpdateMessage(*msg, RenderMarkup(msg.Text, msg.Highlights))

	if len(result.Highlights) == 0 {
		return true
	}

	panel := view.PanelFor(msg.Origin)
	for _, h := range result.Highlights {
		sink.AppendPanel(panel, view.PanelEntry{
			MessageID: msg.ID,
			Text:      h.Text,
			Label:     h.Label,
			Color:     h.Color,
		})
	}

	if result.Mood != nil {
		sink.SetMood(view.MoodIndicator{
			Label: MoodLabel(result.Mood.Spectrum),
			Color: result.Mood.Color,
		})
	}
	return true
}

// RenderEntities replaces the entity list.
func RenderEntities(sink view.Sink, entities []chat.Entity) {
	items := make([]view.EntityItem, 0, len(entities))
	for _, e := range entities {
		items = append(items, view.EntityItem{
			Text:      e.Text,
			Label:     e.Label,
			Color:     EntityColor(e.Label),
			Score:     e.Score,
			ScoreText: fmt.Sprintf("%.0f%%", e.Score*100),
		})
	}
	sink.ReplaceEntities(items)
}

// MoodLabel title-cases a spectrum name for the mood badge.
func MoodLabel(spectrum string) string {
	return cases.Title(language.English).String(spectrum)
}
