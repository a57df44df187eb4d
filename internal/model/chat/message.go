package chat

import (
	"encoding/json"
	"fmt"
	"time"
)

// Origin identifies who produced a message.
type Origin int

const (
	OriginUser Origin = iota
	OriginAssistant
)

// String returns the wire name of the origin.
func (o Origin) String() string {
	switch o {
	case OriginUser:
		return "user"
	case OriginAssistant:
		return "assistant"
	default:
		return fmt.Sprintf("origin(%d)", int(o))
	}
}

// DisplayName is the sender label shown in the message header.
func (o Origin) DisplayName() string {
	switch o {
	case OriginUser:
		return "You"
	case OriginAssistant:
		return "Claude"
	default:
		return "Unknown"
	}
}

// ParseOrigin maps a wire name back to an Origin.
func ParseOrigin(raw string) (Origin, error) {
	switch raw {
	case "user":
		return OriginUser, nil
	case "assistant":
		return OriginAssistant, nil
	default:
		return 0, fmt.Errorf("unknown origin %q", raw)
	}
}

func (o Origin) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

func (o *Origin) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseOrigin(raw)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// Message is one displayed chat message. Highlights and Mood are refined in
// place as later chunk analyses arrive.
type Message struct {
	ID         string      `json:"id"`
	Origin     Origin      `json:"sender"`
	Text       string      `json:"text"`
	CreatedAt  time.Time   `json:"timestamp"`
	Highlights []Highlight `json:"highlights"`
	Mood       *Mood       `json:"mood,omitempty"`
}

// Highlight marks an emotional span [Start, End) of a message, counted in runes.
type Highlight struct {
	Start int     `json:"start"`
	End   int     `json:"end"`
	Text  string  `json:"text"`
	Label string  `json:"label"`
	Color string  `json:"color"`
	Score float64 `json:"score,omitempty"`
}

// Valid reports whether the span fits a text of length runes.
func (h Highlight) Valid(length int) bool {
	return h.Start >= 0 && h.Start < h.End && h.End <= length
}

// Mood is the dominant emotional reading of a text sample.
type Mood struct {
	Spectrum   string  `json:"spectrum"`
	Intensity  float64 `json:"intensity"`
	Color      string  `json:"color"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Entity is a detected emotional entity shown in the entity list.
type Entity struct {
	Text  string  `json:"text"`
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// TrajectoryPoint is a snapshot of a Mood at a point in time.
type TrajectoryPoint struct {
	Time      time.Time `json:"time"`
	Spectrum  string    `json:"spectrum"`
	Intensity float64   `json:"intensity"`
	Color     string    `json:"color"`
}
