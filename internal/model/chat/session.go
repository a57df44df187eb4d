package chat

import "time"

// Session captures a transient anonymous conversation.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// Turn is one entry of the history sent to the completion endpoint.
type Turn struct {
	Role    Origin `json:"role"`
	Content string `json:"content"`
}
