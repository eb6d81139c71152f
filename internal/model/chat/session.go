package chat

import "time"

// Session identifies one visitor's conversation, resumed by visitor token.
type Session struct {
	ID        string    `json:"id"`
	VisitorID string    `json:"-"`
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ContactUpdate carries optional contact fields captured when a visitor shares a brief.
type ContactUpdate struct {
	Email string
	Name  string
}
