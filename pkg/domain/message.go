package domain

import "time"

// Role identifies the author of a Message.
type Role string

const (
	RoleBot  Role = "bot"
	RoleUser Role = "user"
)

// Message is a single turn in a Session transcript. Messages are immutable once created.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage builds a Message stamped with the given id and time.
func NewMessage(id string, role Role, content string, at time.Time) Message {
	return Message{
		ID:        id,
		Role:      role,
		Content:   content,
		Timestamp: at,
	}
}
