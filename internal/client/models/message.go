package models

import "time"

type Message struct {
	ID         string    `json:"_id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"text,omitempty"`
	Image      string    `json:"image,omitempty"`
	Seen       bool      `json:"seen"`
	CreatedAt  time.Time `json:"createdAt"`
}

// OutgoingMessage is the body of a send call; at least one field should be set.
type OutgoingMessage struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

func (m OutgoingMessage) Empty() bool {
	return m.Text == "" && m.Image == ""
}
