package model

import "time"

type ChatMessage struct {
	ID         string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	RideID     string    `json:"ride_id" bson:"ride_id" validate:"required,mongodb"`
	SenderID   string    `json:"sender_id" bson:"sender_id" validate:"required,mongodb"`
	ReceiverID string    `json:"receiver_id" bson:"receiver_id" validate:"required,mongodb"`
	Body       string    `json:"body" bson:"body" validate:"required,min=1,max=2000"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
}

// ChatThread is one distinct conversation: the other participant plus the
// ride the conversation is about, with the latest message for previews.
type ChatThread struct {
	OtherUserID string    `json:"other_user_id" bson:"other_user_id"`
	RideID      string    `json:"ride_id" bson:"ride_id"`
	LastMessage string    `json:"last_message" bson:"last_message"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`
}
