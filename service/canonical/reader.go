package canonical

import (
	"context"

	"PSyncProject/module/sync/model"
)

// Message is the canonical write-model record. Seq is assigned by the
// canonical store's sequence generator before the event is emitted.
type Message struct {
	ID             string
	ConversationID string
	TenantID       string
	SenderID       string
	Seq            int64
	Content        model.MessageContent
	CreatedAtMS    int64
	EditedAtMS     int64
	Deleted        bool
}

// Sender holds the display fields denormalized into projections.
type Sender struct {
	ID       string
	Nickname string
	FaceURL  string
}

// Conversation carries the metadata needed to stamp projections.
type Conversation struct {
	ID       string
	TenantID string
}

// Reader is the read-by-id surface of the canonical store. All
// projection paths re-read through it instead of trusting event
// payloads. Implementations return (nil, nil) for a missing record.
type Reader interface {
	GetMessage(ctx context.Context, id string) (*Message, error)
	GetSender(ctx context.Context, id string) (*Sender, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
}
