package model

// LastMessage is the embedded preview of the newest message in a
// conversation.
type LastMessage struct {
	MessageID string `bson:"message_id" json:"messageId"`
	Snippet   string `bson:"snippet" json:"snippet"`
	SenderID  string `bson:"sender_id" json:"senderId"`
	Seq       int64  `bson:"seq" json:"seq"`
	SentAtMS  int64  `bson:"sent_at_ms" json:"sentAtMs"`
}

// ConversationSummary is the rollup document keyed by conversation id.
// It is mutated incrementally ($inc + $set) on every successful message
// projection; never rebuilt by re-scanning messages in the hot path.
type ConversationSummary struct {
	ConversationID string      `bson:"_id" json:"conversationId"`
	TenantID       string      `bson:"tenant_id" json:"tenantId"`
	LastMessage    LastMessage `bson:"last_message" json:"lastMessage"`
	TotalMessages  int64       `bson:"total_messages" json:"totalMessages"`
	UnreadCount    int64       `bson:"unread_count" json:"unreadCount"`
	UpdatedAtMS    int64       `bson:"updated_at_ms" json:"updatedAtMs"`
}

func (*ConversationSummary) TableName() string { return ConversationSummaryTable }
