package model

// Sync error lifecycle. pending entries are retried by the recovery
// worker until MaxRetry; then they go terminal (failed) and are only
// surfaced through stats, never auto-deleted.
const (
	SyncStatusPending   = "pending"
	SyncStatusProcessed = "processed"
	SyncStatusFailed    = "failed"
)

// Domain event types emitted by the canonical store.
const (
	EventMessageCreated = "MessageCreated"
	EventMessageEdited  = "MessageEdited"
	EventMessageDeleted = "MessageDeleted"
)

// SyncErrorRecord is a durable record of one failed projection attempt.
// Created by the projector, mutated only by the recovery worker.
type SyncErrorRecord struct {
	ID             string `bson:"_id" json:"id"`
	MessageID      string `bson:"message_id" json:"messageId"`
	ConversationID string `bson:"conversation_id" json:"conversationId"`
	TenantID       string `bson:"tenant_id" json:"tenantId"`
	EventType      string `bson:"event_type" json:"eventType"`
	Error          string `bson:"error" json:"error"` // truncated
	RetryCount     int    `bson:"retry_count" json:"retryCount"`
	Status         string `bson:"status" json:"status"`
	// Integrity marks errors the worker cannot re-derive (canonical
	// record gone); they go terminal on the first sweep that sees them.
	Integrity bool `bson:"integrity" json:"integrity"`

	CreatedAtMS   int64 `bson:"created_at_ms" json:"createdAtMs"`
	LastRetryAtMS int64 `bson:"last_retry_at_ms,omitempty" json:"lastRetryAtMs,omitempty"`
	ProcessedAtMS int64 `bson:"processed_at_ms,omitempty" json:"processedAtMs,omitempty"`
}

func (*SyncErrorRecord) TableName() string { return SyncErrorTable }

// MessageEvent is the payload the dispatcher hands to projection
// handlers. It deliberately carries identifiers only: handlers re-read
// canonical state, so a stale or replayed payload cannot corrupt the
// projection.
type MessageEvent struct {
	EventType      string `json:"eventType"`
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	TenantID       string `json:"tenantId"`
	OccurredAtMS   int64  `json:"occurredAtMs"`
}
