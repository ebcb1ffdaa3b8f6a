package store

import (
	"context"

	"PSyncProject/module/sync/model"
)

// ReadStore is the write surface of the read-optimized store used by
// the projector and the recovery worker. Every write is keyed by a
// natural id so replays converge instead of duplicating.
type ReadStore interface {
	// UpsertMessage creates-or-replaces the projection keyed by message
	// id and reports whether a new document was inserted.
	UpsertMessage(ctx context.Context, m *model.ProjectedMessage) (inserted bool, err error)

	// UpdateMessageContent applies an edit; found=false means the
	// projection does not exist yet (recoverable gap).
	UpdateMessageContent(ctx context.Context, messageID string, content model.MessageContent, editedAtMS int64) (found bool, err error)

	// SoftDeleteMessage stamps deleted_at_ms, preserving sequence
	// continuity for pagination consumers.
	SoftDeleteMessage(ctx context.Context, messageID string, deletedAtMS int64) (found bool, err error)

	GetMessage(ctx context.Context, messageID string) (*model.ProjectedMessage, error)

	// ApplyLastMessage bumps the conversation rollup: $inc counters,
	// $set last message preview. Upserts the summary if absent. Guarded
	// by the message seq: a rollup already at or past last.Seq is left
	// alone, so both the live path and recovery can re-apply it without
	// double-counting. Reports whether the rollup was written.
	ApplyLastMessage(ctx context.Context, conversationID, tenantID string, last model.LastMessage, incTotal, incUnread int64) (applied bool, err error)

	GetSummary(ctx context.Context, conversationID string) (*model.ConversationSummary, error)

	CountMessages(ctx context.Context) (int64, error)
	CountSummaries(ctx context.Context) (int64, error)
}

// StatusCounts groups error-log tallies per status.
type StatusCounts struct {
	Pending   int64 `json:"pending"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

// SyncErrorStore is the durable error log. Entries are never
// auto-deleted; terminal ones stay for inspection.
type SyncErrorStore interface {
	Record(ctx context.Context, rec *model.SyncErrorRecord) error

	// LoadPending returns up to limit entries with status=pending and
	// retry_count < maxRetry, oldest first.
	LoadPending(ctx context.Context, limit int64, maxRetry int) ([]*model.SyncErrorRecord, error)

	MarkProcessed(ctx context.Context, id string, processedAtMS int64) error

	// MarkRetry increments retry_count and records the latest error;
	// terminal moves the entry to the failed status.
	MarkRetry(ctx context.Context, id string, errMsg string, lastRetryAtMS int64, terminal bool) error

	// CountsByEventType returns status tallies grouped by event type.
	CountsByEventType(ctx context.Context) (map[string]StatusCounts, error)
}
