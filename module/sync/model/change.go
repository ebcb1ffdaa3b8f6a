package model

// Change feed operation types, normalized from the store's native
// operation names.
const (
	OpInsert  = "insert"
	OpUpdate  = "update"
	OpReplace = "replace"
	OpDelete  = "delete"
)

// UpdateDescription mirrors the store's field-level delta for update
// operations.
type UpdateDescription struct {
	UpdatedFields map[string]any `json:"updatedFields,omitempty"`
	RemovedFields []string       `json:"removedFields,omitempty"`
}

// ChangeEvent is the normalized, ephemeral change notification handed
// from the feed watcher to the fan-out router. Never persisted.
type ChangeEvent struct {
	OperationType string `json:"operationType"`
	Collection    string `json:"collection"`
	DocumentID    string `json:"documentId"`

	FullDocument      map[string]any     `json:"fullDocument,omitempty"`
	UpdateDescription *UpdateDescription `json:"updateDescription,omitempty"`

	TenantID    string `json:"tenantId,omitempty"`
	TimestampMS int64  `json:"timestampMs"`
}

// Key returns the bus key "<collection>.<op>".
func (e *ChangeEvent) Key() string {
	return e.Collection + "." + e.OperationType
}
