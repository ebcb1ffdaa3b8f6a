package model

// Collection names on the read store.
const (
	ProjectedMessageTable    = "projected_messages"
	ConversationSummaryTable = "conversation_summaries"
	SyncErrorTable           = "sync_errors"
)

// Attachment is a snapshot of an uploaded object referenced by a message.
type Attachment struct {
	ObjectKey string `bson:"object_key" json:"objectKey"`
	MimeType  string `bson:"mime_type" json:"mimeType"`
	SizeBytes int64  `bson:"size_bytes" json:"sizeBytes"`
	Name      string `bson:"name" json:"name"`
}

// MessageContent is the structured body carried by a projected message.
type MessageContent struct {
	ContentType int32             `bson:"content_type" json:"contentType"` // 1=text,2=image,3=audio... (business enum)
	Text        string            `bson:"text" json:"text"`
	Attachments []Attachment      `bson:"attachments,omitempty" json:"attachments,omitempty"`
	Metadata    map[string]string `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

// ProjectedMessage is the denormalized read document, keyed by the
// canonical message id. It is only ever written by the projector or the
// recovery worker; read traffic never mutates it.
type ProjectedMessage struct {
	MessageID      string `bson:"_id" json:"messageId"`
	ConversationID string `bson:"conversation_id" json:"conversationId"`
	TenantID       string `bson:"tenant_id" json:"tenantId"`

	SenderID       string `bson:"sender_id" json:"senderId"`
	SenderNickname string `bson:"sender_nickname" json:"senderNickname"` // snapshot
	SenderFaceURL  string `bson:"sender_face_url" json:"senderFaceUrl"`  // snapshot

	// Seq is assigned upstream by the canonical store; monotonic per
	// conversation, never derived here.
	Seq     int64          `bson:"seq" json:"seq"`
	Content MessageContent `bson:"content" json:"content"`

	CreatedAtMS int64 `bson:"created_at_ms" json:"createdAtMs"`
	EditedAtMS  int64 `bson:"edited_at_ms,omitempty" json:"editedAtMs,omitempty"`
	DeletedAtMS int64 `bson:"deleted_at_ms,omitempty" json:"deletedAtMs,omitempty"` // soft delete marker
}

func (*ProjectedMessage) TableName() string { return ProjectedMessageTable }

// Deleted reports whether the message has been soft-deleted.
func (m *ProjectedMessage) Deleted() bool { return m.DeletedAtMS > 0 }

// Snippet returns a short preview of the content for summary rollups.
func (m *ProjectedMessage) Snippet() string {
	const max = 80
	t := m.Content.Text
	if len(t) > max {
		return t[:max]
	}
	return t
}
