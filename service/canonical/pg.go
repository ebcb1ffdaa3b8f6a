package canonical

import (
	"context"
	"encoding/json"

	"PSyncProject/tools/errs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGReader reads canonical records from the transactional store.
type PGReader struct {
	pool *pgxpool.Pool
}

func NewPGReader(ctx context.Context, url string) (*PGReader, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, errs.WrapMsg(err, "connect canonical store")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.WrapMsg(err, "ping canonical store")
	}
	return &PGReader{pool: pool}, nil
}

func (r *PGReader) Close() { r.pool.Close() }

func (r *PGReader) GetMessage(ctx context.Context, id string) (*Message, error) {
	const q = `SELECT id, conversation_id, tenant_id, sender_id, seq,
		content_type, content_text, attachments, metadata,
		created_at_ms, COALESCE(edited_at_ms, 0), deleted
		FROM messages WHERE id = $1`

	var (
		m               Message
		attachmentsJSON []byte
		metadataJSON    []byte
	)
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&m.ID, &m.ConversationID, &m.TenantID, &m.SenderID, &m.Seq,
		&m.Content.ContentType, &m.Content.Text, &attachmentsJSON, &metadataJSON,
		&m.CreatedAtMS, &m.EditedAtMS, &m.Deleted,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "query canonical message", "id", id)
	}
	if len(attachmentsJSON) > 0 {
		if err := json.Unmarshal(attachmentsJSON, &m.Content.Attachments); err != nil {
			return nil, errs.WrapMsg(err, "decode attachments", "id", id)
		}
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &m.Content.Metadata); err != nil {
			return nil, errs.WrapMsg(err, "decode metadata", "id", id)
		}
	}
	return &m, nil
}

func (r *PGReader) GetSender(ctx context.Context, id string) (*Sender, error) {
	const q = `SELECT id, nickname, COALESCE(face_url, '') FROM users WHERE id = $1`
	var s Sender
	err := r.pool.QueryRow(ctx, q, id).Scan(&s.ID, &s.Nickname, &s.FaceURL)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "query canonical sender", "id", id)
	}
	return &s, nil
}

func (r *PGReader) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	const q = `SELECT id, tenant_id FROM conversations WHERE id = $1`
	var c Conversation
	err := r.pool.QueryRow(ctx, q, id).Scan(&c.ID, &c.TenantID)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "query canonical conversation", "id", id)
	}
	return &c, nil
}

var _ Reader = (*PGReader)(nil)
