package projector

import (
	"context"
	"time"

	"PSyncProject/logger"
	"PSyncProject/module/sync/model"
	"PSyncProject/module/sync/store"
	"PSyncProject/service/canonical"
	"PSyncProject/tools/ids"

	"go.uber.org/zap"
)

// Projector consumes canonical-store change notifications and upserts
// denormalized documents plus conversation rollups into the read store.
//
// Every handler re-reads canonical state before writing, so delivery
// order and duplication do not matter: replays converge on the same
// document. A failed projection is recorded to the error log and
// swallowed; one bad event must never abort the dispatch pipeline.
type Projector struct {
	canonical canonical.Reader
	read      store.ReadStore
	errlog    store.SyncErrorStore
	truncLen  int
}

func New(reader canonical.Reader, read store.ReadStore, errlog store.SyncErrorStore, truncLen int) *Projector {
	if truncLen <= 0 {
		truncLen = 500
	}
	return &Projector{canonical: reader, read: read, errlog: errlog, truncLen: truncLen}
}

// OnMessageCreated projects a newly created message. Errors are
// recorded and swallowed.
func (p *Projector) OnMessageCreated(ctx context.Context, ev model.MessageEvent) error {
	if err := p.ProjectCreate(ctx, ev.MessageID); err != nil {
		p.capture(ctx, ev, model.EventMessageCreated, err)
	}
	return nil
}

// OnMessageEdited applies an edit to the projection.
func (p *Projector) OnMessageEdited(ctx context.Context, ev model.MessageEvent) error {
	if err := p.ProjectEdit(ctx, ev.MessageID); err != nil {
		p.capture(ctx, ev, model.EventMessageEdited, err)
	}
	return nil
}

// OnMessageDeleted soft-deletes the projection; the document stays so
// sequence continuity survives for pagination consumers.
func (p *Projector) OnMessageDeleted(ctx context.Context, ev model.MessageEvent) error {
	if err := p.ProjectDelete(ctx, ev.MessageID); err != nil {
		p.capture(ctx, ev, model.EventMessageDeleted, err)
	}
	return nil
}

// ProjectCreate derives the full projection from canonical state and
// upserts it by message id. The summary rollup is re-applied on every
// call; its seq guard turns replays into no-ops, so a rollup lost to a
// partial failure is repaired on the next derive without double-counting.
func (p *Projector) ProjectCreate(ctx context.Context, messageID string) error {
	m, err := p.canonical.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if m == nil {
		return model.ErrDataIntegrity.WrapMsg("message", "message_id", messageID)
	}
	sender, err := p.canonical.GetSender(ctx, m.SenderID)
	if err != nil {
		return err
	}
	if sender == nil {
		return model.ErrDataIntegrity.WrapMsg("sender", "message_id", messageID, "sender_id", m.SenderID)
	}
	conv, err := p.canonical.GetConversation(ctx, m.ConversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return model.ErrDataIntegrity.WrapMsg("conversation", "message_id", messageID, "conversation_id", m.ConversationID)
	}

	doc := buildProjection(m, sender, conv)
	if _, err := p.read.UpsertMessage(ctx, doc); err != nil {
		return err
	}
	last := model.LastMessage{
		MessageID: doc.MessageID,
		Snippet:   doc.Snippet(),
		SenderID:  doc.SenderID,
		Seq:       doc.Seq,
		SentAtMS:  doc.CreatedAtMS,
	}
	_, err = p.read.ApplyLastMessage(ctx, doc.ConversationID, doc.TenantID, last, 1, 1)
	return err
}

// ProjectEdit re-reads canonical content and updates the projection in
// place. A missing projection is a recoverable gap, not fatal.
func (p *Projector) ProjectEdit(ctx context.Context, messageID string) error {
	m, err := p.canonical.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if m == nil {
		return model.ErrDataIntegrity.WrapMsg("message", "message_id", messageID)
	}
	editedAt := m.EditedAtMS
	if editedAt == 0 {
		editedAt = time.Now().UnixMilli()
	}
	found, err := p.read.UpdateMessageContent(ctx, messageID, m.Content, editedAt)
	if err != nil {
		return err
	}
	if !found {
		return model.ErrProjectionGap.WrapMsg("edit", "message_id", messageID)
	}
	return nil
}

// ProjectDelete stamps the soft-delete marker.
func (p *Projector) ProjectDelete(ctx context.Context, messageID string) error {
	found, err := p.read.SoftDeleteMessage(ctx, messageID, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	if !found {
		return model.ErrProjectionGap.WrapMsg("delete", "message_id", messageID)
	}
	return nil
}

// Reproject is the recovery path: re-derive from canonical state, never
// from the stored event payload. A gap on edit/delete falls back to a
// full create projection, which converges on the current canonical
// state including edit and delete markers.
func (p *Projector) Reproject(ctx context.Context, eventType, messageID string) error {
	switch eventType {
	case model.EventMessageCreated:
		return p.ProjectCreate(ctx, messageID)
	case model.EventMessageEdited:
		err := p.ProjectEdit(ctx, messageID)
		if model.IsProjectionGap(err) {
			return p.ProjectCreate(ctx, messageID)
		}
		return err
	case model.EventMessageDeleted:
		err := p.ProjectDelete(ctx, messageID)
		if model.IsProjectionGap(err) {
			return p.ProjectCreate(ctx, messageID)
		}
		return err
	default:
		return model.ErrDataIntegrity.WrapMsg("unknown event type", "event_type", eventType)
	}
}

// AlreadyConsistent reports whether the projection already reflects
// canonical state, so the recovery worker can skip redundant writes.
// Covers both the message document and the conversation rollup: a
// summary still behind the message seq means a partial failure left the
// rollup unwritten.
func (p *Projector) AlreadyConsistent(ctx context.Context, messageID string) (bool, error) {
	m, err := p.canonical.GetMessage(ctx, messageID)
	if err != nil || m == nil {
		return false, err
	}
	doc, err := p.read.GetMessage(ctx, messageID)
	if err != nil || doc == nil {
		return false, err
	}
	if doc.Seq != m.Seq {
		return false, nil
	}
	if m.EditedAtMS > 0 && doc.EditedAtMS < m.EditedAtMS {
		return false, nil
	}
	if m.Deleted && !doc.Deleted() {
		return false, nil
	}
	sum, err := p.read.GetSummary(ctx, m.ConversationID)
	if err != nil || sum == nil {
		return false, err
	}
	if sum.LastMessage.Seq < m.Seq {
		return false, nil
	}
	return true, nil
}

func buildProjection(m *canonical.Message, sender *canonical.Sender, conv *canonical.Conversation) *model.ProjectedMessage {
	doc := &model.ProjectedMessage{
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
		TenantID:       conv.TenantID,
		SenderID:       sender.ID,
		SenderNickname: sender.Nickname,
		SenderFaceURL:  sender.FaceURL,
		Seq:            m.Seq,
		Content:        m.Content,
		CreatedAtMS:    m.CreatedAtMS,
		EditedAtMS:     m.EditedAtMS,
	}
	if m.Deleted {
		doc.DeletedAtMS = time.Now().UnixMilli()
	}
	return doc
}

// capture writes the failure to the error log. Integrity failures are
// flagged so the recovery worker does not retry what cannot be
// re-derived.
func (p *Projector) capture(ctx context.Context, ev model.MessageEvent, eventType string, err error) {
	integrity := model.IsDataIntegrity(err)
	if integrity {
		logger.Error("projection integrity failure",
			zap.String("event_type", eventType),
			zap.String("message_id", ev.MessageID),
			zap.String("conversation_id", ev.ConversationID),
			zap.String("tenant_id", ev.TenantID),
			zap.Error(err))
	} else {
		logger.Warn("projection failed, queued for recovery",
			zap.String("event_type", eventType),
			zap.String("message_id", ev.MessageID),
			zap.Error(err))
	}
	rec := &model.SyncErrorRecord{
		ID:             ids.GenerateString(),
		MessageID:      ev.MessageID,
		ConversationID: ev.ConversationID,
		TenantID:       ev.TenantID,
		EventType:      eventType,
		Error:          truncate(err.Error(), p.truncLen),
		RetryCount:     0,
		Status:         model.SyncStatusPending,
		Integrity:      integrity,
		CreatedAtMS:    time.Now().UnixMilli(),
	}
	if rerr := p.errlog.Record(ctx, rec); rerr != nil {
		logger.Error("failed to record sync error",
			zap.String("message_id", ev.MessageID), zap.Error(rerr))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
