package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"PSyncProject/module/sync/model"
)

// Mem implements ReadStore and SyncErrorStore in memory. Used by tests
// and local runs; write failures can be injected to exercise the
// error-log path.
type Mem struct {
	mu        sync.RWMutex
	messages  map[string]*model.ProjectedMessage
	summaries map[string]*model.ConversationSummary
	errors    map[string]*model.SyncErrorRecord
	errOrder  []string

	failWith        error
	failSummaryWith error
}

func NewMem() *Mem {
	return &Mem{
		messages:  make(map[string]*model.ProjectedMessage),
		summaries: make(map[string]*model.ConversationSummary),
		errors:    make(map[string]*model.SyncErrorRecord),
	}
}

// SetFailure makes every subsequent write fail with err until cleared
// with SetFailure(nil).
func (s *Mem) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

// SetSummaryFailure makes only ApplyLastMessage fail with err until
// cleared, to exercise partial-failure recovery.
func (s *Mem) SetSummaryFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSummaryWith = err
}

func (s *Mem) writeErr() error {
	return s.failWith
}

func (s *Mem) UpsertMessage(ctx context.Context, m *model.ProjectedMessage) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr(); err != nil {
		return false, err
	}
	_, existed := s.messages[m.MessageID]
	cp := *m
	s.messages[m.MessageID] = &cp
	return !existed, nil
}

func (s *Mem) UpdateMessageContent(ctx context.Context, messageID string, content model.MessageContent, editedAtMS int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr(); err != nil {
		return false, err
	}
	m, ok := s.messages[messageID]
	if !ok {
		return false, nil
	}
	m.Content = content
	m.EditedAtMS = editedAtMS
	return true, nil
}

func (s *Mem) SoftDeleteMessage(ctx context.Context, messageID string, deletedAtMS int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr(); err != nil {
		return false, err
	}
	m, ok := s.messages[messageID]
	if !ok {
		return false, nil
	}
	m.DeletedAtMS = deletedAtMS
	return true, nil
}

func (s *Mem) GetMessage(ctx context.Context, messageID string) (*model.ProjectedMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[messageID]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (s *Mem) ApplyLastMessage(ctx context.Context, conversationID, tenantID string, last model.LastMessage, incTotal, incUnread int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr(); err != nil {
		return false, err
	}
	if s.failSummaryWith != nil {
		return false, s.failSummaryWith
	}
	sum, ok := s.summaries[conversationID]
	if ok && sum.LastMessage.Seq >= last.Seq {
		return false, nil
	}
	if !ok {
		sum = &model.ConversationSummary{ConversationID: conversationID}
		s.summaries[conversationID] = sum
	}
	sum.TenantID = tenantID
	sum.LastMessage = last
	sum.TotalMessages += incTotal
	sum.UnreadCount += incUnread
	sum.UpdatedAtMS = time.Now().UnixMilli()
	return true, nil
}

func (s *Mem) GetSummary(ctx context.Context, conversationID string) (*model.ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum, ok := s.summaries[conversationID]
	if !ok {
		return nil, nil
	}
	cp := *sum
	return &cp, nil
}

func (s *Mem) CountMessages(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.messages)), nil
}

func (s *Mem) CountSummaries(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.summaries)), nil
}

func (s *Mem) Record(ctx context.Context, rec *model.SyncErrorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.errors[rec.ID] = &cp
	s.errOrder = append(s.errOrder, rec.ID)
	return nil
}

func (s *Mem) LoadPending(ctx context.Context, limit int64, maxRetry int) ([]*model.SyncErrorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, len(s.errOrder))
	copy(ids, s.errOrder)
	sort.SliceStable(ids, func(i, j int) bool {
		return s.errors[ids[i]].CreatedAtMS < s.errors[ids[j]].CreatedAtMS
	})
	var out []*model.SyncErrorRecord
	for _, id := range ids {
		rec := s.errors[id]
		if rec.Status != model.SyncStatusPending || rec.RetryCount >= maxRetry {
			continue
		}
		cp := *rec
		out = append(out, &cp)
		if int64(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Mem) MarkProcessed(ctx context.Context, id string, processedAtMS int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.errors[id]; ok {
		rec.Status = model.SyncStatusProcessed
		rec.ProcessedAtMS = processedAtMS
	}
	return nil
}

func (s *Mem) MarkRetry(ctx context.Context, id string, errMsg string, lastRetryAtMS int64, terminal bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.errors[id]; ok {
		rec.RetryCount++
		rec.Error = errMsg
		rec.LastRetryAtMS = lastRetryAtMS
		if terminal {
			rec.Status = model.SyncStatusFailed
		}
	}
	return nil
}

func (s *Mem) CountsByEventType(ctx context.Context) (map[string]StatusCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]StatusCounts)
	for _, rec := range s.errors {
		c := out[rec.EventType]
		switch rec.Status {
		case model.SyncStatusPending:
			c.Pending++
		case model.SyncStatusProcessed:
			c.Processed++
		case model.SyncStatusFailed:
			c.Failed++
		}
		out[rec.EventType] = c
	}
	return out, nil
}

// Errors returns a snapshot copy of all error records, newest last.
func (s *Mem) Errors() []*model.SyncErrorRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.SyncErrorRecord, 0, len(s.errOrder))
	for _, id := range s.errOrder {
		cp := *s.errors[id]
		out = append(out, &cp)
	}
	return out
}

var (
	_ ReadStore      = (*Mem)(nil)
	_ SyncErrorStore = (*Mem)(nil)
)
