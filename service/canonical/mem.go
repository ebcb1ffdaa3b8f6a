package canonical

import (
	"context"
	"sync"
)

// MemReader is an in-memory Reader used by tests and local runs.
type MemReader struct {
	mu            sync.RWMutex
	messages      map[string]*Message
	senders       map[string]*Sender
	conversations map[string]*Conversation
}

func NewMemReader() *MemReader {
	return &MemReader{
		messages:      make(map[string]*Message),
		senders:       make(map[string]*Sender),
		conversations: make(map[string]*Conversation),
	}
}

func (r *MemReader) PutMessage(m *Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.messages[m.ID] = &cp
}

func (r *MemReader) PutSender(s *Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.senders[s.ID] = &cp
}

func (r *MemReader) PutConversation(c *Conversation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.conversations[c.ID] = &cp
}

func (r *MemReader) DeleteMessage(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.messages, id)
}

func (r *MemReader) GetMessage(ctx context.Context, id string) (*Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *MemReader) GetSender(ctx context.Context, id string) (*Sender, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.senders[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *MemReader) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conversations[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

var _ Reader = (*MemReader)(nil)
