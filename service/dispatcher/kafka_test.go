package dispatcher

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"PSyncProject/module/sync/model"

	"github.com/Shopify/sarama"
)

type fakeSession struct {
	ctx    context.Context
	events []string
}

func (s *fakeSession) Claims() map[string][]int32 { return nil }
func (s *fakeSession) MemberID() string           { return "test-member" }
func (s *fakeSession) GenerationID() int32        { return 1 }
func (s *fakeSession) MarkOffset(topic string, partition int32, offset int64, metadata string) {}
func (s *fakeSession) Commit()                                                                 {}
func (s *fakeSession) ResetOffset(topic string, partition int32, offset int64, metadata string) {
}
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, metadata string) {
	s.events = append(s.events, fmt.Sprintf("mark:%d", msg.Offset))
}
func (s *fakeSession) Context() context.Context { return s.ctx }

type fakeClaim struct {
	ch chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string                                 { return "message_events" }
func (c *fakeClaim) Partition() int32                              { return 0 }
func (c *fakeClaim) InitialOffset() int64                          { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64                    { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage      { return c.ch }

// The offset must only move after the handlers ran: a crash between
// dispatch and mark redelivers the event instead of losing it.
func TestConsumeClaimDispatchesBeforeMarking(t *testing.T) {
	sess := &fakeSession{ctx: context.Background()}
	d := New()
	d.Register(model.EventMessageCreated, func(ctx context.Context, ev model.MessageEvent) error {
		sess.events = append(sess.events, "dispatch:"+ev.MessageID)
		return nil
	})

	ch := make(chan *sarama.ConsumerMessage, 2)
	ch <- &sarama.ConsumerMessage{Offset: 1, Value: []byte(`{"eventType":"MessageCreated","messageId":"m1"}`)}
	ch <- &sarama.ConsumerMessage{Offset: 2, Value: []byte("not json")}
	close(ch)

	h := &groupHandler{disp: d}
	if err := h.ConsumeClaim(sess, &fakeClaim{ch: ch}); err != nil {
		t.Fatalf("ConsumeClaim: %v", err)
	}

	want := []string{"dispatch:m1", "mark:1", "mark:2"}
	if !reflect.DeepEqual(sess.events, want) {
		t.Errorf("event order = %v, want %v", sess.events, want)
	}
}
