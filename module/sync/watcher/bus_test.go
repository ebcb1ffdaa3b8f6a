package watcher

import (
	"testing"
	"time"

	"PSyncProject/module/sync/model"
)

func busEvent(op string) model.ChangeEvent {
	return model.ChangeEvent{
		OperationType: op,
		Collection:    model.ProjectedMessageTable,
		DocumentID:    "m1",
	}
}

func busRecv(t *testing.T, ch <-chan model.ChangeEvent) model.ChangeEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for bus delivery")
		return model.ChangeEvent{}
	}
}

func TestBusKeyedDelivery(t *testing.T) {
	b := NewBus()
	collCh, cancelColl := b.Subscribe(model.ProjectedMessageTable)
	defer cancelColl()
	insertCh, cancelInsert := b.Subscribe(model.ProjectedMessageTable + ".insert")
	defer cancelInsert()
	otherCh, cancelOther := b.Subscribe(model.ConversationSummaryTable)
	defer cancelOther()

	b.Publish(busEvent(model.OpInsert))

	if ev := busRecv(t, collCh); ev.DocumentID != "m1" {
		t.Errorf("collection subscriber got %+v", ev)
	}
	if ev := busRecv(t, insertCh); ev.OperationType != model.OpInsert {
		t.Errorf("op subscriber got %+v", ev)
	}
	select {
	case ev := <-otherCh:
		t.Errorf("wrong collection delivered: %+v", ev)
	default:
	}

	// op-keyed subscriber only sees its operation
	b.Publish(busEvent(model.OpDelete))
	busRecv(t, collCh)
	select {
	case ev := <-insertCh:
		t.Errorf("insert subscriber got delete: %+v", ev)
	default:
	}
}

func TestBusCancelIsIdempotent(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe(model.ProjectedMessageTable)

	cancel()
	cancel()

	b.Publish(busEvent(model.OpInsert))
	select {
	case ev := <-ch:
		t.Errorf("cancelled subscriber got %+v", ev)
	default:
	}
}

func TestBusSlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBus()
	b.bufferSize = 1
	slow, cancel := b.Subscribe(model.ProjectedMessageTable)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(busEvent(model.OpInsert))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}

	// the stalled buffer holds exactly one event, the rest were dropped
	busRecv(t, slow)
	select {
	case ev := <-slow:
		t.Errorf("slow subscriber buffered more than expected: %+v", ev)
	default:
	}
}
