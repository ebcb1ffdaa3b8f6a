package store

import (
	"context"
	"testing"

	"PSyncProject/module/sync/model"
)

func pendingRec(id string, createdAtMS int64, retry int) *model.SyncErrorRecord {
	return &model.SyncErrorRecord{
		ID:          id,
		EventType:   model.EventMessageCreated,
		Status:      model.SyncStatusPending,
		RetryCount:  retry,
		CreatedAtMS: createdAtMS,
	}
}

func TestLoadPendingFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	s := NewMem()
	_ = s.Record(ctx, pendingRec("late", 300, 0))
	_ = s.Record(ctx, pendingRec("early", 100, 0))
	_ = s.Record(ctx, pendingRec("exhausted", 50, 5))
	done := pendingRec("done", 10, 0)
	done.Status = model.SyncStatusProcessed
	_ = s.Record(ctx, done)
	dead := pendingRec("dead", 20, 2)
	dead.Status = model.SyncStatusFailed
	_ = s.Record(ctx, dead)

	batch, err := s.LoadPending(ctx, 10, 5)
	if err != nil {
		t.Fatalf("LoadPending: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("batch size = %d, want 2", len(batch))
	}
	if batch[0].ID != "early" || batch[1].ID != "late" {
		t.Errorf("order = %s, %s; want early, late", batch[0].ID, batch[1].ID)
	}

	batch, _ = s.LoadPending(ctx, 1, 5)
	if len(batch) != 1 || batch[0].ID != "early" {
		t.Errorf("limited batch = %v", batch)
	}
}

func TestApplyLastMessageSeqGuard(t *testing.T) {
	ctx := context.Background()
	s := NewMem()

	applied, err := s.ApplyLastMessage(ctx, "c1", "t1", model.LastMessage{MessageID: "m1", Seq: 1}, 1, 1)
	if err != nil || !applied {
		t.Fatalf("first apply: applied=%v err=%v", applied, err)
	}
	applied, _ = s.ApplyLastMessage(ctx, "c1", "t1", model.LastMessage{MessageID: "m1", Seq: 1}, 1, 1)
	if applied {
		t.Error("replay at same seq must be a no-op")
	}
	sum, _ := s.GetSummary(ctx, "c1")
	if sum.TotalMessages != 1 {
		t.Errorf("replay double-counted: totalMessages = %d", sum.TotalMessages)
	}

	applied, _ = s.ApplyLastMessage(ctx, "c1", "t1", model.LastMessage{MessageID: "m2", Seq: 2}, 1, 1)
	if !applied {
		t.Error("newer seq must apply")
	}
	applied, _ = s.ApplyLastMessage(ctx, "c1", "t1", model.LastMessage{MessageID: "m1", Seq: 1}, 1, 1)
	if applied {
		t.Error("older seq must not roll the summary back")
	}
	sum, _ = s.GetSummary(ctx, "c1")
	if sum.TotalMessages != 2 || sum.LastMessage.MessageID != "m2" {
		t.Errorf("summary = %+v", sum)
	}
}

func TestUpsertMessageReportsInsert(t *testing.T) {
	ctx := context.Background()
	s := NewMem()
	m := &model.ProjectedMessage{MessageID: "m1", ConversationID: "c1", Seq: 1}

	inserted, err := s.UpsertMessage(ctx, m)
	if err != nil || !inserted {
		t.Fatalf("first upsert: inserted=%v err=%v", inserted, err)
	}
	m.Seq = 2
	inserted, err = s.UpsertMessage(ctx, m)
	if err != nil || inserted {
		t.Fatalf("replay upsert: inserted=%v err=%v", inserted, err)
	}
	doc, _ := s.GetMessage(ctx, "m1")
	if doc.Seq != 2 {
		t.Errorf("replace did not apply: seq = %d", doc.Seq)
	}
}
