package fanout

import (
	"sort"
	"sync"
	"testing"
	"time"

	"PSyncProject/module/sync/model"
)

func newTestRouter(t *testing.T, mirror PresenceMirror) *Router {
	t.Helper()
	pool := NewPool(2, 64)
	t.Cleanup(pool.Close)
	return NewRouter(pool, mirror)
}

func msgEvent(conversationID, tenantID string) model.ChangeEvent {
	return model.ChangeEvent{
		OperationType: model.OpInsert,
		Collection:    model.ProjectedMessageTable,
		DocumentID:    "m1",
		TenantID:      tenantID,
		FullDocument:  map[string]any{"conversation_id": conversationID},
		TimestampMS:   time.Now().UnixMilli(),
	}
}

func recv(t *testing.T, ch <-chan model.ChangeEvent) model.ChangeEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return model.ChangeEvent{}
	}
}

func expectNone(t *testing.T, ch <-chan model.ChangeEvent) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected delivery: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

// One panicking subscriber must not take down its neighbours or leak
// the panic out of the dispatch path.
func TestPublishIsolatesPanickingSubscriber(t *testing.T) {
	r := newTestRouter(t, nil)
	got1 := make(chan model.ChangeEvent, 1)
	got3 := make(chan model.ChangeEvent, 1)

	r.Subscribe(model.ProjectedMessageTable, func(ev model.ChangeEvent) { got1 <- ev }, nil)
	r.Subscribe(model.ProjectedMessageTable, func(ev model.ChangeEvent) { panic("subscriber bug") }, nil)
	r.Subscribe(model.ProjectedMessageTable, func(ev model.ChangeEvent) { got3 <- ev }, nil)

	r.Publish(msgEvent("c1", "t1"))

	if ev := recv(t, got1); ev.DocumentID != "m1" {
		t.Errorf("first subscriber got %+v", ev)
	}
	if ev := recv(t, got3); ev.DocumentID != "m1" {
		t.Errorf("third subscriber got %+v", ev)
	}
}

func TestUnsubscribe(t *testing.T) {
	r := newTestRouter(t, nil)
	got := make(chan model.ChangeEvent, 1)
	id := r.Subscribe(model.ProjectedMessageTable, func(ev model.ChangeEvent) { got <- ev }, nil)

	if r.Unsubscribe("no-such-id") {
		t.Error("unknown id must report false")
	}
	if !r.Unsubscribe(id) {
		t.Error("live id must report true")
	}
	if r.Unsubscribe(id) {
		t.Error("second removal must report false")
	}
	if n := r.SubscriptionCount(); n != 0 {
		t.Errorf("subscription count = %d, want 0", n)
	}

	r.Publish(msgEvent("c1", "t1"))
	expectNone(t, got)
}

func TestTenantScopedSubscription(t *testing.T) {
	r := newTestRouter(t, nil)
	got := make(chan model.ChangeEvent, 2)
	r.Subscribe(model.ProjectedMessageTable, func(ev model.ChangeEvent) { got <- ev },
		&SubscribeOptions{TenantID: "t1"})

	r.Publish(msgEvent("c1", "t2"))
	expectNone(t, got)

	r.Publish(msgEvent("c1", "t1"))
	if ev := recv(t, got); ev.TenantID != "t1" {
		t.Errorf("tenant = %q, want t1", ev.TenantID)
	}
}

func TestFilterAndPanickingFilter(t *testing.T) {
	r := newTestRouter(t, nil)
	got := make(chan model.ChangeEvent, 2)
	r.Subscribe(model.ProjectedMessageTable, func(ev model.ChangeEvent) { got <- ev },
		&SubscribeOptions{Filter: func(ev model.ChangeEvent) bool {
			return ev.OperationType == model.OpInsert
		}})
	bad := make(chan model.ChangeEvent, 1)
	r.Subscribe(model.ProjectedMessageTable, func(ev model.ChangeEvent) { bad <- ev },
		&SubscribeOptions{Filter: func(ev model.ChangeEvent) bool { panic("filter bug") }})

	ev := msgEvent("c1", "t1")
	r.Publish(ev)
	if got := recv(t, got); got.OperationType != model.OpInsert {
		t.Errorf("op = %q", got.OperationType)
	}
	expectNone(t, bad)

	ev.OperationType = model.OpDelete
	r.Publish(ev)
	expectNone(t, got)
}

// A subscriber on a derived room channel receives events for that
// conversation without knowing the source collection.
func TestRoomChannelDelivery(t *testing.T) {
	r := newTestRouter(t, nil)
	got := make(chan model.ChangeEvent, 1)
	r.Subscribe(model.ConversationRoom("c1"), func(ev model.ChangeEvent) { got <- ev }, nil)

	r.Publish(msgEvent("c2", "t1"))
	expectNone(t, got)

	r.Publish(msgEvent("c1", "t1"))
	recv(t, got)
}

func TestRoomMembership(t *testing.T) {
	r := newTestRouter(t, nil)
	r.JoinRoom("u1", "room-a")
	r.JoinRoom("u2", "room-a")
	r.JoinRoom("u1", "room-b")

	members := r.MembersOf("room-a")
	sort.Strings(members)
	if len(members) != 2 || members[0] != "u1" || members[1] != "u2" {
		t.Errorf("room-a members = %v", members)
	}
	if rooms := r.RoomsOf("u1"); len(rooms) != 2 {
		t.Errorf("u1 rooms = %v", rooms)
	}
	if n := r.RoomCount(); n != 2 {
		t.Errorf("room count = %d, want 2", n)
	}

	r.LeaveRoom("u2", "room-a")
	r.LeaveRoom("u1", "room-a")
	if n := r.RoomCount(); n != 1 {
		t.Errorf("empty room not dropped, count = %d", n)
	}
}

type fakeMirror struct {
	mu      sync.Mutex
	set     []string
	cleared []string
}

func (m *fakeMirror) SetPresence(userID, status, deviceID, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set = append(m.set, userID+":"+status)
	return nil
}

func (m *fakeMirror) ClearPresence(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared = append(m.cleared, userID)
	return nil
}

func TestPresenceLifecycle(t *testing.T) {
	mirror := &fakeMirror{}
	r := newTestRouter(t, mirror)
	got := make(chan model.ChangeEvent, 2)
	r.Subscribe(model.UserRoom("u1"), func(ev model.ChangeEvent) { got <- ev }, nil)

	r.SetPresence("u1", model.PresenceOnline, "dev1", "t1")
	p := r.GetPresence("u1")
	if p == nil || p.Status != model.PresenceOnline || p.DeviceID != "dev1" {
		t.Fatalf("presence = %+v", p)
	}
	if n := r.PresenceCount(); n != 1 {
		t.Errorf("presence count = %d, want 1", n)
	}
	ev := recv(t, got)
	if ev.FullDocument["type"] != "presence" || ev.FullDocument["status"] != model.PresenceOnline {
		t.Errorf("presence broadcast = %+v", ev.FullDocument)
	}

	r.SetPresence("u1", model.PresenceOffline, "dev1", "t1")
	if r.GetPresence("u1") != nil {
		t.Error("offline must clear presence")
	}
	recv(t, got)

	mirror.mu.Lock()
	defer mirror.mu.Unlock()
	if len(mirror.set) != 1 || len(mirror.cleared) != 1 {
		t.Errorf("mirror calls: set=%v cleared=%v", mirror.set, mirror.cleared)
	}
}

func TestBroadcastTyping(t *testing.T) {
	r := newTestRouter(t, nil)
	got := make(chan model.ChangeEvent, 1)
	r.Subscribe(model.ConversationRoom("c1"), func(ev model.ChangeEvent) { got <- ev }, nil)

	r.BroadcastTyping("c1", "u1", true)
	ev := recv(t, got)
	if ev.FullDocument["type"] != "typing" || ev.FullDocument["is_typing"] != true {
		t.Errorf("typing broadcast = %+v", ev.FullDocument)
	}
}

func TestDisconnectUser(t *testing.T) {
	mirror := &fakeMirror{}
	r := newTestRouter(t, mirror)
	r.JoinRoom("u1", "room-a")
	r.JoinRoom("u1", "room-b")
	r.SetPresence("u1", model.PresenceOnline, "dev1", "t1")

	r.DisconnectUser("u1")

	if rooms := r.RoomsOf("u1"); len(rooms) != 0 {
		t.Errorf("rooms not cleared: %v", rooms)
	}
	if r.RoomCount() != 0 {
		t.Error("empty rooms not dropped")
	}
	if r.GetPresence("u1") != nil {
		t.Error("presence not cleared")
	}
	mirror.mu.Lock()
	defer mirror.mu.Unlock()
	if len(mirror.cleared) != 1 {
		t.Errorf("mirror not cleared: %v", mirror.cleared)
	}
}

// Backpressure: a full queue drops jobs instead of blocking the caller.
func TestPoolDropsWhenFull(t *testing.T) {
	p := NewPool(1, 1)
	defer p.Close()

	block := make(chan struct{})
	release := make(chan struct{})
	p.Submit(func() { close(block); <-release })
	<-block
	p.Submit(func() {}) // fills the queue

	if p.Submit(func() {}) {
		t.Error("submit on full queue must report false")
	}
	if n := p.Dropped(); n != 1 {
		t.Errorf("dropped = %d, want 1", n)
	}
	close(release)
}

func TestPoolSubmitAfterCloseIsRejected(t *testing.T) {
	p := NewPool(1, 4)
	p.Close()

	if p.Submit(func() {}) {
		t.Error("submit after close must report false")
	}
	if n := p.Dropped(); n != 1 {
		t.Errorf("dropped = %d, want 1", n)
	}
	p.Close() // second close is a no-op
}
