package fanout

import (
	"sync"
	"time"

	"PSyncProject/logger"
	"PSyncProject/module/sync/model"
	"PSyncProject/tools/ids"

	"go.uber.org/zap"
)

// Callback receives one matched event. Invoked on a pool worker; a
// panicking callback is logged and isolated from the other subscribers.
type Callback func(ev model.ChangeEvent)

// SubscribeOptions narrows a subscription beyond collection equality.
type SubscribeOptions struct {
	TenantID string
	Filter   func(ev model.ChangeEvent) bool
}

// Subscription is held in memory for the process lifetime; the
// broadcast gateway creates and destroys them on connect/disconnect.
type Subscription struct {
	ID         string
	Collection string
	TenantID   string
	IsActive   bool

	filter func(ev model.ChangeEvent) bool
	cb     Callback
}

// PresenceMirror is an optional durable reflection of presence state,
// e.g. Redis keys with a TTL. Nil disables mirroring.
type PresenceMirror interface {
	SetPresence(userID, status, deviceID, tenantID string) error
	ClearPresence(userID string) error
}

// Router matches change events and application events against live
// subscriptions and owns room membership and presence. All state is
// process-local; clients rebuild it on reconnect.
type Router struct {
	mu        sync.RWMutex
	subs      map[string]*Subscription
	rooms     map[string]map[string]struct{} // room -> member user ids
	userRooms map[string]map[string]struct{} // user -> joined rooms
	presence  map[string]*model.Presence

	pool   *Pool
	mirror PresenceMirror
}

func NewRouter(pool *Pool, mirror PresenceMirror) *Router {
	return &Router{
		subs:      make(map[string]*Subscription),
		rooms:     make(map[string]map[string]struct{}),
		userRooms: make(map[string]map[string]struct{}),
		presence:  make(map[string]*model.Presence),
		pool:      pool,
		mirror:    mirror,
	}
}

// Subscribe registers a callback for a collection (or room) and returns
// the subscription id.
func (r *Router) Subscribe(collection string, cb Callback, opts *SubscribeOptions) string {
	sub := &Subscription{
		ID:         ids.GenerateString(),
		Collection: collection,
		IsActive:   true,
		cb:         cb,
	}
	if opts != nil {
		sub.TenantID = opts.TenantID
		sub.filter = opts.Filter
	}
	r.mu.Lock()
	r.subs[sub.ID] = sub
	r.mu.Unlock()
	return sub.ID
}

// Unsubscribe removes a subscription. Returns false when the id is
// unknown or already removed; never an error either way.
func (r *Router) Unsubscribe(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return false
	}
	sub.IsActive = false
	delete(r.subs, id)
	return true
}

func (r *Router) SubscriptionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Publish delivers the event to every matching subscription. Each
// callback runs as its own pool job so one slow or panicking subscriber
// cannot block the rest. Implements the watcher sink.
func (r *Router) Publish(ev model.ChangeEvent) {
	targets := deriveTargets(ev)

	r.mu.RLock()
	matched := make([]*Subscription, 0, 4)
	for _, sub := range r.subs {
		if !sub.IsActive {
			continue
		}
		if _, ok := targets[sub.Collection]; !ok {
			continue
		}
		if sub.TenantID != "" && sub.TenantID != ev.TenantID {
			continue
		}
		if sub.filter != nil && !safeFilter(sub, ev) {
			continue
		}
		matched = append(matched, sub)
	}
	r.mu.RUnlock()

	for _, sub := range matched {
		cb := sub.cb
		id := sub.ID
		if !r.pool.Submit(func() { cb(ev) }) {
			logger.Warn("fanout job dropped",
				zap.String("subscription_id", id),
				zap.String("collection", ev.Collection))
		}
	}
}

// deriveTargets expands one event into the set of subscription keys it
// should reach: the raw collection plus the derived room channels.
func deriveTargets(ev model.ChangeEvent) map[string]struct{} {
	targets := map[string]struct{}{ev.Collection: {}}
	if conv, ok := ev.FullDocument["conversation_id"].(string); ok && conv != "" {
		targets[model.ConversationRoom(conv)] = struct{}{}
	}
	if user, ok := ev.FullDocument["user_id"].(string); ok && user != "" {
		targets[model.UserRoom(user)] = struct{}{}
	}
	if ev.TenantID != "" {
		targets[model.TenantRoom(ev.TenantID)] = struct{}{}
	}
	return targets
}

// safeFilter runs the predicate with panic isolation; a panicking
// filter counts as no match.
func safeFilter(sub *Subscription, ev model.ChangeEvent) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			matched = false
			logger.Error("subscription filter panicked",
				zap.String("subscription_id", sub.ID))
		}
	}()
	return sub.filter(ev)
}

// JoinRoom adds the user to a broadcast room.
func (r *Router) JoinRoom(userID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[roomID]; !ok {
		r.rooms[roomID] = make(map[string]struct{})
	}
	r.rooms[roomID][userID] = struct{}{}
	if _, ok := r.userRooms[userID]; !ok {
		r.userRooms[userID] = make(map[string]struct{})
	}
	r.userRooms[userID][roomID] = struct{}{}
}

// LeaveRoom removes the user from a room; empty rooms are dropped.
func (r *Router) LeaveRoom(userID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeFromRoom(userID, roomID)
}

func (r *Router) removeFromRoom(userID, roomID string) {
	if members, ok := r.rooms[roomID]; ok {
		delete(members, userID)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
	if rooms, ok := r.userRooms[userID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(r.userRooms, userID)
		}
	}
}

// RoomsOf returns the rooms the user has joined.
func (r *Router) RoomsOf(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.userRooms[userID]))
	for room := range r.userRooms[userID] {
		out = append(out, room)
	}
	return out
}

// MembersOf returns the user ids currently in a room.
func (r *Router) MembersOf(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.rooms[roomID]))
	for user := range r.rooms[roomID] {
		out = append(out, user)
	}
	return out
}

// RoomCount returns how many rooms currently have members.
func (r *Router) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// SetPresence updates the in-memory presence map, mirrors it when a
// mirror is configured, then broadcasts to the user and tenant rooms.
// Fire-and-forget: nothing here is durable.
func (r *Router) SetPresence(userID, status, deviceID, tenantID string) {
	p := &model.Presence{
		UserID:     userID,
		Status:     status,
		DeviceID:   deviceID,
		TenantID:   tenantID,
		LastSeenMS: time.Now().UnixMilli(),
	}
	r.mu.Lock()
	if status == model.PresenceOffline {
		delete(r.presence, userID)
	} else {
		r.presence[userID] = p
	}
	r.mu.Unlock()

	if r.mirror != nil {
		var err error
		if status == model.PresenceOffline {
			err = r.mirror.ClearPresence(userID)
		} else {
			err = r.mirror.SetPresence(userID, status, deviceID, tenantID)
		}
		if err != nil {
			logger.Warn("presence mirror update failed",
				zap.String("user_id", userID), zap.Error(err))
		}
	}

	r.Publish(model.ChangeEvent{
		OperationType: model.OpUpdate,
		Collection:    model.UserRoom(userID),
		DocumentID:    userID,
		TenantID:      tenantID,
		FullDocument: map[string]any{
			"type":      "presence",
			"user_id":   userID,
			"status":    status,
			"device_id": deviceID,
			"tenant_id": tenantID,
		},
		TimestampMS: p.LastSeenMS,
	})
}

// GetPresence returns the live presence entry, or nil when offline.
func (r *Router) GetPresence(userID string) *model.Presence {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.presence[userID]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

// PresenceCount returns how many users are currently tracked online.
func (r *Router) PresenceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.presence)
}

// BroadcastTyping publishes a typing indicator to the conversation
// room. Fire-and-forget, never persisted.
func (r *Router) BroadcastTyping(conversationID, userID string, isTyping bool) {
	r.Publish(model.ChangeEvent{
		OperationType: model.OpUpdate,
		Collection:    model.ConversationRoom(conversationID),
		DocumentID:    userID,
		FullDocument: map[string]any{
			"type":            "typing",
			"conversation_id": conversationID,
			"user_id":         userID,
			"is_typing":       isTyping,
		},
		TimestampMS: time.Now().UnixMilli(),
	})
}

// DisconnectUser clears room membership and presence for a user whose
// connections dropped; the client rebuilds both on reconnect.
func (r *Router) DisconnectUser(userID string) {
	r.mu.Lock()
	for room := range r.userRooms[userID] {
		if members, ok := r.rooms[room]; ok {
			delete(members, userID)
			if len(members) == 0 {
				delete(r.rooms, room)
			}
		}
	}
	delete(r.userRooms, userID)
	delete(r.presence, userID)
	r.mu.Unlock()

	if r.mirror != nil {
		if err := r.mirror.ClearPresence(userID); err != nil {
			logger.Warn("presence mirror clear failed",
				zap.String("user_id", userID), zap.Error(err))
		}
	}
}
