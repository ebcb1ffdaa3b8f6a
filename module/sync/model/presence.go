package model

// Presence statuses.
const (
	PresenceOnline  = "online"
	PresenceAway    = "away"
	PresenceOffline = "offline"
)

// Presence is in-memory, process-local state; rebuilt on reconnect.
type Presence struct {
	UserID     string `json:"userId"`
	Status     string `json:"status"`
	DeviceID   string `json:"deviceId,omitempty"`
	TenantID   string `json:"tenantId,omitempty"`
	LastSeenMS int64  `json:"lastSeenMs"`
}

// Room naming helpers. A room is a logical broadcast channel.
func ConversationRoom(id string) string { return "conversation:" + id }
func UserRoom(id string) string         { return "user:" + id }
func TenantRoom(id string) string       { return "tenant:" + id }
