package storage

import (
	"context"
	"encoding/json"
	"time"

	errs "PSyncProject/tools/errs"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

// presence key: sync:presence:<user>
// Value: presence snapshot JSON, TTL controls the online validity period.
func presenceKey(user string) string { return "sync:presence:" + user }

// RedisPresence mirrors in-memory presence into Redis so sibling nodes
// can answer "is this user online" without asking this process.
type RedisPresence struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisPresence(c Config, ttl time.Duration) (*RedisPresence, error) {
	rdb := redis.NewClient(&redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, errs.WrapMsg(err, "redis ping", "addr", c.Addr)
	}
	return &RedisPresence{rdb: rdb, ttl: ttl}, nil
}

type presenceValue struct {
	Status   string `json:"status"`
	DeviceID string `json:"device_id,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`
	SeenMS   int64  `json:"seen_ms"`
}

// SetPresence sets the user's presence snapshot and renews the TTL.
func (p *RedisPresence) SetPresence(userID, status, deviceID, tenantID string) error {
	val, err := json.Marshal(presenceValue{
		Status:   status,
		DeviceID: deviceID,
		TenantID: tenantID,
		SeenMS:   time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	return p.rdb.Set(context.Background(), presenceKey(userID), val, p.ttl).Err()
}

// ClearPresence actively removes the key.
func (p *RedisPresence) ClearPresence(userID string) error {
	return p.rdb.Del(context.Background(), presenceKey(userID)).Err()
}

// LookupPresence checks whether the user is mirrored as online.
func (p *RedisPresence) LookupPresence(userID string) (status string, online bool, err error) {
	val, err := p.rdb.Get(context.Background(), presenceKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	var pv presenceValue
	if err := json.Unmarshal([]byte(val), &pv); err != nil {
		return "", false, err
	}
	return pv.Status, true, nil
}

func (p *RedisPresence) Close() error { return p.rdb.Close() }
