package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/mbeoliero/trato/pkg/constant"
	"github.com/redis/go-redis/v9"
)

// UserMap is the connection registry: live connections keyed by user id.
// Presence is mirrored to Redis when a client is configured so other
// instances can answer IsOnline.
type UserMap struct {
	mu    sync.RWMutex
	users map[string]*UserPlatform // userId -> UserPlatform
	rdb   *redis.Client
}

// UserPlatform holds all connections for a user
type UserPlatform struct {
	Clients []*Client
	Time    time.Time
}

// NewUserMap creates a new UserMap
func NewUserMap(rdb *redis.Client) *UserMap {
	return &UserMap{
		users: make(map[string]*UserPlatform),
		rdb:   rdb,
	}
}

// Register adds a client and reports whether it is the user's first connection
func (m *UserMap) Register(ctx context.Context, client *Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	userPlatform, exists := m.users[client.UserId]
	if !exists {
		userPlatform = &UserPlatform{
			Clients: make([]*Client, 0, 4),
		}
		m.users[client.UserId] = userPlatform
	}

	userPlatform.Clients = append(userPlatform.Clients, client)
	userPlatform.Time = time.Now()

	m.setOnline(ctx, client.UserId)
	return !exists
}

// Unregister removes a client and reports whether the user has no connection left.
// Removing a client that is not registered is a no-op.
func (m *UserMap) Unregister(ctx context.Context, client *Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	userPlatform, exists := m.users[client.UserId]
	if !exists {
		return false
	}

	newClients := make([]*Client, 0, len(userPlatform.Clients))
	for _, c := range userPlatform.Clients {
		if c.ConnId != client.ConnId {
			newClients = append(newClients, c)
		}
	}
	userPlatform.Clients = newClients

	if len(userPlatform.Clients) == 0 {
		delete(m.users, client.UserId)
		m.setOffline(ctx, client.UserId)
		return true
	}

	return false
}

// GetAll gets all clients for a user
func (m *UserMap) GetAll(userId string) ([]*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	userPlatform, exists := m.users[userId]
	if !exists {
		return nil, false
	}

	// copy so callers can iterate without the lock
	clients := make([]*Client, len(userPlatform.Clients))
	copy(clients, userPlatform.Clients)
	return clients, true
}

// HasConnection checks if user has any connection on this instance
func (m *UserMap) HasConnection(userId string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	userPlatform, exists := m.users[userId]
	return exists && len(userPlatform.Clients) > 0
}

// IsOnline checks if user is connected to this or, through Redis, any instance
func (m *UserMap) IsOnline(ctx context.Context, userId string) bool {
	if m.HasConnection(userId) {
		return true
	}

	if m.rdb != nil {
		exists, err := m.rdb.Exists(ctx, onlineKey(userId)).Result()
		if err != nil {
			log.CtxWarn(ctx, "check presence failed: user_id=%s, error=%v", userId, err)
			return false
		}
		return exists > 0
	}

	return false
}

// RefreshOnlineStatus extends the presence TTL of every locally connected user
func (m *UserMap) RefreshOnlineStatus(ctx context.Context) {
	if m.rdb == nil {
		return
	}

	userIds := m.onlineUserIds()
	if len(userIds) == 0 {
		return
	}

	pipe := m.rdb.Pipeline()
	for _, userId := range userIds {
		pipe.Set(ctx, onlineKey(userId), "1", presenceTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.CtxWarn(ctx, "refresh presence failed: users=%d, error=%v", len(userIds), err)
	}
}

// onlineUserIds returns all user ids with a local connection
func (m *UserMap) onlineUserIds() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	userIds := make([]string, 0, len(m.users))
	for userId := range m.users {
		userIds = append(userIds, userId)
	}
	return userIds
}

func (m *UserMap) setOnline(ctx context.Context, userId string) {
	if m.rdb == nil {
		return
	}
	if err := m.rdb.Set(ctx, onlineKey(userId), "1", presenceTTL).Err(); err != nil {
		log.CtxWarn(ctx, "set presence failed: user_id=%s, error=%v", userId, err)
	}
}

func (m *UserMap) setOffline(ctx context.Context, userId string) {
	if m.rdb == nil {
		return
	}
	if err := m.rdb.Del(ctx, onlineKey(userId)).Err(); err != nil {
		log.CtxWarn(ctx, "clear presence failed: user_id=%s, error=%v", userId, err)
	}
}

func onlineKey(userId string) string {
	return fmt.Sprintf(constant.RedisKeyOnline(), userId)
}
