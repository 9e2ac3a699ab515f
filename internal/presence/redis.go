package presence

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMirror keeps a per-user presence key with a TTL; the TTL lapsing is
// how remote observers see a crashed gateway's users go offline.
type RedisMirror struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisMirror(addr string, ttl time.Duration) (*RedisMirror, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisMirror{client: client, ttl: ttl}, nil
}

func presenceKey(userID int64) string {
	return "clack:presence:" + strconv.FormatInt(userID, 10)
}

func (m *RedisMirror) Online(ctx context.Context, userID int64, status string) error {
	return m.client.Set(ctx, presenceKey(userID), status, m.ttl).Err()
}

func (m *RedisMirror) Offline(ctx context.Context, userID int64) error {
	return m.client.Del(ctx, presenceKey(userID)).Err()
}

// Lookup reads a user's mirrored status; missing key means offline.
func (m *RedisMirror) Lookup(ctx context.Context, userID int64) (status string, online bool, err error) {
	val, err := m.client.Get(ctx, presenceKey(userID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (m *RedisMirror) Close() error {
	return m.client.Close()
}
