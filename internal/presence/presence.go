package presence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const onlineSetKey = "ocpp:online"

const (
	defaultDialTimeout  = 5 * time.Second
	defaultReadTimeout  = 3 * time.Second
	defaultWriteTimeout = 3 * time.Second

	operationTimeout = 2 * time.Second
)

// NewRedisClient returns a configured go-redis client and validates the
// connection with PING.
func NewRedisClient(addr, password string) (*redis.Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis: addr is empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  defaultDialTimeout,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultDialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}

// Store publishes the set of currently connected station identities to a
// redis set. Updates are best effort: a failed write is logged and dropped,
// never surfaced to the connection path.
type Store struct {
	client *redis.Client
	logger *zap.Logger
}

// NewStore returns a redis-backed presence store.
func NewStore(client *redis.Client, logger *zap.Logger) *Store {
	return &Store{client: client, logger: logger}
}

// Online adds identity to the online set.
func (s *Store) Online(identity string) {
	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := s.client.SAdd(ctx, onlineSetKey, identity).Err(); err != nil {
		s.logger.Warn("presence update failed", zap.String("identity", identity), zap.Error(err))
	}
}

// Offline removes identity from the online set.
func (s *Store) Offline(identity string) {
	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := s.client.SRem(ctx, onlineSetKey, identity).Err(); err != nil {
		s.logger.Warn("presence update failed", zap.String("identity", identity), zap.Error(err))
	}
}
