package flowstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/ranierimazili/o2b2-fido-client/internal/errors"
	"github.com/redis/go-redis/v9"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	// TTL is applied as key expiry on every write. Zero keeps keys forever.
	TTL time.Duration
}

// RedisRepo stores flow sessions as JSON strings so that several orchestrator
// replicas can serve the same flow.
type RedisRepo struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

var _ Repo = (*RedisRepo)(nil)

// NewRedisRepo connects to Redis and verifies the connection.
func NewRedisRepo(ctx context.Context, cfg RedisConfig) (*RedisRepo, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisRepoWithClient(client, cfg.KeyPrefix, cfg.TTL), nil
}

// NewRedisRepoWithClient creates a RedisRepo with a pre-configured client.
// This is useful for testing with miniredis.
func NewRedisRepoWithClient(client redis.UniversalClient, keyPrefix string, ttl time.Duration) *RedisRepo {
	return &RedisRepo{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (s *RedisRepo) key(id string) string {
	return s.keyPrefix + id
}

func (s *RedisRepo) Get(ctx context.Context, id string) (*FlowSession, error) {
	if id == "" {
		return nil, apperrors.ErrEmptyFlowID
	}
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get flow session: %w", err)
	}
	session, err := decode(data)
	if err != nil {
		return nil, apperrors.Wrapf(err, "failed to decode flow session %s", id)
	}
	return session, nil
}

func (s *RedisRepo) Put(ctx context.Context, id string, session *FlowSession) error {
	if id == "" {
		return apperrors.ErrEmptyFlowID
	}
	if session == nil {
		return errors.New("session cannot be nil")
	}
	data, err := encode(session)
	if err != nil {
		return apperrors.Wrapf(err, "failed to encode flow session %s", id)
	}
	return s.client.Set(ctx, s.key(id), data, s.ttl).Err()
}

func (s *RedisRepo) Delete(ctx context.Context, id string) error {
	if id == "" {
		return apperrors.ErrEmptyFlowID
	}
	return s.client.Del(ctx, s.key(id)).Err()
}

// Ping checks Redis connectivity (health check).
func (s *RedisRepo) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client connection.
func (s *RedisRepo) Close() error {
	return s.client.Close()
}
