package flowstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ranierimazili/o2b2-fido-client/flowstore"
	apperrors "github.com/ranierimazili/o2b2-fido-client/internal/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisRepo(t *testing.T, ttl time.Duration) (*flowstore.RedisRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := flowstore.NewRedisRepoWithClient(client, "test:flow:", ttl)
	t.Cleanup(func() { _ = repo.Close() })
	return repo, mr
}

func TestRedisRepo(t *testing.T) {
	repo, mr := newRedisRepo(t, 0)
	repoContract(t, repo)

	require.True(t, mr.Exists("test:flow:f1"))
	require.NoError(t, repo.Ping(context.Background()))
}

func TestRedisRepoTTL(t *testing.T) {
	repo, mr := newRedisRepo(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, "f1", sampleSession("f1")))
	require.Equal(t, time.Minute, mr.TTL("test:flow:f1"))

	mr.FastForward(2 * time.Minute)
	_, err := repo.Get(ctx, "f1")
	require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestRedisRepoCorruptValue(t *testing.T) {
	repo, mr := newRedisRepo(t, 0)
	require.NoError(t, mr.Set("test:flow:bad", "not json"))

	_, err := repo.Get(context.Background(), "bad")
	require.Error(t, err)
	require.NotErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestNewRedisRepo(t *testing.T) {
	mr := miniredis.RunT(t)
	repo, err := flowstore.NewRedisRepo(context.Background(), flowstore.RedisConfig{Addr: mr.Addr(), KeyPrefix: "p:"})
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	_, err = flowstore.NewRedisRepo(context.Background(), flowstore.RedisConfig{})
	require.Error(t, err)
}
