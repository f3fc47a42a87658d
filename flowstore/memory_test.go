package flowstore_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ranierimazili/o2b2-fido-client/flowstore"
	apperrors "github.com/ranierimazili/o2b2-fido-client/internal/errors"
	"github.com/ranierimazili/o2b2-fido-client/oauthmodel"
	"github.com/stretchr/testify/require"
)

func sampleSession(id string) *flowstore.FlowSession {
	return &flowstore.FlowSession{
		ID:    id,
		State: flowstore.StateRegistered,
		RegisteredClient: &oauthmodel.RegisteredClient{
			ClientID:     "client-1",
			RedirectURIs: []string{"https://tpp/cb"},
			Raw:          json.RawMessage(`{"client_id":"client-1"}`),
		},
		Enrollment: &flowstore.Resource{ID: "enr-1", Raw: json.RawMessage(`{"enrollmentId":"enr-1"}`)},
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
	}
}

// repoContract runs the behaviour every Repo implementation must share.
func repoContract(t *testing.T, repo flowstore.Repo) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing session", func(t *testing.T) {
		_, err := repo.Get(ctx, "nope")
		require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	})

	t.Run("empty id", func(t *testing.T) {
		_, err := repo.Get(ctx, "")
		require.ErrorIs(t, err, apperrors.ErrEmptyFlowID)
		require.ErrorIs(t, repo.Put(ctx, "", sampleSession("")), apperrors.ErrEmptyFlowID)
	})

	t.Run("round trip", func(t *testing.T) {
		session := sampleSession("f1")
		require.NoError(t, repo.Put(ctx, "f1", session))

		got, err := repo.Get(ctx, "f1")
		require.NoError(t, err)
		require.Equal(t, "client-1", got.RegisteredClient.ClientID)
		require.JSONEq(t, `{"client_id":"client-1"}`, string(got.RegisteredClient.Raw))
		require.Equal(t, "enr-1", got.Enrollment.ID)
		require.Equal(t, flowstore.StateRegistered, got.State)
		require.True(t, session.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("copies are isolated", func(t *testing.T) {
		session := sampleSession("f2")
		require.NoError(t, repo.Put(ctx, "f2", session))
		session.RegisteredClient.ClientID = "mutated"

		got, err := repo.Get(ctx, "f2")
		require.NoError(t, err)
		require.Equal(t, "client-1", got.RegisteredClient.ClientID)

		got.State = flowstore.StateDeviceBound
		again, err := repo.Get(ctx, "f2")
		require.NoError(t, err)
		require.Equal(t, flowstore.StateRegistered, again.State)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Put(ctx, "f3", sampleSession("f3")))
		require.NoError(t, repo.Delete(ctx, "f3"))
		_, err := repo.Get(ctx, "f3")
		require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	})
}

func TestInMemoryRepo(t *testing.T) {
	repo := flowstore.NewInMemoryRepo()
	t.Cleanup(func() { require.NoError(t, repo.Close()) })
	repoContract(t, repo)
}

func TestInMemoryRepoTTL(t *testing.T) {
	repo := flowstore.NewInMemoryRepo(
		flowstore.WithTTL(20*time.Millisecond),
		flowstore.WithCleanupInterval(5*time.Millisecond),
	)
	t.Cleanup(func() { require.NoError(t, repo.Close()) })
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, "short", sampleSession("short")))
	_, err := repo.Get(ctx, "short")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := repo.Get(ctx, "short")
		return apperrors.Is(err, apperrors.ErrSessionNotFound) && repo.Len() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestInMemoryRepoCloseIsIdempotent(t *testing.T) {
	repo := flowstore.NewInMemoryRepo(flowstore.WithTTL(time.Minute))
	require.NoError(t, repo.Close())
	require.NoError(t, repo.Close())
}

func TestInMemoryRepoConcurrentFlows(t *testing.T) {
	repo := flowstore.NewInMemoryRepo()
	t.Cleanup(func() { _ = repo.Close() })
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = repo.Put(ctx, id, sampleSession(id))
				got, err := repo.Get(ctx, id)
				if err == nil && got.ID != id {
					t.Errorf("flow %s read session of %s", id, got.ID)
				}
			}
		}(id)
	}
	wg.Wait()
	require.Equal(t, 4, repo.Len())
}
