package state

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreFindOrCreate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first, err := store.FindOrCreate(ctx, "issue", 7)
	require.NoError(t, err)
	assert.Equal(t, StepFirst, first.Step)
	assert.Empty(t, first.Data)

	first.Data["issue_id"] = "42"
	again, err := store.FindOrCreate(ctx, "issue", 7)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Empty(t, again.Data, "callers must not mutate the stored copy")
}

func TestMemoryStoreConcurrentFindOrCreate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var wg sync.WaitGroup
	ids := make([]int64, 16)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := store.FindOrCreate(ctx, "issue", 1)
			if err == nil {
				ids[i] = s.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	active, err := store.Active(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"issue"}, active)
}

func TestMemoryStoreSaveRejectsRegression(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	s, err := store.FindOrCreate(ctx, "issue", 3)
	require.NoError(t, err)

	s.Step = 4
	s.Data["issue_id"] = "42"
	require.NoError(t, store.Save(ctx, s))

	s.Step = 2
	assert.ErrorIs(t, store.Save(ctx, s), ErrStepRegression)

	got, err := store.Find(ctx, "issue", 3)
	require.NoError(t, err)
	assert.Equal(t, Step(4), got.Step)
	assert.Equal(t, "42", got.Data["issue_id"])
}

func TestMemoryStoreSaveMissing(t *testing.T) {
	store := NewMemoryStore()
	err := store.Save(context.Background(), &Session{Command: "issue", AccountID: 9, Step: 2})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.FindOrCreate(ctx, "issue", 5)
	require.NoError(t, err)
	_, err = store.FindOrCreate(ctx, "other", 5)
	require.NoError(t, err)
	_, err = store.FindOrCreate(ctx, "issue", 6)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "issue", 5))
	require.NoError(t, store.Delete(ctx, "issue", 5))
	_, err = store.Find(ctx, "issue", 5)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	n, err := store.DeleteAll(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	left, err := store.Active(ctx, 6)
	require.NoError(t, err)
	assert.Equal(t, []string{"issue"}, left)
}

func TestMemoryStoreActiveOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore().(*memoryStore)
	clock := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	_, err := store.FindOrCreate(ctx, "issue", 1)
	require.NoError(t, err)
	clock = clock.Add(time.Minute)
	_, err = store.FindOrCreate(ctx, "report", 1)
	require.NoError(t, err)

	names, err := store.Active(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"report", "issue"}, names)
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	var km KeyedMutex
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		running int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("issue:1")
			defer unlock()
			mu.Lock()
			running++
			if running > maxSeen {
				maxSeen = running
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			running--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, km.locks)
}
