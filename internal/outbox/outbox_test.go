package outbox

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumiscan/lumiscan/internal/store"
)

func testQueue(t *testing.T, maxAttempts int) *Queue {
	t.Helper()
	kv, err := store.OpenSQLite(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	q, err := Open(Config{
		DB:              kv.DB(),
		Logger:          zerolog.Nop(),
		MaxAttempts:     maxAttempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	})
	require.NoError(t, err)
	return q
}

func TestQueue_DrainDeliversOldestFirst(t *testing.T) {
	q := testQueue(t, 3)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "usr_1", KindProfileUpsert, map[string]string{"name": "Ada"}))
	time.Sleep(2 * time.Millisecond) // distinct created_at ordering
	require.NoError(t, q.Enqueue(ctx, "usr_1", KindHistoryReset, nil))

	var delivered []Kind
	err := q.Drain(ctx, func(_ context.Context, e Entry) error {
		delivered = append(delivered, e.Kind)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []Kind{KindProfileUpsert, KindHistoryReset}, delivered)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestQueue_FailedEntryStaysQueued(t *testing.T) {
	q := testQueue(t, 5)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "usr_1", KindProfileSync, nil))

	boom := errors.New("backend down")
	require.NoError(t, q.Drain(ctx, func(context.Context, Entry) error { return boom }))

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending, "failed entry must survive the pass")

	// A later pass succeeds and clears it.
	require.NoError(t, q.Drain(ctx, func(context.Context, Entry) error { return nil }))
	pending, _ = q.Pending(ctx)
	assert.Zero(t, pending)
}

func TestQueue_DropsAfterMaxAttempts(t *testing.T) {
	q := testQueue(t, 2)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "usr_1", KindFullReset, nil))

	boom := errors.New("backend down")
	for i := 0; i < 2; i++ {
		require.NoError(t, q.Drain(ctx, func(context.Context, Entry) error { return boom }))
	}

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending, "entry must be dropped after max attempts")
}

func TestQueue_DropUser(t *testing.T) {
	q := testQueue(t, 3)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "usr_1", KindProfileUpsert, nil))
	require.NoError(t, q.Enqueue(ctx, "usr_2", KindProfileUpsert, nil))

	require.NoError(t, q.DropUser(ctx, "usr_1"))

	var users []string
	require.NoError(t, q.Drain(ctx, func(_ context.Context, e Entry) error {
		users = append(users, e.UserID)
		return nil
	}))
	assert.Equal(t, []string{"usr_2"}, users)
}

func TestQueue_PayloadRoundTrip(t *testing.T) {
	q := testQueue(t, 3)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "usr_1", KindProfileUpsert, map[string]any{"name": "Ada", "age": 30}))

	require.NoError(t, q.Drain(ctx, func(_ context.Context, e Entry) error {
		assert.JSONEq(t, `{"name":"Ada","age":30}`, string(e.Payload))
		return nil
	}))
}
