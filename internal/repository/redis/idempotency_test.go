package redis

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyLockThenResult(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()

	store := NewIdempotencyStore(db, 2*time.Hour)
	key := KeyIdemSubmit("sess-1", "idem-1")
	ctx := context.Background()

	mock.ExpectSetNX(key, "LOCK", time.Minute).SetVal(true)
	mock.ExpectSet(key, `RES:{"ok":true}`, 2*time.Hour).SetVal("OK")
	mock.ExpectGet(key).SetVal(`RES:{"ok":true}`)

	locked, err := store.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, locked)

	require.NoError(t, store.SaveResult(ctx, key, `{"ok":true}`))

	payload, ok, err := store.GetResult(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"ok":true}`, payload)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencySecondAcquireLoses(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()

	store := NewIdempotencyStore(db, time.Hour)
	key := KeyIdemSubmit("sess-1", "idem-2")

	mock.ExpectSetNX(key, "LOCK", time.Minute).SetVal(false)

	locked, err := store.AcquireLock(context.Background(), key, time.Minute)
	require.NoError(t, err)
	assert.False(t, locked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyGetResultSkipsLockValue(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()

	store := NewIdempotencyStore(db, time.Hour)
	key := KeyIdemSubmit("sess-1", "idem-3")

	mock.ExpectGet(key).SetVal("LOCK")

	_, ok, err := store.GetResult(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, ok)

	locked := false
	mock.ExpectGet(key).SetVal("LOCK")
	locked, err = store.IsLocked(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, locked)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyMissingKey(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()

	store := NewIdempotencyStore(db, time.Hour)
	key := KeyIdemSubmit("sess-1", "idem-4")

	mock.ExpectGet(key).RedisNil()

	_, ok, err := store.GetResult(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRelease(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()

	store := NewIdempotencyStore(db, time.Hour)
	key := KeyIdemSubmit("sess-1", "idem-5")

	mock.ExpectDel(key).SetVal(1)

	require.NoError(t, store.Release(context.Background(), key))
	assert.NoError(t, mock.ExpectationsWereMet())
}
