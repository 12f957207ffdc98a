package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStorage()

	_, found, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Put(ctx, "game", []byte(`{"status":"idle"}`)))

	value, found, err := store.Get(ctx, "game")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, `{"status":"idle"}`, string(value))

	require.NoError(t, store.Delete(ctx, "game"))
	_, found, err = store.Get(ctx, "game")
	require.NoError(t, err)
	assert.False(t, found)

	// Deleting an absent key is not an error.
	assert.NoError(t, store.Delete(ctx, "game"))
}

func TestMemoryStorageListByPrefix(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStorage()

	require.NoError(t, store.Put(ctx, "player:c1", []byte("a")))
	require.NoError(t, store.Put(ctx, "player:c2", []byte("b")))
	require.NoError(t, store.Put(ctx, "game", []byte("c")))

	entries, err := store.List(ctx, "player:")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Contains(t, entries, "player:c1")
	assert.Contains(t, entries, "player:c2")

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemoryStorageCopiesValues(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStorage()

	original := []byte("abc")
	require.NoError(t, store.Put(ctx, "k", original))
	original[0] = 'z'

	value, _, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(value), "stored value is insulated from caller mutation")

	value[0] = 'z'
	again, _, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again), "returned value is a copy")
}

func TestScopedStorageIsolatesRooms(t *testing.T) {
	ctx := context.Background()
	base := newMemoryStorage()

	roomA := scopeStorage(base, "room/AAAAAA")
	roomB := scopeStorage(base, "room/BBBBBB")

	require.NoError(t, roomA.Put(ctx, "game", []byte("a")))
	require.NoError(t, roomB.Put(ctx, "game", []byte("b")))

	value, found, err := roomA.Get(ctx, "game")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "a", string(value))

	_, found, err = roomA.Get(ctx, "other")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, roomA.Delete(ctx, "game"))
	_, found, err = roomB.Get(ctx, "game")
	require.NoError(t, err)
	assert.True(t, found, "deleting in one room leaves the other untouched")
}

func TestScopedStorageListStripsScope(t *testing.T) {
	ctx := context.Background()
	base := newMemoryStorage()

	scoped := scopeStorage(base, "room/AAAAAA")
	require.NoError(t, scoped.Put(ctx, "player:c1", []byte("a")))
	require.NoError(t, scoped.Put(ctx, "player:c2", []byte("b")))
	require.NoError(t, scoped.Put(ctx, "game", []byte("c")))

	entries, err := scoped.List(ctx, "player:")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Contains(t, entries, "player:c1")
	assert.Contains(t, entries, "player:c2")

	// The underlying store sees fully-qualified keys.
	raw, err := base.List(ctx, "room/AAAAAA/")
	require.NoError(t, err)
	assert.Len(t, raw, 3)
	assert.Contains(t, raw, "room/AAAAAA/game")
}
