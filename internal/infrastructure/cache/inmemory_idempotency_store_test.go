package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryIdempotencyStore_MarkProcessed(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()

	ctx := context.Background()

	first, err := store.MarkProcessed(ctx, "stk:ws_CO_1:0", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := store.MarkProcessed(ctx, "stk:ws_CO_1:0", time.Minute)
	require.NoError(t, err)
	assert.False(t, second)

	// A different result code is a different key
	other, err := store.MarkProcessed(ctx, "stk:ws_CO_1:1032", time.Minute)
	require.NoError(t, err)
	assert.True(t, other)
}

func TestInMemoryIdempotencyStore_ExpiredKeyReusable(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()

	ctx := context.Background()

	first, err := store.MarkProcessed(ctx, "c2b:TKA1", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, first)

	time.Sleep(20 * time.Millisecond)

	processed, err := store.IsProcessed(ctx, "c2b:TKA1")
	require.NoError(t, err)
	assert.False(t, processed)

	again, err := store.MarkProcessed(ctx, "c2b:TKA1", time.Minute)
	require.NoError(t, err)
	assert.True(t, again)
}

func TestInMemoryIdempotencyStore_Release(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()

	ctx := context.Background()

	_, err := store.MarkProcessed(ctx, "b2c:AG_1:0", time.Minute)
	require.NoError(t, err)

	require.NoError(t, store.Release(ctx, "b2c:AG_1:0"))

	// Released keys can be taken again, so a failed handler gets its retry
	retaken, err := store.MarkProcessed(ctx, "b2c:AG_1:0", time.Minute)
	require.NoError(t, err)
	assert.True(t, retaken)
}

func TestInMemoryIdempotencyStore_CloseIsIdempotent(t *testing.T) {
	store := NewInMemoryIdempotencyStore()

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
}

func TestInMemoryIdempotencyStore_Cleanup(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()

	ctx := context.Background()

	_, err := store.MarkProcessed(ctx, "short", time.Millisecond)
	require.NoError(t, err)
	_, err = store.MarkProcessed(ctx, "long", time.Hour)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	store.cleanup()

	assert.Equal(t, 1, store.Size())
}
