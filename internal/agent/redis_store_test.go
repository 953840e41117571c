package agent

import (
	"context"
	"fmt"
	"testing"
	"time"

	"procureflow/internal/apperr"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T, maxMessages int) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, time.Hour, maxMessages), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _ := newRedisStore(t, 10)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "user-1")
	require.NoError(t, err)

	err = store.AppendMessages(ctx, conv.ID,
		Message{Role: RoleUser, Content: "need a laptop"},
		Message{Role: RoleAssistant, Content: "here you go"})
	require.NoError(t, err)

	got, err := store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, RoleUser, got.Messages[0].Role)
	assert.Equal(t, "here you go", got.Messages[1].Content)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestRedisStoreTrimsToWindow(t *testing.T) {
	store, _ := newRedisStore(t, 3)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "user-1")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.AppendMessages(ctx, conv.ID, Message{Role: RoleUser, Content: fmt.Sprintf("m%d", i)}))
	}

	got, err := store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "m2", got.Messages[0].Content)
	assert.Equal(t, "m4", got.Messages[2].Content)
}

func TestRedisStoreExpires(t *testing.T) {
	store, mr := newRedisStore(t, 10)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "user-1")
	require.NoError(t, err)
	require.NoError(t, store.AppendMessages(ctx, conv.ID, Message{Role: RoleUser, Content: "hi"}))
	assert.Equal(t, time.Hour, mr.TTL(store.messagesKey(conv.ID)))

	mr.FastForward(2 * time.Hour)

	_, err = store.GetConversation(ctx, conv.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestRedisStoreMissingConversation(t *testing.T) {
	store, _ := newRedisStore(t, 10)
	_, err := store.GetConversation(context.Background(), "nope")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
