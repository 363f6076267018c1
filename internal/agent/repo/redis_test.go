package repo

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/crmlens/engine/internal/core/error"
	"github.com/crmlens/engine/internal/loop"
)

func testRepo(t *testing.T) (*RedisConversationRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisConversationRepository(client, time.Hour), mr
}

func TestConversationRoundTrip(t *testing.T) {
	ctx := context.Background()
	r, mr := testRepo(t)

	require.NoError(t, r.AddMessage(ctx, "c1", schema.UserMessage("how many accounts?")))
	require.NoError(t, r.AddMessage(ctx, "c1", schema.AssistantMessage("There are 2 accounts.", nil)))

	history, err := r.LoadHistory(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, history.Messages, 2)
	assert.Equal(t, schema.User, history.Messages[0].Role)
	assert.Equal(t, "how many accounts?", history.Messages[0].Content)
	assert.Equal(t, schema.Assistant, history.Messages[1].Role)
	assert.Equal(t, "There are 2 accounts.", history.Messages[1].Content)

	// every write touches the TTL
	assert.Greater(t, mr.TTL("conversation:c1:messages"), time.Duration(0))
}

func TestLoadHistoryUnknownConversation(t *testing.T) {
	r, _ := testRepo(t)

	history, err := r.LoadHistory(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, history.Messages)
}

func TestClearHistory(t *testing.T) {
	ctx := context.Background()
	r, _ := testRepo(t)

	require.NoError(t, r.AddMessage(ctx, "c1", schema.UserMessage("hello")))
	require.NoError(t, r.ClearHistory(ctx, "c1"))

	history, err := r.LoadHistory(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, history.Messages)
}

func TestAttemptTrailRoundTrip(t *testing.T) {
	ctx := context.Background()
	r, _ := testRepo(t)

	require.NoError(t, r.RecordAttempt(ctx, "query-1", loop.Attempt{
		Seq: 1, OK: false, Kind: errx.KindStructural, Detail: "Unrecognized name: Nme",
	}))
	require.NoError(t, r.RecordAttempt(ctx, "query-1", loop.Attempt{
		Seq: 2, OK: true,
	}))

	attempts, err := r.LoadAttempts(ctx, "query-1")
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, 1, attempts[0].Seq)
	assert.Equal(t, errx.KindStructural, attempts[0].Kind)
	assert.Equal(t, "Unrecognized name: Nme", attempts[0].Detail)
	assert.True(t, attempts[1].OK)

	// trails of different loops never mix
	other, err := r.LoadAttempts(ctx, "query-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}
