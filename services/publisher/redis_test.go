package publisher

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"sjsage522/stockscraper/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPublisher(t *testing.T, maxLen int) (*RedisPublisher, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)

	ctx := context.Background()
	p := NewRedisPublisher(ctx, mr.Addr(), 0, "test_stream", maxLen)
	t.Cleanup(func() { _ = p.Close() })

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return p, client
}

func TestRedisPublisherPublish(t *testing.T) {
	p, client := newTestPublisher(t, 10)
	require.NoError(t, p.Ping())

	require.NoError(t, p.Publish("article", "b64_item", []byte("test_message")))

	entries, err := client.XRange(context.Background(), "test_stream:article", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	// base64 of "test_message"
	assert.Equal(t, "dGVzdF9tZXNzYWdl", entries[0].Values["b64_item"])
}

func TestRedisPublisherTrimStreams(t *testing.T) {
	p, client := newTestPublisher(t, 2)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Publish("post", ItemKey, []byte{byte('a' + i)}))
	}
	require.NoError(t, p.Publish("article", ItemKey, []byte("x")))

	require.NoError(t, p.TrimStreams())

	n, err := client.XLen(ctx, "test_stream:post").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = client.XLen(ctx, "test_stream:article").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPublishItemsRoutesByKind(t *testing.T) {
	p, client := newTestPublisher(t, 10)
	ctx := context.Background()
	items := []model.Item{
		model.NewArticle(model.SourceYahoo, "AAPL", "Apple beats", "", "https://example.com/a", "2024-05-14T10:00:00Z"),
		model.NewPost(model.SourceX, "$AAPL", "alice", "AAPL up", "2024-05-14T09:00:00Z", model.Engagement{}),
		model.NewPost(model.SourceX, "$AAPL", "bob", "AAPL down", "2024-05-14T08:00:00Z", model.Engagement{}),
	}

	n, err := PublishItems(p, items)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	posts, err := client.XRange(ctx, p.Stream("post"), "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, posts, 2)

	raw, err := base64.StdEncoding.DecodeString(posts[0].Values[ItemKey].(string))
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "alice", decoded["username"])

	articles, err := client.XLen(ctx, p.Stream("article")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), articles)
}

type failingPublisher struct {
	failAfter int
	calls     int
}

func (f *failingPublisher) Publish(topic, key string, message []byte) error {
	f.calls++
	if f.calls > f.failAfter {
		return errors.New("stream unavailable")
	}
	return nil
}

func (f *failingPublisher) TrimStreams() error { return nil }
func (f *failingPublisher) Close() error       { return nil }

func TestPublishItemsStopsOnFailure(t *testing.T) {
	items := []model.Item{
		model.NewArticle(model.SourceYahoo, "AAPL", "a", "", "https://example.com/a", ""),
		model.NewArticle(model.SourceYahoo, "AAPL", "b", "", "https://example.com/b", ""),
		model.NewArticle(model.SourceYahoo, "AAPL", "c", "", "https://example.com/c", ""),
	}

	n, err := PublishItems(&failingPublisher{failAfter: 1}, items)

	assert.Error(t, err)
	assert.Equal(t, 1, n)
}
