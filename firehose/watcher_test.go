package firehose_test

import (
	"fmt"
	"sync"
	"testing"

	"skyweb/firehose"
	"skyweb/models"

	jetstream_models "github.com/bluesky-social/jetstream/pkg/models"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recorder) Publish(event models.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return 1
}

func commit(did string, timeUS int64, operation string, collection string) []byte {
	return []byte(fmt.Sprintf(`{
		"did": %q,
		"time_us": %d,
		"kind": "commit",
		"commit": {
			"rev": "3l3qo2vutsw2b",
			"operation": %q,
			"collection": %q,
			"rkey": "3l3qo2vuowo2b",
			"record": {"$type": "app.bsky.feed.post", "text": "hello", "createdAt": "2024-12-01T10:00:00.000Z"},
			"cid": "bafyreidwaivazkwu67xztlmuobx35hs2lnfh3kolmgfmucldvhd3sgzcqi"
		}
	}`, did, timeUS, operation, collection))
}

func text(data []byte) *firehose.RawMessage {
	return &firehose.RawMessage{MessageType: websocket.TextMessage, Data: data}
}

func newWatcher(t *testing.T, rec *recorder, compress bool) *firehose.Watcher {
	t.Helper()
	w, err := firehose.NewWatcher(firehose.WatcherConfig{Compress: compress}, rec, []string{"did:plc:alice", "did:plc:bob"})
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w
}

func TestWatcherCountsFollowedPosts(t *testing.T) {
	rec := &recorder{}
	w := newWatcher(t, rec, false)

	messages := [][]byte{
		commit("did:plc:alice", 1, "create", "app.bsky.feed.post"),
		commit("did:plc:alice", 2, "create", "app.bsky.feed.post"),
		commit("did:plc:bob", 3, "create", "app.bsky.feed.post"),
		commit("did:plc:stranger", 4, "create", "app.bsky.feed.post"),
		commit("did:plc:alice", 5, "delete", "app.bsky.feed.post"),
		commit("did:plc:alice", 6, "create", "app.bsky.feed.like"),
		[]byte(`{"did": "did:plc:alice", "time_us": 7, "kind": "identity"}`),
	}
	for _, msg := range messages {
		require.NoError(t, w.HandleMessage(text(msg)))
	}

	assert.Equal(t, int64(7), w.Cursor())

	w.Flush()
	w.Flush()

	require.Len(t, rec.events, 1)
	assert.Equal(t, models.NewPostsEvent{Count: 3, Authors: []string{"did:plc:alice", "did:plc:bob"}}, rec.events[0])
}

func TestWatcherRejectsMalformedMessages(t *testing.T) {
	rec := &recorder{}
	w := newWatcher(t, rec, false)

	assert.Error(t, w.HandleMessage(text([]byte("{not json"))))

	w.Flush()
	assert.Empty(t, rec.events)
}

func TestWatcherDecodesCompressedMessages(t *testing.T) {
	rec := &recorder{}
	w := newWatcher(t, rec, true)

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderDict(jetstream_models.ZSTDDictionary))
	require.NoError(t, err)
	defer encoder.Close()

	compressed := encoder.EncodeAll(commit("did:plc:bob", 42, "create", "app.bsky.feed.post"), nil)
	require.NoError(t, w.HandleMessage(&firehose.RawMessage{MessageType: websocket.BinaryMessage, Data: compressed}))

	assert.Error(t, w.HandleMessage(text([]byte("plain text is not zstd"))))

	w.Flush()
	require.Len(t, rec.events, 1)
	assert.Equal(t, models.NewPostsEvent{Count: 1, Authors: []string{"did:plc:bob"}}, rec.events[0])
	assert.Equal(t, int64(42), w.Cursor())
}
