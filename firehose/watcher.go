// Package firehose watches Jetstream for new posts from followed accounts
package firehose

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"skyweb/models"
	"skyweb/notifications"

	jetstream_models "github.com/bluesky-social/jetstream/pkg/models"
	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

const (
	PostCollection = "app.bsky.feed.post"

	DefaultFlushInterval = 15 * time.Second

	// Larger follow lists are filtered locally, the DIDs do not fit in the
	// subscription URL
	MaxWantedDids = 100

	messageQueueSize = 1000
)

var postsSeen = promauto.NewCounter(prometheus.CounterOpts{
	Name: "skyweb_firehose_followed_posts_total",
	Help: "Posts created by followed accounts seen on Jetstream",
})

// WatcherConfig holds the Jetstream settings for the watcher
type WatcherConfig struct {
	Hosts         []string
	Compress      bool
	UserAgent     string
	FlushInterval time.Duration
}

// Watcher counts new posts from followed accounts and publishes a
// NewPostsEvent every flush interval when there is something new
type Watcher struct {
	config    WatcherConfig
	publisher notifications.Publisher
	following map[string]bool
	decoder   *zstd.Decoder

	mu      sync.Mutex
	pending int
	authors []string

	cursor atomic.Int64
}

func NewWatcher(config WatcherConfig, publisher notifications.Publisher, following []string) (*Watcher, error) {
	if config.FlushInterval <= 0 {
		config.FlushInterval = DefaultFlushInterval
	}

	w := &Watcher{
		config:    config,
		publisher: publisher,
		following: lo.SliceToMap(following, func(did string) (string, bool) { return did, true }),
	}

	if config.Compress {
		decoder, err := zstd.NewReader(nil, zstd.WithDecoderDicts(jetstream_models.ZSTDDictionary))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		w.decoder = decoder
	}

	return w, nil
}

// Close releases the decoder
func (w *Watcher) Close() {
	if w.decoder != nil {
		w.decoder.Close()
	}
}

// Cursor is the time_us of the last event seen, zero before any event
func (w *Watcher) Cursor() int64 {
	return w.cursor.Load()
}

// Run streams Jetstream until ctx is done
func (w *Watcher) Run(ctx context.Context) error {
	if len(w.following) == 0 {
		log.Info("Not following anyone, skipping Jetstream subscription")
		<-ctx.Done()
		return nil
	}

	config := JetstreamConfig{
		Hosts:             w.config.Hosts,
		WantedCollections: []string{PostCollection},
		Compress:          w.config.Compress,
		UserAgent:         w.config.UserAgent,
	}
	if len(w.following) <= MaxWantedDids {
		config.WantedDids = lo.Keys(w.following)
	}

	messages := make(chan *RawMessage, messageQueueSize)
	streamErr := make(chan error, 1)
	go func() {
		streamErr <- StreamJetstream(ctx, config, w.Cursor, messages)
	}()

	ticker := time.NewTicker(w.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return <-streamErr
		case err := <-streamErr:
			return err
		case msg := <-messages:
			if err := w.HandleMessage(msg); err != nil {
				log.WithFields(log.Fields{
					"error": err,
				}).Warn("Failed to handle Jetstream message")
			}
		case <-ticker.C:
			w.Flush()
		}
	}
}

// HandleMessage decodes one Jetstream message and records it when it is a
// post created by a followed account
func (w *Watcher) HandleMessage(msg *RawMessage) error {
	data := msg.Data
	if w.decoder != nil {
		decoded, err := w.decoder.DecodeAll(msg.Data, nil)
		if err != nil {
			return fmt.Errorf("failed to decompress message: %w", err)
		}
		data = decoded
	}

	var event jetstream_models.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}

	w.cursor.Store(event.TimeUS)

	if event.Commit == nil ||
		event.Commit.Operation != jetstream_models.CommitOperationCreate ||
		event.Commit.Collection != PostCollection {
		return nil
	}

	if !w.following[event.Did] {
		return nil
	}

	postsSeen.Inc()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending++
	if !lo.Contains(w.authors, event.Did) {
		w.authors = append(w.authors, event.Did)
	}
	return nil
}

// Flush publishes the pending posts, if any, and resets the counters
func (w *Watcher) Flush() {
	w.mu.Lock()
	if w.pending == 0 {
		w.mu.Unlock()
		return
	}
	event := models.NewPostsEvent{Count: w.pending, Authors: w.authors}
	w.pending = 0
	w.authors = nil
	w.mu.Unlock()

	delivered := w.publisher.Publish(event)
	log.WithFields(log.Fields{
		"count":     event.Count,
		"authors":   len(event.Authors),
		"delivered": delivered,
	}).Debug("Announced new posts")
}
