package feeds

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"skyweb/config"
	"skyweb/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultLimit = 30
	MaxLimit     = 100
)

var (
	ErrUnknownFeed  = errors.New("unknown feed")
	ErrWrongKind    = errors.New("feed is not of the requested kind")
	ErrInvalidActor = errors.New("invalid actor")
)

// AuthorFilters are the values accepted by app.bsky.feed.getAuthorFeed
var AuthorFilters = []string{
	"posts_with_replies",
	"posts_no_replies",
	"posts_with_media",
	"posts_and_author_threads",
}

var (
	feedItemsFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skyweb_feed_items_fetched_total",
		Help: "Number of raw feed items fetched from the network",
	}, []string{"kind"})

	feedItemsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skyweb_feed_items_dropped_total",
		Help: "Number of feed items removed by filtering and deduplication",
	}, []string{"kind"})
)

// InitializeFeeds builds the feed map from configuration. The following feed
// is always present.
func InitializeFeeds(cfg *config.Config) FeedMap {
	feeds := FeedMap{
		FollowingFeedID: {
			ID:          FollowingFeedID,
			DisplayName: "Following",
			Description: "Posts from accounts you follow",
			Kind:        KindFollowing,
		},
	}

	for _, feedCfg := range cfg.Feeds {
		if feedCfg.ID == FollowingFeedID {
			log.Warn("Ignoring configured feed with reserved id 'following'")
			continue
		}
		feeds[feedCfg.ID] = Feed{
			ID:          feedCfg.ID,
			DisplayName: feedCfg.DisplayName,
			Description: feedCfg.Description,
			URI:         feedCfg.URI,
			Kind:        KindAlgorithmic,
		}
	}

	return feeds
}

// Sorted returns the feeds with the following feed first and the rest by id
func (m FeedMap) Sorted() []Feed {
	list := lo.Values(m)
	sort.Slice(list, func(i, j int) bool {
		if (list[i].Kind == KindFollowing) != (list[j].Kind == KindFollowing) {
			return list[i].Kind == KindFollowing
		}
		return list[i].ID < list[j].ID
	})
	return list
}

// Service fetches feed pages and filters them for the current viewer
type Service struct {
	source      Source
	prefs       Preferences
	currentUser func() *models.Identity
	feeds       FeedMap
}

// NewService creates a feed service. currentUser may return nil for anonymous
// viewers.
func NewService(source Source, prefs Preferences, currentUser func() *models.Identity, feeds FeedMap) *Service {
	if currentUser == nil {
		currentUser = func() *models.Identity { return nil }
	}
	return &Service{
		source:      source,
		prefs:       prefs,
		currentUser: currentUser,
		feeds:       feeds,
	}
}

// Feeds returns the known feeds
func (s *Service) Feeds() FeedMap {
	return s.feeds
}

// Following returns the viewer's home timeline
func (s *Service) Following(ctx context.Context, cursor string, limit int) (*models.FeedPage, error) {
	raw, err := s.source.Timeline(ctx, cursor, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("fetch timeline: %w", err)
	}

	page := FilterFollowingFeed(raw, s.currentUser(), s.prefs)
	record(KindFollowing, raw, page)
	return page, nil
}

// Algorithmic returns a page of a configured feed generator
func (s *Service) Algorithmic(ctx context.Context, id string, cursor string, limit int) (*models.FeedPage, error) {
	feed, ok := s.feeds[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFeed, id)
	}
	if feed.Kind != KindAlgorithmic {
		return nil, fmt.Errorf("%w: %s is %s", ErrWrongKind, id, feed.Kind)
	}

	raw, err := s.source.Feed(ctx, feed.URI, cursor, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", id, err)
	}

	page := FilterAlgorithmicFeed(raw)
	record(KindAlgorithmic, raw, page)
	return page, nil
}

// Author returns the posts of a single actor. An empty filter means
// posts_with_replies.
func (s *Service) Author(ctx context.Context, actor string, filter string, cursor string, limit int) (*models.FeedPage, error) {
	if actor == "" {
		return nil, ErrInvalidActor
	}
	if !lo.Contains(AuthorFilters, filter) {
		filter = AuthorFilters[0]
	}

	raw, err := s.source.AuthorFeed(ctx, actor, filter, cursor, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("fetch author feed %s: %w", actor, err)
	}

	page := FilterAuthorFeed(raw)
	record(KindAuthor, raw, page)
	return page, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return lo.Clamp(limit, 1, MaxLimit)
}

func record(kind Kind, raw, page *models.FeedPage) {
	if raw == nil || page == nil {
		return
	}
	dropped := len(raw.Items) - len(page.Items)

	feedItemsFetched.WithLabelValues(string(kind)).Add(float64(len(raw.Items)))
	feedItemsDropped.WithLabelValues(string(kind)).Add(float64(dropped))

	log.WithFields(log.Fields{
		"kind":    kind,
		"fetched": len(raw.Items),
		"dropped": dropped,
	}).Debug("Filtered feed page")
}
