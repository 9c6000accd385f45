// Package feeds filters raw feed pages for display and serves the configured feeds
package feeds

import (
	"context"

	"skyweb/models"
)

// Kind of feed source. Each kind has its own display contract.
type Kind string

const (
	KindFollowing   Kind = "following"
	KindAlgorithmic Kind = "algorithmic"
	KindAuthor      Kind = "author"
)

// FollowingFeedID is the id of the always-present home timeline
const FollowingFeedID = "following"

// ExclusionRule decides whether a single item is dropped from a page
type ExclusionRule interface {
	// Excludes reports whether the item should be removed
	Excludes(item *models.FeedItem) bool
	// Name is used for logging and metrics
	Name() string
}

// Preferences answers per-feed display questions for the viewer
type Preferences interface {
	FollowingFeedPreference() models.FeedViewPreference
}

// Source fetches raw feed pages from the network
type Source interface {
	Timeline(ctx context.Context, cursor string, limit int) (*models.FeedPage, error)
	Feed(ctx context.Context, uri string, cursor string, limit int) (*models.FeedPage, error)
	AuthorFeed(ctx context.Context, actor string, filter string, cursor string, limit int) (*models.FeedPage, error)
}

// FeedMap maps feed IDs to their Feed definitions
type FeedMap map[string]Feed

// Feed is a feed the client knows how to show
type Feed struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Description string `json:"description,omitempty"`
	// URI of the feed generator record, empty for the following feed
	URI  string `json:"uri,omitempty"`
	Kind Kind   `json:"kind"`
}
