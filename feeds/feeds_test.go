package feeds_test

import (
	"context"
	"errors"
	"testing"

	"skyweb/config"
	"skyweb/feeds"
	"skyweb/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	page       *models.FeedPage
	err        error
	lastURI    string
	lastActor  string
	lastFilter string
	lastLimit  int
	lastCursor string
}

func (f *fakeSource) Timeline(ctx context.Context, cursor string, limit int) (*models.FeedPage, error) {
	f.lastCursor, f.lastLimit = cursor, limit
	return f.page, f.err
}

func (f *fakeSource) Feed(ctx context.Context, uri string, cursor string, limit int) (*models.FeedPage, error) {
	f.lastURI, f.lastCursor, f.lastLimit = uri, cursor, limit
	return f.page, f.err
}

func (f *fakeSource) AuthorFeed(ctx context.Context, actor string, filter string, cursor string, limit int) (*models.FeedPage, error) {
	f.lastActor, f.lastFilter, f.lastCursor, f.lastLimit = actor, filter, cursor, limit
	return f.page, f.err
}

func testFeeds() feeds.FeedMap {
	cfg := &config.Config{Feeds: []config.Feed{
		{ID: "discover", DisplayName: "Discover", URI: "at://did:plc:gen/app.bsky.feed.generator/whats-hot"},
		{ID: "following", DisplayName: "Shadowed"},
	}}
	return feeds.InitializeFeeds(cfg)
}

func TestInitializeFeeds(t *testing.T) {
	fm := testFeeds()

	require.Len(t, fm, 2)
	assert.Equal(t, feeds.KindFollowing, fm["following"].Kind)
	assert.Equal(t, "Following", fm["following"].DisplayName)
	assert.Equal(t, feeds.KindAlgorithmic, fm["discover"].Kind)
	assert.Equal(t, "at://did:plc:gen/app.bsky.feed.generator/whats-hot", fm["discover"].URI)
}

func TestFeedMapSorted(t *testing.T) {
	fm := testFeeds()
	fm["art"] = feeds.Feed{ID: "art", Kind: feeds.KindAlgorithmic}

	ids := []string{}
	for _, feed := range fm.Sorted() {
		ids = append(ids, feed.ID)
	}

	assert.Equal(t, []string{"following", "art", "discover"}, ids)
}

func TestServiceFollowing(t *testing.T) {
	src := &fakeSource{page: &models.FeedPage{
		Items:  []models.FeedItem{post("a"), repost("b"), reply("c", "a")},
		Cursor: cursor("next"),
	}}
	svc := feeds.NewService(src, staticPrefs{HideReposts: true}, func() *models.Identity { return alice }, testFeeds())

	page, err := svc.Following(context.Background(), "prev", 0)

	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, uris(page))
	assert.Equal(t, "next", *page.Cursor)
	assert.Equal(t, "prev", src.lastCursor)
	assert.Equal(t, feeds.DefaultLimit, src.lastLimit)
}

func TestServiceFollowingAnonymous(t *testing.T) {
	src := &fakeSource{page: &models.FeedPage{Items: []models.FeedItem{post("a"), repost("a")}}}
	svc := feeds.NewService(src, staticPrefs{HideReposts: true}, nil, testFeeds())

	page, err := svc.Following(context.Background(), "", 10)

	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
}

func TestServiceAlgorithmic(t *testing.T) {
	src := &fakeSource{page: &models.FeedPage{Items: []models.FeedItem{repost("a"), moderated("b", models.VisibilityHide)}}}
	svc := feeds.NewService(src, staticPrefs{HideReposts: true}, func() *models.Identity { return alice }, testFeeds())

	page, err := svc.Algorithmic(context.Background(), "discover", "", 500)

	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, uris(page))
	assert.Equal(t, "at://did:plc:gen/app.bsky.feed.generator/whats-hot", src.lastURI)
	assert.Equal(t, feeds.MaxLimit, src.lastLimit)
}

func TestServiceAlgorithmicErrors(t *testing.T) {
	svc := feeds.NewService(&fakeSource{}, nil, nil, testFeeds())

	_, err := svc.Algorithmic(context.Background(), "nope", "", 10)
	assert.ErrorIs(t, err, feeds.ErrUnknownFeed)

	_, err = svc.Algorithmic(context.Background(), "following", "", 10)
	assert.ErrorIs(t, err, feeds.ErrWrongKind)
}

func TestServiceAuthor(t *testing.T) {
	src := &fakeSource{page: &models.FeedPage{Items: []models.FeedItem{post("a"), reply("b", "a")}}}
	svc := feeds.NewService(src, nil, nil, testFeeds())

	page, err := svc.Author(context.Background(), "alice.test", "bogus", "", 20)

	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, uris(page))
	assert.Equal(t, "alice.test", src.lastActor)
	assert.Equal(t, "posts_with_replies", src.lastFilter)

	_, err = svc.Author(context.Background(), "alice.test", "posts_with_media", "", 20)
	require.NoError(t, err)
	assert.Equal(t, "posts_with_media", src.lastFilter)

	_, err = svc.Author(context.Background(), "", "", "", 20)
	assert.ErrorIs(t, err, feeds.ErrInvalidActor)
}

func TestServiceSourceError(t *testing.T) {
	boom := errors.New("boom")
	svc := feeds.NewService(&fakeSource{err: boom}, nil, nil, testFeeds())

	_, err := svc.Following(context.Background(), "", 10)

	assert.ErrorIs(t, err, boom)
}
