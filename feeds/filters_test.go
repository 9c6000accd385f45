package feeds_test

import (
	"testing"

	"skyweb/feeds"
	"skyweb/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticPrefs models.FeedViewPreference

func (p staticPrefs) FollowingFeedPreference() models.FeedViewPreference {
	return models.FeedViewPreference(p)
}

var alice = &models.Identity{Did: "did:plc:alice", Handle: "alice.test"}

func cursor(s string) *string { return &s }

func post(uri string) models.FeedItem {
	return models.FeedItem{Post: &models.Post{Uri: uri}}
}

func reply(uri, root string) models.FeedItem {
	return models.FeedItem{
		Post:  &models.Post{Uri: uri},
		Reply: &models.Reply{Root: &models.PostRef{Uri: root}, Parent: &models.PostRef{Uri: root}},
	}
}

func repost(uri string) models.FeedItem {
	return models.FeedItem{
		Post:   &models.Post{Uri: uri},
		Reason: &models.Reason{Type: models.ReasonRepost, By: &models.Author{Did: "did:plc:bob"}},
	}
}

func moderated(uri string, v models.Visibility) models.FeedItem {
	return models.FeedItem{Post: &models.Post{Uri: uri, Moderation: &models.Moderation{Visibility: v}}}
}

func quoting(uri string, v models.Visibility) models.FeedItem {
	return models.FeedItem{Post: &models.Post{
		Uri: uri,
		Embed: &models.Embed{
			Kind:   "record",
			Quoted: &models.QuotedPost{Uri: uri + "-quoted", Moderation: &models.Moderation{Visibility: v}},
		},
	}}
}

func uris(page *models.FeedPage) []string {
	out := make([]string, 0, len(page.Items))
	for _, item := range page.Items {
		out = append(out, item.Post.Uri)
	}
	return out
}

type filterFunc func(*models.FeedPage) *models.FeedPage

func allFilters() map[string]filterFunc {
	return map[string]filterFunc{
		"following": func(p *models.FeedPage) *models.FeedPage {
			return feeds.FilterFollowingFeed(p, alice, staticPrefs{HideReposts: true, HideReplies: true})
		},
		"algorithmic": feeds.FilterAlgorithmicFeed,
		"author":      feeds.FilterAuthorFeed,
	}
}

func TestFilterFollowingFeed(t *testing.T) {
	tests := []struct {
		name     string
		prefs    staticPrefs
		items    []models.FeedItem
		expected []string
	}{
		{
			name:     "no preferences keeps reposts and replies",
			prefs:    staticPrefs{},
			items:    []models.FeedItem{post("a"), repost("b"), reply("c", "root")},
			expected: []string{"a", "b", "c"},
		},
		{
			name:     "hide reposts",
			prefs:    staticPrefs{HideReposts: true},
			items:    []models.FeedItem{post("a"), repost("b"), reply("c", "root")},
			expected: []string{"a", "c"},
		},
		{
			name:     "hide replies",
			prefs:    staticPrefs{HideReplies: true},
			items:    []models.FeedItem{post("a"), repost("b"), reply("c", "root")},
			expected: []string{"a", "b"},
		},
		{
			name:     "hide quote posts does not drop anything on its own",
			prefs:    staticPrefs{HideQuotePosts: true},
			items:    []models.FeedItem{quoting("a", models.VisibilityNone)},
			expected: []string{"a"},
		},
		{
			name:     "pinned reason is not a repost",
			prefs:    staticPrefs{HideReposts: true},
			items:    []models.FeedItem{{Post: &models.Post{Uri: "a"}, Reason: &models.Reason{Type: models.ReasonPin}}},
			expected: []string{"a"},
		},
		{
			name:     "hidden post and hidden quote are dropped",
			prefs:    staticPrefs{},
			items:    []models.FeedItem{moderated("a", models.VisibilityHide), quoting("b", models.VisibilityHide), post("c")},
			expected: []string{"c"},
		},
		{
			name:     "warned content survives",
			prefs:    staticPrefs{HideReposts: true, HideReplies: true},
			items:    []models.FeedItem{moderated("a", models.VisibilityWarn), quoting("b", models.VisibilityWarn)},
			expected: []string{"a", "b"},
		},
		{
			name:     "replies to the same root collapse to the first",
			prefs:    staticPrefs{},
			items:    []models.FeedItem{reply("r1", "root"), post("x"), reply("r2", "root")},
			expected: []string{"r1", "x"},
		},
		{
			name:     "root post and a reply to it collapse",
			prefs:    staticPrefs{},
			items:    []models.FeedItem{post("root"), reply("r1", "root")},
			expected: []string{"root"},
		},
		{
			name:     "repeated repost of the same post collapses",
			prefs:    staticPrefs{},
			items:    []models.FeedItem{repost("a"), post("a")},
			expected: []string{"a"},
		},
		{
			name:     "empty page",
			prefs:    staticPrefs{HideReposts: true},
			items:    []models.FeedItem{},
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := &models.FeedPage{Items: tt.items, Cursor: cursor("next")}
			result := feeds.FilterFollowingFeed(page, alice, tt.prefs)
			require.NotNil(t, result)
			assert.Equal(t, tt.expected, uris(result))
			assert.Equal(t, page.Cursor, result.Cursor)
		})
	}
}

func TestFilterFollowingFeedWithoutUser(t *testing.T) {
	page := &models.FeedPage{
		Items:  []models.FeedItem{repost("a"), reply("b", "root"), reply("c", "root"), moderated("d", models.VisibilityHide)},
		Cursor: cursor("next"),
	}

	result := feeds.FilterFollowingFeed(page, nil, staticPrefs{HideReposts: true, HideReplies: true})

	assert.Len(t, result.Items, len(page.Items))
	assert.Equal(t, page, result)
}

func TestFilterFollowingFeedNilPreferences(t *testing.T) {
	page := &models.FeedPage{Items: []models.FeedItem{repost("a"), reply("b", "root")}}

	result := feeds.FilterFollowingFeed(page, alice, nil)

	assert.Equal(t, []string{"a", "b"}, uris(result))
}

func TestOnlyFollowingFeedSuppressesRepostsAndReplies(t *testing.T) {
	page := &models.FeedPage{Items: []models.FeedItem{repost("a"), reply("b", "root1"), reply("c", "root2")}}

	assert.Equal(t, []string{"a", "b", "c"}, uris(feeds.FilterAlgorithmicFeed(page)))
	assert.Equal(t, []string{"a", "b", "c"}, uris(feeds.FilterAuthorFeed(page)))
}

func TestHiddenContentNeverSurvives(t *testing.T) {
	page := &models.FeedPage{Items: []models.FeedItem{
		moderated("hidden", models.VisibilityHide),
		quoting("quote-hidden", models.VisibilityHide),
		moderated("warned", models.VisibilityWarn),
		quoting("quote-warned", models.VisibilityWarn),
		post("plain"),
	}}

	for name, filter := range allFilters() {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, []string{"warned", "quote-warned", "plain"}, uris(filter(page)))
		})
	}
}

func TestFiltersPreserveCursor(t *testing.T) {
	pages := []*models.FeedPage{
		{Items: []models.FeedItem{post("a")}, Cursor: cursor("abc")},
		{Items: []models.FeedItem{}, Cursor: cursor("empty-but-more")},
		{Items: []models.FeedItem{post("a")}, Cursor: nil},
	}

	for name, filter := range allFilters() {
		for _, page := range pages {
			t.Run(name, func(t *testing.T) {
				assert.Equal(t, page.Cursor, filter(page).Cursor)
			})
		}
	}
}

func TestFiltersAreIdempotent(t *testing.T) {
	page := &models.FeedPage{Items: []models.FeedItem{
		post("root"), reply("r1", "root"), repost("a"), post("a"),
		moderated("h", models.VisibilityHide), reply("r2", "other"), reply("r3", "other"),
	}, Cursor: cursor("c")}

	for name, filter := range allFilters() {
		t.Run(name, func(t *testing.T) {
			once := filter(page)
			twice := filter(once)
			assert.Equal(t, once, twice)
		})
	}
}

func TestFiltersDoNotMutateInput(t *testing.T) {
	page := &models.FeedPage{Items: []models.FeedItem{post("a"), post("a"), moderated("h", models.VisibilityHide)}}

	_ = feeds.FilterAlgorithmicFeed(page)

	assert.Len(t, page.Items, 3)
}

func TestFiltersTolerateMissingFields(t *testing.T) {
	page := &models.FeedPage{Items: []models.FeedItem{
		{},
		{},
		{Post: &models.Post{Uri: "a", Embed: &models.Embed{Kind: "images"}}},
		{Post: &models.Post{Uri: "b"}, Reply: &models.Reply{}},
		{Post: &models.Post{Uri: "c", Embed: &models.Embed{Kind: "record", Quoted: &models.QuotedPost{Uri: "q"}}}},
	}}

	result := feeds.FilterAuthorFeed(page)

	assert.Len(t, result.Items, 5)
}

func TestNilPage(t *testing.T) {
	assert.Nil(t, feeds.FilterAlgorithmicFeed(nil))
	assert.Nil(t, feeds.FilterAuthorFeed(nil))
	assert.Nil(t, feeds.FilterFollowingFeed(nil, alice, staticPrefs{}))
}

func TestDedupKey(t *testing.T) {
	tests := []struct {
		name     string
		item     models.FeedItem
		expected string
	}{
		{"plain post", post("a"), "a"},
		{"reply uses root", reply("a", "root"), "root"},
		{"reply without root uses own uri", models.FeedItem{Post: &models.Post{Uri: "a"}, Reply: &models.Reply{Parent: &models.PostRef{Uri: "p"}}}, "a"},
		{"no post", models.FeedItem{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, feeds.DedupKey(&tt.item))
		})
	}
}
