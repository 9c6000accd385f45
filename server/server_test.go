package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"skyweb/bluesky"
	"skyweb/composer"
	"skyweb/feeds"
	"skyweb/models"
	"skyweb/notifications"
	"skyweb/server"
	"skyweb/settings"
	"skyweb/views"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alice = &models.Identity{Did: "did:plc:alice", Handle: "alice.test"}

type fakeFeeds struct {
	limits  []int
	filters []string
}

func (f *fakeFeeds) Feeds() feeds.FeedMap {
	return feeds.FeedMap{
		"discover":            {ID: "discover", Kind: feeds.KindAlgorithmic, URI: "at://gen"},
		feeds.FollowingFeedID: {ID: feeds.FollowingFeedID, Kind: feeds.KindFollowing},
	}
}

func (f *fakeFeeds) Following(ctx context.Context, cursor string, limit int) (*models.FeedPage, error) {
	return nil, fmt.Errorf("fetch timeline: %w", bluesky.ErrNotAuthenticated)
}

func (f *fakeFeeds) Algorithmic(ctx context.Context, id string, cursor string, limit int) (*models.FeedPage, error) {
	if id != "discover" {
		return nil, fmt.Errorf("%w: %s", feeds.ErrUnknownFeed, id)
	}
	f.limits = append(f.limits, limit)
	next := "next"
	return &models.FeedPage{Items: []models.FeedItem{{Post: &models.Post{Uri: "at://post"}}}, Cursor: &next}, nil
}

func (f *fakeFeeds) Author(ctx context.Context, actor string, filter string, cursor string, limit int) (*models.FeedPage, error) {
	f.filters = append(f.filters, filter)
	return &models.FeedPage{Items: []models.FeedItem{{Post: &models.Post{Uri: "at://" + actor}}}}, nil
}

type fakeComposer struct {
	drafts []composer.Draft
	err    error
}

func (c *fakeComposer) Publish(ctx context.Context, draft composer.Draft) (*models.PostRef, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.drafts = append(c.drafts, draft)
	return &models.PostRef{Uri: "at://did:plc:alice/app.bsky.feed.post/1", Cid: "cid"}, nil
}

type fixture struct {
	app      *fiber.App
	feeds    *fakeFeeds
	composer *fakeComposer
	hub      *notifications.Hub
	sessions *server.Sessions
	settings *settings.Settings
}

func newFixture(t *testing.T, user *models.Identity) *fixture {
	t.Helper()
	s, err := settings.New(context.Background(), settings.NewMemoryStorage(),
		settings.Theme{Mode: settings.ModeSystem, Accent: "#0085ff", FontScale: 1})
	require.NoError(t, err)

	f := &fixture{
		feeds:    &fakeFeeds{},
		composer: &fakeComposer{},
		hub:      notifications.NewHub(),
		settings: s,
	}
	deps := views.Deps{
		Feeds:       f.feeds,
		Settings:    s,
		CurrentUser: func() *models.Identity { return user },
	}
	f.sessions = server.NewSessions(f.hub, deps)
	f.app = server.Server(&server.ServerConfig{
		Views:    deps,
		Hub:      f.hub,
		Sessions: f.sessions,
		Composer: f.composer,
	})
	t.Cleanup(f.hub.Shutdown)
	return f
}

func (f *fixture) do(t *testing.T, method, target string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.app.Test(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestFeedList(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.do(t, http.MethodGet, "/api/feeds", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]feeds.Feed](t, resp)
	require.Len(t, list, 2)
	assert.Equal(t, feeds.FollowingFeedID, list[0].ID)
	assert.Equal(t, "discover", list[1].ID)
}

func TestAlgorithmicFeed(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.do(t, http.MethodGet, "/api/feeds/discover?limit=5", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	page := decode[models.FeedPage](t, resp)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "next", *page.Cursor)
	assert.Equal(t, []int{5}, f.feeds.limits)
}

func TestFeedErrors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		status int
	}{
		{"unknown feed", "/api/feeds/unknown", http.StatusNotFound},
		{"following needs an account", "/api/feeds/following", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)

			resp := f.do(t, http.MethodGet, tt.target, nil)

			assert.Equal(t, tt.status, resp.StatusCode)
			body := decode[map[string]string](t, resp)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestAuthorFeed(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.do(t, http.MethodGet, "/api/authors/bob.test/feed?filter=posts_with_media", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	page := decode[models.FeedPage](t, resp)
	assert.Equal(t, "at://bob.test", page.Items[0].Post.Uri)
	assert.Equal(t, []string{"posts_with_media"}, f.feeds.filters)
}

func TestRouteMatch(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.do(t, http.MethodGet, "/api/route?path=/profile/bob.test/post/3k", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	match := decode[map[string]any](t, resp)
	assert.Equal(t, true, match["matched"])
	assert.Equal(t, views.PostPath, match["pattern"])
	assert.Equal(t, map[string]any{"handle": "bob.test", "rkey": "3k"}, match["params"])

	resp = f.do(t, http.MethodGet, "/api/route?path=/nowhere", nil)
	assert.Equal(t, false, decode[map[string]any](t, resp)["matched"])

	resp = f.do(t, http.MethodGet, "/api/route", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTheme(t *testing.T) {
	f := newFixture(t, alice)
	events := f.hub.Subscribe("observer", 4)

	theme := settings.Theme{Mode: settings.ModeDark, Accent: "#ff0000", FontScale: 1.25}
	resp := f.do(t, http.MethodPut, "/api/settings/theme", theme)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case event := <-events:
		assert.Equal(t, settings.ThemeChangedEvent{Theme: theme}, event)
	case <-time.After(time.Second):
		t.Fatal("theme change was not published")
	}

	resp = f.do(t, http.MethodGet, "/api/settings/theme", nil)
	assert.Equal(t, theme, decode[settings.Theme](t, resp))

	resp = f.do(t, http.MethodPut, "/api/settings/theme", settings.Theme{Mode: "neon", Accent: "#ff0000", FontScale: 1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, theme, f.settings.Theme())
}

func TestPosts(t *testing.T) {
	draft := composer.Draft{Text: "hello"}

	t.Run("anonymous", func(t *testing.T) {
		f := newFixture(t, nil)

		resp := f.do(t, http.MethodPost, "/api/posts", draft)

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Empty(t, f.composer.drafts)
	})

	t.Run("published", func(t *testing.T) {
		f := newFixture(t, alice)

		resp := f.do(t, http.MethodPost, "/api/posts", draft)

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, "cid", decode[models.PostRef](t, resp).Cid)
		assert.Equal(t, []composer.Draft{draft}, f.composer.drafts)
	})

	t.Run("rejected draft", func(t *testing.T) {
		f := newFixture(t, alice)
		f.composer.err = composer.ErrTooLong

		resp := f.do(t, http.MethodPost, "/api/posts", draft)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestNavigate(t *testing.T) {
	f := newFixture(t, alice)
	events := f.sessions.Open("session")

	resp := f.do(t, http.MethodPost, "/api/navigate", map[string]string{"key": "session", "path": "/settings"})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	select {
	case event := <-events:
		view, ok := event.(models.ViewEvent)
		require.True(t, ok)
		assert.Equal(t, "settings", view.Name)
		assert.Equal(t, "/settings", view.Path)
		assert.Equal(t, views.SettingsPath, view.Pattern)
	case <-time.After(time.Second):
		t.Fatal("view was not sent to the session")
	}

	resp = f.do(t, http.MethodPost, "/api/back", map[string]string{"key": "session"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/navigate", map[string]string{"key": "missing", "path": "/"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodDelete, "/api/events?key=session", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_, open := <-events
	assert.False(t, open)
	assert.Equal(t, 0, f.sessions.Count())
}

func TestShell(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.do(t, http.MethodGet, "/", nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `<div id="app"></div>`)
}

func TestMetrics(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.do(t, http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
