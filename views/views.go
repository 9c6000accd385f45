// Package views defines the pages of the client and registers them on a router
package views

import (
	"context"

	"skyweb/feeds"
	"skyweb/models"
	"skyweb/router"
	"skyweb/settings"
)

const (
	HomePath          = "/"
	FeedPath          = "/feeds/:id"
	ProfilePath       = "/profile/:handle"
	PostPath          = "/profile/:handle/post/:rkey"
	NotificationsPath = "/notifications"
	SettingsPath      = "/settings"
)

// Page renders the model for one route
type Page interface {
	Name() string
	Render(ctx context.Context, params router.Params) (any, error)
}

// View is what route loaders produce: the page name and its rendered model
type View struct {
	Name  string `json:"name"`
	Model any    `json:"model"`
}

// FeedService is the part of feeds.Service the pages use
type FeedService interface {
	Feeds() feeds.FeedMap
	Following(ctx context.Context, cursor string, limit int) (*models.FeedPage, error)
	Algorithmic(ctx context.Context, id string, cursor string, limit int) (*models.FeedPage, error)
	Author(ctx context.Context, actor string, filter string, cursor string, limit int) (*models.FeedPage, error)
}

// Network reads profiles, posts and notifications
type Network interface {
	Profile(ctx context.Context, actor string) (*models.Profile, error)
	Posts(ctx context.Context, uris []string) ([]models.Post, error)
	ResolveHandle(ctx context.Context, handle string) (string, error)
	Notifications(ctx context.Context, cursor string, limit int) (*models.NotificationPage, error)
}

type Deps struct {
	Feeds    FeedService
	Network  Network
	Settings *settings.Settings
	// CurrentUser returns nil for anonymous viewers
	CurrentUser func() *models.Identity
}

func (d Deps) currentUser() *models.Identity {
	if d.CurrentUser == nil {
		return nil
	}
	return d.CurrentUser()
}

// Loader adapts a page to a router loader. The route params are taken from
// the loader context.
func Loader(page Page) router.ViewLoader {
	return func(ctx context.Context) (any, error) {
		model, err := page.Render(ctx, router.ParamsFromContext(ctx))
		if err != nil {
			return nil, err
		}
		return View{Name: page.Name(), Model: model}, nil
	}
}

// Register adds every page of the client to r
func Register(r *router.Router, deps Deps) *router.Router {
	return r.
		AddRoute(HomePath, Loader(&HomePage{deps: deps})).
		AddRoute(FeedPath, Loader(&FeedPage{deps: deps})).
		AddRoute(ProfilePath, Loader(&ProfilePage{deps: deps})).
		AddRoute(PostPath, Loader(&PostPage{deps: deps})).
		AddRoute(NotificationsPath, Loader(&NotificationsPage{deps: deps})).
		AddRoute(SettingsPath, Loader(&SettingsPage{deps: deps})).
		SetNotFoundView(Loader(NotFoundPage{}))
}
