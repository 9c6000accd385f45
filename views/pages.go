package views

import (
	"context"
	"errors"
	"fmt"

	"skyweb/bluesky"
	"skyweb/feeds"
	"skyweb/models"
	"skyweb/router"
	"skyweb/settings"

	"github.com/bluesky-social/indigo/atproto/syntax"
)

type HomeModel struct {
	LoginRequired bool             `json:"loginRequired"`
	Feeds         []feeds.Feed     `json:"feeds"`
	Page          *models.FeedPage `json:"page,omitempty"`
}

type FeedModel struct {
	Feed feeds.Feed       `json:"feed"`
	Page *models.FeedPage `json:"page"`
}

type ProfileModel struct {
	Profile *models.Profile  `json:"profile"`
	Page    *models.FeedPage `json:"page"`
}

type PostModel struct {
	Post models.Post `json:"post"`
}

type NotificationsModel struct {
	LoginRequired bool                     `json:"loginRequired"`
	Page          *models.NotificationPage `json:"page,omitempty"`
}

type SettingsModel struct {
	Theme    settings.Theme   `json:"theme"`
	Identity *models.Identity `json:"identity,omitempty"`
}

type NotFoundModel struct {
	Message string `json:"message"`
}

var notFound = NotFoundModel{Message: "Page not found"}

// HomePage shows the following feed, or asks anonymous viewers to log in
type HomePage struct {
	deps Deps
}

func (p *HomePage) Name() string { return "home" }

func (p *HomePage) Render(ctx context.Context, params router.Params) (any, error) {
	model := HomeModel{Feeds: p.deps.Feeds.Feeds().Sorted()}
	if p.deps.currentUser() == nil {
		model.LoginRequired = true
		return model, nil
	}

	page, err := p.deps.Feeds.Following(ctx, "", 0)
	if err != nil {
		return nil, err
	}
	model.Page = page
	return model, nil
}

type FeedPage struct {
	deps Deps
}

func (p *FeedPage) Name() string { return "feed" }

func (p *FeedPage) Render(ctx context.Context, params router.Params) (any, error) {
	id := params["id"]
	feed, ok := p.deps.Feeds.Feeds()[id]
	if !ok {
		return notFound, nil
	}

	var (
		page *models.FeedPage
		err  error
	)
	if feed.Kind == feeds.KindFollowing {
		if p.deps.currentUser() == nil {
			return HomeModel{LoginRequired: true, Feeds: p.deps.Feeds.Feeds().Sorted()}, nil
		}
		page, err = p.deps.Feeds.Following(ctx, "", 0)
	} else {
		page, err = p.deps.Feeds.Algorithmic(ctx, id, "", 0)
	}
	if err != nil {
		return nil, err
	}
	return FeedModel{Feed: feed, Page: page}, nil
}

// ProfilePage shows an account and its posts
type ProfilePage struct {
	deps Deps
}

func (p *ProfilePage) Name() string { return "profile" }

func (p *ProfilePage) Render(ctx context.Context, params router.Params) (any, error) {
	actor, err := syntax.ParseAtIdentifier(params["handle"])
	if err != nil {
		return notFound, nil
	}

	profile, err := p.deps.Network.Profile(ctx, actor.String())
	if errors.Is(err, bluesky.ErrNotFound) {
		return notFound, nil
	}
	if err != nil {
		return nil, err
	}

	page, err := p.deps.Feeds.Author(ctx, profile.Did, "", "", 0)
	if err != nil {
		return nil, err
	}
	return ProfileModel{Profile: profile, Page: page}, nil
}

// PostPage shows a single post addressed by author and record key
type PostPage struct {
	deps Deps
}

func (p *PostPage) Name() string { return "post" }

func (p *PostPage) Render(ctx context.Context, params router.Params) (any, error) {
	actor, err := syntax.ParseAtIdentifier(params["handle"])
	if err != nil {
		return notFound, nil
	}
	rkey, err := syntax.ParseRecordKey(params["rkey"])
	if err != nil {
		return notFound, nil
	}

	did := actor.String()
	if !actor.IsDID() {
		did, err = p.deps.Network.ResolveHandle(ctx, actor.String())
		if errors.Is(err, bluesky.ErrNotFound) {
			return notFound, nil
		}
		if err != nil {
			return nil, err
		}
	}

	uri := fmt.Sprintf("at://%s/%s/%s", did, bluesky.PostCollection, rkey)
	posts, err := p.deps.Network.Posts(ctx, []string{uri})
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return notFound, nil
	}
	return PostModel{Post: posts[0]}, nil
}

type NotificationsPage struct {
	deps Deps
}

func (p *NotificationsPage) Name() string { return "notifications" }

func (p *NotificationsPage) Render(ctx context.Context, params router.Params) (any, error) {
	if p.deps.currentUser() == nil {
		return NotificationsModel{LoginRequired: true}, nil
	}

	page, err := p.deps.Network.Notifications(ctx, "", feeds.DefaultLimit)
	if err != nil {
		return nil, err
	}
	return NotificationsModel{Page: page}, nil
}

type SettingsPage struct {
	deps Deps
}

func (p *SettingsPage) Name() string { return "settings" }

func (p *SettingsPage) Render(ctx context.Context, params router.Params) (any, error) {
	return SettingsModel{
		Theme:    p.deps.Settings.Theme(),
		Identity: p.deps.currentUser(),
	}, nil
}

type NotFoundPage struct{}

func (NotFoundPage) Name() string { return "not-found" }

func (NotFoundPage) Render(ctx context.Context, params router.Params) (any, error) {
	return notFound, nil
}
