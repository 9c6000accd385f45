package bluesky

import (
	"context"

	"skyweb/models"
	"skyweb/moderation"
	"skyweb/preferences"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/xrpc"
	"github.com/samber/lo"
)

// MaxFollows caps how many follows are collected for live updates. Jetstream
// accepts at most 10000 wanted DIDs.
const MaxFollows = 10000

type feedOutput struct {
	Cursor *string                       `json:"cursor,omitempty"`
	Feed   []*bsky.FeedDefs_FeedViewPost `json:"feed"`
}

type notificationsOutput struct {
	Cursor        *string                                            `json:"cursor,omitempty"`
	Notifications []*bsky.NotificationListNotifications_Notification `json:"notifications"`
}

// Timeline returns the viewer's following feed
func (c *Client) Timeline(ctx context.Context, cursor string, limit int) (*models.FeedPage, error) {
	if c.Identity() == nil {
		return nil, ErrNotAuthenticated
	}

	out, err := call(ctx, c, "getTimeline", func(xc *xrpc.Client) (*bsky.FeedGetTimeline_Output, error) {
		return bsky.FeedGetTimeline(ctx, xc, "", cursor, int64(limit))
	})
	if err != nil {
		return nil, err
	}
	return ConvertFeed(out.Feed, out.Cursor, c.moderationPolicy()), nil
}

// Feed returns a page of a feed generator
func (c *Client) Feed(ctx context.Context, uri string, cursor string, limit int) (*models.FeedPage, error) {
	out, err := call(ctx, c, "getFeed", func(xc *xrpc.Client) (*bsky.FeedGetFeed_Output, error) {
		return bsky.FeedGetFeed(ctx, xc, cursor, uri, int64(limit))
	})
	if err != nil {
		return nil, err
	}
	return ConvertFeed(out.Feed, out.Cursor, c.moderationPolicy()), nil
}

// AuthorFeed returns the posts of a single account
func (c *Client) AuthorFeed(ctx context.Context, actor string, filter string, cursor string, limit int) (*models.FeedPage, error) {
	params := map[string]interface{}{
		"actor":  actor,
		"filter": filter,
		"limit":  limit,
	}
	if cursor != "" {
		params["cursor"] = cursor
	}

	out, err := call(ctx, c, "getAuthorFeed", func(xc *xrpc.Client) (*feedOutput, error) {
		var out feedOutput
		if err := xc.Do(ctx, xrpc.Query, "", "app.bsky.feed.getAuthorFeed", params, nil, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}
	return ConvertFeed(out.Feed, out.Cursor, c.moderationPolicy()), nil
}

// Posts hydrates posts by AT URI, missing posts are left out
func (c *Client) Posts(ctx context.Context, uris []string) ([]models.Post, error) {
	policy := c.moderationPolicy()
	posts := []models.Post{}

	// getPosts accepts 25 URIs per request
	for _, chunk := range lo.Chunk(uris, 25) {
		out, err := call(ctx, c, "getPosts", func(xc *xrpc.Client) (*bsky.FeedGetPosts_Output, error) {
			return bsky.FeedGetPosts(ctx, xc, chunk)
		})
		if err != nil {
			return nil, err
		}
		for _, view := range out.Posts {
			if post := ConvertPost(view, policy); post != nil {
				posts = append(posts, *post)
			}
		}
	}
	return posts, nil
}

// Profile returns the detailed profile of an actor
func (c *Client) Profile(ctx context.Context, actor string) (*models.Profile, error) {
	out, err := call(ctx, c, "getProfile", func(xc *xrpc.Client) (*bsky.ActorDefs_ProfileViewDetailed, error) {
		return bsky.ActorGetProfile(ctx, xc, actor)
	})
	if err != nil {
		return nil, err
	}
	return ConvertProfile(out), nil
}

// ResolveHandle returns the DID behind a handle
func (c *Client) ResolveHandle(ctx context.Context, handle string) (string, error) {
	out, err := call(ctx, c, "resolveHandle", func(xc *xrpc.Client) (*atproto.IdentityResolveHandle_Output, error) {
		return atproto.IdentityResolveHandle(ctx, xc, handle)
	})
	if err != nil {
		return "", err
	}
	return out.Did, nil
}

// Notifications lists the viewer's notifications
func (c *Client) Notifications(ctx context.Context, cursor string, limit int) (*models.NotificationPage, error) {
	if c.Identity() == nil {
		return nil, ErrNotAuthenticated
	}

	params := map[string]interface{}{
		"limit": limit,
	}
	if cursor != "" {
		params["cursor"] = cursor
	}

	out, err := call(ctx, c, "listNotifications", func(xc *xrpc.Client) (*notificationsOutput, error) {
		var out notificationsOutput
		if err := xc.Do(ctx, xrpc.Query, "", "app.bsky.notification.listNotifications", params, nil, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
	if err != nil {
		return nil, err
	}

	page := &models.NotificationPage{
		Notifications: make([]models.Notification, 0, len(out.Notifications)),
		Cursor:        out.Cursor,
	}
	for _, n := range out.Notifications {
		if n == nil {
			continue
		}
		page.Notifications = append(page.Notifications, ConvertNotification(n))
	}
	return page, nil
}

// UnreadCount returns the number of unread notifications
func (c *Client) UnreadCount(ctx context.Context) (int64, error) {
	if c.Identity() == nil {
		return 0, ErrNotAuthenticated
	}

	out, err := call(ctx, c, "getUnreadCount", func(xc *xrpc.Client) (*bsky.NotificationGetUnreadCount_Output, error) {
		return bsky.NotificationGetUnreadCount(ctx, xc, false, "")
	})
	if err != nil {
		return 0, err
	}
	return out.Count, nil
}

// Follows returns the DIDs the actor follows, up to MaxFollows
func (c *Client) Follows(ctx context.Context, actor string) ([]string, error) {
	dids := []string{}
	cursor := ""

	for len(dids) < MaxFollows {
		out, err := call(ctx, c, "getFollows", func(xc *xrpc.Client) (*bsky.GraphGetFollows_Output, error) {
			return bsky.GraphGetFollows(ctx, xc, actor, cursor, 100)
		})
		if err != nil {
			return nil, err
		}

		for _, follow := range out.Follows {
			if follow != nil {
				dids = append(dids, follow.Did)
			}
		}

		if out.Cursor == nil || *out.Cursor == "" || len(out.Follows) == 0 {
			break
		}
		cursor = *out.Cursor
	}

	if len(dids) > MaxFollows {
		dids = dids[:MaxFollows]
	}
	return dids, nil
}

// Preferences fetches the account preferences relevant to feeds and moderation
func (c *Client) Preferences(ctx context.Context) (*preferences.Remote, error) {
	if c.Identity() == nil {
		return nil, ErrNotAuthenticated
	}

	out, err := call(ctx, c, "getPreferences", func(xc *xrpc.Client) (*bsky.ActorGetPreferences_Output, error) {
		return bsky.ActorGetPreferences(ctx, xc)
	})
	if err != nil {
		return nil, err
	}

	remote := &preferences.Remote{
		Feeds:  map[string]models.FeedViewPreference{},
		Labels: map[string]moderation.LabelVisibility{},
	}

	for _, elem := range out.Preferences {
		if pref := elem.ActorDefs_FeedViewPref; pref != nil {
			remote.Feeds[pref.Feed] = models.FeedViewPreference{
				HideReposts:    lo.FromPtr(pref.HideReposts),
				HideReplies:    lo.FromPtr(pref.HideReplies),
				HideQuotePosts: lo.FromPtr(pref.HideQuotePosts),
			}
		}
		// Labeler specific preferences are not supported
		if pref := elem.ActorDefs_ContentLabelPref; pref != nil && pref.LabelerDid == nil {
			if visibility, ok := preferences.ParseVisibility(pref.Visibility); ok {
				remote.Labels[pref.Label] = visibility
			}
		}
		if pref := elem.ActorDefs_AdultContentPref; pref != nil {
			enabled := pref.Enabled
			remote.AdultContent = &enabled
		}
	}

	return remote, nil
}
