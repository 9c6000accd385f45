package feeds

import (
	"skyweb/models"
)

// RepostRule drops mechanical reposts
type RepostRule struct{}

func (RepostRule) Excludes(item *models.FeedItem) bool {
	return item.Reason != nil && item.Reason.Type == models.ReasonRepost
}

func (RepostRule) Name() string { return "repost" }

// ReplyRule drops replies
type ReplyRule struct{}

func (ReplyRule) Excludes(item *models.FeedItem) bool {
	return item.Reply != nil
}

func (ReplyRule) Name() string { return "reply" }

// HiddenRule drops items whose post or quoted post is moderated as hidden.
// A warning never drops an item, the UI shows it behind an interstitial.
type HiddenRule struct{}

func (HiddenRule) Excludes(item *models.FeedItem) bool {
	post := item.Post
	if post == nil {
		return false
	}
	if isHidden(post.Moderation) {
		return true
	}
	return post.Embed != nil && post.Embed.Quoted != nil && isHidden(post.Embed.Quoted.Moderation)
}

func (HiddenRule) Name() string { return "hidden" }

func isHidden(m *models.Moderation) bool {
	return m != nil && m.Visibility == models.VisibilityHide
}

var _ ExclusionRule = RepostRule{}
var _ ExclusionRule = ReplyRule{}
var _ ExclusionRule = HiddenRule{}

// FilterFollowingFeed applies the viewer's following feed preferences, moderation
// and thread deduplication. Without a current user the page is returned as is.
func FilterFollowingFeed(page *models.FeedPage, currentUser *models.Identity, prefs Preferences) *models.FeedPage {
	if currentUser == nil || page == nil {
		return page
	}

	var pref models.FeedViewPreference
	if prefs != nil {
		pref = prefs.FollowingFeedPreference()
	}

	rules := make([]ExclusionRule, 0, 3)
	if pref.HideReposts {
		rules = append(rules, RepostRule{})
	}
	if pref.HideReplies {
		rules = append(rules, ReplyRule{})
	}
	rules = append(rules, HiddenRule{})

	return filterPage(page, rules)
}

// FilterAlgorithmicFeed applies moderation and deduplication to a feed
// generator page. Reposts and replies are left to the generator.
func FilterAlgorithmicFeed(page *models.FeedPage) *models.FeedPage {
	return filterPage(page, []ExclusionRule{HiddenRule{}})
}

// FilterAuthorFeed applies moderation and deduplication to an author feed.
// Which reposts and replies show up is chosen by the author feed filter.
func FilterAuthorFeed(page *models.FeedPage) *models.FeedPage {
	return filterPage(page, []ExclusionRule{HiddenRule{}})
}

// DedupKey is the reply root URI when the item is a reply, else the post URI
func DedupKey(item *models.FeedItem) string {
	if item.Reply != nil && item.Reply.Root != nil && item.Reply.Root.Uri != "" {
		return item.Reply.Root.Uri
	}
	if item.Post != nil {
		return item.Post.Uri
	}
	return ""
}

func filterPage(page *models.FeedPage, rules []ExclusionRule) *models.FeedPage {
	if page == nil {
		return nil
	}

	seen := make(map[string]struct{}, len(page.Items))
	items := make([]models.FeedItem, 0, len(page.Items))

	for i := range page.Items {
		item := &page.Items[i]
		if excluded(item, rules) {
			continue
		}

		// Items without a key can't be matched to a thread, keep them all
		if key := DedupKey(item); key != "" {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
		}
		items = append(items, *item)
	}

	return &models.FeedPage{
		Items:  items,
		Cursor: page.Cursor,
	}
}

func excluded(item *models.FeedItem, rules []ExclusionRule) bool {
	for _, rule := range rules {
		if rule.Excludes(item) {
			return true
		}
	}
	return false
}
