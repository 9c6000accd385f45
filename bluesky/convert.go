package bluesky

import (
	"skyweb/models"
	"skyweb/moderation"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/samber/lo"
)

// ConvertFeed maps a feed view into a page and annotates every post using
// the moderation policy
func ConvertFeed(feed []*bsky.FeedDefs_FeedViewPost, cursor *string, policy *moderation.Policy) *models.FeedPage {
	page := &models.FeedPage{
		Items:  make([]models.FeedItem, 0, len(feed)),
		Cursor: cursor,
	}
	for _, view := range feed {
		if view == nil {
			continue
		}
		page.Items = append(page.Items, ConvertFeedItem(view, policy))
	}
	return page
}

func ConvertFeedItem(view *bsky.FeedDefs_FeedViewPost, policy *moderation.Policy) models.FeedItem {
	item := models.FeedItem{
		Post: ConvertPost(view.Post, policy),
	}

	if view.Reply != nil {
		item.Reply = &models.Reply{}
		if root := view.Reply.Root; root != nil {
			item.Reply.Root = replyRef(root.FeedDefs_PostView, root.FeedDefs_NotFoundPost, root.FeedDefs_BlockedPost)
		}
		if parent := view.Reply.Parent; parent != nil {
			item.Reply.Parent = replyRef(parent.FeedDefs_PostView, parent.FeedDefs_NotFoundPost, parent.FeedDefs_BlockedPost)
		}
	}

	if view.Reason != nil && view.Reason.FeedDefs_ReasonRepost != nil {
		item.Reason = &models.Reason{
			Type: models.ReasonRepost,
			By:   basicAuthor(view.Reason.FeedDefs_ReasonRepost.By),
		}
	}

	return item
}

// ConvertPost maps a post view, returning nil for a nil view
func ConvertPost(view *bsky.FeedDefs_PostView, policy *moderation.Policy) *models.Post {
	if view == nil {
		return nil
	}

	post := &models.Post{
		Uri:         view.Uri,
		Cid:         view.Cid,
		Author:      basicAuthor(view.Author),
		IndexedAt:   view.IndexedAt,
		Embed:       convertEmbed(view.Embed, policy),
		LikeCount:   lo.FromPtr(view.LikeCount),
		RepostCount: lo.FromPtr(view.RepostCount),
		ReplyCount:  lo.FromPtr(view.ReplyCount),
		QuoteCount:  lo.FromPtr(view.QuoteCount),
	}

	if record := feedPost(view.Record); record != nil {
		post.Text = record.Text
		post.Languages = record.Langs
		post.CreatedAt = record.CreatedAt
	}

	post.Moderation = policy.Decide(subject(view.Labels, view.Author))
	return post
}

func ConvertProfile(view *bsky.ActorDefs_ProfileViewDetailed) *models.Profile {
	if view == nil {
		return nil
	}
	return &models.Profile{
		Author: models.Author{
			Did:         view.Did,
			Handle:      view.Handle,
			DisplayName: lo.FromPtr(view.DisplayName),
			Avatar:      lo.FromPtr(view.Avatar),
		},
		Description:    lo.FromPtr(view.Description),
		Banner:         lo.FromPtr(view.Banner),
		FollowersCount: lo.FromPtr(view.FollowersCount),
		FollowsCount:   lo.FromPtr(view.FollowsCount),
		PostsCount:     lo.FromPtr(view.PostsCount),
	}
}

func ConvertNotification(n *bsky.NotificationListNotifications_Notification) models.Notification {
	notification := models.Notification{
		Uri:           n.Uri,
		Reason:        n.Reason,
		ReasonSubject: lo.FromPtr(n.ReasonSubject),
		IsRead:        n.IsRead,
		IndexedAt:     n.IndexedAt,
	}
	if n.Author != nil {
		notification.Author = &models.Author{
			Did:         n.Author.Did,
			Handle:      n.Author.Handle,
			DisplayName: lo.FromPtr(n.Author.DisplayName),
			Avatar:      lo.FromPtr(n.Author.Avatar),
		}
	}
	return notification
}

func convertEmbed(embed *bsky.FeedDefs_PostView_Embed, policy *moderation.Policy) *models.Embed {
	if embed == nil {
		return nil
	}

	switch {
	case embed.EmbedImages_View != nil:
		return &models.Embed{Kind: "images"}
	case embed.EmbedVideo_View != nil:
		return &models.Embed{Kind: "video"}
	case embed.EmbedExternal_View != nil:
		return &models.Embed{Kind: "external"}
	case embed.EmbedRecord_View != nil:
		return &models.Embed{Kind: "record", Quoted: quotedPost(embed.EmbedRecord_View, policy)}
	case embed.EmbedRecordWithMedia_View != nil:
		return &models.Embed{Kind: "recordWithMedia", Quoted: quotedPost(embed.EmbedRecordWithMedia_View.Record, policy)}
	}
	return nil
}

// quotedPost returns the quoted record when it is a visible post. Quoted
// feeds, lists and unavailable records are not represented.
func quotedPost(view *bsky.EmbedRecord_View, policy *moderation.Policy) *models.QuotedPost {
	if view == nil || view.Record == nil || view.Record.EmbedRecord_ViewRecord == nil {
		return nil
	}
	record := view.Record.EmbedRecord_ViewRecord

	quoted := &models.QuotedPost{
		Uri:        record.Uri,
		Author:     basicAuthor(record.Author),
		Moderation: policy.Decide(subject(record.Labels, record.Author)),
	}
	if post := feedPost(record.Value); post != nil {
		quoted.Text = post.Text
	}
	return quoted
}

func replyRef(view *bsky.FeedDefs_PostView, notFound *bsky.FeedDefs_NotFoundPost, blocked *bsky.FeedDefs_BlockedPost) *models.PostRef {
	switch {
	case view != nil:
		return &models.PostRef{Uri: view.Uri, Cid: view.Cid}
	case notFound != nil:
		return &models.PostRef{Uri: notFound.Uri, NotFound: true}
	case blocked != nil:
		return &models.PostRef{Uri: blocked.Uri, Blocked: true}
	}
	return nil
}

func feedPost(record *lexutil.LexiconTypeDecoder) *bsky.FeedPost {
	if record == nil {
		return nil
	}
	post, ok := record.Val.(*bsky.FeedPost)
	if !ok {
		return nil
	}
	return post
}

func basicAuthor(view *bsky.ActorDefs_ProfileViewBasic) *models.Author {
	if view == nil {
		return nil
	}
	return &models.Author{
		Did:         view.Did,
		Handle:      view.Handle,
		DisplayName: lo.FromPtr(view.DisplayName),
		Avatar:      lo.FromPtr(view.Avatar),
	}
}

func subject(postLabels []*atproto.LabelDefs_Label, author *bsky.ActorDefs_ProfileViewBasic) moderation.Subject {
	s := moderation.Subject{PostLabels: convertLabels(postLabels)}
	if author == nil {
		return s
	}

	s.AuthorLabels = convertLabels(author.Labels)
	if viewer := author.Viewer; viewer != nil {
		s.Viewer = moderation.ViewerState{
			Muted:     lo.FromPtr(viewer.Muted),
			BlockedBy: lo.FromPtr(viewer.BlockedBy),
			Blocking:  lo.FromPtr(viewer.Blocking) != "",
		}
	}
	return s
}

func convertLabels(labels []*atproto.LabelDefs_Label) []moderation.Label {
	out := make([]moderation.Label, 0, len(labels))
	for _, l := range labels {
		if l == nil {
			continue
		}
		out = append(out, moderation.Label{Src: l.Src, Val: l.Val, Neg: lo.FromPtr(l.Neg)})
	}
	return out
}
