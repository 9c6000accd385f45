package models

// Visibility is the viewer-relative moderation outcome for a post.
// The empty value means nothing needs to be done.
type Visibility string

const (
	VisibilityNone Visibility = ""
	VisibilityWarn Visibility = "warn"
	VisibilityHide Visibility = "hide"
)

// Reason types as they appear in the AT Protocol feed view schema
const (
	ReasonRepost = "app.bsky.feed.defs#reasonRepost"
	ReasonPin    = "app.bsky.feed.defs#reasonPin"
)

// Identity of the authenticated viewer
type Identity struct {
	Did    string `json:"did"`
	Handle string `json:"handle"`
}

// Author of a post, or the account behind a repost
type Author struct {
	Did         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
}

// Moderation is the annotation computed upstream from labels and viewer state
type Moderation struct {
	Visibility Visibility `json:"visibility,omitempty"`
	// Labels that caused the decision, useful for the warning shown in the UI
	Causes []string `json:"causes,omitempty"`
}

// QuotedPost is the record embedded in a quote post
type QuotedPost struct {
	Uri        string      `json:"uri"`
	Author     *Author     `json:"author,omitempty"`
	Text       string      `json:"text,omitempty"`
	Moderation *Moderation `json:"moderation,omitempty"`
}

// Embed holds the post's embedded content. Only the quoted record takes part
// in feed filtering.
type Embed struct {
	// Kind is one of images, video, external, record or recordWithMedia
	Kind   string      `json:"kind"`
	Quoted *QuotedPost `json:"quoted,omitempty"`
}

// Post with the fields the client reads from app.bsky.feed.defs#postView
type Post struct {
	Uri         string      `json:"uri"`
	Cid         string      `json:"cid,omitempty"`
	Author      *Author     `json:"author,omitempty"`
	Text        string      `json:"text,omitempty"`
	Languages   []string    `json:"langs,omitempty"`
	CreatedAt   string      `json:"createdAt,omitempty"`
	IndexedAt   string      `json:"indexedAt,omitempty"`
	Embed       *Embed      `json:"embed,omitempty"`
	Moderation  *Moderation `json:"moderation,omitempty"`
	LikeCount   int64       `json:"likeCount,omitempty"`
	RepostCount int64       `json:"repostCount,omitempty"`
	ReplyCount  int64       `json:"replyCount,omitempty"`
	QuoteCount  int64       `json:"quoteCount,omitempty"`
}

// PostRef points at a post in a reply chain. NotFound and Blocked mirror the
// AT Protocol placeholder views.
type PostRef struct {
	Uri      string `json:"uri"`
	Cid      string `json:"cid,omitempty"`
	NotFound bool   `json:"notFound,omitempty"`
	Blocked  bool   `json:"blocked,omitempty"`
}

// Reply marks a feed item as a reply
type Reply struct {
	Root   *PostRef `json:"root,omitempty"`
	Parent *PostRef `json:"parent,omitempty"`
}

// Reason explains why an item is in the feed when it is not organic content
type Reason struct {
	Type string  `json:"$type"`
	By   *Author `json:"by,omitempty"`
}

// FeedItem wraps a post with its optional reply and reason metadata
type FeedItem struct {
	Post   *Post   `json:"post"`
	Reply  *Reply  `json:"reply,omitempty"`
	Reason *Reason `json:"reason,omitempty"`
}

// FeedPage is one page of a feed. Cursor is opaque and nil on the last page.
type FeedPage struct {
	Items  []FeedItem `json:"feed"`
	Cursor *string    `json:"cursor"`
}

// FeedViewPreference holds the per-feed display toggles
type FeedViewPreference struct {
	HideReposts    bool `json:"hideReposts"`
	HideReplies    bool `json:"hideReplies"`
	HideQuotePosts bool `json:"hideQuotePosts"`
}

// Profile is a detailed actor view shown on profile pages
type Profile struct {
	Author
	Description    string `json:"description,omitempty"`
	Banner         string `json:"banner,omitempty"`
	FollowersCount int64  `json:"followersCount"`
	FollowsCount   int64  `json:"followsCount"`
	PostsCount     int64  `json:"postsCount"`
}

// Notification is a single entry of app.bsky.notification.listNotifications
type Notification struct {
	Uri           string  `json:"uri"`
	Reason        string  `json:"reason"`
	ReasonSubject string  `json:"reasonSubject,omitempty"`
	Author        *Author `json:"author,omitempty"`
	IsRead        bool    `json:"isRead"`
	IndexedAt     string  `json:"indexedAt"`
}

// NotificationPage is one page of notifications
type NotificationPage struct {
	Notifications []Notification `json:"notifications"`
	Cursor        *string        `json:"cursor"`
}
