// Package composer validates drafts and turns them into post records
package composer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"skyweb/bluesky"
	"skyweb/models"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/rivo/uniseg"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

const (
	// MaxGraphemes is the post length limit enforced by the AppView
	MaxGraphemes = 300
	MaxLanguages = 3
)

var (
	ErrEmptyPost        = errors.New("post text is empty")
	ErrTooLong          = errors.New("post text is too long")
	ErrInvalidReference = errors.New("referenced post needs both uri and cid")
)

// Draft is a post being composed
type Draft struct {
	Text  string          `json:"text"`
	Langs []string        `json:"langs,omitempty"`
	Reply *ReplyTo        `json:"reply,omitempty"`
	Quote *models.PostRef `json:"quote,omitempty"`
}

// ReplyTo points at the thread root and the post being answered
type ReplyTo struct {
	Root   models.PostRef `json:"root"`
	Parent models.PostRef `json:"parent"`
}

// Publisher writes post records
type Publisher interface {
	CreatePost(ctx context.Context, post *bsky.FeedPost) (*models.PostRef, error)
}

type Composer struct {
	publisher        Publisher
	detector         LanguageDetector
	defaultLanguages []string
	now              func() time.Time
}

// New creates a composer. detector may be nil, drafts without languages then
// get the default languages.
func New(publisher Publisher, detector LanguageDetector, defaultLanguages []string) *Composer {
	return &Composer{
		publisher:        publisher,
		detector:         detector,
		defaultLanguages: defaultLanguages,
		now:              time.Now,
	}
}

// WithClock replaces the clock used for createdAt
func (c *Composer) WithClock(now func() time.Time) *Composer {
	c.now = now
	return c
}

// Prepare validates a draft and builds the record that would be published
func (c *Composer) Prepare(draft Draft) (*bsky.FeedPost, error) {
	text := strings.TrimSpace(draft.Text)
	if text == "" {
		return nil, ErrEmptyPost
	}
	if count := uniseg.GraphemeClusterCount(text); count > MaxGraphemes {
		return nil, fmt.Errorf("%w: %d graphemes, limit is %d", ErrTooLong, count, MaxGraphemes)
	}

	post := &bsky.FeedPost{
		LexiconTypeID: "app.bsky.feed.post",
		Text:          text,
		CreatedAt:     bluesky.FormatTime(c.now()),
		Langs:         c.languages(text, draft.Langs),
	}

	if draft.Reply != nil {
		root, err := strongRef(draft.Reply.Root)
		if err != nil {
			return nil, fmt.Errorf("reply root: %w", err)
		}
		parent, err := strongRef(draft.Reply.Parent)
		if err != nil {
			return nil, fmt.Errorf("reply parent: %w", err)
		}
		post.Reply = &bsky.FeedPost_ReplyRef{Root: root, Parent: parent}
	}

	if draft.Quote != nil {
		quoted, err := strongRef(*draft.Quote)
		if err != nil {
			return nil, fmt.Errorf("quote: %w", err)
		}
		post.Embed = &bsky.FeedPost_Embed{
			EmbedRecord: &bsky.EmbedRecord{
				LexiconTypeID: "app.bsky.embed.record",
				Record:        quoted,
			},
		}
	}

	return post, nil
}

// Publish prepares the draft and writes it to the account's repository
func (c *Composer) Publish(ctx context.Context, draft Draft) (*models.PostRef, error) {
	post, err := c.Prepare(draft)
	if err != nil {
		return nil, err
	}

	ref, err := c.publisher.CreatePost(ctx, post)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"uri":   ref.Uri,
		"langs": post.Langs,
		"reply": post.Reply != nil,
	}).Info("Published post")
	return ref, nil
}

// languages normalises the requested languages, or detects one when none
// were given
func (c *Composer) languages(text string, requested []string) []string {
	langs := lo.Uniq(lo.FilterMap(requested, func(lang string, _ int) (string, bool) {
		lang = strings.ToLower(strings.TrimSpace(lang))
		return lang, lang != ""
	}))

	if len(langs) == 0 && c.detector != nil {
		if detected, ok := c.detector.Detect(text); ok {
			langs = []string{detected}
		}
	}
	if len(langs) == 0 {
		langs = append(langs, c.defaultLanguages...)
	}

	if len(langs) > MaxLanguages {
		langs = langs[:MaxLanguages]
	}
	return langs
}

func strongRef(ref models.PostRef) (*atproto.RepoStrongRef, error) {
	if ref.Uri == "" || ref.Cid == "" {
		return nil, ErrInvalidReference
	}
	return &atproto.RepoStrongRef{Uri: ref.Uri, Cid: ref.Cid}, nil
}
